package school

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// ExamsRepository stores exams and their results.
type ExamsRepository struct {
	db *sqlx.DB
}

const (
	examColumns   = `id, name, class_id, subject_id, held_on, max_marks, created_at`
	resultColumns = `id, exam_id, student_id, marks, grade, remarks, created_at`
)

// Create inserts an exam.
func (r *ExamsRepository) Create(ctx context.Context, e *domain.Exam) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exams (`+examColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.Name, e.ClassID, e.SubjectID, e.HeldOn, e.MaxMarks, e.CreatedAt,
	)
	return mapError(err, domain.ErrNotFound)
}

// Get returns an exam by id.
func (r *ExamsRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Exam, error) {
	var e domain.Exam
	if err := r.db.GetContext(ctx, &e, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id); err != nil {
		return nil, mapError(err, domain.ErrNotFound)
	}
	return &e, nil
}

// List returns exams newest first, optionally for one class.
func (r *ExamsRepository) List(ctx context.Context, classID *uuid.UUID, page Page) ([]domain.Exam, error) {
	b := psql.Select(examColumns).From("exams").OrderBy("held_on DESC", "name")
	if classID != nil {
		b = b.Where(sq.Eq{"class_id": *classID})
	}
	return selectAll[domain.Exam](ctx, r.db, page.apply(b))
}

// RecordResults upserts every result for examID in one transaction. A
// second submission for the same student replaces the earlier mark.
func (r *ExamsRepository) RecordResults(ctx context.Context, examID uuid.UUID, results []domain.ExamResult) error {
	return inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM exams WHERE id = $1)`, examID); err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}

		now := time.Now()
		for i := range results {
			res := &results[i]
			res.ID = uuid.New()
			res.ExamID = examID
			res.CreatedAt = now
			err := tx.GetContext(ctx, &res.ID, `
				INSERT INTO exam_results (`+resultColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (exam_id, student_id)
				DO UPDATE SET marks = EXCLUDED.marks, grade = EXCLUDED.grade, remarks = EXCLUDED.remarks
				RETURNING id`,
				res.ID, res.ExamID, res.StudentID, res.Marks, res.Grade, res.Remarks, res.CreatedAt,
			)
			if err != nil {
				return mapError(err, domain.ErrNotFound)
			}
		}
		return nil
	})
}

// ListResults returns the results of an exam ordered by marks.
func (r *ExamsRepository) ListResults(ctx context.Context, examID uuid.UUID) ([]domain.ExamResult, error) {
	return selectAll[domain.ExamResult](ctx, r.db,
		psql.Select(resultColumns).From("exam_results").
			Where(sq.Eq{"exam_id": examID}).OrderBy("marks DESC", "student_id"))
}
