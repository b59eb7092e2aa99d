package school

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// FeesRepository stores fee structures and payments.
type FeesRepository struct {
	db *sqlx.DB
}

const (
	feeStructureColumns = `id, class_id, name, term, amount_cents, due_date, created_at`
	feePaymentColumns   = `id, student_id, fee_structure_id, amount_cents, method, reference, paid_at, recorded_by`
)

// CreateStructure inserts a fee structure. A nil ClassID applies the fee
// to every class.
func (r *FeesRepository) CreateStructure(ctx context.Context, f *domain.FeeStructure) error {
	f.ID = uuid.New()
	f.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fee_structures (`+feeStructureColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		f.ID, f.ClassID, f.Name, f.Term, f.AmountCents, f.DueDate, f.CreatedAt,
	)
	return mapError(err, domain.ErrNotFound)
}

// ListStructures returns fee structures, optionally for one class and term.
func (r *FeesRepository) ListStructures(ctx context.Context, classID *uuid.UUID, term string) ([]domain.FeeStructure, error) {
	b := psql.Select(feeStructureColumns).From("fee_structures").OrderBy("term", "name")
	if classID != nil {
		b = b.Where(sq.Or{sq.Eq{"class_id": *classID}, sq.Eq{"class_id": nil}})
	}
	if term != "" {
		b = b.Where(sq.Eq{"term": term})
	}
	return selectAll[domain.FeeStructure](ctx, r.db, b)
}

// RecordPayment inserts a payment.
func (r *FeesRepository) RecordPayment(ctx context.Context, p *domain.FeePayment) error {
	p.ID = uuid.New()
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fee_payments (`+feePaymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.StudentID, p.FeeStructureID, p.AmountCents, p.Method, p.Reference, p.PaidAt, p.RecordedBy,
	)
	return mapError(err, domain.ErrNotFound)
}

// ListPayments returns payments newest first, optionally for one student.
func (r *FeesRepository) ListPayments(ctx context.Context, studentID *uuid.UUID, page Page) ([]domain.FeePayment, error) {
	b := psql.Select(feePaymentColumns).From("fee_payments").OrderBy("paid_at DESC", "id")
	if studentID != nil {
		b = b.Where(sq.Eq{"student_id": *studentID})
	}
	return selectAll[domain.FeePayment](ctx, r.db, page.apply(b))
}

// Statement totals what a student has been billed for their class and
// what they have paid.
func (r *FeesRepository) Statement(ctx context.Context, studentID uuid.UUID) (*domain.FeeStatement, error) {
	var classID uuid.UUID
	if err := r.db.GetContext(ctx, &classID, `SELECT class_id FROM students WHERE id = $1`, studentID); err != nil {
		return nil, mapError(err, domain.ErrNotFound)
	}

	st := &domain.FeeStatement{StudentID: studentID}
	err := r.db.GetContext(ctx, &st.BilledCents, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM fee_structures
		WHERE class_id = $1 OR class_id IS NULL`, classID)
	if err != nil {
		return nil, err
	}

	st.Payments, err = selectAll[domain.FeePayment](ctx, r.db,
		psql.Select(feePaymentColumns).From("fee_payments").
			Where(sq.Eq{"student_id": studentID}).OrderBy("paid_at"))
	if err != nil {
		return nil, err
	}
	for _, p := range st.Payments {
		st.PaidCents += p.AmountCents
	}
	st.BalanceCents = st.BilledCents - st.PaidCents
	return st, nil
}
