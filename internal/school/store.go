// Package school holds the repositories of a single school database. A
// Store is bound to one tenant's pool and never sees another school's data.
package school

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/tendant/school-crm/pkg/repository"
)

// psql builds postgres-style ($1) statements.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns user search text into an ILIKE pattern matching
// it literally anywhere in the value.
func containsPattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}

// Store groups the repositories of one school database.
type Store struct {
	Users         *UsersRepository
	Classes       *ClassesRepository
	Subjects      *SubjectsRepository
	Students      *StudentsRepository
	Teachers      *TeachersRepository
	Fees          *FeesRepository
	Exams         *ExamsRepository
	Attendance    *AttendanceRepository
	Library       *LibraryRepository
	Transport     *TransportRepository
	Certificates  *CertificatesRepository
	Announcements *AnnouncementsRepository
	Timetable     *TimetableRepository
}

// NewStore binds every repository to db.
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		Users:         &UsersRepository{db: db},
		Classes:       &ClassesRepository{db: db},
		Subjects:      &SubjectsRepository{db: db},
		Students:      &StudentsRepository{db: db},
		Teachers:      &TeachersRepository{db: db},
		Fees:          &FeesRepository{db: db},
		Exams:         &ExamsRepository{db: db},
		Attendance:    &AttendanceRepository{db: db},
		Library:       &LibraryRepository{db: db},
		Transport:     &TransportRepository{db: db},
		Certificates:  &CertificatesRepository{db: db},
		Announcements: &AnnouncementsRepository{db: db},
		Timetable:     &TimetableRepository{db: db},
	}
}

// Page limits a list query.
type Page struct {
	Limit  int
	Offset int
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (p Page) apply(b sq.SelectBuilder) sq.SelectBuilder {
	limit := p.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	b = b.Limit(uint64(limit))
	if p.Offset > 0 {
		b = b.Offset(uint64(p.Offset))
	}
	return b
}

// inTx runs fn in a transaction on db, committing on success.
func inTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// selectAll runs a squirrel query and scans every row. It never returns a
// nil slice so empty lists encode as [].
func selectAll[T any](ctx context.Context, q sqlx.QueryerContext, b sq.Sqlizer) ([]T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	out := []T{}
	if err := sqlx.SelectContext(ctx, q, &out, query, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// foreignKeyViolation is the postgres SQLSTATE for foreign_key_violation.
const foreignKeyViolation = "23503"

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}

// mapError translates driver errors into domain errors.
func mapError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case repository.IsUniqueViolation(err):
		return domain.ErrConflict
	case isForeignKeyViolation(err):
		return domain.ErrInvalidReference
	}
	return err
}

// expectOne turns a zero-row write into notFound.
func expectOne(result sql.Result, err error, notFound error) error {
	if err != nil {
		return mapError(err, notFound)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
