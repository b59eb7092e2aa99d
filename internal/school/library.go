package school

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// LibraryRepository stores books and loans.
type LibraryRepository struct {
	db *sqlx.DB
}

const (
	bookColumns  = `id, title, author, isbn, total_copies, available_copies, created_at`
	issueColumns = `id, book_id, student_id, issued_at, due_at, returned_at`
)

// AddBook inserts a title with every copy available.
func (r *LibraryRepository) AddBook(ctx context.Context, b *domain.Book) error {
	b.ID = uuid.New()
	b.AvailableCopies = b.TotalCopies
	b.CreatedAt = time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO books (`+bookColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.Title, b.Author, b.ISBN, b.TotalCopies, b.AvailableCopies, b.CreatedAt,
	)
	return mapError(err, domain.ErrNotFound)
}

// ListBooks returns books, optionally matching search against title,
// author or ISBN.
func (r *LibraryRepository) ListBooks(ctx context.Context, search string, page Page) ([]domain.Book, error) {
	b := psql.Select(bookColumns).From("books").OrderBy("title", "id")
	if search != "" {
		like := containsPattern(search)
		b = b.Where(sq.Or{sq.ILike{"title": like}, sq.ILike{"author": like}, sq.ILike{"isbn": like}})
	}
	return selectAll[domain.Book](ctx, r.db, page.apply(b))
}

// Issue lends a copy of bookID to studentID.
func (r *LibraryRepository) Issue(ctx context.Context, bookID, studentID uuid.UUID, due time.Time) (*domain.BookIssue, error) {
	issue := &domain.BookIssue{
		ID:        uuid.New(),
		BookID:    bookID,
		StudentID: studentID,
		IssuedAt:  time.Now(),
		DueAt:     due,
	}
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var available int
		err := tx.GetContext(ctx, &available, `SELECT available_copies FROM books WHERE id = $1 FOR UPDATE`, bookID)
		if err != nil {
			return mapError(err, domain.ErrNotFound)
		}
		if available <= 0 {
			return domain.ErrBookUnavailable
		}
		if _, err := tx.ExecContext(ctx, `UPDATE books SET available_copies = available_copies - 1 WHERE id = $1`, bookID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO book_issues (id, book_id, student_id, issued_at, due_at)
			VALUES ($1, $2, $3, $4, $5)`,
			issue.ID, issue.BookID, issue.StudentID, issue.IssuedAt, issue.DueAt,
		)
		return mapError(err, domain.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return issue, nil
}

// Return closes a loan and puts the copy back on the shelf.
func (r *LibraryRepository) Return(ctx context.Context, issueID uuid.UUID) (*domain.BookIssue, error) {
	var issue domain.BookIssue
	err := inTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &issue, `SELECT `+issueColumns+` FROM book_issues WHERE id = $1 FOR UPDATE`, issueID)
		if err != nil {
			return mapError(err, domain.ErrNotFound)
		}
		if issue.ReturnedAt != nil {
			return domain.ErrBookAlreadyReturn
		}
		now := time.Now()
		issue.ReturnedAt = &now
		if _, err := tx.ExecContext(ctx, `UPDATE book_issues SET returned_at = $2 WHERE id = $1`, issueID, now); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE books SET available_copies = LEAST(available_copies + 1, total_copies) WHERE id = $1`, issue.BookID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// ListIssues returns loans, optionally only those still out.
func (r *LibraryRepository) ListIssues(ctx context.Context, studentID *uuid.UUID, outstanding bool, page Page) ([]domain.BookIssue, error) {
	b := psql.Select(issueColumns).From("book_issues").OrderBy("issued_at DESC", "id")
	if studentID != nil {
		b = b.Where(sq.Eq{"student_id": *studentID})
	}
	if outstanding {
		b = b.Where(sq.Eq{"returned_at": nil})
	}
	return selectAll[domain.BookIssue](ctx, r.db, page.apply(b))
}
