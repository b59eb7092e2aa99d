package school

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// CertificatesRepository stores issued certificates.
type CertificatesRepository struct {
	db *sqlx.DB
}

const certificateColumns = `id, student_id, kind, serial_no, issued_at, issued_by, remarks`

// Issue records a certificate. The serial number is derived from the kind
// and issue time when left empty.
func (r *CertificatesRepository) Issue(ctx context.Context, c *domain.Certificate) error {
	c.ID = uuid.New()
	c.IssuedAt = time.Now()
	if c.SerialNo == "" {
		c.SerialNo = serialNumber(c.Kind, c.IssuedAt, c.ID)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO certificates (`+certificateColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.StudentID, c.Kind, c.SerialNo, c.IssuedAt, c.IssuedBy, c.Remarks,
	)
	return mapError(err, domain.ErrNotFound)
}

func serialNumber(kind string, at time.Time, id uuid.UUID) string {
	prefix := strings.ToUpper(kind)
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, at.UTC().Format("20060102"), strings.ToUpper(id.String()[:8]))
}

// List returns certificates newest first, optionally for one student.
func (r *CertificatesRepository) List(ctx context.Context, studentID *uuid.UUID, page Page) ([]domain.Certificate, error) {
	b := psql.Select(certificateColumns).From("certificates").OrderBy("issued_at DESC", "id")
	if studentID != nil {
		b = b.Where(sq.Eq{"student_id": *studentID})
	}
	return selectAll[domain.Certificate](ctx, r.db, page.apply(b))
}
