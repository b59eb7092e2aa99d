package school

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tendant/school-crm/pkg/domain"
)

// AudienceAll addresses an announcement to every user of the school.
const AudienceAll = "all"

// AnnouncementsRepository stores announcements.
type AnnouncementsRepository struct {
	db *sqlx.DB
}

const announcementColumns = `id, title, body, audience, published_by, published_at`

// Publish inserts an announcement. An empty audience means everyone.
func (r *AnnouncementsRepository) Publish(ctx context.Context, a *domain.Announcement) error {
	a.ID = uuid.New()
	a.PublishedAt = time.Now()
	if a.Audience == "" {
		a.Audience = AudienceAll
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO announcements (`+announcementColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Title, a.Body, a.Audience, a.PublishedBy, a.PublishedAt,
	)
	return mapError(err, domain.ErrNotFound)
}

// List returns announcements newest first. A non-empty audience returns
// that audience's announcements plus those addressed to everyone.
func (r *AnnouncementsRepository) List(ctx context.Context, audience string, page Page) ([]domain.Announcement, error) {
	b := psql.Select(announcementColumns).From("announcements").OrderBy("published_at DESC", "id")
	if audience != "" && audience != AudienceAll {
		b = b.Where(sq.Eq{"audience": []string{audience, AudienceAll}})
	}
	return selectAll[domain.Announcement](ctx, r.db, page.apply(b))
}
