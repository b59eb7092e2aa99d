package schoolapi

import (
	"net/http"

	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/internal/school"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// AnnouncementRequest publishes a message. Audience is a school role or
// "all", the default.
type AnnouncementRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Body     string `json:"body" validate:"required,max=10000"`
	Audience string `json:"audience" validate:"omitempty,oneof=all admin teacher accountant librarian student parent"`
}

// PublishAnnouncement handles POST /v1/school/announcements
func (h *Handler) PublishAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req AnnouncementRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	a := &domain.Announcement{
		Title:       auth.SanitizeText(req.Title),
		Body:        auth.SanitizeText(req.Body),
		Audience:    req.Audience,
		PublishedBy: callerID(r),
	}
	if err := store.Announcements.Publish(r.Context(), a); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, a)
}

// ListAnnouncements handles GET /v1/school/announcements. Admins and
// teachers may filter by ?audience=; everyone else sees what is addressed
// to their role or to all.
func (h *Handler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	audience := r.URL.Query().Get("audience")
	if p, ok := middleware.PrincipalFrom(r.Context()); ok && !p.HasRole(admin, teacher) {
		audience = p.Role
	}
	if audience != "" && audience != school.AudienceAll && !domain.SchoolRole(audience).Valid() {
		h.fail(w, r, domain.ErrInvalidInput)
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	items, err := store.Announcements.List(r.Context(), audience, h.page(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, items)
}
