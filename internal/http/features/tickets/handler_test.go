package tickets

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/tendant/school-crm/pkg/repository"
)

type memStore struct {
	tickets map[uuid.UUID]*domain.SupportTicket
}

func (m *memStore) Create(_ context.Context, t *domain.SupportTicket) error {
	m.tickets[t.ID] = t
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*domain.SupportTicket, error) {
	t, ok := m.tickets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (m *memStore) List(_ context.Context, f repository.TicketFilter) ([]*domain.SupportTicket, error) {
	var out []*domain.SupportTicket
	for _, t := range m.tickets {
		if (f.TenantID == "" || t.TenantID == f.TenantID) && (f.Status == "" || t.Status == f.Status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id uuid.UUID, status domain.TicketStatus, assignedTo *uuid.UUID) error {
	t, ok := m.tickets[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status, t.AssignedTo = status, assignedTo
	return nil
}

var sessions = auth.NewSessionService(auth.SessionConfig{JWTSecret: []byte("tickets-handler-test-secret-0123456")}, nil, nil)

func tokenFor(t *testing.T, s auth.Subject) string {
	t.Helper()
	s.UserID = uuid.New()
	token, _, err := sessions.SignAccessToken(s, uuid.NewString())
	require.NoError(t, err)
	return token
}

func TestTickets(t *testing.T) {
	store := &memStore{tickets: map[uuid.UUID]*domain.SupportTicket{}}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), store)

	r := chi.NewRouter()
	r.Use(middleware.Auth(sessions))
	r.Post("/school/tickets", h.Open)
	r.Get("/school/tickets", h.ListMine)
	r.Get("/platform/tickets", h.List)
	r.Patch("/platform/tickets/{id}", h.Update)

	do := func(token, method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	green := tokenFor(t, auth.Subject{Kind: domain.SubjectSchool, Role: "admin", TenantID: "t-green"})
	blue := tokenFor(t, auth.Subject{Kind: domain.SubjectSchool, Role: "admin", TenantID: "t-blue"})
	ops := tokenFor(t, auth.Subject{Kind: domain.SubjectPlatform, Role: "support"})

	rec := do(green, http.MethodPost, "/school/tickets", `{"subject":"Export broken","body":"The roster export times out"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ticket domain.SupportTicket
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ticket))
	assert.Equal(t, "t-green", ticket.TenantID)
	assert.Equal(t, "normal", ticket.Priority)

	assert.Equal(t, http.StatusBadRequest, do(green, http.MethodPost, "/school/tickets", `{"subject":"x","body":"y","tenant_id":"t-blue"}`).Code)
	assert.Equal(t, http.StatusForbidden, do(ops, http.MethodPost, "/school/tickets", `{"subject":"x","body":"y"}`).Code)

	rec = do(blue, http.MethodGet, "/school/tickets", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(ops, http.MethodPatch, "/platform/tickets/"+ticket.ID.String(), `{"status":"in_progress"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.TicketInProgress, store.tickets[ticket.ID].Status)

	assert.Equal(t, http.StatusBadRequest, do(ops, http.MethodPatch, "/platform/tickets/"+ticket.ID.String(), `{"status":"lost"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(ops, http.MethodPatch, "/platform/tickets/"+uuid.NewString(), `{"status":"closed"}`).Code)

	rec = do(ops, http.MethodGet, "/platform/tickets?status=in_progress", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ticket.ID.String())
	assert.Equal(t, http.StatusBadRequest, do(ops, http.MethodGet, "/platform/tickets?status=bogus", "").Code)
}
