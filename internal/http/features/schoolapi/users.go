package schoolapi

import (
	"net/http"

	"github.com/tendant/school-crm/internal/httputil"
	"github.com/tendant/school-crm/pkg/auth"
	"github.com/tendant/school-crm/pkg/domain"
)

// CreateUserRequest adds a login account to the school.
type CreateUserRequest struct {
	Email    string            `json:"email" validate:"required,email,max=254"`
	Name     string            `json:"name" validate:"required,max=100"`
	Role     domain.SchoolRole `json:"role" validate:"required,oneof=admin teacher accountant librarian student parent"`
	Password string            `json:"password" validate:"required,min=8,max=128"`
}

func (h *Handler) newUser(email, name string, role domain.SchoolRole, password string) (*domain.SchoolUser, error) {
	hash, err := h.hasher.HashNewPassword(password)
	if err != nil {
		return nil, err
	}
	return &domain.SchoolUser{
		Email:        auth.NormalizeEmail(email),
		Name:         auth.SanitizeName(name),
		Role:         role,
		PasswordHash: hash,
	}, nil
}

// CreateUser handles POST /v1/school/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !httputil.DecodeOrError(w, r, &req) {
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	user, err := h.newUser(req.Email, req.Name, req.Role, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := store.Users.Create(r.Context(), user); err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusCreated, user)
}

// ListUsers handles GET /v1/school/users?role=teacher
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	role := domain.SchoolRole(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		h.fail(w, r, domain.ErrInvalidInput)
		return
	}
	store, ok := h.store(w, r)
	if !ok {
		return
	}

	users, err := store.Users.List(r.Context(), role, h.page(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.JSON(w, http.StatusOK, users)
}
