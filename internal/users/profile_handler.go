package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/flashy-edu/flashy/internal/platform/httpx"
	"github.com/flashy-edu/flashy/internal/rbac"
	"github.com/flashy-edu/flashy/internal/shared"
)

// ProfileHandler serves the caller's own profile.
type ProfileHandler struct {
	logger    *slog.Logger
	service   *ProfileService
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewProfileHandler builds a ProfileHandler.
func NewProfileHandler(logger *slog.Logger, service *ProfileService, rbacMW rbac.Middleware) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{logger: logger, service: service, rbac: rbacMW, validator: validator.New()}
}

// MountRoutes registers profile routes. Any authenticated principal may use them.
func (h *ProfileHandler) MountRoutes(r chi.Router) {
	h.rbac.Handle(r, http.MethodGet, "/", rbac.RequireAll(), h.getProfile)
	h.rbac.Handle(r, http.MethodPut, "/", rbac.RequireAll(), h.updateProfile)
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=120"`
	LastName  *string `json:"last_name" validate:"omitempty,max=120"`
	Bio       *string `json:"bio" validate:"omitempty,max=1024"`
	RoleTitle *string `json:"role_title" validate:"omitempty,max=120"`
}

func (h *ProfileHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrAuthentication)
		return
	}
	view, err := h.service.Get(r.Context(), principal.ID)
	if err != nil {
		h.logger.Warn("get profile failed", slog.Int64("user_id", principal.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *ProfileHandler) updateProfile(w http.ResponseWriter, r *http.Request) {
	principal := rbac.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, shared.ErrAuthentication)
		return
	}
	var req updateProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	profile, err := h.service.Update(r.Context(), principal.ID, ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Bio:       req.Bio,
		RoleTitle: req.RoleTitle,
	})
	if err != nil {
		h.logger.Warn("update profile failed", slog.Int64("user_id", principal.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, profile)
}
