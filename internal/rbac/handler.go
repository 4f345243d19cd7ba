package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/flashy-edu/flashy/internal/platform/httpx"
)

// AssignmentsHandler exposes user→role assignment endpoints for administrators.
type AssignmentsHandler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewAssignmentsHandler builds an AssignmentsHandler.
func NewAssignmentsHandler(logger *slog.Logger, service *Service, rbac Middleware) *AssignmentsHandler {
	return &AssignmentsHandler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers assignment routes relative to a /users prefix.
func (h *AssignmentsHandler) MountRoutes(r chi.Router) {
	admin := RequireAll(RoleAdmin)
	h.rbac.Handle(r, http.MethodGet, "/{id}/roles", admin, h.listRoles)
	h.rbac.Handle(r, http.MethodPost, "/{id}/roles", admin, h.assignRole)
	h.rbac.Handle(r, http.MethodDelete, "/{id}/roles/{role}", admin, h.removeRole)
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required,max=50"`
}

type userRolesResponse struct {
	UserID int64    `json:"user_id"`
	Roles  []string `json:"roles"`
}

func (h *AssignmentsHandler) listRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	roles, err := h.service.RolesOf(r.Context(), userID)
	if err != nil {
		h.fail(w, "list user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, userRolesResponse{UserID: userID, Roles: roles.Names()})
}

func (h *AssignmentsHandler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if err := h.service.AssignRole(r.Context(), userID, req.Role); err != nil {
		h.fail(w, "assign role", err)
		return
	}
	h.respondRoles(w, r, userID)
}

func (h *AssignmentsHandler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveRole(r.Context(), userID, chi.URLParam(r, "role")); err != nil {
		h.fail(w, "remove role", err)
		return
	}
	h.respondRoles(w, r, userID)
}

func (h *AssignmentsHandler) respondRoles(w http.ResponseWriter, r *http.Request, userID int64) {
	roles, err := h.service.RolesOf(r.Context(), userID)
	if err != nil {
		h.fail(w, "reload user roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, userRolesResponse{UserID: userID, Roles: roles.Names()})
}

func (h *AssignmentsHandler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid user id")
		return 0, false
	}
	return id, true
}

func (h *AssignmentsHandler) fail(w http.ResponseWriter, op string, err error) {
	if h.logger != nil {
		h.logger.Warn(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
