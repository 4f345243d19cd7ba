package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/flashy-edu/flashy/internal/platform/httpx"
	"github.com/flashy-edu/flashy/internal/rbac"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	rbac           rbac.Middleware
	validator      *validator.Validate
	loginPerMinute int
}

// NewHandler constructs a Handler instance. loginPerMinute <= 0 disables the login limiter.
func NewHandler(logger *slog.Logger, service *Service, rbacMW rbac.Middleware, loginPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		rbac:           rbacMW,
		validator:      validator.New(),
		loginPerMinute: loginPerMinute,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Group(func(r chi.Router) {
		if h.loginPerMinute > 0 {
			r.Use(httprate.LimitByIP(h.loginPerMinute, time.Minute))
		}
		r.Post("/login", h.handleLogin)
	})
	r.Post("/google", h.handleGoogle)
	r.Post("/refresh", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
	h.rbac.Handle(r, http.MethodGet, "/me", rbac.RequireAll(), h.handleMe)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Username string `json:"username" validate:"required,min=3,max=80"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"omitempty,max=50"`

	FirstName string `json:"first_name" validate:"omitempty,max=120"`
	LastName  string `json:"last_name" validate:"omitempty,max=120"`
}

type oauthRequest struct {
	Code string `json:"code" validate:"required"`
}

type oauthResponse struct {
	TokenPair
	User    *User `json:"user"`
	Created bool  `json:"created"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type loginResponse struct {
	TokenPair
	User *User `json:"user"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.service.Register(r.Context(), RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		Role:      req.Role,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	pair, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginResponse{TokenPair: pair, User: user})
}

func (h *Handler) handleGoogle(w http.ResponseWriter, r *http.Request) {
	var req oauthRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.service.OAuthLogin(r.Context(), req.Code)
	if err != nil {
		h.fail(w, "oauth", err)
		return
	}
	httpx.JSON(w, http.StatusOK, oauthResponse{TokenPair: res.Pair, User: res.User, Created: res.Created})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	grant, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.fail(w, "refresh", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grant)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.Logout(r.Context(), req.RefreshToken); err != nil {
		h.fail(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	me, err := h.service.Me(r.Context(), rbac.PrincipalFromContext(r.Context()))
	if err != nil {
		h.fail(w, "me", err)
		return
	}
	httpx.JSON(w, http.StatusOK, me)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.ValidationProblem(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn("auth "+op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
