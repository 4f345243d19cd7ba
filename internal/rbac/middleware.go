package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/flashy-edu/flashy/internal/platform/httpx"
)

// ErrMalformedAuthorization indicates an Authorization header that is not "Bearer <token>".
var ErrMalformedAuthorization = errors.New("rbac: malformed authorization header")

// Verifier checks a bearer access token and returns the principal it represents.
type Verifier interface {
	VerifyAccess(token string) (*Principal, error)
}

// DecisionObserver receives every guard decision, e.g. for metrics.
type DecisionObserver interface {
	ObserveDecision(policy, decision string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Verifier Verifier
	Logger   *slog.Logger
	Observer DecisionObserver
}

// Authenticate reads the bearer token and stores the verified principal in the
// request context. A missing, malformed or unverifiable header leaves the
// request anonymous; guarded routes then answer through the policy decision.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err != nil || token == "" {
			if err != nil && m.Logger != nil {
				m.Logger.Debug("rbac authorization header", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		principal, err := m.Verifier.VerifyAccess(token)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("rbac verify token", slog.Any("error", err))
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// Enforce evaluates p against the request principal before next runs.
func (m Middleware) Enforce(p Policy) func(http.Handler) http.Handler {
	label := p.String()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := p.Evaluate(PrincipalFromContext(r.Context()))
			if m.Observer != nil {
				m.Observer.ObserveDecision(label, decision.String())
			}
			switch decision {
			case DecisionAllow:
				next.ServeHTTP(w, r)
			case DecisionUnauthenticated:
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
			default:
				if m.Logger != nil {
					m.Logger.Info("rbac forbidden", slog.String("policy", label), slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
			}
		})
	}
}

// RequireAll ensures the current principal has all required roles.
func (m Middleware) RequireAll(roles ...string) func(http.Handler) http.Handler {
	return m.Enforce(RequireAll(roles...))
}

// RequireAny ensures the current principal has at least one of the roles.
func (m Middleware) RequireAny(roles ...string) func(http.Handler) http.Handler {
	return m.Enforce(RequireAny(roles...))
}

// Handle registers h on r for method and pattern behind policy p.
func (m Middleware) Handle(r chi.Router, method, pattern string, p Policy, h http.HandlerFunc) {
	r.With(m.Enforce(p)).Method(method, pattern, h)
}

// BearerToken extracts the token from the Authorization header. It returns an
// empty token and nil error when the header is absent.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", ErrMalformedAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedAuthorization
	}
	return token, nil
}
