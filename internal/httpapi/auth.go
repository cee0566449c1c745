package httpapi

import (
	"context"
	"net/http"
	"strings"

	"bbqstall/crew-monitor/internal/auth"
	"bbqstall/crew-monitor/internal/models"
)

type authContextKey struct{}

func AuthMiddleware(tokens *auth.TokenManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing access token")
			return
		}
		user, err := tokens.Parse(token)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, authContextKey{}, user)
}

func UserFromContext(ctx context.Context) (models.User, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return models.User{}, false
	}
	user, ok := value.(models.User)
	if !ok || user.ID == "" {
		return models.User{}, false
	}
	return user, true
}

// ContextUsers resolves the current user from the request context. It lets
// the server-side monitor act on behalf of whoever made the request.
type ContextUsers struct{}

func (ContextUsers) CurrentUser(ctx context.Context) (models.User, bool, error) {
	user, ok := UserFromContext(ctx)
	return user, ok, nil
}

func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing access token")
		return false
	}
	if !user.IsAdmin() {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "access_denied", "admin role required")
		return false
	}
	return true
}

// canAccessBranch reports whether user may watch branchID. Admins see every
// branch; crew only their own.
func canAccessBranch(user models.User, branchID string) bool {
	if user.IsAdmin() {
		return true
	}
	return user.BranchID != "" && branchID == user.BranchID
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch {
	case r.URL.Path == "/healthz", r.URL.Path == "/metrics":
		return true
	case r.URL.Path == "/api/auth/login":
		return r.Method == http.MethodPost
	case r.URL.Path == "/realtime" || strings.HasPrefix(r.URL.Path, "/realtime/"):
		// The realtime endpoint authenticates the session itself.
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
