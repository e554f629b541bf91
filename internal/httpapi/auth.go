package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"aze/timetrack-service/internal/models"
	"aze/timetrack-service/internal/store"
)

type authContextKey struct{}

type authInfo struct {
	Session models.Session
	User    models.User
}

func AuthMiddleware(st store.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		session, user, err := st.GetSession(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{Session: session, User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFromContext(ctx context.Context) (authInfo, bool) {
	value := ctx.Value(authContextKey{})
	if value == nil {
		return authInfo{}, false
	}
	info, ok := value.(authInfo)
	if !ok {
		return authInfo{}, false
	}
	return info, true
}

func requireAuth(w http.ResponseWriter, r *http.Request) (authInfo, bool) {
	info, ok := authFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return authInfo{}, false
	}
	return info, true
}

// requireApprover gates endpoints reserved for the lead roles.
func requireApprover(w http.ResponseWriter, r *http.Request) (authInfo, bool) {
	info, ok := requireAuth(w, r)
	if !ok {
		return authInfo{}, false
	}
	if !store.CanDecide(info.User.Role) {
		writeError(w, http.StatusForbidden, "access_denied", "role does not allow this action")
		return authInfo{}, false
	}
	return info, true
}

// requireSelfOrApprover allows users to touch their own data; anything
// else needs a lead role.
func requireSelfOrApprover(w http.ResponseWriter, r *http.Request, userID string) (authInfo, bool) {
	info, ok := requireAuth(w, r)
	if !ok {
		return authInfo{}, false
	}
	if info.User.UserID == userID {
		return info, true
	}
	if !store.CanDecide(info.User.Role) {
		writeError(w, http.StatusForbidden, "access_denied", "access to other users denied")
		return authInfo{}, false
	}
	return info, true
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
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
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/auth/login", "/api/auth/sso":
		return r.Method == http.MethodPost
	default:
		return r.Method == http.MethodOptions
	}
}
