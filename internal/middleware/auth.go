package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/coolive/internal/auth"
	"github.com/dukerupert/coolive/internal/chore"
	"github.com/dukerupert/coolive/internal/store"
)

// SessionCookieName is the cookie carrying the session token for browser clients.
const SessionCookieName = "coolive_session"

// SessionToken returns the bearer token or, failing that, the session cookie.
func SessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// RequireAuth validates the session token and populates AuthContext.
func RequireAuth(sessionStore *store.SessionStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			sess, err := sessionStore.GetByToken(r.Context(), token)
			if err != nil {
				logger.Error("load session", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if sess == nil {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			ac := auth.AuthContext{
				UserID:        sess.UserID,
				SessionID:     sess.ID,
				CachedGroupID: sess.GroupID,
			}
			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type groupResolver interface {
	Resolve(ctx context.Context, userID, sessionID int64, cached *int64) (int64, error)
}

// RequireGroup resolves the caller's group and stores it on the AuthContext.
// Must run after RequireAuth.
func RequireGroup(resolver groupResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac, ok := auth.FromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			groupID, err := resolver.Resolve(r.Context(), ac.UserID, ac.SessionID, ac.CachedGroupID)
			if errors.Is(err, chore.ErrNoGroup) {
				writeError(w, http.StatusForbidden, "join or create a group first")
				return
			}
			if err != nil {
				logger.Error("resolve group", "user_id", ac.UserID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			ac.GroupID = groupID
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(r.Context(), ac)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
