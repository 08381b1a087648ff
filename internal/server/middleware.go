package server

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/pbazhenov/lockerdesk/internal/storage"
)

type contextKey string

const actorContextKey contextKey = "actor"

// ActorFromContext returns the authenticated actor injected by the auth
// middleware. The zero Actor means the request was not authenticated.
func ActorFromContext(ctx context.Context) storage.Actor {
	actor, _ := ctx.Value(actorContextKey).(storage.Actor)
	return actor
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return token
	}
	return ""
}

func originIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// authMiddleware is the request-authentication gate: it resolves the bearer
// token to a session, rejects unauthenticated requests before any lock or
// mutation logic runs, and resets the session's expiry clock on success.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		sess, ok := s.sessions.Validate(token)
		if !ok {
			respondError(w, http.StatusUnauthorized, "Session expired or unknown")
			return
		}
		s.sessions.Touch(token)

		actor := storage.Actor{
			ID:   sess.ActorID,
			Name: sess.UserName,
			Role: sess.Role(),
			IP:   originIP(r),
		}

		ctx := context.WithValue(r.Context(), actorContextKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) adminOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ActorFromContext(r.Context()).IsAdmin() {
			respondError(w, http.StatusForbidden, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
