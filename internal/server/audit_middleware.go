package server

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// maxAuditBodyBytes bounds how much of a request/response body lands in an
// audit entry; bulk import bodies can be large.
const maxAuditBodyBytes = 4 << 10

func (s *Server) auditLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		entry := AuditLogEntry{
			Timestamp:    time.Now().UTC(),
			Method:       r.Method,
			Path:         r.URL.Path,
			LockerNumber: mux.Vars(r)["number"],
		}

		if token := bearerToken(r); token != "" {
			if sess, ok := s.sessions.Validate(token); ok {
				entry.ActorName = sess.UserName
				entry.ActorRole = sess.Role()
			}
		}

		if r.Body != nil && r.URL.Path != "/login" {
			requestBody, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(requestBody))
			entry.Request = truncate(string(requestBody), maxAuditBodyBytes)
		}

		wrw := newCapturingResponseWriter(w)

		next.ServeHTTP(wrw, r)

		entry.StatusCode = wrw.StatusCode()
		response := wrw.Body()
		if strings.HasPrefix(r.URL.Path, "/login") {
			// Never persist minted tokens.
			response = ""
		}
		entry.Response = response

		s.AuditManager.LogEntry(r.Context(), entry)
	})
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
