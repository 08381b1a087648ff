package server

import (
	"bytes"
	"net/http"
)

// capturingResponseWriter mirrors the response to the client while keeping
// at most maxAuditBodyBytes of the body for the audit entry, so a large
// locker listing never bloats the audit trail.
type capturingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func newCapturingResponseWriter(w http.ResponseWriter) *capturingResponseWriter {
	return &capturingResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (w *capturingResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *capturingResponseWriter) Write(b []byte) (int, error) {
	if remaining := maxAuditBodyBytes - w.body.Len(); remaining > 0 {
		if len(b) > remaining {
			w.body.Write(b[:remaining])
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

func (w *capturingResponseWriter) StatusCode() int {
	return w.statusCode
}

func (w *capturingResponseWriter) Body() string {
	return w.body.String()
}
