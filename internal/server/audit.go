package server

import (
	"time"
)

type AuditLogEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	StatusCode   int       `json:"status_code"`
	ActorName    string    `json:"actor_name,omitempty"`
	ActorRole    string    `json:"actor_role,omitempty"`
	LockerNumber string    `json:"locker_number,omitempty"`
	Request      string    `json:"request,omitempty"`
	Response     string    `json:"response,omitempty"`
}
