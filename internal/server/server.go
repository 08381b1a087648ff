package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pbazhenov/lockerdesk/internal/session"
	"github.com/pbazhenov/lockerdesk/internal/storage"
)

type Inventory interface {
	Get(ctx context.Context, number string) (*storage.Locker, error)
	List(ctx context.Context, zone string, occupied *bool) ([]*storage.Locker, error)
	History(ctx context.Context, number string) ([]storage.HistoryEvent, error)
	Update(ctx context.Context, number string, fields storage.UpdateFields, expectedVersion *int64, actor storage.Actor) (*storage.Locker, error)
	Import(ctx context.Context, rows []storage.ImportRow, mode storage.ImportMode, actor storage.Actor) (*storage.ImportReport, error)
}

type Locks interface {
	Acquire(ctx context.Context, number string, actor storage.Actor) (*storage.AcquireResult, error)
	Renew(ctx context.Context, number, actorID string) (bool, error)
	Release(ctx context.Context, number string, actor storage.Actor) error
	Check(ctx context.Context, number string) (*storage.LockStatus, error)
	ForceRelease(ctx context.Context, number string, actor storage.Actor) error
}

type Sessions interface {
	Login(ctx context.Context, username, password string) (string, session.Session, error)
	Validate(token string) (session.Session, bool)
	Touch(token string) bool
	Logout(token string)
}

type Server struct {
	inventory Inventory
	locks     Locks
	sessions  Sessions
	logger    *zap.Logger

	server       *http.Server
	AuditManager *AuditManager
}

func New(inventory Inventory, locks Locks, sessions Sessions, audit *AuditManager, logger *zap.Logger) *Server {
	return &Server{
		inventory:    inventory,
		locks:        locks,
		sessions:     sessions,
		AuditManager: audit,
		logger:       logger,
	}
}

func (s *Server) Run(ctx context.Context, port string) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.AuditManager.Start(ctx)

	s.logger.Info("http server starting", zap.String("port", port))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return err
		}
	}
	s.AuditManager.Shutdown(ctx)
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) setupRoutes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.auditLogMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)

	authed := router.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)

	authed.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)

	authed.HandleFunc("/lockers", s.handleListLockers).Methods(http.MethodGet)
	authed.HandleFunc("/lockers/{number}", s.handleGetLocker).Methods(http.MethodGet)
	authed.HandleFunc("/lockers/{number}", s.handleUpdateLocker).Methods(http.MethodPut)
	authed.HandleFunc("/lockers/{number}/history", s.handleLockerHistory).Methods(http.MethodGet)

	authed.HandleFunc("/lockers/{number}/lock", s.handleAcquireLock).Methods(http.MethodPost)
	authed.HandleFunc("/lockers/{number}/lock", s.handleCheckLock).Methods(http.MethodGet)
	authed.HandleFunc("/lockers/{number}/lock", s.handleReleaseLock).Methods(http.MethodDelete)
	authed.HandleFunc("/lockers/{number}/lock/renew", s.handleRenewLock).Methods(http.MethodPost)

	admin := authed.NewRoute().Subrouter()
	admin.Use(s.adminOnlyMiddleware)
	admin.HandleFunc("/lockers/{number}/lock/force", s.handleForceRelease).Methods(http.MethodDelete)
	admin.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)

	return router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
