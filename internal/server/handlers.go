package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/pbazhenov/lockerdesk/internal/repository"
	"github.com/pbazhenov/lockerdesk/internal/storage"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginRequest); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if loginRequest.Username == "" || loginRequest.Password == "" {
		respondError(w, http.StatusBadRequest, "Missing username or password")
		return
	}

	token, sess, err := s.sessions.Login(r.Context(), loginRequest.Username, loginRequest.Password)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCredentials) {
			respondError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		s.logger.Error("login failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"user_name": sess.UserName,
		"is_admin":  sess.IsAdmin,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.sessions.Logout(bearerToken(r))
	respondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (s *Server) handleListLockers(w http.ResponseWriter, r *http.Request) {
	zone := r.URL.Query().Get("zone")

	var occupied *bool
	if occupiedStr := r.URL.Query().Get("occupied"); occupiedStr != "" {
		value := occupiedStr == "true"
		occupied = &value
	}

	lockers, err := s.inventory.List(r.Context(), zone, occupied)
	if err != nil {
		s.logger.Error("failed to list lockers", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list lockers")
		return
	}

	respondJSON(w, http.StatusOK, lockers)
}

func (s *Server) handleGetLocker(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	locker, err := s.inventory.Get(r.Context(), number)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			respondError(w, http.StatusNotFound, "Locker not found")
			return
		}
		s.logger.Error("failed to get locker", zap.String("number", number), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get locker")
		return
	}

	respondJSON(w, http.StatusOK, locker)
}

func (s *Server) handleUpdateLocker(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	var updateRequest struct {
		storage.UpdateFields
		ExpectedVersion *int64 `json:"expected_version"`
	}

	if err := json.NewDecoder(r.Body).Decode(&updateRequest); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	actor := ActorFromContext(r.Context())
	locker, err := s.inventory.Update(r.Context(), number, updateRequest.UpdateFields, updateRequest.ExpectedVersion, actor)
	if err != nil {
		var conflict *repository.ErrVersionConflict
		switch {
		case errors.As(err, &conflict):
			respondJSON(w, http.StatusConflict, map[string]interface{}{
				"error":           "This record changed since you loaded it, please re-fetch and retry",
				"current_version": conflict.CurrentVersion,
			})
		case errors.Is(err, repository.ErrObjectNotFound):
			respondError(w, http.StatusNotFound, "Locker not found")
		default:
			s.logger.Error("failed to update locker", zap.String("number", number), zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Failed to update locker")
		}
		return
	}

	respondJSON(w, http.StatusOK, locker)
}

func (s *Server) handleLockerHistory(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	history, err := s.inventory.History(r.Context(), number)
	if err != nil {
		s.logger.Error("failed to load locker history", zap.String("number", number), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleAcquireLock(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	actor := ActorFromContext(r.Context())

	result, err := s.locks.Acquire(r.Context(), number, actor)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			respondError(w, http.StatusNotFound, "Locker not found")
			return
		}
		s.logger.Error("failed to acquire lock", zap.String("number", number), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to acquire lock")
		return
	}

	if !result.Granted {
		respondJSON(w, http.StatusConflict, result)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRenewLock(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	actor := ActorFromContext(r.Context())

	renewed, err := s.locks.Renew(r.Context(), number, actor.ID)
	if err != nil {
		s.logger.Error("failed to renew lock", zap.String("number", number), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to renew lock")
		return
	}

	if !renewed {
		// The lease is gone: expired or force-released. Distinct from a
		// transient failure so the client can warn the operator.
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"renewed": false,
			"error":   "Lock lost, re-acquire before continuing",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"renewed": true})
}

func (s *Server) handleReleaseLock(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	actor := ActorFromContext(r.Context())

	if err := s.locks.Release(r.Context(), number, actor); err != nil {
		s.logger.Error("failed to release lock", zap.String("number", number), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to release lock")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Lock released"})
}

func (s *Server) handleCheckLock(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]

	status, err := s.locks.Check(r.Context(), number)
	if err != nil {
		if errors.Is(err, repository.ErrObjectNotFound) {
			respondError(w, http.StatusNotFound, "Locker not found")
			return
		}
		s.logger.Error("failed to check lock", zap.String("number", number), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to check lock")
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleForceRelease(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	actor := ActorFromContext(r.Context())

	if err := s.locks.ForceRelease(r.Context(), number, actor); err != nil {
		s.logger.Error("failed to force-release lock", zap.String("number", number), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to force-release lock")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Lock forcibly released"})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var importRequest struct {
		Mode string              `json:"mode"`
		Rows []storage.ImportRow `json:"rows"`
	}

	if err := json.NewDecoder(r.Body).Decode(&importRequest); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(importRequest.Rows) == 0 {
		respondError(w, http.StatusBadRequest, "No rows to import")
		return
	}

	mode := storage.ImportMode(importRequest.Mode)
	if mode != storage.ImportModeReplace && mode != storage.ImportModeMerge {
		respondError(w, http.StatusBadRequest, "Mode must be 'replace' or 'merge'")
		return
	}

	actor := ActorFromContext(r.Context())
	report, err := s.inventory.Import(r.Context(), importRequest.Rows, mode, actor)
	if err != nil {
		s.logger.Error("import failed", zap.Error(err))
		response := map[string]interface{}{"error": "Import failed: " + err.Error()}
		if report != nil {
			response["report"] = report
		}
		respondJSON(w, http.StatusInternalServerError, response)
		return
	}

	respondJSON(w, http.StatusOK, report)
}
