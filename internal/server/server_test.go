package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pbazhenov/lockerdesk/internal/repository/memory"
	"github.com/pbazhenov/lockerdesk/internal/session"
	"github.com/pbazhenov/lockerdesk/internal/storage"
)

type serverFixture struct {
	ts *httptest.Server
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	ctx := context.Background()

	lockers := memory.NewLockerStore()
	locks := memory.NewLockStore()
	history := memory.NewHistoryStore()
	users := memory.NewUserStore()
	require.NoError(t, users.CreateUser(ctx, "admin", "admin-pass", true))
	require.NoError(t, users.CreateUser(ctx, "guest", "guest-pass", false))

	logger := zap.NewNop()

	inventory := storage.NewInventoryService(lockers, history, lockers, logger)
	catalog, err := storage.ParseZones("A:5")
	require.NoError(t, err)
	require.NoError(t, inventory.Init(ctx, catalog))

	lockService := storage.NewLockService(locks, lockers, history, 5*time.Minute, logger)

	store := session.NewStore(30*time.Minute, logger)
	sessions := session.NewService(store, users, logger)

	audit := NewAuditManager(1, 4, 100*time.Millisecond, NewLogSink(logger), logger)
	srv := New(inventory, lockService, sessions, audit, logger)

	ts := httptest.NewServer(srv.setupRoutes())
	t.Cleanup(ts.Close)
	return &serverFixture{ts: ts}
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, f.ts.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, payload
}

func (f *serverFixture) login(t *testing.T, username, password string) string {
	t.Helper()

	resp, body := f.do(t, http.MethodPost, "/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var loginResponse struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &loginResponse))
	require.NotEmpty(t, loginResponse.Token)
	return loginResponse.Token
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t)
	resp, _ := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin(t *testing.T) {
	f := newServerFixture(t)

	t.Run("wrong password", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/login", "", map[string]string{
			"username": "guest", "password": "nope",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing fields", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/login", "", map[string]string{"username": "guest"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("success", func(t *testing.T) {
		token := f.login(t, "guest", "guest-pass")
		resp, _ := f.do(t, http.MethodGet, "/lockers", token, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestAuthGate(t *testing.T) {
	f := newServerFixture(t)

	t.Run("no token", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/lockers", "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("bogus token", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/lockers", "not-a-token", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("logout invalidates the token", func(t *testing.T) {
		token := f.login(t, "guest", "guest-pass")

		resp, _ := f.do(t, http.MethodPost, "/logout", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = f.do(t, http.MethodGet, "/lockers", token, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestGetLocker(t *testing.T) {
	f := newServerFixture(t)
	token := f.login(t, "guest", "guest-pass")

	t.Run("found", func(t *testing.T) {
		resp, body := f.do(t, http.MethodGet, "/lockers/A01", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var locker storage.Locker
		require.NoError(t, json.Unmarshal(body, &locker))
		assert.Equal(t, "A01", locker.Number)
		assert.Equal(t, "A", locker.Zone)
	})

	t.Run("not found", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/lockers/Z99", token, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestUpdateLocker(t *testing.T) {
	f := newServerFixture(t)
	token := f.login(t, "guest", "guest-pass")

	t.Run("guarded update succeeds", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPut, "/lockers/A01", token, map[string]interface{}{
			"occupied":         true,
			"occupant_name":    "Ivanov",
			"expected_version": 0,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var locker storage.Locker
		require.NoError(t, json.Unmarshal(body, &locker))
		assert.True(t, locker.Occupied)
		assert.Equal(t, int64(1), locker.Version)
		assert.Equal(t, "guest", locker.UpdatedBy)
	})

	t.Run("stale version gets a conflict with the current version", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPut, "/lockers/A01", token, map[string]interface{}{
			"occupied":         false,
			"expected_version": 0,
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var conflictResponse struct {
			CurrentVersion int64 `json:"current_version"`
		}
		require.NoError(t, json.Unmarshal(body, &conflictResponse))
		assert.Equal(t, int64(1), conflictResponse.CurrentVersion)
	})

	t.Run("unknown locker", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPut, "/lockers/Z99", token, map[string]interface{}{
			"occupied": true,
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestLockEndpoints(t *testing.T) {
	f := newServerFixture(t)
	aliceToken := f.login(t, "guest", "guest-pass")
	adminToken := f.login(t, "admin", "admin-pass")

	t.Run("acquire and check", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/lockers/A01/lock", aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var result storage.AcquireResult
		require.NoError(t, json.Unmarshal(body, &result))
		assert.True(t, result.Granted)

		resp, body = f.do(t, http.MethodGet, "/lockers/A01/lock", aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var status storage.LockStatus
		require.NoError(t, json.Unmarshal(body, &status))
		assert.True(t, status.Locked)
		assert.Equal(t, "guest", status.OwnerName)
	})

	t.Run("competitor is denied with holder info", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/lockers/A01/lock", adminToken, nil)
		require.Equal(t, http.StatusConflict, resp.StatusCode)

		var result storage.AcquireResult
		require.NoError(t, json.Unmarshal(body, &result))
		assert.False(t, result.Granted)
		assert.Equal(t, "guest", result.OwnerName)
		assert.Greater(t, result.ExpiresInSeconds, int64(0))
	})

	t.Run("owner renews", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/lockers/A01/lock/renew", aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		assert.Contains(t, string(body), `"renewed":true`)
	})

	t.Run("non-owner renewal reports the lock lost", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/lockers/A02/lock/renew", aliceToken, nil)
		require.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Contains(t, string(body), `"renewed":false`)
	})

	t.Run("guest cannot force-release", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodDelete, "/lockers/A01/lock/force", aliceToken, nil)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("admin force-release clears the lock", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodDelete, "/lockers/A01/lock/force", adminToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := f.do(t, http.MethodGet, "/lockers/A01/lock", aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var status storage.LockStatus
		require.NoError(t, json.Unmarshal(body, &status))
		assert.False(t, status.Locked)
	})

	t.Run("release then acquire by another actor", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/lockers/A03/lock", aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = f.do(t, http.MethodDelete, "/lockers/A03/lock", aliceToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := f.do(t, http.MethodPost, "/lockers/A03/lock", adminToken, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result storage.AcquireResult
		require.NoError(t, json.Unmarshal(body, &result))
		assert.True(t, result.Granted)
	})

	t.Run("unknown locker", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/lockers/Z99/lock", aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestLockerHistory(t *testing.T) {
	f := newServerFixture(t)
	token := f.login(t, "guest", "guest-pass")

	resp, _ := f.do(t, http.MethodPost, "/lockers/A01/lock", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodDelete, "/lockers/A01/lock", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/lockers/A01/history", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var events []storage.HistoryEvent
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 2)
	assert.Equal(t, "lock_granted", events[0].Action)
	assert.Equal(t, "lock_released", events[1].Action)
}

func TestImportEndpoint(t *testing.T) {
	f := newServerFixture(t)
	guestToken := f.login(t, "guest", "guest-pass")
	adminToken := f.login(t, "admin", "admin-pass")

	t.Run("admin only", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/import", guestToken, map[string]interface{}{
			"mode": "merge",
			"rows": []storage.ImportRow{{Number: "A01", OccupantName: "Ivanov"}},
		})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("bad mode", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/import", adminToken, map[string]interface{}{
			"mode": "upsert",
			"rows": []storage.ImportRow{{Number: "A01"}},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("empty rows", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/import", adminToken, map[string]interface{}{
			"mode": "merge",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("merge run reports outcomes", func(t *testing.T) {
		resp, body := f.do(t, http.MethodPost, "/import", adminToken, map[string]interface{}{
			"mode": "merge",
			"rows": []storage.ImportRow{
				{Number: "A01", OccupantName: "Ivanov"},
				{Number: "A02", OccupantName: "Petrov"},
				{Number: "X99", OccupantName: "Nobody"},
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

		var report storage.ImportReport
		require.NoError(t, json.Unmarshal(body, &report))
		assert.Equal(t, 2, report.Imported)
		assert.Equal(t, 1, report.NotFound)
		assert.False(t, report.RolledBack)
	})
}
