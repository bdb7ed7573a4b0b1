package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotkeeper/server/internal/activity"
	"github.com/slotkeeper/server/internal/auth"
	"github.com/slotkeeper/server/internal/channel"
	httphandler "github.com/slotkeeper/server/internal/http"
	"github.com/slotkeeper/server/internal/middleware"
	"github.com/slotkeeper/server/internal/notify"
	"github.com/slotkeeper/server/internal/pool"
	"github.com/slotkeeper/server/internal/repo"
)

// readBody reads response body for assertion messages
func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func TestAPIEndToEnd(t *testing.T) {
	database := OpenTestDB(t)
	bus := activity.NewBus(50)
	t.Cleanup(bus.Close)

	svc := pool.NewService(repo.NewPostgresStore(database), pool.WithActivity(bus))
	tokens := auth.NewJWTService("e2e-jwt-secret-at-least-32-characters")
	server := httptest.NewServer(httphandler.NewRouter(httphandler.Deps{
		Pool:         svc,
		Channels:     channel.Empty(),
		Warnings:     notify.NewChecker(svc, 3),
		Activity:     bus,
		Tokens:       tokens,
		AllocLimiter: middleware.NewRateLimiter(600, 100),
	}))
	t.Cleanup(server.Close)

	admin, err := tokens.SignOperatorToken("root", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)
	operator, err := tokens.SignOperatorToken("dana", auth.RoleOperator, time.Hour)
	require.NoError(t, err)

	do := func(token, method, path string, body any) *http.Response {
		t.Helper()
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req, err := http.NewRequest(method, server.URL+path, &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("A_Provision", func(t *testing.T) {
		resp := do(operator, http.MethodPost, "/accounts", map[string]any{})
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, "operators must not provision; body: %s", readBody(resp))

		resp = do(admin, http.MethodPost, "/accounts", map[string]any{
			"entries":    []map[string]string{{"email": "e2e@example.com", "secret": "pw", "platform": "netflix", "tier": "sharing"}},
			"expires_at": time.Now().Add(30 * 24 * time.Hour),
		})
		assert.Equal(t, http.StatusCreated, resp.StatusCode, "POST /accounts must return 201; body: %s", readBody(resp))
	})

	t.Run("B_Allocate", func(t *testing.T) {
		resp := do(operator, http.MethodPost, "/allocations", map[string]string{"platform": "netflix", "tier": "sharing", "customer": "+1 555 0199"})
		body := readBody(resp)
		require.Equal(t, http.StatusCreated, resp.StatusCode, "POST /allocations must return 201; body: %s", body)

		var alloc pool.Allocation
		require.NoError(t, json.Unmarshal([]byte(body), &alloc))
		assert.Equal(t, "e2e@example.com", alloc.Account.CredentialEmail)
		assert.Equal(t, "dana", alloc.Assignment.OperatorName)

		resp = do(operator, http.MethodPost, "/allocations", map[string]string{"platform": "netflix", "tier": "sharing", "customer": "+1 555 0199"})
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "repeat customer must return 409; body: %s", readBody(resp))
	})

	t.Run("C_Stock", func(t *testing.T) {
		resp := do(operator, http.MethodGet, "/stock?tier=sharing", nil)
		body := readBody(resp)
		require.Equal(t, http.StatusOK, resp.StatusCode, "GET /stock must return 200; body: %s", body)

		var res struct {
			Available int `json:"available"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &res))
		assert.Equal(t, 19, res.Available)
	})
}
