package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeHealth(t *testing.T, res *httptest.ResponseRecorder) HealthCheck {
	t.Helper()
	var body HealthCheck
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	checker := NewHealthChecker("1.2.3", "abc123")
	checker.Add("store", func(context.Context) error { return errors.New("down") })

	res := httptest.NewRecorder()
	checker.Healthz().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, res.Code)
	body := decodeHealth(t, res)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
}

func TestReadyzAllPassing(t *testing.T) {
	checker := NewHealthChecker("dev", "")
	checker.Add("store", func(context.Context) error { return nil })
	checker.Add("redis", func(context.Context) error { return nil })

	res := httptest.NewRecorder()
	checker.Readyz().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, res.Code)
	body := decodeHealth(t, res)
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "pass", body.Checks["store"].Status)
	assert.Equal(t, "pass", body.Checks["redis"].Status)
}

func TestReadyzFailingCheck(t *testing.T) {
	checker := NewHealthChecker("dev", "")
	checker.Add("store", func(context.Context) error { return errors.New("connection refused") })
	checker.Add("redis", func(context.Context) error { return nil })

	res := httptest.NewRecorder()
	checker.Readyz().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	body := decodeHealth(t, res)
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "fail", body.Checks["store"].Status)
	assert.Equal(t, "connection refused", body.Checks["store"].Message)
}

func TestReadyzCheckTimeout(t *testing.T) {
	checker := NewHealthChecker("dev", "")
	checker.Add("store", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	start := time.Now()
	res := httptest.NewRecorder()
	checker.Readyz().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Less(t, time.Since(start), checkTimeout+time.Second)
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Contains(t, decodeHealth(t, res).Checks["store"].Message, "timed out")
}

func TestReadyzDuringShutdown(t *testing.T) {
	checker := NewHealthChecker("dev", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := httptest.NewRecorder()
	checker.Readyz().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	assert.Equal(t, "shutting_down", decodeHealth(t, res).Status)
}

func TestReadyzWithoutChecks(t *testing.T) {
	res := httptest.NewRecorder()
	NewHealthChecker("dev", "").Readyz().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, res.Code)
}
