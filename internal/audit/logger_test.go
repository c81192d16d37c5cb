package audit

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(zerolog.New(&buf))

	l.Log(Entry{
		Action:  ActionLogin,
		Email:   "user@example.com",
		Status:  StatusFailure,
		Details: map[string]string{"reason": "invalid_credentials"},
	})

	got := decode(t, &buf)
	assert.Equal(t, true, got["audit"])
	assert.Equal(t, "user.login", got["action"])
	assert.Equal(t, "failure", got["status"])
	assert.Equal(t, "user@example.com", got["email"])
	assert.Equal(t, map[string]any{"reason": "invalid_credentials"}, got["details"])
	assert.NotEmpty(t, got["at"])
	assert.NotContains(t, got, "user_id", "empty fields are omitted")
}

func TestLogKeepsTimestamp(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	NewLogger(zerolog.New(&buf)).Log(Entry{Action: ActionRegister, Status: StatusSuccess, Timestamp: at})

	assert.Equal(t, "2026-05-01T09:30:00Z", decode(t, &buf)["at"])
}

func TestLogFromRequest(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(zerolog.New(&buf))

	r := httptest.NewRequest("POST", "/login", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")

	l.LogFromRequest(r, Entry{Action: ActionRegister, UserID: "user-1", Status: StatusSuccess})

	got := decode(t, &buf)
	assert.Equal(t, "10.0.0.7", got["ip_address"])
	assert.Equal(t, "203.0.113.9", got["forwarded_for"])
	assert.Equal(t, "user-1", got["user_id"])
}

func TestPeerIPWithoutPort(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "unix-socket"
	assert.Equal(t, "unix-socket", peerIP(r))
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Log(Entry{Action: ActionLogin})
		l.LogFromRequest(httptest.NewRequest("GET", "/", nil), Entry{})
	})
}
