// Package audit records security-relevant account actions as structured
// log entries, separate from request logs.
package audit

import (
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	ActionRegister = "user.register"
	ActionLogin    = "user.login"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

type Entry struct {
	Timestamp    time.Time
	Action       string
	UserID       string
	Email        string
	ResourceType string
	ResourceID   string
	IPAddress    string
	ForwardedFor string
	Status       string
	Details      map[string]string
}

// Logger writes entries at info level with audit=true. A nil *Logger
// discards everything.
type Logger struct {
	logger zerolog.Logger
}

func NewLogger(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger.With().Str("component", "audit").Bool("audit", true).Logger()}
}

func (l *Logger) Log(entry Entry) {
	if l == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	event := l.logger.Info().
		Time("at", entry.Timestamp).
		Str("action", entry.Action).
		Str("status", entry.Status)
	optional := map[string]string{
		"user_id":       entry.UserID,
		"email":         entry.Email,
		"resource_type": entry.ResourceType,
		"resource_id":   entry.ResourceID,
		"ip_address":    entry.IPAddress,
		"forwarded_for": entry.ForwardedFor,
	}
	for k, v := range optional {
		if v != "" {
			event = event.Str(k, v)
		}
	}
	if len(entry.Details) > 0 {
		dict := zerolog.Dict()
		for k, v := range entry.Details {
			dict = dict.Str(k, v)
		}
		event = event.Dict("details", dict)
	}
	event.Msg("audit")
}

// LogFromRequest fills the network fields from r. The forwarded header is
// recorded as given and never replaces the peer address.
func (l *Logger) LogFromRequest(r *http.Request, entry Entry) {
	if l == nil {
		return
	}
	entry.IPAddress = peerIP(r)
	entry.ForwardedFor = r.Header.Get("X-Forwarded-For")
	l.Log(entry)
}

func peerIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
