package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskIdentifier(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"email", "alice@example.com", "a****@*******.com"},
		{"ipv4", "203.0.113.7", "203.0.113.7"},
		{"ipv6", "2001:db8::1", "2001:db8::1"},
		{"user id", "user-12345", "user******"},
		{"short", "abc", "abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskIdentifier(tt.in))
		})
	}
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("password=x"))
	assert.True(t, SanitizeQueryString("Identifier=bob"))
	assert.False(t, SanitizeQueryString("length=16"))
}

func TestLogSecurityEvent(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	al.LogSecurityEvent(context.Background(), SecurityEvent{
		EventType:  "ACCOUNT_LOCKED",
		Severity:   "warn",
		Identifier: "bob@example.com",
		IPAddress:  "198.51.100.4",
		Action:     "track_failure",
		Metadata:   map[string]interface{}{"attempts": 5},
	})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "security", entry["audit_type"])
	assert.Equal(t, "ACCOUNT_LOCKED", entry["event_type"])
	assert.Equal(t, "b**@*******.com", entry["identifier"])
	assert.Equal(t, "198.51.100.4", entry["ip_address"])
}

func TestLogSecurityEvent_Levels(t *testing.T) {
	assert.Equal(t, slog.LevelError, levelFor(SecurityEvent{Severity: "critical", Success: true}))
	assert.Equal(t, slog.LevelWarn, levelFor(SecurityEvent{Severity: "info", Success: false}))
	assert.Equal(t, slog.LevelInfo, levelFor(SecurityEvent{Severity: "info", Success: true}))
}
