package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"ipv4 with port", "203.0.113.77:5123", "203.0.113.0"},
		{"bare ipv4", "198.51.100.9", "198.51.100.0"},
		{"loopback", "127.0.0.1:80", "127.0.0.1"},
		{"ipv6", "[2001:db8:1:2:3:4:5:6]:443", "2001:db8:1:2::"},
		{"garbage", "not-an-ip", "unknown_ip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AnonymizeIP(tt.in))
		})
	}
}

func TestCheckFieldsDropsOddLists(t *testing.T) {
	assert.Nil(t, checkFields(zerolog.InfoLevel, []any{"only_key"}))
	assert.Equal(t, []any{"k", 1}, checkFields(zerolog.InfoLevel, []any{"k", 1}))
}

func TestInitLogger_LevelAndFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, initLogger(&buf, false, "warn"))

	Info("dropped")
	Error(errors.New("boom"), "kept", "room", "bar")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "bar", entry["room"])
	assert.Contains(t, entry["caller"], "logx_test.go")

	assert.Error(t, initLogger(&buf, false, "loud"))
}
