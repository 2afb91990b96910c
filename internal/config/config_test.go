package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Oracle.BaseURL)
	assert.Zero(t, cfg.Oracle.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "Welcome! Ask me anything about your codebase.", cfg.Greeting)
	assert.Equal(t, 1000, cfg.ConversationLog.QueueSize)
}

func TestLoadNestedPrefixes(t *testing.T) {
	t.Setenv("ORACLE_BASE_URL", "https://oracle.example.com/")
	t.Setenv("ORACLE_REQUEST_TIMEOUT", "45s")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("CONVERSATION_LOG_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://oracle.example.com", cfg.Oracle.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Oracle.RequestTimeout)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.True(t, cfg.ConversationLog.Enabled)
}

func TestLoadRejectsRelativeBaseURL(t *testing.T) {
	t.Setenv("ORACLE_BASE_URL", "oracle.local")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ORACLE_BASE_URL")
}

func TestIsDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "")

	cfg := &Config{FrontendURL: "http://localhost:5173"}
	assert.True(t, cfg.IsDevelopment())

	cfg.FrontendURL = "https://oracle.example.com"
	assert.False(t, cfg.IsDevelopment())

	t.Setenv("APP_ENV", "development")
	assert.True(t, cfg.IsDevelopment())
}
