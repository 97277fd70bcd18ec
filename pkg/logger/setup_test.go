package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/raywall/fast-ledger-service/pkg/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	t.Run("Default Level Info", func(t *testing.T) {
		_ = Configure(config.LoggingConf{Enabled: true}, "ledger")
		assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	})

	t.Run("Custom Level Debug", func(t *testing.T) {
		_ = Configure(config.LoggingConf{Enabled: true, Level: "DEBUG"}, "ledger")
		assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	})

	t.Run("Disabled Logger", func(t *testing.T) {
		logger := Configure(config.LoggingConf{Enabled: false}, "ledger")
		logger.Info().Msg("teste")
	})
}

func TestConfigureTo_WritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := ConfigureTo(&buf, config.LoggingConf{Enabled: true, Level: "info"}, "ledger")

	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ledger", entry["service"])
	assert.Equal(t, "hello", entry["message"])
}

func TestWithCorrelation(t *testing.T) {
	var buf bytes.Buffer
	base := ConfigureTo(&buf, config.LoggingConf{Enabled: true}, "")

	ctx := WithCorrelation(context.Background(), base, "abc-123")
	FromContext(ctx).Info().Msg("req")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "abc-123", entry[CorrelationField])
	_, hasService := entry["service"]
	assert.False(t, hasService)
}
