package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/oauth-lite/internal/logging"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zerolog.DebugLevel, logging.ParseLevel("debug"))
	require.Equal(t, zerolog.WarnLevel, logging.ParseLevel("warn"))
	require.Equal(t, zerolog.InfoLevel, logging.ParseLevel("nonsense"))
	require.Equal(t, zerolog.InfoLevel, logging.ParseLevel(""))
}

func TestSetupWithOutput(t *testing.T) {
	defer logging.Silence()

	var buf bytes.Buffer
	logging.SetupWithOutput("warn", &buf)

	log.Info().Msg("dropped")
	require.Zero(t, buf.Len())

	log.Warn().Str("username", "alice").Msg("login failed")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "alice", line["username"])
	require.Equal(t, "login failed", line["message"])
}
