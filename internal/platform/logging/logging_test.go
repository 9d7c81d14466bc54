package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SlpAus/chat-stats-bot/internal/platform/config"
)

func TestInit_SetsLevelAndWritesJSON(t *testing.T) {
	original := log.Logger
	t.Cleanup(func() {
		log.Logger = original
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	})

	var buf bytes.Buffer
	require.NoError(t, initWithWriter(config.LogConfig{Level: "warn"}, &buf))

	log.Info().Msg("hidden")
	log.Warn().Int64("chat_id", 7).Msg("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "visible", entry["message"])
	assert.EqualValues(t, 7, entry["chat_id"])
}

func TestInit_RejectsUnknownLevel(t *testing.T) {
	assert.Error(t, Init(config.LogConfig{Level: "loud"}))
}
