package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestSetupWriter(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	assert.Equal(t, zerolog.WarnLevel, SetupWriter(&buf, "warn"))

	log.Info().Msg("hidden")
	log.Warn().Str("room", "ABCDEF").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "room=ABCDEF")
}

func TestSetupWriter_UnknownLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	assert.Equal(t, zerolog.InfoLevel, SetupWriter(&buf, "loud"))
	assert.Equal(t, zerolog.InfoLevel, SetupWriter(&buf, ""))
}
