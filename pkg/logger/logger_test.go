package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewParsesLevel(t *testing.T) {
	New(Config{Level: "warn"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestNewUnknownLevelFallsBackToInfo(t *testing.T) {
	New(Config{Level: "shouting"})
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
