package health

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightBookDefaults(t *testing.T) {
	book, err := NewWeightBook(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, book.Weight("never-seen"), 1e-9)
	assert.Empty(t, book.All())
}

func TestWeightBookSetAndSnapshot(t *testing.T) {
	book, err := NewWeightBook(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	before := book.All()
	book.Set("momentum", 0.6)

	// The earlier snapshot is unchanged; only new reads see the update
	assert.Empty(t, before)
	assert.InDelta(t, 0.6, book.Weight("momentum"), 1e-9)
}

func TestWeightBookPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	book, err := NewWeightBook(dir, zerolog.Nop())
	require.NoError(t, err)
	book.Set("momentum", 0.25)
	book.Set("meanrev", 0.6)

	reloaded, err := NewWeightBook(dir, zerolog.Nop())
	require.NoError(t, err)
	assert.InDelta(t, 0.25, reloaded.Weight("momentum"), 1e-9)
	assert.InDelta(t, 0.6, reloaded.Weight("meanrev"), 1e-9)
}
