package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPositionTrackerEntryExit(t *testing.T) {
	tr := newPositionTracker()

	// Opening from flat is an entry, long or short.
	assert.True(t, tr.apply("NQ", 2))
	assert.Equal(t, 2, tr.position("NQ"))
	assert.True(t, tr.apply("ES", -3))
	assert.Equal(t, -3, tr.position("ES"))

	// Same direction extends the position: still an entry.
	assert.True(t, tr.apply("NQ", 1))
	assert.Equal(t, 3, tr.position("NQ"))

	// Opposite direction reduces: an exit.
	assert.False(t, tr.apply("NQ", -1))
	assert.Equal(t, 2, tr.position("NQ"))

	// Closing to flat is an exit and clears the symbol.
	assert.False(t, tr.apply("NQ", -2))
	assert.Equal(t, 0, tr.position("NQ"))

	// Short side mirrors: buying against a short is an exit.
	assert.False(t, tr.apply("ES", 3))
	assert.Equal(t, 0, tr.position("ES"))
}

func TestPositionTrackerCrossThroughFlat(t *testing.T) {
	tr := newPositionTracker()

	assert.True(t, tr.apply("NQ", 2))

	// A reversal fill counts as an exit; the residual becomes the new net.
	assert.False(t, tr.apply("NQ", -5))
	assert.Equal(t, -3, tr.position("NQ"))

	// The next same-direction fill extends the new short.
	assert.False(t, tr.apply("NQ", 1))
	assert.Equal(t, -2, tr.position("NQ"))
}

func TestPositionTrackerSymbolsIndependent(t *testing.T) {
	tr := newPositionTracker()

	assert.True(t, tr.apply("NQ", 1))
	assert.True(t, tr.apply("ES", 1))
	assert.False(t, tr.apply("NQ", -1))

	assert.Equal(t, 0, tr.position("NQ"))
	assert.Equal(t, 1, tr.position("ES"))
}
