package rng

import (
	"context"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var classicSymbols = []string{"🍒", "🍋", "🍊", "🍇", "🔔", "💎"}

// seededReader is a deterministic entropy source. It exists only in tests.
func seededReader(seed byte) *rand.ChaCha8 {
	var key [32]byte
	key[0] = seed
	return rand.NewChaCha8(key)
}

// scriptedReader replays fixed bytes, then fails
type scriptedReader struct {
	data []byte
}

func (r *scriptedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, errors.New("exhausted")
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("getrandom: not available")
}

func TestDrawLengthAndMembership(t *testing.T) {
	g := NewCryptoGenerator()

	outcome, err := g.Draw(context.Background(), 5, classicSymbols)
	require.NoError(t, err)
	require.Len(t, outcome, 5)
	for _, symbol := range outcome {
		assert.Contains(t, classicSymbols, symbol)
	}
}

// words encodes each value as one big-endian 32-bit sample
func words(values ...uint32) []byte {
	out := make([]byte, 0, 4*len(values))
	for _, v := range values {
		out = binary.BigEndian.AppendUint32(out, v)
	}
	return out
}

func TestDrawMapsWordsToSymbols(t *testing.T) {
	g := newGenerator(&scriptedReader{data: words(0, 11, 2)})

	outcome, err := g.Draw(context.Background(), 3, classicSymbols)
	require.NoError(t, err)
	assert.Equal(t, []string{"🍒", "💎", "🍊"}, []string(outcome))
}

func TestDrawRejectsOutOfRangeSamples(t *testing.T) {
	// 2^32 % 6 == 4, so the top four words would over-weight symbols 0-3.
	g := newGenerator(&scriptedReader{data: words(0xFFFFFFFF, 0xFFFFFFFC, 7)})

	outcome, err := g.Draw(context.Background(), 1, classicSymbols)
	require.NoError(t, err)
	assert.Equal(t, "🍋", outcome[0])
}

func TestDrawFailsClosed(t *testing.T) {
	g := newGenerator(failingReader{})

	outcome, err := g.Draw(context.Background(), 3, classicSymbols)
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, ErrEntropyUnavailable)
}

func TestDrawArgumentValidation(t *testing.T) {
	g := NewCryptoGenerator()

	_, err := g.Draw(context.Background(), 0, classicSymbols)
	assert.ErrorIs(t, err, ErrInvalidReelCount)

	_, err = g.Draw(context.Background(), 3, nil)
	assert.ErrorIs(t, err, ErrInvalidSymbolSet)
}

func TestDrawSingleSymbolConsumesNoEntropy(t *testing.T) {
	g := newGenerator(failingReader{})

	outcome, err := g.Draw(context.Background(), 2, []string{"7"})
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "7"}, []string(outcome))
}

func TestDrawHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCryptoGenerator().Draw(ctx, 3, classicSymbols)
	assert.ErrorIs(t, err, context.Canceled)
}

// chiSquared returns the statistic for counts against a uniform expectation
func chiSquared(counts map[string]int, draws int, categories int) float64 {
	expected := float64(draws) / float64(categories)
	var stat float64
	for _, observed := range counts {
		diff := float64(observed) - expected
		stat += diff * diff / expected
	}
	return stat
}

// 5 degrees of freedom, p = 0.0001
const chiSquaredCritical = 25.745

func TestDrawUniformity(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping uniformity test in short mode")
	}

	sources := map[string]*Generator{
		"crypto": NewCryptoGenerator(),
		"seeded": newGenerator(seededReader(7)),
	}

	for name, g := range sources {
		t.Run(name, func(t *testing.T) {
			const draws = 1_000_000
			counts := make(map[string]int, len(classicSymbols))

			for i := 0; i < draws; i++ {
				outcome, err := g.Draw(context.Background(), 1, classicSymbols)
				require.NoError(t, err)
				counts[outcome[0]]++
			}

			require.Len(t, counts, len(classicSymbols))
			stat := chiSquared(counts, draws, len(classicSymbols))
			assert.Less(t, stat, chiSquaredCritical, "observed frequencies %v", counts)
		})
	}
}
