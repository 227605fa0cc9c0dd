// Package rng draws slot outcomes from a cryptographically secure source.
package rng

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/fadedpez/spinz/pkg/entities"
)

var (
	// ErrEntropyUnavailable is returned when the entropy source cannot be read.
	// There is no fallback source.
	ErrEntropyUnavailable = errors.New("entropy source unavailable")
	ErrInvalidReelCount   = errors.New("reel count must be at least 1")
	ErrInvalidSymbolSet   = errors.New("symbol set must contain between 1 and 2^31 symbols")
)

// Drawer produces one outcome per call
type Drawer interface {
	Draw(ctx context.Context, reelCount int, symbols []string) (entities.Outcome, error)
}

// Generator draws each reel independently and uniformly from an entropy reader.
// It holds no mutable state, so a single Generator is shared by all requests.
type Generator struct {
	source io.Reader
}

// NewCryptoGenerator returns a Generator backed by the operating system CSPRNG
func NewCryptoGenerator() *Generator {
	return &Generator{source: rand.Reader}
}

// newGenerator returns a Generator reading from source. The source must be
// safe for concurrent use if the Generator is. Production code only gets the
// CSPRNG, so no seedable Generator leaves the package.
func newGenerator(source io.Reader) *Generator {
	return &Generator{source: source}
}

// Draw returns reelCount symbols chosen uniformly from symbols
func (g *Generator) Draw(ctx context.Context, reelCount int, symbols []string) (entities.Outcome, error) {
	if reelCount < 1 {
		return nil, ErrInvalidReelCount
	}
	if len(symbols) == 0 || int64(len(symbols)) > math.MaxInt32+1 {
		return nil, ErrInvalidSymbolSet
	}

	outcome := make(entities.Outcome, reelCount)
	for reel := range outcome {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx, err := g.index(len(symbols))
		if err != nil {
			return nil, err
		}
		outcome[reel] = symbols[idx]
	}

	return outcome, nil
}

// index returns a uniform value in [0, n). Words at or above the largest
// multiple of n below 2^32 are redrawn, so there is no modulo bias.
func (g *Generator) index(n int) (int, error) {
	if n == 1 {
		return 0, nil
	}

	bound := uint64(n)
	limit := (1 << 32) - (1<<32)%bound

	var buf [4]byte
	for {
		if _, err := io.ReadFull(g.source, buf[:]); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
		}
		v := uint64(binary.BigEndian.Uint32(buf[:]))
		if v < limit {
			return int(v % bound), nil
		}
	}
}
