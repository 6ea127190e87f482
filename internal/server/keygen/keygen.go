// Package keygen produces random account keys that do not collide with keys
// already stored.
package keygen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/dmitrijs2005/slothauth/internal/common"
	"github.com/dmitrijs2005/slothauth/internal/logging"
)

const (
	// MaxLoops bounds the number of candidates tried per key.
	MaxLoops = 10

	DefaultAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	DefaultLength   = 32
)

// warnAfter is the number of failed attempts (2/3 of MaxLoops, rounded up)
// after which the keyspace is reported as undersized.
const warnAfter = (2*MaxLoops + 2) / 3

// ExistsFunc reports whether token is already in use.
type ExistsFunc func(ctx context.Context, token string) (bool, error)

// Generator draws keys uniformly from an alphabet. It's safe for concurrent use.
type Generator struct {
	alphabet []rune
	length   int
	logger   logging.Logger
	intn     func(n int) (int, error)
}

// New returns a Generator for the given alphabet and key length. Empty
// alphabet or non-positive length fall back to the defaults.
func New(alphabet string, length int, logger logging.Logger) *Generator {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	if length <= 0 {
		length = DefaultLength
	}
	return &Generator{
		alphabet: []rune(alphabet),
		length:   length,
		logger:   logging.OrDiscard(logger).With("module", "keygen"),
		intn:     cryptoIntn,
	}
}

// Key generates a key for field using the configured alphabet and length.
func (g *Generator) Key(ctx context.Context, field string, exists ExistsFunc) (string, error) {
	return g.generate(ctx, field, exists, g.alphabet, g.length)
}

// Generate draws a token of length runes from alphabet, asking exists about
// each candidate. After MaxLoops collisions it logs an error and returns
// common.ErrKeyGenerationExhausted; callers leave the key unset in that case.
func (g *Generator) Generate(ctx context.Context, field string, exists ExistsFunc, alphabet string, length int) (string, error) {
	if alphabet == "" || length <= 0 {
		return "", fmt.Errorf("keygen: alphabet %q and length %d: %w", alphabet, length, common.ErrValidation)
	}
	return g.generate(ctx, field, exists, []rune(alphabet), length)
}

func (g *Generator) generate(ctx context.Context, field string, exists ExistsFunc, alphabet []rune, length int) (string, error) {
	if exists == nil {
		return "", errors.New("keygen: nil collision check")
	}

	for attempt := 1; attempt <= MaxLoops; attempt++ {
		token, err := g.random(alphabet, length)
		if err != nil {
			return "", fmt.Errorf("keygen: %w", err)
		}

		taken, err := exists(ctx, token)
		if err != nil {
			return "", fmt.Errorf("keygen: collision check: %w", err)
		}
		if !taken {
			return token, nil
		}

		if attempt == warnAfter {
			g.logger.Warn(ctx, "looped 2/3 of the allowed attempts for a unique key, consider longer keys",
				"field", field, "attempts", attempt, "max_attempts", MaxLoops)
		}
	}

	g.logger.Error(ctx, "could not generate a unique key", "field", field, "attempts", MaxLoops)
	return "", common.ErrKeyGenerationExhausted
}

func (g *Generator) random(alphabet []rune, length int) (string, error) {
	var sb strings.Builder
	sb.Grow(length)
	for range length {
		i, err := g.intn(len(alphabet))
		if err != nil {
			return "", err
		}
		sb.WriteRune(alphabet[i])
	}
	return sb.String(), nil
}

func cryptoIntn(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
