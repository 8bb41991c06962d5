// Package tracking issues the short public identifiers buyers use to follow
// an order.
package tracking

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	// Length of every tracking id.
	Length   = 10
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// bytes at or above this value are discarded so every symbol is equally likely.
	rejectAbove = 256 - (256 % len(alphabet))

	defaultMaxAttempts = 10
)

// Lookup reports whether a tracking id is already assigned.
type Lookup interface {
	TrackingIDExists(ctx context.Context, trackingID string) (bool, error)
}

// Generator draws random candidates until one is unused.
type Generator struct {
	random      io.Reader
	maxAttempts int
}

// NewGenerator returns a generator backed by crypto/rand.
func NewGenerator(maxAttempts int) *Generator {
	return NewGeneratorWithSource(rand.Reader, maxAttempts)
}

// NewGeneratorWithSource uses the given entropy source.
func NewGeneratorWithSource(random io.Reader, maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Generator{random: random, maxAttempts: maxAttempts}
}

// Generate returns a candidate that lookup reports as unused.
func (g *Generator) Generate(ctx context.Context, lookup Lookup) (string, error) {
	if lookup == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "tracking id lookup required")
	}
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := g.Candidate()
		if err != nil {
			return "", err
		}
		exists, err := lookup.TrackingIDExists(ctx, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check tracking id")
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("no unused tracking id after %d attempts", g.maxAttempts))
}

// Candidate draws one random id without checking for collisions.
func (g *Generator) Candidate() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(out) < Length {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("reading entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= rejectAbove {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Valid reports whether s has the shape of a tracking id.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
