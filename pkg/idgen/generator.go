package idgen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// DefaultLength is the code length used when none is configured.
	DefaultLength = 6
	// AttemptsPerLength is how many random codes are tried before the length grows.
	AttemptsPerLength = 10
	// MaxEscalations caps how many times the length may grow past the starting length.
	MaxEscalations = 5
)

var ErrGenExhausted = errors.New("failed to generate unique short code after retries")

// Checker reports whether a code is already taken.
type Checker interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
}

// Source produces random codes of the requested length.
type Source func(length int) (string, error)

// Generator produces random base62 codes and verifies them against a Checker.
type Generator struct {
	checker       Checker
	source        Source
	defaultLength int
	logger        *zap.Logger
}

type Option func(*Generator)

// WithSource replaces the random source. Tests use it to force collisions.
func WithSource(src Source) Option {
	return func(g *Generator) { g.source = src }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGenerator(checker Checker, defaultLength int, opts ...Option) *Generator {
	if defaultLength <= 0 {
		defaultLength = DefaultLength
	}
	g := &Generator{
		checker:       checker,
		source:        RandomCode,
		defaultLength: defaultLength,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateUnique returns a code of at least minLength characters that the
// Checker reports as free. minLength <= 0 means the configured default.
// Checker errors are returned as-is; a code is never handed out unchecked.
func (g *Generator) GenerateUnique(ctx context.Context, minLength int) (string, error) {
	length := minLength
	if length <= 0 {
		length = g.defaultLength
	}

	for escalation := 0; escalation <= MaxEscalations; escalation++ {
		for attempt := 1; attempt <= AttemptsPerLength; attempt++ {
			code, err := g.source(length)
			if err != nil {
				return "", fmt.Errorf("generate code: %w", err)
			}

			exists, err := g.checker.ExistsByCode(ctx, code)
			if err != nil {
				return "", err
			}
			if !exists {
				return code, nil
			}

			g.logger.Debug("idgen collision",
				zap.String("code", code),
				zap.Int("length", length),
				zap.Int("attempt", attempt))
		}

		if escalation < MaxEscalations {
			g.logger.Warn("idgen escalating code length",
				zap.Int("from", length),
				zap.Int("to", length+1))
			length++
		}
	}

	return "", ErrGenExhausted
}

// RandomCode returns a uniformly random code drawn from the 62-symbol alphabet.
func RandomCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length %d", length)
	}
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b), nil
}

// Valid reports whether s consists only of alphabet symbols.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
