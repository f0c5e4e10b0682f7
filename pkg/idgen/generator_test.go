package idgen

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(ctx context.Context, code string) (bool, error)

func (f checkerFunc) ExistsByCode(ctx context.Context, code string) (bool, error) {
	return f(ctx, code)
}

func TestRandomCode(t *testing.T) {
	for _, length := range []int{1, 6, 7, 12} {
		code, err := RandomCode(length)
		require.NoError(t, err)
		assert.Len(t, code, length)
		assert.True(t, Valid(code), "code %q has symbols outside the alphabet", code)
	}

	_, err := RandomCode(0)
	assert.Error(t, err)
}

func TestAlphabetSize(t *testing.T) {
	seen := make(map[rune]struct{})
	for _, r := range alphabet {
		seen[r] = struct{}{}
	}
	assert.Len(t, seen, 62)
}

func TestValid(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"abc123", true},
		{"ZZZZZZ", true},
		{"", false},
		{"ab-12", false},
		{"ab 12", false},
		{"ñandu", false},
	}

	for _, tt := range tests {
		if got := Valid(tt.input); got != tt.expected {
			t.Errorf("Valid(%q) = %v; want %v", tt.input, got, tt.expected)
		}
	}
}

func TestGenerateUnique_FirstTry(t *testing.T) {
	g := NewGenerator(checkerFunc(func(context.Context, string) (bool, error) {
		return false, nil
	}), 6)

	code, err := g.GenerateUnique(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestGenerateUnique_EscalatesAfterTenCollisions(t *testing.T) {
	var checked []string
	checker := checkerFunc(func(_ context.Context, code string) (bool, error) {
		checked = append(checked, code)
		// every 6-character code is taken
		return len(code) == 6, nil
	})

	g := NewGenerator(checker, 6)
	code, err := g.GenerateUnique(context.Background(), 6)
	require.NoError(t, err)

	assert.Len(t, code, 7)
	require.Len(t, checked, AttemptsPerLength+1)
	for _, c := range checked[:AttemptsPerLength] {
		assert.Len(t, c, 6)
	}
}

func TestGenerateUnique_Exhausted(t *testing.T) {
	calls := 0
	g := NewGenerator(checkerFunc(func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	}), 6)

	_, err := g.GenerateUnique(context.Background(), 6)
	assert.ErrorIs(t, err, ErrGenExhausted)
	assert.Equal(t, AttemptsPerLength*(MaxEscalations+1), calls)
}

func TestGenerateUnique_CheckerFailure(t *testing.T) {
	storeDown := errors.New("connection refused")
	g := NewGenerator(checkerFunc(func(context.Context, string) (bool, error) {
		return false, storeDown
	}), 6)

	code, err := g.GenerateUnique(context.Background(), 6)
	assert.ErrorIs(t, err, storeDown)
	assert.Empty(t, code)
}

func TestGenerateUnique_SourceFailure(t *testing.T) {
	g := NewGenerator(checkerFunc(func(context.Context, string) (bool, error) {
		return false, nil
	}), 6, WithSource(func(int) (string, error) {
		return "", fmt.Errorf("entropy unavailable")
	}))

	_, err := g.GenerateUnique(context.Background(), 6)
	assert.Error(t, err)
}
