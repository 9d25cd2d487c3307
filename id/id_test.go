package id

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsParseable(t *testing.T) {
	t.Parallel()

	ref := New()
	require.Len(t, ref, 26)

	parsed, err := ulid.Parse(ref)
	require.NoError(t, err)
	assert.NotZero(t, parsed.Time())
}

func TestNewIsMonotonicWithinBurst(t *testing.T) {
	t.Parallel()

	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Less(t, prev, next)
		prev = next
	}
}
