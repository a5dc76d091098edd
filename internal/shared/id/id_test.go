package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewItemID(t *testing.T) {
	a := NewItemID()
	b := NewItemID()

	assert.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a.String(), ItemPrefix+"_"))

	raw := strings.TrimPrefix(a.String(), ItemPrefix+"_")
	assert.True(t, IsValid(raw))
}

func TestGeneratorOrdering(t *testing.T) {
	g := NewGenerator()

	prev := g.GenerateString()
	for i := 0; i < 10; i++ {
		next := g.GenerateString()
		// ULIDs generated later never sort before earlier ones.
		assert.LessOrEqual(t, prev, next)
		prev = next
	}
}
