package randutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	s := String(10)
	assert.Len(t, s, 10)
	for _, r := range s {
		assert.True(t, strings.ContainsRune(ll, r), "unexpected rune %q", r)
	}
}
