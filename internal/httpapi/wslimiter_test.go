package httpapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnLimiterGlobalBound(t *testing.T) {
	l := NewConnLimiter(2, 10)
	assert.True(t, l.Acquire("1.1.1.1"))
	assert.True(t, l.Acquire("2.2.2.2"))
	assert.False(t, l.Acquire("3.3.3.3"))

	l.Release("1.1.1.1")
	assert.True(t, l.Acquire("3.3.3.3"))
}

func TestConnLimiterPerIPBound(t *testing.T) {
	l := NewConnLimiter(10, 1)
	assert.True(t, l.Acquire("1.1.1.1"))
	assert.False(t, l.Acquire("1.1.1.1"))

	l.Release("1.1.1.1")
	assert.True(t, l.Acquire("1.1.1.1"))
}
