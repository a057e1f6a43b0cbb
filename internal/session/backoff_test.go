package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teosibileau/grillgauge/internal/session"
)

func TestBackoffDelaySequence(t *testing.T) {
	b := session.NewBackoff(5*time.Second, 5)

	var delays []time.Duration
	for {
		delay, ok := b.Next()
		if !ok {
			break
		}
		delays = append(delays, delay)
	}

	// First attempt immediate, then base * 2^0 .. base * 2^(max-2).
	assert.Equal(t, []time.Duration{
		0,
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
	}, delays)
	assert.Equal(t, 5, b.Attempts())
	assert.True(t, b.Exhausted())
}

func TestBackoffExhaustion(t *testing.T) {
	b := session.NewBackoff(time.Second, 2)

	_, ok := b.Next()
	require.True(t, ok)
	assert.False(t, b.Exhausted())

	_, ok = b.Next()
	require.True(t, ok)
	assert.True(t, b.Exhausted())

	_, ok = b.Next()
	assert.False(t, ok)
	assert.Equal(t, 2, b.Attempts())
}

func TestBackoffReset(t *testing.T) {
	b := session.NewBackoff(time.Second, 1)

	_, ok := b.Next()
	require.True(t, ok)
	require.True(t, b.Exhausted())

	b.Reset()
	assert.False(t, b.Exhausted())
	assert.Equal(t, 0, b.Attempts())

	delay, ok := b.Next()
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), delay)
}
