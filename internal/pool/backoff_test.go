package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRespawnBackoff_ZeroCrashesIsImmediate(t *testing.T) {
	b := newRespawnBackoff(100*time.Millisecond, 10*time.Second)
	assert.Equal(t, time.Duration(0), b.delay(0))
	assert.Equal(t, time.Duration(0), b.delay(-1))
}

func TestRespawnBackoff_GrowsWithCrashCount(t *testing.T) {
	b := newRespawnBackoff(100*time.Millisecond, 10*time.Second)
	b.jitter = 0 // isolate growth from jitter for this assertion

	d1 := b.delay(1)
	d2 := b.delay(2)
	d3 := b.delay(3)

	assert.Equal(t, 100*time.Millisecond, d1)
	assert.Equal(t, 200*time.Millisecond, d2)
	assert.Equal(t, 400*time.Millisecond, d3)
}

func TestRespawnBackoff_CapsAtMax(t *testing.T) {
	b := newRespawnBackoff(time.Second, 5*time.Second)
	b.jitter = 0

	d := b.delay(20)
	assert.Equal(t, 5*time.Second, d)
}

func TestRespawnBackoff_NeverNegative(t *testing.T) {
	b := newRespawnBackoff(10*time.Millisecond, time.Second)
	for crashes := 1; crashes <= 10; crashes++ {
		d := b.delay(crashes)
		assert.GreaterOrEqual(t, d, time.Duration(0))
	}
}
