package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClockAdvance(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	assert.Equal(t, start, clock.Now())

	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())
	assert.Equal(t, 90*time.Second, clock.Since(start))
}

func TestMockTickerFiresWhenDue(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ticker := clock.NewTicker(time.Minute)

	clock.Advance(30 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its period elapsed")
	default:
	}

	clock.Advance(30 * time.Second)
	select {
	case ts := <-ticker.C():
		assert.Equal(t, start.Add(time.Minute), ts)
	default:
		t.Fatal("ticker did not fire at its period")
	}
}

func TestMockTickerStop(t *testing.T) {
	t.Parallel()

	clock := NewMockClock(time.Unix(1000, 0))
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()

	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestRealClockTicker(t *testing.T) {
	t.Parallel()

	clock := RealClock{}
	ticker := clock.NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire")
	}
	require.NotZero(t, clock.Now())
}
