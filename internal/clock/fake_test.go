package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	early := c.NewTimer(time.Minute)
	late := c.NewTimer(time.Hour)
	require.Equal(t, 2, c.PendingTimers())

	c.Advance(2 * time.Minute)

	select {
	case fired := <-early.C():
		assert.Equal(t, start.Add(2*time.Minute), fired)
	default:
		t.Fatal("expected early timer to fire")
	}

	select {
	case <-late.C():
		t.Fatal("late timer must not fire yet")
	default:
	}
	assert.Equal(t, 1, c.PendingTimers())
}

func TestFake_ZeroDurationFiresImmediately(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Unix(0, 0))
	timer := c.NewTimer(0)

	select {
	case <-timer.C():
	default:
		t.Fatal("expected immediate fire")
	}
	assert.False(t, timer.Stop())
}

func TestFake_StopAndBlockUntil(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Unix(0, 0))
	armed := c.BlockUntil(1)

	timer := c.NewTimer(time.Second)
	select {
	case <-armed:
	case <-time.After(time.Second):
		t.Fatal("BlockUntil did not release")
	}

	assert.True(t, timer.Stop())
	assert.Equal(t, 0, c.PendingTimers())

	c.Advance(time.Minute)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}
