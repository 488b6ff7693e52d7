package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	fake := NewFake(start)

	short := fake.NewTimer(500 * time.Millisecond)
	long := fake.NewTimer(2 * time.Second)
	assert.Equal(t, 2, fake.Timers())

	fake.Advance(time.Second)
	assert.Equal(t, start.Add(time.Second), fake.Now())

	select {
	case fired := <-short.C():
		assert.Equal(t, start.Add(time.Second), fired)
	default:
		t.Fatal("expected short timer to fire")
	}

	select {
	case <-long.C():
		t.Fatal("long timer fired early")
	default:
	}
	assert.Equal(t, 1, fake.Timers())
}

func TestFake_StopPreventsFiring(t *testing.T) {
	fake := NewFake(time.Time{})
	timer := fake.NewTimer(time.Second)

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	assert.Equal(t, 0, fake.Timers())

	fake.Advance(time.Hour)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}

func TestFake_NonPositiveDurationFiresImmediately(t *testing.T) {
	fake := NewFake(time.Time{})
	timer := fake.NewTimer(0)

	select {
	case <-timer.C():
	default:
		t.Fatal("expected immediate fire")
	}
	assert.False(t, timer.Stop())
}

func TestOrReal(t *testing.T) {
	assert.IsType(t, Real{}, OrReal(nil))

	fake := NewFake(time.Time{})
	assert.Same(t, fake, OrReal(fake))
}
