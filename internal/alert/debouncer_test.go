package alert

import (
	"testing"
	"time"

	"github.com/parth2411/aerialintelligence/internal/threat"
)

// fakeClock lets tests step time deterministically
type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.current
}

func (c *fakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestDebouncer(cfg DebouncerConfig) (*Debouncer, *fakeClock) {
	clock := &fakeClock{current: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	d := NewDebouncer(cfg)
	d.now = clock.Now
	return d, clock
}

func TestAcquireWithinWindowDebounced(t *testing.T) {
	d, clock := newTestDebouncer(DebouncerConfig{})

	if _, ok := d.Acquire(threat.LevelCritical); !ok {
		t.Fatal("first critical acquire should succeed")
	}

	clock.Advance(10 * time.Second)
	if _, ok := d.Acquire(threat.LevelCritical); ok {
		t.Error("critical acquire 10s after a send should be debounced")
	}
}

func TestAcquireAfterWindowSucceeds(t *testing.T) {
	d, clock := newTestDebouncer(DebouncerConfig{})

	if _, ok := d.Acquire(threat.LevelCritical); !ok {
		t.Fatal("first critical acquire should succeed")
	}

	clock.Advance(31 * time.Second)
	if _, ok := d.Acquire(threat.LevelCritical); !ok {
		t.Error("critical acquire 31s after a send should succeed")
	}
}

func TestLevelsAreIndependent(t *testing.T) {
	d, _ := newTestDebouncer(DebouncerConfig{})

	if _, ok := d.Acquire(threat.LevelCritical); !ok {
		t.Fatal("critical acquire should succeed")
	}
	if _, ok := d.Acquire(threat.LevelHigh); !ok {
		t.Error("high acquire should not be affected by critical cooldown")
	}
	if _, ok := d.Acquire(threat.LevelMedium); !ok {
		t.Error("medium acquire should not be affected by other levels")
	}
}

func TestLevelNoneNeverAcquires(t *testing.T) {
	d, clock := newTestDebouncer(DebouncerConfig{})

	for i := 0; i < 3; i++ {
		if _, ok := d.Acquire(threat.LevelNone); ok {
			t.Fatal("NONE level must never yield a permit")
		}
		clock.Advance(time.Hour)
	}
}

func TestCancelReturnsWindow(t *testing.T) {
	d, clock := newTestDebouncer(DebouncerConfig{})

	permit, ok := d.Acquire(threat.LevelHigh)
	if !ok {
		t.Fatal("first high acquire should succeed")
	}

	// Delivery failed: cancel the permit, window must not be consumed.
	permit.Cancel()

	clock.Advance(time.Second)
	if _, ok := d.Acquire(threat.LevelHigh); !ok {
		t.Error("acquire after cancel should succeed immediately")
	}
}

func TestCancelRestoresPreviousTimestamp(t *testing.T) {
	d, clock := newTestDebouncer(DebouncerConfig{})

	if _, ok := d.Acquire(threat.LevelMedium); !ok {
		t.Fatal("first medium acquire should succeed")
	}

	clock.Advance(121 * time.Second)
	permit, ok := d.Acquire(threat.LevelMedium)
	if !ok {
		t.Fatal("second medium acquire after window should succeed")
	}
	permit.Cancel()

	// Cancel restored the first send's timestamp, which is now long past,
	// so the level is still out of cooldown.
	if d.InCooldown(threat.LevelMedium) {
		t.Error("cancel should restore the previous, expired timestamp")
	}
}

func TestCancelAfterNewerAcquireIsNoop(t *testing.T) {
	d, clock := newTestDebouncer(DebouncerConfig{})

	first, ok := d.Acquire(threat.LevelCritical)
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	first.Cancel()

	second, ok := d.Acquire(threat.LevelCritical)
	if !ok {
		t.Fatal("acquire after cancel should succeed")
	}

	// Cancelling the stale first permit must not disturb the second send.
	first.Cancel()
	_ = second

	clock.Advance(10 * time.Second)
	if _, ok := d.Acquire(threat.LevelCritical); ok {
		t.Error("second send's cooldown should still be in effect")
	}
}

func TestCooldownOverride(t *testing.T) {
	d, clock := newTestDebouncer(DebouncerConfig{CooldownOverride: 5 * time.Second})

	if _, ok := d.Acquire(threat.LevelLow); !ok {
		t.Fatal("first low acquire should succeed")
	}

	clock.Advance(4 * time.Second)
	if _, ok := d.Acquire(threat.LevelLow); ok {
		t.Error("acquire within override window should be debounced")
	}

	clock.Advance(2 * time.Second)
	if _, ok := d.Acquire(threat.LevelLow); !ok {
		t.Error("acquire after override window should succeed")
	}
}

func TestReset(t *testing.T) {
	d, _ := newTestDebouncer(DebouncerConfig{})

	if _, ok := d.Acquire(threat.LevelCritical); !ok {
		t.Fatal("first acquire should succeed")
	}
	d.Reset()
	if _, ok := d.Acquire(threat.LevelCritical); !ok {
		t.Error("acquire after reset should succeed")
	}
}

func TestInCooldown(t *testing.T) {
	d, clock := newTestDebouncer(DebouncerConfig{})

	if d.InCooldown(threat.LevelHigh) {
		t.Error("fresh level should not be in cooldown")
	}
	if _, ok := d.Acquire(threat.LevelHigh); !ok {
		t.Fatal("acquire should succeed")
	}
	if !d.InCooldown(threat.LevelHigh) {
		t.Error("level should be in cooldown right after a send")
	}
	clock.Advance(61 * time.Second)
	if d.InCooldown(threat.LevelHigh) {
		t.Error("level should leave cooldown after its window")
	}
}
