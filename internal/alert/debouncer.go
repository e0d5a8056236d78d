// Package alert rate-limits and delivers threat notifications. The cooldown
// registry here is the single authoritative debounce point for the pipeline.
package alert

import (
	"sync"
	"time"

	"github.com/parth2411/aerialintelligence/internal/threat"
)

// Default per-level cooldown windows. Higher severity interrupts faster and
// more often; lower severity tolerates longer silence to avoid spam.
var defaultCooldowns = map[threat.Level]time.Duration{
	threat.LevelCritical: 30 * time.Second,
	threat.LevelHigh:     60 * time.Second,
	threat.LevelMedium:   120 * time.Second,
	threat.LevelLow:      180 * time.Second,
}

// Debouncer is a per-severity-level cooldown registry. Each level is an
// independent state machine: acquiring a send permit moves the level into
// cooldown, and the level cools down again once its window elapses. Levels
// never affect each other's clocks.
type Debouncer struct {
	cooldowns map[threat.Level]time.Duration
	lastSent  map[threat.Level]time.Time
	mu        sync.Mutex
	now       func() time.Time
}

// DebouncerConfig contains debouncer configuration
type DebouncerConfig struct {
	// CooldownOverride, when non-zero, replaces every level's window
	CooldownOverride time.Duration
}

// Permit represents an acquired right to send one alert. Cancel returns the
// window if delivery fails, so a failed send does not consume the cooldown.
type Permit struct {
	debouncer *Debouncer
	level     threat.Level
	previous  time.Time
	acquired  time.Time
}

// NewDebouncer creates a cooldown registry
func NewDebouncer(cfg DebouncerConfig) *Debouncer {
	cooldowns := make(map[threat.Level]time.Duration, len(defaultCooldowns))
	for level, window := range defaultCooldowns {
		if cfg.CooldownOverride > 0 {
			cooldowns[level] = cfg.CooldownOverride
		} else {
			cooldowns[level] = window
		}
	}

	return &Debouncer{
		cooldowns: cooldowns,
		lastSent:  make(map[threat.Level]time.Time),
		now:       time.Now,
	}
}

// Acquire attempts to take a send permit for level. It returns (permit, true)
// and atomically records the send timestamp when the level is cooled down;
// it returns (nil, false) without mutating state while the level is still in
// cooldown. LevelNone never yields a permit.
func (d *Debouncer) Acquire(level threat.Level) (*Permit, bool) {
	window, ok := d.cooldowns[level]
	if !ok {
		return nil, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	previous, sent := d.lastSent[level]
	if sent && now.Sub(previous) < window {
		return nil, false
	}

	d.lastSent[level] = now
	return &Permit{
		debouncer: d,
		level:     level,
		previous:  previous,
		acquired:  now,
	}, true
}

// InCooldown reports whether level is currently in cooldown
func (d *Debouncer) InCooldown(level threat.Level) bool {
	window, ok := d.cooldowns[level]
	if !ok {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	last, sent := d.lastSent[level]
	return sent && d.now().Sub(last) < window
}

// Reset clears all cooldown state. Call on stream restart.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSent = make(map[threat.Level]time.Time)
}

// Cancel rolls the level's clock back to its pre-acquire state. It is a
// no-op when another permit has been acquired for the level since.
func (p *Permit) Cancel() {
	p.debouncer.mu.Lock()
	defer p.debouncer.mu.Unlock()

	if p.debouncer.lastSent[p.level].Equal(p.acquired) {
		if p.previous.IsZero() {
			delete(p.debouncer.lastSent, p.level)
		} else {
			p.debouncer.lastSent[p.level] = p.previous
		}
	}
}
