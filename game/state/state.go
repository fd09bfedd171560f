// Package state holds the per-session arbitration state shared by every engine:
// the busy flag, the combat target, the spawn anchor, attacker records and the
// rate-limit slots of the idle planner. All access goes through methods that
// take the internal lock, so the state is safe to share between tickers and the
// event pump.
package state

import (
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/kasuganosora/afkagent/world"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// State is the shared arbitration state of one agent.
type State struct {
	mu  sync.Mutex
	now Clock

	busyOwner string

	target world.Entity

	anchor    mgl64.Vec3
	hasAnchor bool

	attackers      map[int64]time.Time
	attackerExpiry time.Duration
	lastDamage     time.Time

	explosiveUntil time.Time

	slots map[string]time.Time

	authDone bool
}

// New returns empty state. expiry is the attacker record lifetime.
func New(expiry time.Duration, now Clock) *State {
	if now == nil {
		now = time.Now
	}
	return &State{
		now:            now,
		attackers:      make(map[int64]time.Time),
		attackerExpiry: expiry,
		slots:          make(map[string]time.Time),
	}
}

// Now returns the state clock's current time.
func (s *State) Now() time.Time { return s.now() }

// ---- busy flag ----

// TryAcquire sets the busy flag for owner if it is free.
func (s *State) TryAcquire(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyOwner != "" {
		return false
	}
	s.busyOwner = owner
	return true
}

// Release clears the busy flag if owner holds it.
func (s *State) Release(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyOwner == owner {
		s.busyOwner = ""
	}
}

// Busy reports whether any operation holds the flag.
func (s *State) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyOwner != ""
}

// BusyOwner returns the current holder, or "".
func (s *State) BusyOwner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busyOwner
}

// ---- combat target ----

// SetTarget records the current combat target.
func (s *State) SetTarget(e world.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = e
}

// ClearTarget drops the combat target and returns the previous one.
func (s *State) ClearTarget() world.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.target
	s.target = nil
	return prev
}

// Target returns the combat target or nil.
func (s *State) Target() world.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// InCombat reports whether a combat target is set.
func (s *State) InCombat() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target != nil
}

// ---- spawn anchor ----

// SetAnchor captures the spawn position.
func (s *State) SetAnchor(pos mgl64.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchor = pos
	s.hasAnchor = true
}

// Anchor returns the spawn position if captured.
func (s *State) Anchor() (mgl64.Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchor, s.hasAnchor
}

// ---- attackers ----

// RecordAttacker creates or refreshes the record for id.
func (s *State) RecordAttacker(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attackers[id] = s.now()
}

// IsActiveAttacker reports whether id attacked within the expiry window
// at time now. An expired record is purged.
func (s *State) IsActiveAttacker(id int64, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen, ok := s.attackers[id]
	if !ok {
		return false
	}
	if now.Sub(seen) > s.attackerExpiry {
		delete(s.attackers, id)
		return false
	}
	return true
}

// PurgeExpired drops every record older than the expiry window.
func (s *State) PurgeExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, seen := range s.attackers {
		if now.Sub(seen) > s.attackerExpiry {
			delete(s.attackers, id)
			n++
		}
	}
	return n
}

// AttackerCount returns the number of stored records, expired or not.
func (s *State) AttackerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attackers)
}

// MarkDamage stores the time the agent last took damage.
func (s *State) MarkDamage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastDamage = s.now()
}

// DamagedWithin reports whether damage was taken within window of now.
func (s *State) DamagedWithin(window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastDamage.IsZero() {
		return false
	}
	return s.now().Sub(s.lastDamage) <= window
}

// ---- explosive cooldown ----

// StartExplosiveCooldown blocks re-engagement for d.
func (s *State) StartExplosiveCooldown(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.explosiveUntil = s.now().Add(d)
}

// ExplosiveCooldown reports whether re-engagement is currently blocked.
func (s *State) ExplosiveCooldown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.explosiveUntil)
}

// ---- rate-limit slots ----

// ClaimSlot reports whether the named action may run now and, if so, marks it
// as run. Callers race safely: at most one claim succeeds per interval.
func (s *State) ClaimSlot(name string, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if last, ok := s.slots[name]; ok && now.Sub(last) < interval {
		return false
	}
	s.slots[name] = now
	return true
}

// SlotReady reports whether ClaimSlot would succeed, without claiming.
func (s *State) SlotReady(name string, interval time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.slots[name]
	return !ok || s.now().Sub(last) >= interval
}

// ---- chat auth ----

// MarkAuthDone reports true the first time it is called per session.
func (s *State) MarkAuthDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authDone {
		return false
	}
	s.authDone = true
	return true
}

// Reset clears every per-session field. Called on session end before any
// reconnect is scheduled.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busyOwner = ""
	s.target = nil
	s.anchor = mgl64.Vec3{}
	s.hasAnchor = false
	s.attackers = make(map[int64]time.Time)
	s.lastDamage = time.Time{}
	s.explosiveUntil = time.Time{}
	s.slots = make(map[string]time.Time)
	s.authDone = false
}
