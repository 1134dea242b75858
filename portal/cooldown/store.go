// Package cooldown implements expiring per-subject cooldowns measured against a monotonic Clock.
package cooldown

import (
	"math"
	"time"

	"github.com/df-mc/portalguard/portal/internal/shardmap"
	"github.com/google/uuid"
)

// Store holds cooldowns keyed by subject ID. An entry whose expiry has been reached is treated as absent
// and is removed lazily when it is read, or eagerly by Sweep. Store is safe for concurrent use.
type Store struct {
	clock   Clock
	entries *shardmap.Map[int64]
}

// Entry is a cooldown exported from a Store, with its expiry converted to a wall clock time.
type Entry struct {
	ID      uuid.UUID
	Expires time.Time
}

// NewStore creates an empty Store measuring time with the Clock passed. If c is nil, a wall clock is used.
func NewStore(c Clock) *Store {
	if c == nil {
		c = NewWallClock()
	}
	return &Store{clock: c, entries: shardmap.New[int64]()}
}

// Clock returns the Clock of the Store.
func (s *Store) Clock() Clock {
	return s.clock
}

// Active reports if id has a cooldown that has not yet expired. An expired entry is removed.
func (s *Store) Active(id uuid.UUID) bool {
	_, ok := s.live(id, s.clock.Now())
	return ok
}

// RemainingUnits returns the number of clock units left on the cooldown of id, or 0 if it has none.
func (s *Store) RemainingUnits(id uuid.UUID) int64 {
	now := s.clock.Now()
	expiry, ok := s.live(id, now)
	if !ok {
		return 0
	}
	return expiry - now
}

// Remaining returns the time left on the cooldown of id, or 0 if it has none.
func (s *Store) Remaining(id uuid.UUID) time.Duration {
	return unitsToDuration(s.RemainingUnits(id), s.clock.Resolution())
}

// RemainingSeconds returns the time left on the cooldown of id in whole seconds, rounded up.
func (s *Store) RemainingSeconds(id uuid.UUID) int {
	return ceilSeconds(s.Remaining(id))
}

// Set starts a cooldown of the duration passed for id, replacing any existing one. Durations that are not
// a whole number of clock units are rounded up. A duration of zero or less removes the cooldown.
func (s *Store) Set(id uuid.UUID, d time.Duration) {
	res := s.clock.Resolution()
	n := int64(d / res)
	if d%res != 0 {
		n++
	}
	s.SetUnits(id, n)
}

// SetUnits starts a cooldown of n clock units for id, replacing any existing one. n <= 0 removes the
// cooldown.
func (s *Store) SetUnits(id uuid.UUID, n int64) {
	if n <= 0 {
		s.entries.Delete(id)
		return
	}
	now := s.clock.Now()
	if n > math.MaxInt64-now {
		// Saturate rather than wrap into the past.
		s.entries.Store(id, math.MaxInt64)
		return
	}
	s.entries.Store(id, now+n)
}

// Remove removes the cooldown of id. It returns true if a live cooldown was removed.
func (s *Store) Remove(id uuid.UUID) bool {
	now := s.clock.Now()
	removed := false
	s.entries.Update(id, func(expiry int64, ok bool) (int64, bool) {
		removed = ok && expiry > now
		return 0, false
	})
	return removed
}

// Clear removes every cooldown.
func (s *Store) Clear() {
	s.entries.Clear()
}

// Len returns the number of cooldowns that have not yet expired.
func (s *Store) Len() int {
	n := 0
	s.Range(func(uuid.UUID, time.Duration) bool {
		n++
		return true
	})
	return n
}

// Range calls f with the ID and remaining time of every cooldown that has not expired, until f returns
// false.
func (s *Store) Range(f func(id uuid.UUID, remaining time.Duration) bool) {
	now, res := s.clock.Now(), s.clock.Resolution()
	s.entries.Range(func(id uuid.UUID, expiry int64) bool {
		if expiry <= now {
			return true
		}
		return f(id, unitsToDuration(expiry-now, res))
	})
}

// Sweep removes every expired cooldown and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.clock.Now()
	return s.entries.DeleteFunc(func(_ uuid.UUID, expiry int64) bool {
		return expiry <= now
	})
}

// Export returns every live cooldown with its expiry as a wall clock time.
func (s *Store) Export() []Entry {
	var entries []Entry
	wall := time.Now()
	s.Range(func(id uuid.UUID, remaining time.Duration) bool {
		entries = append(entries, Entry{ID: id, Expires: wall.Add(remaining)})
		return true
	})
	return entries
}

// Import starts a cooldown for every entry that has not yet expired and returns how many were started.
// Existing cooldowns for the same IDs are replaced.
func (s *Store) Import(entries []Entry) int {
	n := 0
	for _, e := range entries {
		if d := time.Until(e.Expires); d > 0 {
			s.Set(e.ID, d)
			n++
		}
	}
	return n
}

func (s *Store) live(id uuid.UUID, now int64) (int64, bool) {
	return s.entries.Check(id, func(expiry int64) bool {
		return expiry > now
	})
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return int(secs)
}

// unitsToDuration converts n clock units of resolution res to a Duration, saturating at the largest
// Duration.
func unitsToDuration(n int64, res time.Duration) time.Duration {
	if res > 0 && n > math.MaxInt64/int64(res) {
		return math.MaxInt64
	}
	return time.Duration(n) * res
}
