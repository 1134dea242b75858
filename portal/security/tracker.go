// Package security implements the heuristics that stop subjects from bypassing portal restrictions by
// staying in a portal, riding a vehicle through one, gliding into one or moving through one too quickly.
// Every heuristic reacts by putting the subject on an entity cooldown, which blocks its next portal use.
package security

import (
	"time"

	"github.com/df-mc/portalguard/portal/cooldown"
	"github.com/df-mc/portalguard/portal/cube"
	"github.com/df-mc/portalguard/portal/entity"
	"github.com/df-mc/portalguard/portal/internal/shardmap"
	"github.com/df-mc/portalguard/portal/policy"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Settings holds the thresholds of the heuristics.
type Settings struct {
	// MaxStay is the time a subject may stay in a portal before its teleport is cancelled.
	MaxStay time.Duration
	// ProximityRadius is the radius of the cube around a subject searched for portal blocks.
	ProximityRadius int
	// CooldownTicks is the entity cooldown applied when a heuristic triggers, in game ticks.
	CooldownTicks int64
	// MovementThreshold is the horizontal distance in blocks a single move near a portal may cover.
	MovementThreshold float64
	// VelocityThreshold is the velocity magnitude a subject near a portal may be given.
	VelocityThreshold float64
}

// DefaultSettings returns the default heuristic thresholds.
func DefaultSettings() Settings {
	return Settings{
		MaxStay:           30 * time.Second,
		ProximityRadius:   2,
		CooldownTicks:     100,
		MovementThreshold: 0.5,
		VelocityThreshold: 2.0,
	}
}

// staleMargin is added to MaxStay to find entry records left behind by subjects that never exited.
const staleMargin = time.Minute

// Config holds the collaborators of a Tracker.
type Config struct {
	// Clock measures the time subjects spend in portals. If nil, a wall clock is used.
	Clock cooldown.Clock
	// Cooldowns is the tick based store entity cooldowns are written to. If nil, a store counting ticks
	// derived from Clock is created.
	Cooldowns *cooldown.Store
	// Settings returns the thresholds to use. It is called for every event so that changes apply
	// immediately. If nil, DefaultSettings is used.
	Settings func() Settings
}

// Tracker tracks the state used to detect portal bypass attempts. It is safe for concurrent use.
type Tracker struct {
	conf Config

	entries  *shardmap.Map[int64]
	vehicles *shardmap.Map[struct{}]
	gliding  *shardmap.Map[struct{}]
}

// New creates a Tracker using the Config.
func (conf Config) New() *Tracker {
	if conf.Clock == nil {
		conf.Clock = cooldown.NewWallClock()
	}
	if conf.Cooldowns == nil {
		conf.Cooldowns = cooldown.NewStore(cooldown.Ticks(conf.Clock))
	}
	if conf.Settings == nil {
		conf.Settings = DefaultSettings
	}
	return &Tracker{
		conf:     conf,
		entries:  shardmap.New[int64](),
		vehicles: shardmap.New[struct{}](),
		gliding:  shardmap.New[struct{}](),
	}
}

// Cooldowns returns the store entity cooldowns are written to.
func (t *Tracker) Cooldowns() *cooldown.Store {
	return t.conf.Cooldowns
}

// Enter handles a subject entering a portal. The time of entry is recorded if the subject was not already
// tracked. Entry is denied if the subject has an entity cooldown, if it is a player that entered a vehicle
// near a portal, or if it is a vehicle carrying passengers. In the last case the vehicle and all of its
// passengers are put on cooldown.
func (t *Tracker) Enter(s entity.Subject) policy.Decision {
	t.entries.StoreIfAbsent(s.ID, t.conf.Clock.Now())

	if secs := t.conf.Cooldowns.RemainingSeconds(s.ID); secs > 0 {
		d := policy.Deny(0, policy.ReasonEntityCooldown, policy.MessageKeyCooldown)
		d.Remaining = secs
		return d
	}
	if s.Player() && t.InVehicle(s.ID) {
		return policy.Deny(0, policy.ReasonVehicle, "")
	}
	if s.Kind == entity.Vehicle && len(s.Passengers) > 0 {
		ticks := t.conf.Settings().CooldownTicks
		t.conf.Cooldowns.SetUnits(s.ID, ticks)
		for _, p := range s.Passengers {
			t.conf.Cooldowns.SetUnits(p.ID, ticks)
		}
		return policy.Deny(0, policy.ReasonVehicle, "")
	}
	return policy.Decision{Allowed: true}
}

// Exit handles a subject leaving a portal and stops tracking its time of entry.
func (t *Tracker) Exit(id uuid.UUID) {
	t.entries.Delete(id)
}

// Ready handles a subject that is about to be teleported by a portal. A subject that has been in the portal
// for longer than the maximum stay is denied once and put on cooldown. A subject with an entity cooldown is
// denied.
func (t *Tracker) Ready(s entity.Subject) policy.Decision {
	set := t.conf.Settings()
	if t.stayedTooLong(s.ID, set.MaxStay) {
		t.entries.Delete(s.ID)
		t.conf.Cooldowns.SetUnits(s.ID, set.CooldownTicks)
		return policy.Deny(0, policy.ReasonLongStay, "")
	}
	if secs := t.conf.Cooldowns.RemainingSeconds(s.ID); secs > 0 {
		d := policy.Deny(0, policy.ReasonEntityCooldown, policy.MessageKeyCooldown)
		d.Remaining = secs
		return d
	}
	return policy.Decision{Allowed: true}
}

// Stay returns how long the subject has been in a portal.
func (t *Tracker) Stay(id uuid.UUID) (time.Duration, bool) {
	entry, ok := t.entries.Load(id)
	if !ok {
		return 0, false
	}
	return time.Duration(t.conf.Clock.Now()-entry) * t.conf.Clock.Resolution(), true
}

func (t *Tracker) stayedTooLong(id uuid.UUID, limit time.Duration) bool {
	stay, ok := t.Stay(id)
	return ok && stay > limit
}

// VehicleEnter handles a player entering a vehicle. The player is flagged if it is near a portal at the time.
// It returns true if the player was flagged.
func (t *Tracker) VehicleEnter(s entity.Subject) bool {
	if !s.Player() || !s.NearPortal(t.conf.Settings().ProximityRadius) {
		return false
	}
	t.vehicles.Store(s.ID, struct{}{})
	return true
}

// VehicleExit handles a player leaving a vehicle and clears its flag.
func (t *Tracker) VehicleExit(id uuid.UUID) {
	t.vehicles.Delete(id)
}

// InVehicle reports if the player entered a vehicle near a portal and has not left it yet.
func (t *Tracker) InVehicle(id uuid.UUID) bool {
	_, ok := t.vehicles.Load(id)
	return ok
}

// GlideToggle handles a player starting or stopping to glide. Starting to glide near a portal flags the
// player and puts it on cooldown, in which case true is returned. Stopping clears the flag.
func (t *Tracker) GlideToggle(s entity.Subject, gliding bool) bool {
	set := t.conf.Settings()
	if !gliding || !s.NearPortal(set.ProximityRadius) {
		t.gliding.Delete(s.ID)
		return false
	}
	t.gliding.Store(s.ID, struct{}{})
	t.conf.Cooldowns.SetUnits(s.ID, set.CooldownTicks)
	return true
}

// Gliding reports if the player started gliding near a portal and has not stopped since.
func (t *Tracker) Gliding(id uuid.UUID) bool {
	_, ok := t.gliding.Load(id)
	return ok
}

// ElytraBoost handles a player boosting its elytra flight. A boost near a portal applies twice the regular
// cooldown and returns true.
func (t *Tracker) ElytraBoost(s entity.Subject) bool {
	set := t.conf.Settings()
	if !s.NearPortal(set.ProximityRadius) {
		return false
	}
	t.conf.Cooldowns.SetUnits(s.ID, set.CooldownTicks*2)
	return true
}

// Movement handles a subject moving from one position to another. Only moves that change the block the
// subject is in are checked. A move near a portal covering more than the movement threshold horizontally
// puts the subject on cooldown and returns true.
func (t *Tracker) Movement(s entity.Subject, from, to mgl64.Vec3) bool {
	if cube.PosFromVec3(from) == cube.PosFromVec3(to) {
		return false
	}
	set := t.conf.Settings()
	step := to.Sub(from)
	if dist := (mgl64.Vec2{step[0], step[2]}).Len(); !(dist > set.MovementThreshold) {
		return false
	}
	if !s.NearPortal(set.ProximityRadius) {
		return false
	}
	t.conf.Cooldowns.SetUnits(s.ID, set.CooldownTicks)
	return true
}

// Velocity handles a subject being given a velocity. A velocity near a portal with a magnitude above the
// velocity threshold puts the subject on cooldown and returns true.
func (t *Tracker) Velocity(s entity.Subject, v mgl64.Vec3) bool {
	set := t.conf.Settings()
	if !(v.Len() > set.VelocityThreshold) || !s.NearPortal(set.ProximityRadius) {
		return false
	}
	t.conf.Cooldowns.SetUnits(s.ID, set.CooldownTicks)
	return true
}

// SweepResult holds the number of records removed by a sweep.
type SweepResult struct {
	Cooldowns int
	Entries   int
}

// Sweep removes expired entity cooldowns and entry records of subjects that have been tracked for longer
// than the maximum stay plus a minute.
func (t *Tracker) Sweep() SweepResult {
	now, res := t.conf.Clock.Now(), t.conf.Clock.Resolution()
	stale := t.conf.Settings().MaxStay + staleMargin
	entries := t.entries.DeleteFunc(func(_ uuid.UUID, entry int64) bool {
		return time.Duration(now-entry)*res > stale
	})
	return SweepResult{Cooldowns: t.conf.Cooldowns.Sweep(), Entries: entries}
}

// Tracked returns the number of subjects whose portal entry is being tracked.
func (t *Tracker) Tracked() int {
	return t.entries.Len()
}

// Forget removes all state held for the subject, including its entity cooldown.
func (t *Tracker) Forget(id uuid.UUID) {
	t.entries.Delete(id)
	t.vehicles.Delete(id)
	t.gliding.Delete(id)
	t.conf.Cooldowns.Remove(id)
}

// Clear removes all state held for every subject.
func (t *Tracker) Clear() {
	t.entries.Clear()
	t.vehicles.Clear()
	t.gliding.Clear()
	t.conf.Cooldowns.Clear()
}
