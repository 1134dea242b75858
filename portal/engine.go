// Package portal decides whether players, mobs and vehicles may travel through portals. An Engine applies
// per-kind permission rules, player cooldowns and bypass heuristics, and reports the side effects of its
// decisions to a Handler. Host adapters translate their events into calls on the Engine.
package portal

import (
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/df-mc/portalguard/portal/cooldown"
	"github.com/df-mc/portalguard/portal/entity"
	"github.com/df-mc/portalguard/portal/policy"
	"github.com/df-mc/portalguard/portal/security"
	"github.com/df-mc/portalguard/portal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

// Engine makes portal decisions. Its methods may be called concurrently from any goroutine. An Engine must
// be created using Config.New.
type Engine struct {
	conf    Config
	log     *slog.Logger
	metrics *Metrics

	players *cooldown.Store
	tracker *security.Tracker
	effects *effectWorker

	closing  chan struct{}
	swept    chan struct{}
	once     sync.Once
	shutdown atomic.Bool
}

// rules returns the current rules. ok is false if the rules are unavailable, the engine was shut down or
// restrictions are disabled, in which case every subject is allowed through.
func (e *Engine) rules() (r *Rules, ok bool) {
	if e.shutdown.Load() {
		return nil, false
	}
	r, err := e.conf.Rules.Rules()
	if err != nil || r == nil {
		return nil, false
	}
	return r, r.Enabled
}

func (e *Engine) securitySettings() security.Settings {
	if r, err := e.conf.Rules.Rules(); err == nil && r != nil {
		return r.Security
	}
	return security.DefaultSettings()
}

// debug logs at info level if debug mode is enabled and at debug level otherwise.
func (e *Engine) debug(r *Rules, msg string, args ...any) {
	if r != nil && r.Debug {
		e.log.Info(msg, args...)
		return
	}
	e.log.Debug(msg, args...)
}

// guard recovers a panic raised while handling an event. The panic is logged with the event and subject, and
// the decision pointed to, if any, is replaced by one allowing passage.
func (e *Engine) guard(event string, s entity.Subject, d *Decision) {
	if r := recover(); r != nil {
		e.metrics.IncPanics()
		e.log.Error("Portal event panic.", "event", event, "subject", s, "panic", r, "stack", string(debug.Stack()))
		if d != nil {
			*d = policy.Allow(d.Kind)
		}
	}
}

// OnPortalAttempt decides if a player may travel through the portal made of the material passed. The
// material is the block sampled at the subject's position in its current dimension. If it is not a portal
// block, the blocks around the subject are searched for one. Only players are checked: all other subjects
// are allowed, their bypass attempts are handled by OnPortalRegionEnter.
//
// A player denied for lack of permission is put on cooldown. Every denial is reported to the Handler with
// the knockback to apply.
func (e *Engine) OnPortalAttempt(s entity.Subject, material string, caps entity.Capabilities) (d Decision) {
	d = policy.Allow(world.KindCustom)
	defer e.guard("portal attempt", s, &d)

	r, ok := e.rules()
	if !ok || !s.Player() {
		return d
	}
	if caps == nil {
		caps = entity.NoCapabilities{}
	}

	class := world.Classify(material, s.Dimension)
	portal := s.BlockPos()
	if world.MaterialFamily(material) == world.FamilyNone {
		if c, pos, found := world.ClassifyAround(s.Blocks, portal, s.Dimension); found {
			class, portal = c, pos
		}
	}

	d = policy.Decide(class.Kind, attemptEnv{e: e, s: s, caps: caps})
	e.metrics.AddDecision(d)
	if d.Allowed {
		e.debug(r, "Portal access allowed.", "subject", s, "kind", class.Kind, "target", class.Target)
		return d
	}

	var applied time.Duration
	if d.Reason == policy.ReasonNoPermission {
		applied = e.applyPlayerCooldown(s.ID)
	}
	e.debug(r, "Portal access denied.", "subject", s, "kind", class.Kind, "reason", d.Reason)
	e.deny(s, d, portal.Vec3Centre(), class.Target)
	if applied > 0 {
		e.notifyCooldown(s, TriggerPermission, applied)
	}
	return d
}

// attemptEnv evaluates the inputs of a policy decision lazily, reading the rules afresh for every input.
type attemptEnv struct {
	e    *Engine
	s    entity.Subject
	caps entity.Capabilities
}

func (env attemptEnv) Enabled() bool {
	_, ok := env.e.rules()
	return ok
}

func (env attemptEnv) Bypass() bool {
	r, ok := env.e.rules()
	return ok && env.caps.HasCapability(r.Permission("bypass"))
}

func (env attemptEnv) Cooldown() int {
	if r, ok := env.e.rules(); !ok || !r.Cooldown.Enabled {
		return 0
	}
	return env.e.RemainingCooldown(env.s.ID)
}

func (env attemptEnv) Blocked(kind world.Kind) bool {
	r, ok := env.e.rules()
	return ok && r.Blocked(kind)
}

func (env attemptEnv) Permitted(kind world.Kind) bool {
	r, ok := env.e.rules()
	return !ok || env.caps.HasCapability(r.Permission(kind.PermissionKey()))
}

// OnPortalRegionEnter handles a subject entering a portal. The subject is denied if a bypass heuristic put
// it on cooldown, if it is a player that entered a vehicle near a portal or if it is a vehicle carrying
// passengers. Vehicles carrying passengers are put on cooldown together with all of their passengers.
func (e *Engine) OnPortalRegionEnter(s entity.Subject) (d Decision) {
	d = policy.Allow(world.KindCustom)
	defer e.guard("portal enter", s, &d)

	r, ok := e.rules()
	if !ok {
		return d
	}
	class, portal := e.locate(s)
	d = e.tracker.Enter(s)
	d.Kind = class.Kind
	e.metrics.AddDecision(d)
	if d.Allowed {
		e.debug(r, "Subject entered portal.", "subject", s)
		return d
	}
	e.debug(r, "Portal entry denied.", "subject", s, "reason", d.Reason)
	e.deny(s, d, portal, class.Target)
	if d.Reason == policy.ReasonVehicle && s.Kind == entity.Vehicle {
		dur := e.entityCooldown(r)
		e.notifyCooldown(s, TriggerVehicle, dur)
		for _, p := range s.Passengers {
			e.notifyCooldown(p, TriggerVehicle, dur)
		}
	}
	return d
}

// OnPortalRegionExit handles a subject leaving a portal.
func (e *Engine) OnPortalRegionExit(s entity.Subject) {
	defer e.guard("portal exit", s, nil)
	e.tracker.Exit(s.ID)
}

// OnPortalReadyCheck handles a subject about to be teleported by a portal. A subject that stayed in the
// portal for too long is denied once and put on cooldown. A subject on cooldown is denied.
func (e *Engine) OnPortalReadyCheck(s entity.Subject) (d Decision) {
	d = policy.Allow(world.KindCustom)
	defer e.guard("portal ready", s, &d)

	r, ok := e.rules()
	if !ok {
		return d
	}
	class, portal := e.locate(s)
	d = e.tracker.Ready(s)
	d.Kind = class.Kind
	e.metrics.AddDecision(d)
	if d.Allowed {
		return d
	}
	e.debug(r, "Portal teleport cancelled.", "subject", s, "reason", d.Reason)
	e.deny(s, d, portal, class.Target)
	if d.Reason == policy.ReasonLongStay {
		e.notifyCooldown(s, TriggerLongStay, e.entityCooldown(r))
	}
	return d
}

// OnVehicleEnter handles a player entering a vehicle. A player entering a vehicle near a portal is flagged
// and denied portal entry until it leaves the vehicle.
func (e *Engine) OnVehicleEnter(s entity.Subject, vehicle entity.Subject) {
	defer e.guard("vehicle enter", s, nil)
	r, ok := e.rules()
	if !ok {
		return
	}
	if e.tracker.VehicleEnter(s) {
		e.debug(r, "Player entered vehicle near portal.", "subject", s, "vehicle", vehicle)
	}
}

// OnVehicleExit handles a player leaving a vehicle.
func (e *Engine) OnVehicleExit(s entity.Subject) {
	defer e.guard("vehicle exit", s, nil)
	e.tracker.VehicleExit(s.ID)
}

// OnGlideToggle handles a player starting or stopping to glide with an elytra.
func (e *Engine) OnGlideToggle(s entity.Subject, gliding bool) {
	defer e.guard("glide toggle", s, nil)
	r, ok := e.rules()
	if !ok {
		if !gliding {
			e.tracker.GlideToggle(s, false)
		}
		return
	}
	if e.tracker.GlideToggle(s, gliding) {
		e.trigger(r, s, TriggerGlide, e.entityCooldown(r))
	}
}

// OnElytraBoost handles a player boosting its elytra flight.
func (e *Engine) OnElytraBoost(s entity.Subject) {
	defer e.guard("elytra boost", s, nil)
	r, ok := e.rules()
	if !ok {
		return
	}
	if e.tracker.ElytraBoost(s) {
		e.trigger(r, s, TriggerElytraBoost, 2*e.entityCooldown(r))
	}
}

// OnMovement handles a subject moving from one position to another.
func (e *Engine) OnMovement(s entity.Subject, from, to mgl64.Vec3) {
	defer e.guard("movement", s, nil)
	r, ok := e.rules()
	if !ok {
		return
	}
	if e.tracker.Movement(s, from, to) {
		e.trigger(r, s, TriggerMovement, e.entityCooldown(r))
	}
}

// OnVelocityChange handles a subject being given a velocity.
func (e *Engine) OnVelocityChange(s entity.Subject, v mgl64.Vec3) {
	defer e.guard("velocity change", s, nil)
	r, ok := e.rules()
	if !ok {
		return
	}
	if e.tracker.Velocity(s, v) {
		e.trigger(r, s, TriggerVelocity, e.entityCooldown(r))
	}
}

// maxCooldownSeconds is the longest cooldown in seconds that a time.Duration can hold.
const maxCooldownSeconds = math.MaxInt64 / int64(time.Second)

// SetCooldown puts the subject on a player cooldown of the number of seconds passed. It returns false and
// does nothing if restrictions or cooldowns are disabled, or if seconds is not positive. Cooldowns longer
// than roughly 292 years are capped.
func (e *Engine) SetCooldown(id uuid.UUID, seconds int) bool {
	r, ok := e.rules()
	if !ok || !r.Cooldown.Enabled || seconds <= 0 {
		return false
	}
	e.players.Set(id, time.Duration(min(int64(seconds), maxCooldownSeconds))*time.Second)
	return true
}

// ApplyCooldown puts the subject on the configured player cooldown and reports it to the Handler. It returns
// false if restrictions or cooldowns are disabled.
func (e *Engine) ApplyCooldown(s entity.Subject) bool {
	dur := e.applyPlayerCooldown(s.ID)
	if dur <= 0 {
		return false
	}
	e.notifyCooldown(s, TriggerManual, dur)
	return true
}

// HasCooldown reports if the subject has a player or entity cooldown.
func (e *Engine) HasCooldown(id uuid.UUID) bool {
	return e.players.Active(id) || e.tracker.Cooldowns().Active(id)
}

// RemainingCooldown returns the longest remaining cooldown of the subject in whole seconds, rounded up, or 0
// if it has none.
func (e *Engine) RemainingCooldown(id uuid.UUID) int {
	return max(e.players.RemainingSeconds(id), e.tracker.Cooldowns().RemainingSeconds(id))
}

// ClearCooldown removes the player and entity cooldowns of the subject. It returns true if either was
// active.
func (e *Engine) ClearCooldown(id uuid.UUID) bool {
	a := e.players.Remove(id)
	b := e.tracker.Cooldowns().Remove(id)
	return a || b
}

// ClearAllCooldowns removes every player and entity cooldown.
func (e *Engine) ClearAllCooldowns() {
	e.players.Clear()
	e.tracker.Cooldowns().Clear()
}

// ActiveCooldownCount returns the number of subjects with a player or entity cooldown.
func (e *Engine) ActiveCooldownCount() int {
	n := e.players.Len()
	e.tracker.Cooldowns().Range(func(id uuid.UUID, _ time.Duration) bool {
		if !e.players.Active(id) {
			n++
		}
		return true
	})
	return n
}

// ComputeKnockback computes the knockback for a subject at the subject position denied a portal at the
// portal position. See knockback.Calculator.Calculate.
func (e *Engine) ComputeKnockback(subject, portal mgl64.Vec3, target world.Dimension, strength, height float64) mgl64.Vec3 {
	return e.conf.Knockback.Calculate(subject, portal, target, strength, height)
}

// Metrics returns a snapshot of the counters of the Engine.
func (e *Engine) Metrics() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Shutdown stops the background work of the Engine, saves player cooldowns to the Provider and clears all
// state. Shutdown waits for background work at most the configured timeout. Calling Shutdown more than
// once has no effect. After Shutdown, every subject is allowed through.
func (e *Engine) Shutdown() {
	e.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				e.log.Error("Shutdown panic.", "panic", r, "stack", string(debug.Stack()))
			}
		}()
		e.shutdown.Store(true)
		close(e.closing)

		timeout := time.NewTimer(e.conf.ShutdownTimeout)
		defer timeout.Stop()
		for _, done := range []<-chan struct{}{e.swept, e.effects.stop()} {
			select {
			case <-done:
			case <-timeout.C:
				e.log.Warn("Background work did not stop in time, continuing shutdown.", "timeout", e.conf.ShutdownTimeout)
				// Remaining waits give up immediately.
				timeout.Reset(0)
			}
		}

		entries := e.players.Export()
		if err := e.conf.Provider.Save(entries); err != nil {
			e.log.Error("Failed saving cooldowns.", "err", err)
		} else if len(entries) > 0 {
			e.log.Info("Saved cooldowns.", "count", len(entries))
		}
		if err := e.conf.Provider.Close(); err != nil {
			e.log.Error("Failed closing cooldown provider.", "err", err)
		}
		e.players.Clear()
		e.tracker.Clear()
		e.log.Debug("Portal engine shut down.")
	})
}

// sweepLoop removes expired cooldowns and stale tracking records until the Engine is shut down.
func (e *Engine) sweepLoop() {
	defer close(e.swept)
	t := time.NewTicker(e.conf.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			e.sweep()
		case <-e.closing:
			return
		}
	}
}

func (e *Engine) sweep() {
	defer func() {
		if r := recover(); r != nil {
			e.metrics.IncPanics()
			e.log.Error("Sweep panic.", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	players := e.players.Sweep()
	res := e.tracker.Sweep()
	e.metrics.AddSwept(players + res.Cooldowns + res.Entries)
	if players+res.Cooldowns+res.Entries > 0 {
		r, _ := e.conf.Rules.Rules()
		e.debug(r, "Removed expired portal records.", "cooldowns", players, "entity_cooldowns", res.Cooldowns, "entries", res.Entries)
	}
}

// locate finds the portal a subject is in and returns its classification and centre. If no portal block is
// found, the classification is KindCustom and the subject's position is returned.
func (e *Engine) locate(s entity.Subject) (world.Classification, mgl64.Vec3) {
	class, pos, found := world.ClassifyAround(s.Blocks, s.BlockPos(), s.Dimension)
	if !found {
		return world.Classification{Kind: world.KindCustom}, s.Position
	}
	return class, pos.Vec3Centre()
}

// applyPlayerCooldown puts a player on the configured cooldown and returns its duration, or 0 if cooldowns
// are disabled.
func (e *Engine) applyPlayerCooldown(id uuid.UUID) time.Duration {
	r, ok := e.rules()
	if !ok || !r.Cooldown.Enabled || r.Cooldown.Duration <= 0 {
		return 0
	}
	e.players.Set(id, r.Cooldown.Duration)
	return r.Cooldown.Duration
}

func (e *Engine) entityCooldown(r *Rules) time.Duration {
	return time.Duration(r.Security.CooldownTicks) * cooldown.Tick
}

// deny reports a denial to the Handler with the knockback and message that go with it.
func (e *Engine) deny(s entity.Subject, d Decision, portal mgl64.Vec3, target world.Dimension) {
	r, ok := e.rules()
	if !ok {
		return
	}
	den := Denial{Subject: s, Decision: d, Portal: portal, Target: target}
	if r.Knockback.Enabled {
		den.Knockback = e.ComputeKnockback(s.Position, portal, target, r.Knockback.Strength, r.Knockback.Height)
	}
	if r.Messages != nil && s.Player() && (d.Reason != policy.ReasonCooldown || r.Cooldown.ShowMessage) {
		den.Message = r.Messages.Decision(r.Language, d)
	}
	if r.Sound.Play && s.Player() {
		den.Sound = r.Sound
	}
	e.effects.enqueue(denialEffect{d: den})
}

// trigger reports a bypass heuristic putting a subject on cooldown.
func (e *Engine) trigger(r *Rules, s entity.Subject, t Trigger, dur time.Duration) {
	e.debug(r, "Portal bypass attempt detected.", "subject", s, "trigger", t, "cooldown", dur)
	e.notifyCooldown(s, t, dur)
}

func (e *Engine) notifyCooldown(s entity.Subject, t Trigger, dur time.Duration) {
	e.metrics.IncTrigger(t)
	e.effects.enqueue(cooldownEffect{c: CooldownApplied{Subject: s, Trigger: t, Duration: dur}})
}
