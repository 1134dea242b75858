package portal

import (
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/df-mc/portalguard/portal/cooldown"
	"github.com/df-mc/portalguard/portal/cube"
	"github.com/df-mc/portalguard/portal/entity"
	"github.com/df-mc/portalguard/portal/world"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
)

const netherPortal = "minecraft:nether_portal"

type blocks map[cube.Pos]string

func (b blocks) Material(pos cube.Pos) string { return b[pos] }

type panicBlocks struct{}

func (panicBlocks) Material(cube.Pos) string { panic("block source exploded") }

type recorder struct {
	mu        sync.Mutex
	denials   []Denial
	cooldowns []CooldownApplied
}

func (r *recorder) HandleDenial(d Denial) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denials = append(r.denials, d)
}

func (r *recorder) HandleCooldown(c CooldownApplied) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cooldowns = append(r.cooldowns, c)
}

type memProvider struct {
	loaded []cooldown.Entry
	saved  []cooldown.Entry
	closed int
}

func (p *memProvider) Load() ([]cooldown.Entry, error) {
	return p.loaded, nil
}

func (p *memProvider) Save(e []cooldown.Entry) error {
	p.saved = e
	return nil
}

func (p *memProvider) Close() error {
	p.closed++
	return nil
}

func testRules(t *testing.T) *Rules {
	t.Helper()
	r, err := DefaultConfig().Rules()
	if err != nil {
		t.Fatalf("default rules: %v", err)
	}
	return r
}

type fixture struct {
	e       *Engine
	clock   *cooldown.ManualClock
	holder  *RuleHolder
	handler *recorder
}

func newFixture(t *testing.T, conf Config) *fixture {
	t.Helper()
	f := &fixture{
		clock:   cooldown.NewManualClock(time.Millisecond),
		holder:  NewRuleHolder(testRules(t)),
		handler: &recorder{},
	}
	conf.Log = slog.New(slog.DiscardHandler)
	conf.Clock = f.clock
	if conf.Rules == nil {
		conf.Rules = f.holder
	}
	if conf.Handler == nil {
		conf.Handler = f.handler
	}
	e, err := conf.New()
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Shutdown)
	f.e = e
	return f
}

// update replaces the rules with a modified copy of the current ones.
func (f *fixture) update(t *testing.T, mod func(r *Rules)) {
	t.Helper()
	r, err := f.holder.Rules()
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	cp := *r
	mod(&cp)
	f.holder.Store(&cp)
}

func playerAt(pos mgl64.Vec3, src world.BlockSource) entity.Subject {
	return entity.Subject{ID: uuid.New(), Name: "Steve", Kind: entity.Player, Position: pos, Dimension: world.Overworld, Blocks: src}
}

func TestNewRequiresRules(t *testing.T) {
	if _, err := (Config{}).New(); !errors.Is(err, ErrMissingRules) {
		t.Fatalf("expected ErrMissingRules, got %v", err)
	}
}

func TestSetCooldownLifecycle(t *testing.T) {
	f := newFixture(t, Config{})
	id := uuid.New()

	if !f.e.SetCooldown(id, 5) {
		t.Fatalf("expected cooldown to be set")
	}
	if !f.e.HasCooldown(id) {
		t.Fatalf("expected cooldown right after setting it")
	}
	if r := f.e.RemainingCooldown(id); r <= 0 || r > 5 {
		t.Fatalf("expected remaining in (0, 5], got %d", r)
	}
	f.clock.Advance(5 * time.Second)
	if f.e.HasCooldown(id) {
		t.Fatalf("expected cooldown to expire")
	}
	if r := f.e.RemainingCooldown(id); r != 0 {
		t.Fatalf("expected no remaining cooldown after expiry, got %d", r)
	}
}

func TestSetCooldownNoOps(t *testing.T) {
	f := newFixture(t, Config{})
	id := uuid.New()
	if f.e.SetCooldown(id, 0) || f.e.SetCooldown(id, -3) {
		t.Fatalf("expected non-positive cooldowns to be ignored")
	}
	f.update(t, func(r *Rules) { r.Cooldown.Enabled = false })
	if f.e.SetCooldown(id, 5) {
		t.Fatalf("expected cooldown to be ignored while cooldowns are disabled")
	}
	if f.e.HasCooldown(id) {
		t.Fatalf("expected no cooldown")
	}
}

func TestClearAllCooldowns(t *testing.T) {
	f := newFixture(t, Config{})
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		f.e.SetCooldown(id, 10)
	}
	glider := playerAt(mgl64.Vec3{}, blocks{{0, 1, 0}: netherPortal})
	f.e.OnGlideToggle(glider, true)
	if n := f.e.ActiveCooldownCount(); n != 4 {
		t.Fatalf("expected 4 active cooldowns, got %d", n)
	}
	if !f.e.ClearCooldown(ids[0]) || f.e.ClearCooldown(ids[0]) {
		t.Fatalf("expected exactly the first clear to report a live cooldown")
	}

	f.e.ClearAllCooldowns()
	for _, id := range append(ids, glider.ID) {
		if f.e.HasCooldown(id) {
			t.Fatalf("expected no cooldown for %v after clearing", id)
		}
	}
	if n := f.e.ActiveCooldownCount(); n != 0 {
		t.Fatalf("expected no active cooldowns, got %d", n)
	}
}

func TestPortalAttemptDeniedWithoutPermission(t *testing.T) {
	f := newFixture(t, Config{})
	s := playerAt(mgl64.Vec3{0.5, 64, 0.5}, nil)

	d := f.e.OnPortalAttempt(s, netherPortal, entity.NoCapabilities{})
	if d.Allowed || d.Reason != ReasonNoPermission || d.Kind != world.KindNether {
		t.Fatalf("expected nether permission denial, got %+v", d)
	}
	if d.MessageKey != "no_permission_nether" {
		t.Fatalf("expected nether message key, got %q", d.MessageKey)
	}
	if !f.e.HasCooldown(s.ID) {
		t.Fatalf("expected denial to start a cooldown")
	}

	d = f.e.OnPortalAttempt(s, netherPortal, entity.NoCapabilities{})
	if d.Allowed || d.Reason != ReasonCooldown || d.Remaining != 5 {
		t.Fatalf("expected cooldown denial with 5s remaining, got %+v", d)
	}

	f.e.Shutdown()
	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	if len(f.handler.denials) != 2 {
		t.Fatalf("expected 2 denials, got %d", len(f.handler.denials))
	}
	first := f.handler.denials[0]
	if first.Message == "" || first.Target != world.Nether {
		t.Fatalf("expected rendered message and nether target, got %+v", first)
	}
	if first.Knockback == (mgl64.Vec3{}) || !first.Sound.Play {
		t.Fatalf("expected knockback and sound, got %+v", first)
	}
	if len(f.handler.cooldowns) != 1 || f.handler.cooldowns[0].Trigger != TriggerPermission {
		t.Fatalf("expected one permission cooldown, got %+v", f.handler.cooldowns)
	}
	if f.handler.cooldowns[0].Duration != 5*time.Second {
		t.Fatalf("expected 5s cooldown, got %v", f.handler.cooldowns[0].Duration)
	}
}

func TestPortalAttemptCooldownMessageHidden(t *testing.T) {
	f := newFixture(t, Config{})
	f.update(t, func(r *Rules) { r.Cooldown.ShowMessage = false })
	s := playerAt(mgl64.Vec3{}, nil)
	f.e.SetCooldown(s.ID, 5)

	if d := f.e.OnPortalAttempt(s, netherPortal, entity.NoCapabilities{}); d.Reason != ReasonCooldown {
		t.Fatalf("expected cooldown denial, got %+v", d)
	}
	f.e.Shutdown()
	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	if len(f.handler.denials) != 1 || f.handler.denials[0].Message != "" {
		t.Fatalf("expected one denial without message, got %+v", f.handler.denials)
	}
}

func TestPortalAttemptAllowed(t *testing.T) {
	f := newFixture(t, Config{})
	tests := map[string]struct {
		material string
		caps     entity.Capabilities
		subject  entity.Subject
	}{
		"bypass": {
			material: netherPortal,
			caps:     entity.NewCapabilitySet("portals.bypass"),
			subject:  playerAt(mgl64.Vec3{}, nil),
		},
		"kind permission": {
			material: netherPortal,
			caps:     entity.NewCapabilitySet("portals.nether"),
			subject:  playerAt(mgl64.Vec3{}, nil),
		},
		"custom not blocked": {
			material: "minecraft:stone",
			caps:     entity.NoCapabilities{},
			subject:  playerAt(mgl64.Vec3{}, nil),
		},
		"mob": {
			material: netherPortal,
			caps:     entity.NoCapabilities{},
			subject:  entity.Subject{ID: uuid.New(), Kind: entity.Mob},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if d := f.e.OnPortalAttempt(tc.subject, tc.material, tc.caps); !d.Allowed {
				t.Fatalf("expected passage to be allowed, got %+v", d)
			}
		})
	}
}

func TestBypassIgnoresCooldown(t *testing.T) {
	f := newFixture(t, Config{})
	s := playerAt(mgl64.Vec3{}, nil)
	f.e.SetCooldown(s.ID, 60)
	if d := f.e.OnPortalAttempt(s, netherPortal, entity.NewCapabilitySet("portals.bypass")); !d.Allowed {
		t.Fatalf("expected bypass to allow passage, got %+v", d)
	}
}

func TestPortalAttemptSearchesNeighbourhood(t *testing.T) {
	f := newFixture(t, Config{})
	s := playerAt(mgl64.Vec3{0.5, 64, 0.5}, blocks{{0, 63, 0}: "minecraft:end_portal"})
	d := f.e.OnPortalAttempt(s, "minecraft:air", entity.NoCapabilities{})
	if d.Allowed || d.Kind != world.KindEnd || d.MessageKey != "no_permission_end" {
		t.Fatalf("expected end portal denial, got %+v", d)
	}
}

func TestPortalAttemptFailsOpen(t *testing.T) {
	t.Run("no rules", func(t *testing.T) {
		f := newFixture(t, Config{Rules: &RuleHolder{}})
		if d := f.e.OnPortalAttempt(playerAt(mgl64.Vec3{}, nil), netherPortal, nil); !d.Allowed {
			t.Fatalf("expected passage without rules, got %+v", d)
		}
		if f.e.SetCooldown(uuid.New(), 5) {
			t.Fatalf("expected cooldown to be ignored without rules")
		}
	})
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.update(t, func(r *Rules) { r.Enabled = false })
		if d := f.e.OnPortalAttempt(playerAt(mgl64.Vec3{}, nil), netherPortal, nil); !d.Allowed {
			t.Fatalf("expected passage while disabled, got %+v", d)
		}
	})
	t.Run("panic", func(t *testing.T) {
		f := newFixture(t, Config{})
		s := playerAt(mgl64.Vec3{}, panicBlocks{})
		if d := f.e.OnPortalAttempt(s, "minecraft:air", nil); !d.Allowed {
			t.Fatalf("expected passage after a panic, got %+v", d)
		}
		if f.e.Metrics().Panics != 1 {
			t.Fatalf("expected the panic to be counted")
		}
		// Later events are still handled.
		if d := f.e.OnPortalAttempt(playerAt(mgl64.Vec3{}, nil), netherPortal, nil); d.Allowed {
			t.Fatalf("expected denial after recovering from a panic")
		}
	})
}

func TestVehicleWithPassengersDenied(t *testing.T) {
	f := newFixture(t, Config{})
	rider, mob := playerAt(mgl64.Vec3{}, nil), entity.Subject{ID: uuid.New(), Kind: entity.Mob}
	boat := entity.Subject{ID: uuid.New(), Kind: entity.Vehicle, Passengers: []entity.Subject{rider, mob}}

	d := f.e.OnPortalRegionEnter(boat)
	if d.Allowed || d.Reason != ReasonVehicle {
		t.Fatalf("expected vehicle denial, got %+v", d)
	}
	for _, s := range []entity.Subject{boat, rider, mob} {
		if !f.e.HasCooldown(s.ID) {
			t.Fatalf("expected %v to be on cooldown", s.Kind)
		}
		if r := f.e.RemainingCooldown(s.ID); r != 5 {
			t.Fatalf("expected 100 ticks to be 5s, got %d", r)
		}
	}
	f.e.Shutdown()
	f.handler.mu.Lock()
	defer f.handler.mu.Unlock()
	if len(f.handler.cooldowns) != 3 {
		t.Fatalf("expected 3 cooldown effects, got %d", len(f.handler.cooldowns))
	}
	for _, c := range f.handler.cooldowns {
		if c.Trigger != TriggerVehicle {
			t.Fatalf("expected vehicle trigger, got %v", c.Trigger)
		}
	}
}

func TestLongStayDeniedOnce(t *testing.T) {
	f := newFixture(t, Config{})
	s := playerAt(mgl64.Vec3{}, nil)
	if d := f.e.OnPortalRegionEnter(s); !d.Allowed {
		t.Fatalf("expected entry to be allowed, got %+v", d)
	}
	f.clock.Advance(31 * time.Second)

	d := f.e.OnPortalReadyCheck(s)
	if d.Allowed || d.Reason != ReasonLongStay {
		t.Fatalf("expected long stay denial, got %+v", d)
	}
	if !f.e.HasCooldown(s.ID) {
		t.Fatalf("expected cooldown after long stay")
	}
	if d := f.e.OnPortalReadyCheck(s); d.Reason == ReasonLongStay {
		t.Fatalf("expected long stay to be denied only once")
	}
	if n := f.e.Metrics().Triggers[TriggerLongStay]; n != 1 {
		t.Fatalf("expected one long stay trigger, got %d", n)
	}
}

func TestVehicleFlag(t *testing.T) {
	f := newFixture(t, Config{})
	s := playerAt(mgl64.Vec3{}, blocks{{2, 0, 0}: netherPortal})
	boat := entity.Subject{ID: uuid.New(), Kind: entity.Vehicle}

	f.e.OnVehicleEnter(s, boat)
	if d := f.e.OnPortalRegionEnter(s); d.Allowed || d.Reason != ReasonVehicle {
		t.Fatalf("expected flagged player to be denied, got %+v", d)
	}
	f.e.OnVehicleExit(s)
	if d := f.e.OnPortalRegionEnter(s); !d.Allowed {
		t.Fatalf("expected player to be allowed after leaving the vehicle, got %+v", d)
	}
}

func TestBypassHeuristics(t *testing.T) {
	near := blocks{{1, 0, 1}: netherPortal}
	tests := map[string]struct {
		act       func(e *Engine, s entity.Subject)
		trigger   Trigger
		remaining int
	}{
		"glide": {
			act:       func(e *Engine, s entity.Subject) { e.OnGlideToggle(s, true) },
			trigger:   TriggerGlide,
			remaining: 5,
		},
		"elytra boost": {
			act:       func(e *Engine, s entity.Subject) { e.OnElytraBoost(s) },
			trigger:   TriggerElytraBoost,
			remaining: 10,
		},
		"movement": {
			act:       func(e *Engine, s entity.Subject) { e.OnMovement(s, mgl64.Vec3{0.9, 0, 0.5}, mgl64.Vec3{1.6, 0, 0.5}) },
			trigger:   TriggerMovement,
			remaining: 5,
		},
		"velocity": {
			act:       func(e *Engine, s entity.Subject) { e.OnVelocityChange(s, mgl64.Vec3{0, 0, 3}) },
			trigger:   TriggerVelocity,
			remaining: 5,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, Config{})
			s := playerAt(mgl64.Vec3{0.5, 0, 0.5}, near)
			tc.act(f.e, s)
			if r := f.e.RemainingCooldown(s.ID); r != tc.remaining {
				t.Fatalf("expected %ds cooldown, got %d", tc.remaining, r)
			}
			if n := f.e.Metrics().Triggers[tc.trigger]; n != 1 {
				t.Fatalf("expected one %v trigger, got %d", tc.trigger, n)
			}
			d := f.e.OnPortalAttempt(s, netherPortal, entity.NewCapabilitySet("portals.nether"))
			if d.Allowed || d.Reason != ReasonCooldown {
				t.Fatalf("expected heuristic cooldown to block the next attempt, got %+v", d)
			}
		})
	}
}

func TestBypassHeuristicsAwayFromPortal(t *testing.T) {
	f := newFixture(t, Config{})
	s := playerAt(mgl64.Vec3{0.5, 0, 0.5}, blocks{})
	f.e.OnGlideToggle(s, true)
	f.e.OnElytraBoost(s)
	f.e.OnVelocityChange(s, mgl64.Vec3{10, 0, 0})
	f.e.OnMovement(s, mgl64.Vec3{}, mgl64.Vec3{3, 0, 0})
	if f.e.HasCooldown(s.ID) {
		t.Fatalf("expected no cooldown away from portals")
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	f := newFixture(t, Config{Handler: panicHandler{}})
	for range 3 {
		f.e.OnPortalAttempt(playerAt(mgl64.Vec3{}, nil), netherPortal, nil)
	}
	f.e.Shutdown()
	if n := f.e.Metrics().Panics; n != 6 {
		t.Fatalf("expected every effect panic to be recovered, got %d", n)
	}
}

type panicHandler struct{}

func (panicHandler) HandleDenial(Denial) { panic("denial handler exploded") }

func (panicHandler) HandleCooldown(CooldownApplied) { panic("cooldown handler exploded") }

type blockingHandler struct {
	NopHandler
	release chan struct{}
}

func (h blockingHandler) HandleDenial(Denial) { <-h.release }

func TestEffectBackpressure(t *testing.T) {
	h := blockingHandler{release: make(chan struct{})}
	f := newFixture(t, Config{Handler: h, EffectQueueSize: 1})
	for range 5 {
		if d := f.e.OnPortalAttempt(playerAt(mgl64.Vec3{}, nil), netherPortal, nil); d.Allowed {
			t.Fatalf("expected denial")
		}
	}
	close(h.release)
	if f.e.Metrics().Backpressure == 0 {
		t.Fatalf("expected effects to be dropped while the handler was blocked")
	}
}

func TestShutdown(t *testing.T) {
	saved := &memProvider{loaded: []cooldown.Entry{{ID: uuid.New(), Expires: time.Now().Add(time.Minute)}}}
	f := newFixture(t, Config{Provider: saved})
	if !f.e.HasCooldown(saved.loaded[0].ID) {
		t.Fatalf("expected loaded cooldown to be restored")
	}
	id := uuid.New()
	f.e.SetCooldown(id, 30)

	f.e.Shutdown()
	f.e.Shutdown()
	if saved.closed != 1 {
		t.Fatalf("expected provider to be closed once, got %d", saved.closed)
	}
	if len(saved.saved) != 2 {
		t.Fatalf("expected 2 saved cooldowns, got %d", len(saved.saved))
	}
	if f.e.HasCooldown(id) || f.e.ActiveCooldownCount() != 0 {
		t.Fatalf("expected state to be cleared on shutdown")
	}
	if d := f.e.OnPortalAttempt(playerAt(mgl64.Vec3{}, nil), netherPortal, nil); !d.Allowed {
		t.Fatalf("expected passage after shutdown, got %+v", d)
	}
}

func TestConcurrentDecisions(t *testing.T) {
	f := newFixture(t, Config{SweepInterval: time.Millisecond})
	f.update(t, func(r *Rules) { r.BlockNether = true })
	src := blocks{{0, 64, 0}: netherPortal}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			s := playerAt(mgl64.Vec3{0.5, 64, 0.5}, src)
			for j := 0; j < 200; j++ {
				f.e.OnPortalAttempt(s, netherPortal, nil)
				f.e.OnPortalRegionEnter(s)
				f.e.OnMovement(s, s.Position, s.Position.Add(mgl64.Vec3{float64(j%3) + 1, 0, 0}))
				f.e.OnGlideToggle(s, j%2 == 0)
				f.e.sweep()
				if i == 0 && j == 100 {
					go f.e.Shutdown()
				}
			}
		}(i)
	}
	close(start)
	wg.Wait()
	f.e.Shutdown()

	if n := f.e.Metrics().Panics; n != 0 {
		t.Fatalf("expected no panics, got %d", n)
	}
	if d := f.e.OnPortalAttempt(playerAt(mgl64.Vec3{}, src), netherPortal, nil); !d.Allowed {
		t.Fatalf("expected passage after shutdown, got %+v", d)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	f := newFixture(t, Config{SweepInterval: time.Hour})
	f.e.SetCooldown(uuid.New(), 1)
	f.e.OnPortalRegionEnter(playerAt(mgl64.Vec3{}, nil))
	f.clock.Advance(2 * time.Minute)

	f.e.sweep()
	if n := f.e.Metrics().Swept; n != 2 {
		t.Fatalf("expected a cooldown and an entry to be swept, got %d", n)
	}
	if f.e.tracker.Tracked() != 0 {
		t.Fatalf("expected stale entry to be removed")
	}
}

func TestComputeKnockback(t *testing.T) {
	f := newFixture(t, Config{})
	v := f.e.ComputeKnockback(mgl64.Vec3{5, 64, 5}, mgl64.Vec3{0, 64, 0}, world.Nether, 1.5, 0.8)
	if v[0] <= 0 || v[2] <= 0 || v[1] <= 0 {
		t.Fatalf("expected knockback away from the portal and upwards, got %v", v)
	}
	if v := f.e.ComputeKnockback(mgl64.Vec3{1, 2, 3}, mgl64.Vec3{}, world.End, 0, 0); v != (mgl64.Vec3{}) {
		t.Fatalf("expected zero knockback, got %v", v)
	}
}

func TestApplyCooldown(t *testing.T) {
	f := newFixture(t, Config{})
	s := playerAt(mgl64.Vec3{}, nil)
	if !f.e.ApplyCooldown(s) || f.e.RemainingCooldown(s.ID) != 5 {
		t.Fatalf("expected the configured cooldown to be applied")
	}
	if n := f.e.Metrics().Triggers[TriggerManual]; n != 1 {
		t.Fatalf("expected one manual trigger, got %d", n)
	}
	f.update(t, func(r *Rules) { r.Cooldown.Enabled = false })
	if f.e.ApplyCooldown(playerAt(mgl64.Vec3{}, nil)) {
		t.Fatalf("expected no cooldown while cooldowns are disabled")
	}
}

func TestSetCooldownLarge(t *testing.T) {
	f := newFixture(t, Config{})
	for _, secs := range []int{math.MaxInt32, math.MaxInt} {
		id := uuid.New()
		if !f.e.SetCooldown(id, secs) {
			t.Fatalf("expected cooldown of %ds to be set", secs)
		}
		if !f.e.HasCooldown(id) {
			t.Fatalf("expected cooldown of %ds to be active", secs)
		}
		if r := f.e.RemainingCooldown(id); r <= 0 || r > secs {
			t.Fatalf("expected remaining in (0, %d], got %d", secs, r)
		}
	}
}
