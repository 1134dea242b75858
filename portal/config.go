package portal

import (
	"log/slog"
	"time"

	"github.com/df-mc/portalguard/portal/cooldown"
	"github.com/df-mc/portalguard/portal/knockback"
	"github.com/df-mc/portalguard/portal/security"
)

// Config contains options for creating an Engine.
type Config struct {
	// Log is the Logger to use for logging information. If nil, Log is set to slog.Default(). Log is
	// extended with a "subsystem" attribute.
	Log *slog.Logger
	// Rules provides the rules decisions are made by. Rules is required.
	Rules RuleSource
	// Clock measures wall time for player cooldowns and portal stays. If nil, a monotonic wall clock is
	// used.
	Clock cooldown.Clock
	// TickClock measures game ticks for entity cooldowns. Hosts should pass their tick counter wrapped in
	// cooldown.TickFunc. If nil, ticks are derived from Clock.
	TickClock cooldown.Clock
	// Handler handles the side effects of decisions. If nil, effects are discarded.
	Handler Handler
	// Provider persists player cooldowns across restarts. If nil, cooldowns are not persisted.
	Provider cooldown.Provider
	// Knockback computes knockback vectors. If nil, knockback.Default() is used.
	Knockback *knockback.Calculator
	// SweepInterval is the interval at which expired cooldowns and stale tracking records are removed.
	// If zero or negative, 30 seconds is used.
	SweepInterval time.Duration
	// EffectQueueSize is the number of effects that may wait for the Handler. Effects are dropped when the
	// queue is full. If zero or negative, 256 is used.
	EffectQueueSize int
	// ShutdownTimeout is how long Shutdown waits for background work to finish. If zero or negative, 5
	// seconds is used.
	ShutdownTimeout time.Duration
}

// New creates an Engine using the options in the Config and starts its background work. An error is
// returned if no RuleSource is configured.
func (conf Config) New() (*Engine, error) {
	if conf.Rules == nil {
		return nil, ErrMissingRules
	}
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	conf.Log = conf.Log.With("subsystem", "portal")
	if conf.Clock == nil {
		conf.Clock = cooldown.NewWallClock()
	}
	if conf.TickClock == nil {
		conf.TickClock = cooldown.Ticks(conf.Clock)
	}
	if conf.Handler == nil {
		conf.Handler = NopHandler{}
	}
	if conf.Provider == nil {
		conf.Provider = cooldown.NopProvider{}
	}
	if conf.Knockback == nil {
		conf.Knockback = knockback.Default()
	}
	if conf.SweepInterval <= 0 {
		conf.SweepInterval = 30 * time.Second
	}
	if conf.ShutdownTimeout <= 0 {
		conf.ShutdownTimeout = 5 * time.Second
	}

	e := &Engine{
		conf:    conf,
		log:     conf.Log,
		metrics: NewMetrics(),
		players: cooldown.NewStore(conf.Clock),
		closing: make(chan struct{}),
		swept:   make(chan struct{}),
	}
	e.tracker = security.Config{
		Clock:     conf.Clock,
		Cooldowns: cooldown.NewStore(conf.TickClock),
		Settings:  e.securitySettings,
	}.New()
	e.effects = newEffectWorker(effectWorkerConfig{
		Log:       conf.Log.With("component", "effects"),
		Handler:   conf.Handler,
		Metrics:   e.metrics,
		QueueSize: conf.EffectQueueSize,
	})

	entries, err := conf.Provider.Load()
	if err != nil {
		conf.Log.Warn("Failed loading saved cooldowns.", "err", err)
	}
	if n := e.players.Import(entries); n > 0 {
		conf.Log.Info("Restored cooldowns.", "count", n)
	}

	go e.sweepLoop()
	return e, nil
}
