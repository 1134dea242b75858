package portal

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// effect is a side effect dispatched to a Handler.
type effect interface {
	dispatch(h Handler)
}

type denialEffect struct{ d Denial }

func (e denialEffect) dispatch(h Handler) { h.HandleDenial(e.d) }

type cooldownEffect struct{ c CooldownApplied }

func (e cooldownEffect) dispatch(h Handler) { h.HandleCooldown(e.c) }

type effectWorkerConfig struct {
	Log       *slog.Logger
	Handler   Handler
	Metrics   *Metrics
	QueueSize int
}

// effectWorker dispatches effects to a Handler on its own goroutine, so that handlers never run on the
// goroutine delivering events to the Engine.
type effectWorker struct {
	log     *slog.Logger
	handler Handler
	metrics *Metrics

	inbox   chan effect
	closing chan struct{}
	done    chan struct{}

	stopOnce sync.Once
}

func newEffectWorker(cfg effectWorkerConfig) *effectWorker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Handler == nil {
		cfg.Handler = NopHandler{}
	}
	w := &effectWorker{
		log:     cfg.Log,
		handler: cfg.Handler,
		metrics: cfg.Metrics,
		inbox:   make(chan effect, cfg.QueueSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *effectWorker) loop() {
	defer close(w.done)
	for {
		select {
		case eff := <-w.inbox:
			w.run(eff)
		case <-w.closing:
			// Drain whatever was queued before closing.
			for {
				select {
				case eff := <-w.inbox:
					w.run(eff)
				default:
					return
				}
			}
		}
	}
}

func (w *effectWorker) run(eff effect) {
	w.metrics.SetQueueSize(len(w.inbox))
	defer func() {
		if r := recover(); r != nil {
			w.metrics.IncPanics()
			w.log.Error("Effect handler panic.", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	eff.dispatch(w.handler)
}

// enqueue queues an effect without blocking. Effects are dropped if the queue is full or the worker was
// stopped. It returns true if the effect was queued.
func (w *effectWorker) enqueue(eff effect) bool {
	select {
	case <-w.closing:
		return false
	default:
	}
	select {
	case w.inbox <- eff:
		return true
	default:
		w.metrics.IncBackpressure()
		w.log.Warn("Effect queue full, dropping effect.", "queue", cap(w.inbox))
		return false
	}
}

// stop stops the worker after the effects already queued have been dispatched. The returned channel is
// closed once the worker has stopped.
func (w *effectWorker) stop() <-chan struct{} {
	w.stopOnce.Do(func() {
		close(w.closing)
	})
	return w.done
}
