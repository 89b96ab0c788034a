// Package gateway owns the running pipeline: it consumes the event bus,
// fans events out to the dispatcher, and runs the periodic maintenance
// tasks until told to shut down.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/reefbot/pkg/bus"
	"github.com/tinyland-inc/reefbot/pkg/dispatch"
	"github.com/tinyland-inc/reefbot/pkg/logger"
	"github.com/tinyland-inc/reefbot/pkg/ratelimit"
	"github.com/tinyland-inc/reefbot/pkg/session"
	"github.com/tinyland-inc/reefbot/pkg/store"
	"github.com/tinyland-inc/reefbot/pkg/transport"
)

// cooldown records older than this are dead weight and get swept.
const cooldownMaxAge = 24 * time.Hour

// Options tunes the orchestrator's periodic tasks and shutdown.
type Options struct {
	StatsSchedule   string // cron expression for the stats snapshot log
	HealthInterval  time.Duration
	CleanupInterval time.Duration
	ShutdownGrace   time.Duration
}

func (o *Options) fill() {
	if o.StatsSchedule == "" {
		o.StatsSchedule = "* * * * *"
	}
	if o.HealthInterval <= 0 {
		o.HealthInterval = 30 * time.Second
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = 5 * time.Minute
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 10 * time.Second
	}
}

// Orchestrator wires the bus, transports, dispatcher, and maintenance
// tasks into one lifecycle. Each inbound event is dispatched on its own
// goroutine; shutdown stops intake first and then waits for in-flight
// dispatches up to the configured grace.
type Orchestrator struct {
	bus        *bus.EventBus
	dispatcher *dispatch.Dispatcher
	transports map[string]transport.Transport
	sessions   *session.Store
	limiter    *ratelimit.Limiter
	cache      store.Cache
	stats      *AggregateStats
	opts       Options

	cancel   context.CancelFunc
	loopWG   sync.WaitGroup // consume loop and periodic tasks
	inflight sync.WaitGroup // one per dispatched event
}

func NewOrchestrator(
	eb *bus.EventBus,
	dispatcher *dispatch.Dispatcher,
	transports map[string]transport.Transport,
	sessions *session.Store,
	limiter *ratelimit.Limiter,
	cache store.Cache,
	stats *AggregateStats,
	opts Options,
) *Orchestrator {
	opts.fill()
	if cache == nil {
		cache = store.NewMemoryCache()
	}
	return &Orchestrator{
		bus:        eb,
		dispatcher: dispatcher,
		transports: transports,
		sessions:   sessions,
		limiter:    limiter,
		cache:      cache,
		stats:      stats,
		opts:       opts,
	}
}

// Start opens every transport and launches the consume loop and the
// periodic tasks. A transport that fails to start aborts the whole
// startup, closing whatever already opened.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, o.cancel = context.WithCancel(ctx)

	var started []transport.Transport
	for name, tr := range o.transports {
		if err := tr.Start(ctx); err != nil {
			for _, prev := range started {
				_ = prev.Stop(ctx)
			}
			o.cancel()
			return fmt.Errorf("start transport %s: %w", name, err)
		}
		started = append(started, tr)
		logger.InfoCF("gateway", "Transport started", map[string]any{"channel": name})
	}

	o.loopWG.Add(4)
	go o.consumeLoop(ctx)
	go o.statsTask(ctx)
	go o.healthTask(ctx)
	go o.cleanupTask(ctx)

	logger.InfoCF("gateway", "Orchestrator running", map[string]any{
		"transports": len(o.transports),
	})
	return nil
}

// Stop shuts the pipeline down in order: transports first so no new
// events arrive, then the bus, then in-flight dispatches with a bounded
// grace, then the periodic tasks and mirror writes.
func (o *Orchestrator) Stop(ctx context.Context) error {
	logger.InfoC("gateway", "Shutting down")

	for name, tr := range o.transports {
		if err := tr.Stop(ctx); err != nil {
			logger.WarnCF("gateway", "Transport stop failed", map[string]any{
				"channel": name, "error": err.Error(),
			})
		}
	}

	o.bus.Close()

	if !waitTimeout(&o.inflight, o.opts.ShutdownGrace) {
		logger.WarnCF("gateway", "Grace elapsed, cancelling in-flight handlers", map[string]any{
			"grace": o.opts.ShutdownGrace.String(),
		})
	}
	if o.cancel != nil {
		o.cancel()
	}
	o.loopWG.Wait()
	// Handlers that ignore cancellation get one more bounded wait and are
	// then abandoned; Stop never blocks indefinitely.
	if !waitTimeout(&o.inflight, o.opts.ShutdownGrace) {
		logger.WarnC("gateway", "Abandoning handlers still running after cancellation")
	}
	o.sessions.Flush()

	logger.InfoC("gateway", "Shutdown complete")
	return nil
}

// Ready reports whether at least one transport is connected.
func (o *Orchestrator) Ready() bool {
	for _, tr := range o.transports {
		if tr.IsConnected() {
			return true
		}
	}
	return false
}

// Health returns per-component status for the health endpoint.
func (o *Orchestrator) Health(ctx context.Context) map[string]any {
	channels := make(map[string]bool, len(o.transports))
	for name, tr := range o.transports {
		channels[name] = tr.IsConnected()
	}
	cacheOK := o.cache.Ping(ctx) == nil
	return map[string]any{
		"channels": channels,
		"cache":    cacheOK,
		"sessions": o.sessions.Len(),
	}
}

func (o *Orchestrator) consumeLoop(ctx context.Context) {
	defer o.loopWG.Done()
	for {
		ev, ok := o.bus.Consume(ctx)
		if !ok {
			return
		}
		o.inflight.Add(1)
		go func(ev bus.InboundEvent) {
			defer o.inflight.Done()
			o.dispatcher.Dispatch(ctx, ev)
		}(ev)
	}
}

// statsTask logs a counters snapshot whenever the cron schedule is due,
// checked at minute granularity.
func (o *Orchestrator) statsTask(ctx context.Context) {
	defer o.loopWG.Done()
	gron := gronx.New()
	if !gron.IsValid(o.opts.StatsSchedule) {
		logger.ErrorCF("gateway", "Invalid stats schedule", map[string]any{
			"schedule": o.opts.StatsSchedule,
		})
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := gron.IsDue(o.opts.StatsSchedule, now)
			if err != nil || !due {
				continue
			}
			snap := o.stats.StatsSnapshot()
			logger.InfoCF("gateway", "Stats snapshot", map[string]any{
				"uptime":    time.Since(snap.StartTime).Round(time.Second).String(),
				"messages":  snap.Messages,
				"commands":  snap.Commands,
				"errors":    snap.Errors,
				"reactions": snap.Reactions,
				"sessions":  o.sessions.Len(),
			})
		}
	}
}

// healthTask probes the transports and cache, logging degradation. It
// never restarts anything itself; transports own their reconnect loops.
func (o *Orchestrator) healthTask(ctx context.Context) {
	defer o.loopWG.Done()
	ticker := time.NewTicker(o.opts.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, tr := range o.transports {
				if !tr.IsConnected() {
					logger.WarnCF("gateway", "Transport disconnected", map[string]any{
						"channel": name,
					})
				}
			}
			if err := o.cache.Ping(ctx); err != nil {
				logger.WarnCF("gateway", "Cache unreachable", map[string]any{
					"error": err.Error(),
				})
			}
		}
	}
}

// cleanupTask sweeps idle per-key state: rate windows, sessions, pending
// replies, and cooldown records.
func (o *Orchestrator) cleanupTask(ctx context.Context) {
	defer o.loopWG.Done()
	ticker := time.NewTicker(o.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			windows := o.limiter.Cleanup()
			sessions, pending := o.sessions.Sweep()
			cooldowns := o.dispatcher.Cooldowns().Sweep(cooldownMaxAge)
			swept := 0
			if mc, ok := o.cache.(*store.MemoryCache); ok {
				swept = mc.Sweep()
			}
			if windows+sessions+pending+cooldowns+swept > 0 {
				logger.DebugCF("gateway", "Cleanup pass", map[string]any{
					"rate_windows": windows,
					"sessions":     sessions,
					"pending":      pending,
					"cooldowns":    cooldowns,
					"cache_keys":   swept,
				})
			}
		}
	}
}

// waitTimeout waits for wg up to d, reporting whether it finished.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
