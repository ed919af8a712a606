package sim

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	mmetrics "smartbus-simulator/internal/metrics"
	"smartbus-simulator/internal/transit"
)

// Hooks receive copies of the state after the periodic activities. Either may be nil.
type Hooks struct {
	// Positions is called every publish interval with all vehicle states.
	Positions func(at time.Time, vehicles []transit.VehicleState)
	// Board is called after an ETA recompute that changed the displayed board.
	Board func(board transit.Snapshot)
}

// Runner drives an Engine from fixed tickers: the position tick, the ETA recompute and
// the position publish. Each runs in its own goroutine until Stop or context cancellation.
type Runner struct {
	engine          *Engine
	tickInterval    time.Duration
	etaInterval     time.Duration
	publishInterval time.Duration
	hooks           Hooks
	metrics         *mmetrics.Collector

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(engine *Engine, tickInterval, etaInterval, publishInterval time.Duration, hooks Hooks, metrics *mmetrics.Collector) *Runner {
	return &Runner{
		engine:          engine,
		tickInterval:    tickInterval,
		etaInterval:     etaInterval,
		publishInterval: publishInterval,
		hooks:           hooks,
		metrics:         metrics,
	}
}

func (r *Runner) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel

	if r.metrics != nil {
		r.metrics.Vehicles.Set(float64(len(r.engine.Vehicles())))
	}
	log.WithFields(log.Fields{
		"vehicles": len(r.engine.Vehicles()),
		"tick":     r.tickInterval,
		"eta":      r.etaInterval,
		"publish":  r.publishInterval,
	}).Info("starting simulation")

	// first board before the first interval elapses
	r.recompute()

	r.every(ctx, r.tickInterval, r.tick)
	r.every(ctx, r.etaInterval, r.recompute)
	if r.hooks.Positions != nil {
		r.every(ctx, r.publishInterval, r.publish)
	}
}

func (r *Runner) every(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

func (r *Runner) tick() {
	start := time.Now()
	r.engine.Tick()
	if r.metrics != nil {
		r.metrics.Ticks.Inc()
		r.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
}

func (r *Runner) recompute() {
	board, changed := r.engine.RecomputeETA()
	if r.metrics != nil {
		r.metrics.ETARecomputes.Inc()
		if changed {
			r.metrics.ETABoardUpdate.Inc()
		}
	}
	if changed {
		log.WithFields(log.Fields{"stop": board.Target, "etas": board.ETAs}).Debug("eta board updated")
		if r.hooks.Board != nil {
			r.hooks.Board(board)
		}
	}
}

func (r *Runner) publish() {
	r.hooks.Positions(time.Now(), r.engine.Vehicles())
}

// Stop cancels the loops and waits for them to return.
func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	log.Println("simulation stopped")
}
