package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TickHandler is invoked on every runner tick with the tick instant.
type TickHandler func(context.Context, time.Time) error

// RunnerConfig configures a periodic runner.
type RunnerConfig struct {
	Interval   time.Duration
	RunAtStart bool
	Logger     *zap.Logger
}

// Runner invokes a handler on a fixed cadence. It is the in-process
// stand-in for an external cron trigger: ticks may be delayed or coalesced,
// and the handler is expected to be idempotent.
type Runner struct {
	name       string
	handler    TickHandler
	interval   time.Duration
	runAtStart bool
	logger     *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewRunner builds a runner with the provided handler.
func NewRunner(name string, handler TickHandler, cfg RunnerConfig) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Runner{
		name:       name,
		handler:    handler,
		interval:   cfg.Interval,
		runAtStart: cfg.RunAtStart,
		logger:     cfg.Logger,
	}
}

// Start begins ticking. Safe to call once.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.loop()
	r.started = true
	r.logger.Sugar().Infow("runner started", "runner", r.name, "interval", r.interval)
}

// Stop cancels the loop and waits for an in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Sugar().Infow("runner stopped", "runner", r.name)
}

func (r *Runner) loop() {
	defer r.wg.Done()

	if r.runAtStart {
		r.tick()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Runner) tick() {
	now := time.Now().UTC()
	if err := r.handler(r.ctx, now); err != nil {
		r.logger.Sugar().Errorw("runner tick failed", "runner", r.name, "error", err)
	}
}
