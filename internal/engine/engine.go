// Package engine owns the sweep engine lifecycle: one controller holds
// the poller and confirmer loops and the process-wide status
// projection. The status is diagnostic only; the ledger remains the
// authority on what was actually swept.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tronsweep/internal/metrics"
	"tronsweep/internal/scheduler"
)

var (
	// ErrAlreadyRunning is returned by Start on a running engine.
	ErrAlreadyRunning = errors.New("engine: already running")
	// ErrNotRunning is returned by Stop on a stopped engine.
	ErrNotRunning = errors.New("engine: not running")
)

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Running       bool       `json:"running"`
	StatusMessage string     `json:"status_message"`
	LastCheckAt   *time.Time `json:"last_check_at"`
}

// Poller is one balance polling cycle.
type Poller interface {
	Tick(ctx context.Context) error
}

// Confirmer is one confirmation pass.
type Confirmer interface {
	Check(ctx context.Context) error
}

// Options carry the two loop cadences.
type Options struct {
	CheckInterval   time.Duration
	StartupDelay    time.Duration
	ConfirmInterval time.Duration
}

// Engine is the controller exposed to the operator surface.
type Engine struct {
	opts      Options
	poller    Poller
	confirmer Confirmer
	logger    zerolog.Logger

	mu          sync.Mutex
	running     bool
	message     string
	lastCheckAt *time.Time
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New constructs a stopped engine.
func New(opts Options, poller Poller, confirmer Confirmer, logger zerolog.Logger) *Engine {
	return &Engine{
		opts:      opts,
		poller:    poller,
		confirmer: confirmer,
		logger:    logger.With().Str("component", "engine").Logger(),
		message:   "Stopped",
	}
}

// SetPoller installs the polling tick. Wired after construction
// because the poller reports back into the engine's status.
func (e *Engine) SetPoller(p Poller) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.poller = p
}

// Start launches the polling and confirmation loops. Fails with
// ErrAlreadyRunning when the engine is already started.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.message = "Running"
	metrics.EngineRunning.Set(1)

	pollLoop := scheduler.New(scheduler.Options{
		Interval:     e.opts.CheckInterval,
		StartupDelay: e.opts.StartupDelay,
	}, e.logger)
	confirmLoop := scheduler.New(scheduler.Options{
		Interval: e.opts.ConfirmInterval,
	}, e.logger)

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		if err := pollLoop.Run(ctx, e.poller.Tick); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error().Err(err).Msg("polling loop terminated")
		}
	}()
	go func() {
		defer e.wg.Done()
		if err := confirmLoop.Run(ctx, e.confirmer.Check); err != nil && !errors.Is(err, context.Canceled) {
			e.logger.Error().Err(err).Msg("confirmation loop terminated")
		}
	}()

	e.logger.Info().
		Dur("check_interval", e.opts.CheckInterval).
		Dur("confirm_interval", e.opts.ConfirmInterval).
		Msg("engine started")
	return nil
}

// Stop signals cancellation and waits for both loops to finish their
// current pass. Fails with ErrNotRunning when the engine is stopped.
// No outbound call is aborted mid-flight; the loops observe
// cancellation between ticks.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return ErrNotRunning
	}
	cancel := e.cancel
	e.cancel = nil
	e.running = false
	e.message = "Stopping..."
	e.mu.Unlock()

	cancel()
	e.wg.Wait()

	e.mu.Lock()
	e.message = "Stopped"
	e.mu.Unlock()

	metrics.EngineRunning.Set(0)
	e.logger.Info().Msg("engine stopped")
	return nil
}

// Status returns the current snapshot. Pure read, no side effects.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{Running: e.running, StatusMessage: e.message}
	if e.lastCheckAt != nil {
		t := *e.lastCheckAt
		status.LastCheckAt = &t
	}
	return status
}

// RecordCheck implements sweep.StatusSink; the poller calls it at the
// end of every tick, including partially failed ones.
func (e *Engine) RecordCheck(at time.Time, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastCheckAt = &at
	if e.running {
		e.message = message
	}
}
