package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tronsweep/internal/metrics"
	"tronsweep/internal/storage"
	"tronsweep/internal/tron"
)

// ConfirmerOptions bound confirmation checking.
type ConfirmerOptions struct {
	MinConfirmations int64
	BroadcastTimeout time.Duration
}

// Confirmer walks broadcast attempts and settles them: confirmed once
// the depth threshold is reached, failed with BroadcastTimeout once the
// bound expires. It also reaps pending rows that outlived the same
// bound: a crash between insert and broadcast leaves such a row with no
// owner, and nothing else transitions it. Both timeouts are what keep a
// stuck attempt from wedging an asset forever under the in-flight
// invariant.
type Confirmer struct {
	opts   ConfirmerOptions
	chain  ChainPool
	ledger storage.Ledger
	logger zerolog.Logger
}

// NewConfirmer constructs the confirmation checker.
func NewConfirmer(opts ConfirmerOptions, chain ChainPool, ledger storage.Ledger, logger zerolog.Logger) *Confirmer {
	return &Confirmer{
		opts:   opts,
		chain:  chain,
		ledger: ledger,
		logger: logger.With().Str("component", "confirmer").Logger(),
	}
}

// Check runs one confirmation pass over all broadcast attempts, then
// fails orphaned pending rows. Failures on one attempt never abort the
// pass.
func (c *Confirmer) Check(ctx context.Context) error {
	attempts, err := c.ledger.ListBroadcastAttempts(ctx)
	if err != nil {
		return fmt.Errorf("list broadcast attempts: %w", err)
	}

	var errs []error
	for _, attempt := range attempts {
		if err := c.settle(ctx, attempt); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.reapStalePending(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// reapStalePending fails pending attempts older than the broadcast
// timeout. A live coordinator settles its own row within one tick;
// anything pending for longer was orphaned by a crash.
func (c *Confirmer) reapStalePending(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-c.opts.BroadcastTimeout)
	stale, err := c.ledger.ListStalePendingAttempts(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale pending attempts: %w", err)
	}

	var errs []error
	for _, attempt := range stale {
		if err := c.fail(ctx, attempt, ReasonPendingTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Confirmer) settle(ctx context.Context, attempt storage.SweepAttempt) error {
	if attempt.ChainTxID == nil {
		// A broadcast row without a txid cannot be confirmed; fail it so
		// the asset is released.
		return c.fail(ctx, attempt, "broadcast attempt missing txid")
	}

	confirmations, err := c.chain.GetConfirmations(ctx, *attempt.ChainTxID)
	switch {
	case errors.Is(err, tron.ErrTxNotFound):
		confirmations = 0
	case err != nil:
		return fmt.Errorf("attempt %d: query confirmations: %w", attempt.ID, err)
	}

	if confirmations >= c.opts.MinConfirmations {
		if err := c.ledger.MarkConfirmed(ctx, attempt.ID); err != nil {
			return fmt.Errorf("attempt %d: %w", attempt.ID, err)
		}
		metrics.Sweeps.WithLabelValues(string(storage.StatusConfirmed)).Inc()
		c.logger.Info().
			Int64("attempt_id", attempt.ID).
			Str("txid", *attempt.ChainTxID).
			Int64("confirmations", confirmations).
			Msg("sweep confirmed")
		return nil
	}

	// UpdatedAt was stamped by the pending -> broadcast transition, so
	// the age below is time since broadcast.
	if time.Since(attempt.UpdatedAt) > c.opts.BroadcastTimeout {
		return c.fail(ctx, attempt, ReasonBroadcastTimeout)
	}

	c.logger.Debug().
		Int64("attempt_id", attempt.ID).
		Int64("confirmations", confirmations).
		Int64("required", c.opts.MinConfirmations).
		Msg("awaiting confirmations")
	return nil
}

func (c *Confirmer) fail(ctx context.Context, attempt storage.SweepAttempt, reason string) error {
	if err := c.ledger.MarkFailed(ctx, attempt.ID, reason); err != nil {
		return fmt.Errorf("attempt %d: %w", attempt.ID, err)
	}
	metrics.Sweeps.WithLabelValues(string(storage.StatusFailed)).Inc()
	c.logger.Warn().
		Int64("attempt_id", attempt.ID).
		Str("reason", reason).
		Msg("sweep attempt failed, asset released")
	return nil
}
