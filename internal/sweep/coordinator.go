package sweep

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tronsweep/internal/metrics"
	"tronsweep/internal/storage"
)

// CoordinatorOptions identify the wallet pair every sweep moves funds
// between.
type CoordinatorOptions struct {
	SourceAddress      string
	DestinationAddress string
}

// Coordinator decides whether a detected balance is worth sweeping and
// drives the build-sign-broadcast sequence, recording every attempt in
// the ledger.
type Coordinator struct {
	opts   CoordinatorOptions
	chain  ChainPool
	ledger storage.Ledger
	logger zerolog.Logger
}

// NewCoordinator constructs the sweep coordinator.
func NewCoordinator(opts CoordinatorOptions, chain ChainPool, ledger storage.Ledger, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		opts:   opts,
		chain:  chain,
		ledger: ledger,
		logger: logger.With().Str("component", "coordinator").Logger(),
	}
}

// Evaluate runs the sweep decision for one asset balance. It returns the
// attempt it recorded, if any; a nil attempt with nil error means the
// balance was skipped (dust, or an attempt is already in flight).
func (c *Coordinator) Evaluate(ctx context.Context, asset storage.AssetSpec, balance decimal.Decimal) (*storage.SweepAttempt, error) {
	fee := c.chain.EstimateFee(asset.IsToken())

	// Token transfers move the full balance; the fee is paid from the
	// native balance. Native sweeps leave the fee behind.
	sweepable := balance
	if !asset.IsToken() {
		sweepable = balance.Sub(fee)
	}

	if sweepable.Sign() <= 0 || sweepable.LessThan(asset.MinTransferAmount) {
		c.logger.Debug().
			Str("asset", asset.Symbol).
			Str("balance", balance.String()).
			Str("min", asset.MinTransferAmount.String()).
			Msg("balance below sweep threshold")
		return nil, nil
	}

	inFlight, err := c.ledger.InFlightAttempt(ctx, asset.ID)
	if err != nil {
		return nil, fmt.Errorf("check in-flight attempt: %w", err)
	}
	if inFlight != nil {
		c.logger.Debug().
			Str("asset", asset.Symbol).
			Int64("attempt_id", inFlight.ID).
			Str("status", string(inFlight.Status)).
			Msg("sweep suppressed, attempt already in flight")
		return nil, nil
	}

	if asset.IsToken() {
		nativeBalance, err := c.chain.GetBalance(ctx, c.opts.SourceAddress)
		if err != nil {
			return nil, fmt.Errorf("check native balance for token fee: %w", err)
		}
		if nativeBalance.LessThan(fee) {
			return c.recordFeeShortfall(ctx, asset, sweepable, nativeBalance, fee)
		}
	}

	attempt, err := c.ledger.InsertAttempt(ctx, storage.SweepAttempt{
		AssetID:            asset.ID,
		SourceAddress:      c.opts.SourceAddress,
		DestinationAddress: c.opts.DestinationAddress,
		Amount:             sweepable,
		Status:             storage.StatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("record sweep attempt: %w", err)
	}
	metrics.Sweeps.WithLabelValues(string(storage.StatusPending)).Inc()

	c.logger.Info().
		Str("asset", asset.Symbol).
		Int64("attempt_id", attempt.ID).
		Str("amount", sweepable.String()).
		Str("destination", c.opts.DestinationAddress).
		Msg("sweeping detected balance")

	txid, sendErr := c.send(ctx, asset, sweepable)

	// The attempt row claims the asset's in-flight slot from here on, so
	// the settling write must land even when the surrounding tick was
	// cancelled mid-send; otherwise the pending row wedges the asset.
	writeCtx := context.WithoutCancel(ctx)
	if sendErr != nil {
		if markErr := c.ledger.MarkFailed(writeCtx, attempt.ID, sendErr.Error()); markErr != nil {
			c.logger.Error().Err(markErr).Int64("attempt_id", attempt.ID).Msg("failed to record attempt failure")
		}
		metrics.Sweeps.WithLabelValues(string(storage.StatusFailed)).Inc()
		attempt.Status = storage.StatusFailed
		reason := sendErr.Error()
		attempt.ErrorReason = &reason
		return &attempt, fmt.Errorf("sweep %s: %w", asset.Symbol, sendErr)
	}

	if err := c.ledger.MarkBroadcast(writeCtx, attempt.ID, txid); err != nil {
		return &attempt, fmt.Errorf("record broadcast of attempt %d: %w", attempt.ID, err)
	}
	metrics.Sweeps.WithLabelValues(string(storage.StatusBroadcast)).Inc()
	metrics.SweptAmount.WithLabelValues(asset.Symbol).Add(sweepable.InexactFloat64())

	attempt.Status = storage.StatusBroadcast
	attempt.ChainTxID = &txid
	c.logger.Info().
		Str("asset", asset.Symbol).
		Int64("attempt_id", attempt.ID).
		Str("txid", txid).
		Msg("sweep broadcast")
	return &attempt, nil
}

func (c *Coordinator) send(ctx context.Context, asset storage.AssetSpec, amount decimal.Decimal) (string, error) {
	if asset.IsToken() {
		return c.chain.TransferToken(ctx, asset.ContractAddress, c.opts.DestinationAddress, amount)
	}
	return c.chain.Transfer(ctx, c.opts.DestinationAddress, amount)
}

// recordFeeShortfall writes a terminal failed attempt: a token balance
// is sweepable but the wallet cannot pay for the transfer. The operator
// has to top up TRX; nothing retries on its own.
func (c *Coordinator) recordFeeShortfall(ctx context.Context, asset storage.AssetSpec, sweepable, nativeBalance, fee decimal.Decimal) (*storage.SweepAttempt, error) {
	reason := ReasonInsufficientFeeFunds
	attempt, err := c.ledger.InsertAttempt(ctx, storage.SweepAttempt{
		AssetID:            asset.ID,
		SourceAddress:      c.opts.SourceAddress,
		DestinationAddress: c.opts.DestinationAddress,
		Amount:             sweepable,
		Status:             storage.StatusFailed,
		ErrorReason:        &reason,
	})
	if err != nil {
		return nil, fmt.Errorf("record fee shortfall: %w", err)
	}
	metrics.Sweeps.WithLabelValues(string(storage.StatusFailed)).Inc()

	c.logger.Warn().
		Str("asset", asset.Symbol).
		Str("native_balance", nativeBalance.String()).
		Str("fee_estimate", fee.String()).
		Msg("native balance cannot cover token transfer fee")
	return &attempt, nil
}
