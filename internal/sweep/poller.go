package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tronsweep/internal/metrics"
	"tronsweep/internal/storage"
)

// AssetSource yields the per-tick asset snapshot.
type AssetSource interface {
	ListEnabledAssets(ctx context.Context) ([]storage.AssetSpec, error)
}

// PollerOptions gate which asset kinds are swept.
type PollerOptions struct {
	SourceAddress string
	SweepNative   bool
	SweepTokens   bool
}

// Poller queries every enabled asset's balance once per tick and hands
// positive balances to the coordinator. One asset's failure never
// aborts the rest of the tick; errors are collected and the engine
// status is updated unconditionally at the end.
type Poller struct {
	opts        PollerOptions
	assets      AssetSource
	chain       ChainPool
	coordinator *Coordinator
	status      StatusSink
	logger      zerolog.Logger
}

// NewPoller constructs the balance poller.
func NewPoller(opts PollerOptions, assets AssetSource, chain ChainPool, coordinator *Coordinator, status StatusSink, logger zerolog.Logger) *Poller {
	return &Poller{
		opts:        opts,
		assets:      assets,
		chain:       chain,
		coordinator: coordinator,
		status:      status,
		logger:      logger.With().Str("component", "poller").Logger(),
	}
}

// Tick runs one polling cycle.
func (p *Poller) Tick(ctx context.Context) error {
	var (
		errs  []error
		swept []string
	)

	specs, err := p.assets.ListEnabledAssets(ctx)
	if err != nil {
		p.finish(fmt.Sprintf("Error: %s", clip(err.Error(), 80)))
		return fmt.Errorf("load asset snapshot: %w", err)
	}

	for _, asset := range specs {
		if asset.IsToken() && !p.opts.SweepTokens {
			continue
		}
		if !asset.IsToken() && !p.opts.SweepNative {
			continue
		}

		balance, err := p.balance(ctx, asset)
		if err != nil {
			metrics.BalanceQueryErrors.Inc()
			p.logger.Warn().Err(err).Str("asset", asset.Symbol).Msg("balance query failed")
			errs = append(errs, fmt.Errorf("%s: %w", asset.Symbol, err))
			continue
		}
		if balance.Sign() <= 0 {
			continue
		}

		attempt, err := p.coordinator.Evaluate(ctx, asset, balance)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if attempt != nil && attempt.Status == storage.StatusBroadcast {
			swept = append(swept, fmt.Sprintf("%s %s", attempt.Amount.String(), asset.Symbol))
		}
	}

	metrics.PollTicks.Inc()
	p.finish(p.statusMessage(swept, errs))
	return errors.Join(errs...)
}

func (p *Poller) balance(ctx context.Context, asset storage.AssetSpec) (decimal.Decimal, error) {
	if asset.IsToken() {
		return p.chain.GetTokenBalance(ctx, asset.ContractAddress, p.opts.SourceAddress)
	}
	return p.chain.GetBalance(ctx, p.opts.SourceAddress)
}

func (p *Poller) finish(message string) {
	if p.status != nil {
		p.status.RecordCheck(time.Now().UTC(), message)
	}
}

func (p *Poller) statusMessage(swept []string, errs []error) string {
	switch {
	case len(swept) == 1:
		return "Swept " + swept[0]
	case len(swept) > 1:
		return fmt.Sprintf("Swept %s and %d other asset(s)", swept[len(swept)-1], len(swept)-1)
	case len(errs) > 0:
		return "Error: " + clip(errs[0].Error(), 80)
	default:
		return "Monitoring " + shortAddress(p.opts.SourceAddress)
	}
}

func shortAddress(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:8] + "..." + addr[len(addr)-8:]
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
