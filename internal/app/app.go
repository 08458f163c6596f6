package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tronsweep/internal/api"
	"tronsweep/internal/config"
	"tronsweep/internal/engine"
	"tronsweep/internal/pool"
	"tronsweep/internal/storage"
	"tronsweep/internal/sweep"
	"tronsweep/internal/tron"
)

const nativeDecimals = 6 // 1 TRX = 1,000,000 sun

// App aggregates configuration and shared dependencies for the CLI
// commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pgPool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewStore(pgPool)
	return store, store.Close, nil
}

func (a *App) newChain(withSigner bool) (*tron.Client, error) {
	wallet := a.Config.Wallet
	if wallet.SourceAddress == "" || wallet.DestinationAddress == "" {
		return nil, errors.New("wallet.source_address and wallet.destination_address are required")
	}
	if !tron.ValidAddress(wallet.SourceAddress) {
		return nil, fmt.Errorf("wallet.source_address is not a valid address: %s", wallet.SourceAddress)
	}
	if !tron.ValidAddress(wallet.DestinationAddress) {
		return nil, fmt.Errorf("wallet.destination_address is not a valid address: %s", wallet.DestinationAddress)
	}

	var signer *tron.Signer
	if withSigner {
		if wallet.SourcePrivateKey == "" {
			return nil, errors.New("wallet.source_private_key is required")
		}
		var err error
		signer, err = tron.NewSigner(wallet.SourcePrivateKey)
		if err != nil {
			return nil, err
		}
	}

	return tron.NewClient(tron.Options{
		Network:           a.Config.Network.Name,
		NodeURL:           a.Config.Network.NodeURL,
		SourceAddress:     wallet.SourceAddress,
		Timeout:           a.Config.Network.RequestTimeout,
		NativeFeeEstimate: a.Config.Sweeper.NativeFeeEstimate,
		TokenFeeEstimate:  a.Config.Sweeper.TokenFeeEstimate,
	}, signer, a.Logger)
}

func (a *App) newPool(client *tron.Client) *pool.Pool {
	return pool.New(client, a.Config.Network.APIKeys, a.Logger)
}

// seedNativeAsset makes sure the registry always carries the native
// asset row with the configured sweep policy.
func (a *App) seedNativeAsset(ctx context.Context, store *storage.Store) error {
	_, err := store.UpsertAsset(ctx, storage.AssetSpec{
		Kind:              storage.AssetNative,
		Symbol:            "TRX",
		Name:              "TRON",
		Decimals:          nativeDecimals,
		MinTransferAmount: decimal.NewFromInt(a.Config.Sweeper.MinTransferAmount),
		Enabled:           a.Config.Sweeper.SweepNative,
	})
	return err
}

// Run executes the long-running sweep engine plus its control API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := a.seedNativeAsset(ctx, store); err != nil {
		return fmt.Errorf("seed native asset: %w", err)
	}

	chain, err := a.newChain(true)
	if err != nil {
		return err
	}
	clientPool := a.newPool(chain)

	coordinator := sweep.NewCoordinator(sweep.CoordinatorOptions{
		SourceAddress:      a.Config.Wallet.SourceAddress,
		DestinationAddress: a.Config.Wallet.DestinationAddress,
	}, clientPool, store, a.Logger)

	confirmer := sweep.NewConfirmer(sweep.ConfirmerOptions{
		MinConfirmations: a.Config.Confirm.MinConfirmations,
		BroadcastTimeout: a.Config.Confirm.BroadcastTimeout,
	}, clientPool, store, a.Logger)

	eng := engine.New(engine.Options{
		CheckInterval:   a.Config.Sweeper.CheckInterval,
		StartupDelay:    a.Config.Sweeper.StartupDelay,
		ConfirmInterval: a.Config.Confirm.Interval,
	}, nil, confirmer, a.Logger)

	poller := sweep.NewPoller(sweep.PollerOptions{
		SourceAddress: a.Config.Wallet.SourceAddress,
		SweepNative:   a.Config.Sweeper.SweepNative,
		SweepTokens:   a.Config.Sweeper.SweepTokens,
	}, store, clientPool, coordinator, eng, a.Logger)
	eng.SetPoller(poller)

	a.Logger.Info().
		Str("source", a.Config.Wallet.SourceAddress).
		Str("destination", a.Config.Wallet.DestinationAddress).
		Str("network", a.Config.Network.Name).
		Dur("check_interval", a.Config.Sweeper.CheckInterval).
		Msg("starting sweep engine")

	if a.Config.Sweeper.AutoStart {
		if err := eng.Start(); err != nil {
			return err
		}
	}

	var server *api.Server
	serverErr := make(chan error, 1)
	if a.Config.API.Enabled {
		server = api.NewServer(a.Config.API, eng, store, store, clientPool, a.Logger)
		go func() {
			serverErr <- server.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			a.Logger.Error().Err(err).Msg("api server terminated")
		}
	}

	if stopErr := eng.Stop(); stopErr != nil && !errors.Is(stopErr, engine.ErrNotRunning) {
		a.Logger.Error().Err(stopErr).Msg("engine shutdown failed")
	}
	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("api server shutdown failed")
		}
	}

	a.Logger.Info().Msg("sweep engine stopped")
	return nil
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting the sweep ledger.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// AddAssetOptions configure token registration.
type AddAssetOptions struct {
	ContractAddress   string
	MinTransferAmount int64
	Disabled          bool
}
