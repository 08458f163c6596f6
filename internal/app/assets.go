package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"tronsweep/internal/storage"
	"tronsweep/internal/tron"
)

// AddAsset registers a TRC20 contract for sweeping. Symbol, name and
// decimals are read from the contract itself; registering an already
// known contract updates its policy instead of duplicating it.
func (a *App) AddAsset(ctx context.Context, opts AddAssetOptions) error {
	if !tron.ValidAddress(opts.ContractAddress) {
		return fmt.Errorf("invalid contract address: %s", opts.ContractAddress)
	}
	if opts.MinTransferAmount < 0 {
		return fmt.Errorf("min transfer amount must not be negative: %d", opts.MinTransferAmount)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	chain, err := a.newChain(false)
	if err != nil {
		return err
	}
	info, err := a.newPool(chain).GetTokenInfo(ctx, opts.ContractAddress)
	if err != nil {
		return fmt.Errorf("query token metadata: %w", err)
	}

	id, err := store.UpsertAsset(ctx, storage.AssetSpec{
		Kind:              storage.AssetToken,
		ContractAddress:   opts.ContractAddress,
		Symbol:            info.Symbol,
		Name:              info.Name,
		Decimals:          info.Decimals,
		MinTransferAmount: decimal.NewFromInt(opts.MinTransferAmount),
		Enabled:           !opts.Disabled,
	})
	if err != nil {
		return err
	}

	a.Logger.Info().
		Int64("asset_id", id).
		Str("symbol", info.Symbol).
		Int32("decimals", info.Decimals).
		Str("contract", opts.ContractAddress).
		Msg("token registered")
	fmt.Fprintf(os.Stdout, "registered %s (%s), asset id %d\n", info.Symbol, info.Name, id)
	return nil
}

// ListAssets prints the asset registry.
func (a *App) ListAssets(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	assets, err := store.ListAssets(ctx)
	if err != nil {
		return err
	}
	if len(assets) == 0 {
		fmt.Fprintln(os.Stdout, "no assets registered")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tKind\tSymbol\tDecimals\tMinTransfer\tEnabled\tContract")
	for _, asset := range assets {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%d\t%s\t%t\t%s\n",
			asset.ID,
			asset.Kind,
			asset.Symbol,
			asset.Decimals,
			asset.MinTransferAmount.String(),
			asset.Enabled,
			asset.ContractAddress,
		)
	}
	writer.Flush()
	return nil
}
