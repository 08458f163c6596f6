package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tronsweep/internal/app"
)

var (
	assetContract string
	assetMin      int64
	assetDisabled bool
)

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage the asset registry",
}

var assetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered assets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAssets(cmd.Context())
	},
}

var assetsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a TRC20 contract for sweeping",
	RunE: func(cmd *cobra.Command, args []string) error {
		if assetContract == "" {
			return fmt.Errorf("--contract is required")
		}

		opts := app.AddAssetOptions{
			ContractAddress:   assetContract,
			MinTransferAmount: assetMin,
			Disabled:          assetDisabled,
		}

		return getApp().AddAsset(cmd.Context(), opts)
	},
}

func init() {
	assetsAddCmd.Flags().StringVar(&assetContract, "contract", "", "TRC20 contract address (base58)")
	assetsAddCmd.Flags().Int64Var(&assetMin, "min", 0, "Minimum sweepable amount in raw token units")
	assetsAddCmd.Flags().BoolVar(&assetDisabled, "disabled", false, "Register the asset without enabling sweeps")

	assetsCmd.AddCommand(assetsListCmd)
	assetsCmd.AddCommand(assetsAddCmd)
}
