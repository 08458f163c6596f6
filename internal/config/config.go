package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tronsweep/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Network  NetworkConfig  `mapstructure:"network"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Confirm  ConfirmConfig  `mapstructure:"confirm"`
	API      APIConfig      `mapstructure:"api"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WalletConfig identifies the source wallet being drained and the
// destination everything is forwarded to.
type WalletConfig struct {
	SourceAddress      string `mapstructure:"source_address"`
	SourcePrivateKey   string `mapstructure:"source_private_key"`
	DestinationAddress string `mapstructure:"destination_address"`
}

// NetworkConfig covers TRON node access.
type NetworkConfig struct {
	Name           string        `mapstructure:"name"`     // mainnet, shasta or nile
	NodeURL        string        `mapstructure:"node_url"` // overrides the per-network default
	APIKeys        []string      `mapstructure:"api_keys"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SweeperConfig governs polling cadence and sweep policy. Amounts are
// expressed in minor units (sun for TRX).
type SweeperConfig struct {
	CheckInterval     time.Duration `mapstructure:"check_interval"`
	StartupDelay      time.Duration `mapstructure:"startup_delay"`
	SweepNative       bool          `mapstructure:"sweep_native"`
	SweepTokens       bool          `mapstructure:"sweep_tokens"`
	MinTransferAmount int64         `mapstructure:"min_transfer_amount"`
	NativeFeeEstimate int64         `mapstructure:"native_fee_estimate"`
	TokenFeeEstimate  int64         `mapstructure:"token_fee_estimate"`
	AutoStart         bool          `mapstructure:"auto_start"`
}

// ConfirmConfig governs the confirmation checker.
type ConfirmConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	MinConfirmations int64         `mapstructure:"min_confirmations"`
	BroadcastTimeout time.Duration `mapstructure:"broadcast_timeout"`
}

// APIConfig sets up the engine control API.
type APIConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ListenAddr   string        `mapstructure:"listen_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRONSWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tronsweep")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("network.name", "mainnet")
	v.SetDefault("network.request_timeout", "10s")

	v.SetDefault("sweeper.check_interval", "30s")
	v.SetDefault("sweeper.startup_delay", "0s")
	v.SetDefault("sweeper.sweep_native", true)
	v.SetDefault("sweeper.sweep_tokens", false)
	v.SetDefault("sweeper.min_transfer_amount", int64(0))
	// Typical cost of a bare TRX transfer is around 0.5 TRX; a TRC20
	// transfer burns energy worth roughly 10 TRX.
	v.SetDefault("sweeper.native_fee_estimate", int64(500_000))
	v.SetDefault("sweeper.token_fee_estimate", int64(10_000_000))
	v.SetDefault("sweeper.auto_start", true)

	v.SetDefault("confirm.interval", "10s")
	v.SetDefault("confirm.min_confirmations", int64(19))
	v.SetDefault("confirm.broadcast_timeout", "5m")

	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "15s")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

var validNetworks = map[string]bool{"mainnet": true, "shasta": true, "nile": true}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if !validNetworks[c.Network.Name] {
		return fmt.Errorf("network.name must be one of mainnet, shasta, nile; got %q", c.Network.Name)
	}
	if c.Sweeper.CheckInterval < time.Second {
		return fmt.Errorf("sweeper.check_interval must be at least 1s")
	}
	if c.Sweeper.MinTransferAmount < 0 {
		return fmt.Errorf("sweeper.min_transfer_amount cannot be negative")
	}
	if c.Sweeper.NativeFeeEstimate < 0 || c.Sweeper.TokenFeeEstimate < 0 {
		return fmt.Errorf("fee estimates cannot be negative")
	}
	if c.Confirm.Interval < time.Second {
		return fmt.Errorf("confirm.interval must be at least 1s")
	}
	if c.Confirm.MinConfirmations <= 0 {
		return fmt.Errorf("confirm.min_confirmations must be greater than zero")
	}
	if c.Confirm.BroadcastTimeout <= 0 {
		return fmt.Errorf("confirm.broadcast_timeout must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
