package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("加载默认配置失败: %v", err)
	}

	if cfg.Network.Name != "mainnet" {
		t.Fatalf("默认网络应为 mainnet, 实际 %s", cfg.Network.Name)
	}
	if cfg.Sweeper.CheckInterval != 30*time.Second {
		t.Fatalf("默认轮询间隔应为 30s, 实际 %s", cfg.Sweeper.CheckInterval)
	}
	if cfg.Confirm.MinConfirmations != 19 {
		t.Fatalf("默认确认深度应为 19, 实际 %d", cfg.Confirm.MinConfirmations)
	}
	if !cfg.Sweeper.SweepNative || cfg.Sweeper.SweepTokens {
		t.Fatal("默认应只清扫原生资产")
	}
	if cfg.API.ListenAddr != ":8080" {
		t.Fatalf("默认监听地址不正确: %s", cfg.API.ListenAddr)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
network:
  name: nile
  api_keys:
    - key-a
    - key-b
wallet:
  source_address: TSource
  destination_address: TDest
sweeper:
  check_interval: 5s
  min_transfer_amount: 1000000
confirm:
  broadcast_timeout: 2m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Network.Name != "nile" {
		t.Fatalf("网络应为 nile, 实际 %s", cfg.Network.Name)
	}
	if len(cfg.Network.APIKeys) != 2 {
		t.Fatalf("应解析出两个 API key, 实际 %d", len(cfg.Network.APIKeys))
	}
	if cfg.Sweeper.CheckInterval != 5*time.Second {
		t.Fatalf("轮询间隔应为 5s, 实际 %s", cfg.Sweeper.CheckInterval)
	}
	if cfg.Sweeper.MinTransferAmount != 1_000_000 {
		t.Fatalf("最小清扫额不正确: %d", cfg.Sweeper.MinTransferAmount)
	}
	if cfg.Confirm.BroadcastTimeout != 2*time.Minute {
		t.Fatalf("广播超时应为 2m, 实际 %s", cfg.Confirm.BroadcastTimeout)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("加载默认配置失败: %v", err)
		}
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown network", func(c *Config) { c.Network.Name = "ropsten" }},
		{"interval too small", func(c *Config) { c.Sweeper.CheckInterval = 100 * time.Millisecond }},
		{"negative min transfer", func(c *Config) { c.Sweeper.MinTransferAmount = -1 }},
		{"negative fee", func(c *Config) { c.Sweeper.NativeFeeEstimate = -1 }},
		{"zero confirmations", func(c *Config) { c.Confirm.MinConfirmations = 0 }},
		{"zero broadcast timeout", func(c *Config) { c.Confirm.BroadcastTimeout = 0 }},
	}

	for _, tc := range cases {
		cfg := base()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s 应校验失败", tc.name)
		}
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 500}}
	if cfg.ResolveMaxPoints(0) != 500 {
		t.Fatal("无覆盖时应使用配置默认值")
	}
	if cfg.ResolveMaxPoints(9) != 9 {
		t.Fatal("CLI 覆盖应优先")
	}
}
