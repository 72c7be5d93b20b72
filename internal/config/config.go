package config

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/spf13/viper"

	"github.com/mercantiswap/pool-engine/internal/engine"
)

// Config is the deployment configuration for the accounting engine and its
// dispatcher. The engine itself never reads files; the executor loads this
// once and passes the parsed values down.
type Config struct {
	Authority           string `mapstructure:"authority"`
	MercantiAuthority   string `mapstructure:"mercanti_authority"`
	DepositToleranceBps uint64 `mapstructure:"deposit_tolerance_bps"`
	BootstrapShares     uint64 `mapstructure:"bootstrap_shares"`
	LogFile             string `mapstructure:"log_file"`
	DebugLogging        bool   `mapstructure:"debug_logging"`
}

const (
	DefaultDepositToleranceBps = 100
	DefaultBootstrapShares     = 1_000_000
	DefaultLogFile             = "engine.log"
)

// LoadConfig reads the engine configuration from path, applying defaults
// and MERCANTI_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"deposit_tolerance_bps": DefaultDepositToleranceBps,
		"bootstrap_shares":      DefaultBootstrapShares,
		"log_file":              DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix("MERCANTI")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if _, err := parseKey(cfg.Authority); err != nil {
		return fmt.Errorf("invalid authority: %w", err)
	}
	if _, err := parseKey(cfg.MercantiAuthority); err != nil {
		return fmt.Errorf("invalid mercanti_authority: %w", err)
	}
	if cfg.DepositToleranceBps > 10_000 {
		return errors.New("deposit_tolerance_bps must not exceed 10000")
	}
	if cfg.BootstrapShares == 0 {
		return errors.New("bootstrap_shares must be positive")
	}
	return nil
}

// AuthorityKey returns the configured global authority.
func (c *Config) AuthorityKey() (solana.PublicKey, error) {
	return parseKey(c.Authority)
}

// MercantiKey returns the configured protocol-fee authority.
func (c *Config) MercantiKey() (solana.PublicKey, error) {
	return parseKey(c.MercantiAuthority)
}

// EngineParams maps the config onto engine tunables.
func (c *Config) EngineParams() engine.Params {
	return engine.Params{
		DepositToleranceBps: c.DepositToleranceBps,
		BootstrapShares:     c.BootstrapShares,
	}
}

func parseKey(s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, errors.New("missing key")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("not base58: %w", err)
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("expected %d bytes, got %d", solana.PublicKeyLength, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}
