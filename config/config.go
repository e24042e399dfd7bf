package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"autoseal-node/logger"
)

// Config holds all configuration for the node. Tags are used by viper to
// map config file keys and environment variables.
type Config struct {
	// Node configuration
	DataDir string `mapstructure:"datadir"`
	RPCAddr string `mapstructure:"rpcaddr"`
	RPCPort int    `mapstructure:"rpcport"`

	// Chain configuration
	ChainID         uint64 `mapstructure:"chainid"`
	GenesisFilePath string `mapstructure:"genesisfilepath"`
	ForceGenesis    bool   `mapstructure:"forcegenesis"`

	// Sealing configuration
	SealMode          string        `mapstructure:"sealmode"` // "instant" or "interval"
	SealInterval      time.Duration `mapstructure:"sealinterval"`
	Coinbase          string        `mapstructure:"coinbase"`
	GasLimitTarget    uint64        `mapstructure:"gaslimittarget"`
	MaxBlockTxs       int           `mapstructure:"maxblocktxs"`
	AllowEmptyInstant bool          `mapstructure:"allowemptyinstant"`

	// Transaction pool configuration
	PoolSize int `mapstructure:"poolsize"`

	// Database configuration
	Cache   int `mapstructure:"cache"`   // LevelDB cache (MB)
	Handles int `mapstructure:"handles"` // LevelDB open file handles

	// Logging configuration
	LogLevel  string `mapstructure:"log_level"`
	Verbosity int    `mapstructure:"verbosity"`

	// Health check and metrics configuration
	EnableHealth  bool `mapstructure:"enable_health"`
	HealthPort    int  `mapstructure:"health_port"`
	EnableMetrics bool `mapstructure:"enable_metrics"`
}

var defaultConfig = Config{
	DataDir:           "./data",
	RPCAddr:           "127.0.0.1",
	RPCPort:           8545,
	ChainID:           1337,
	GenesisFilePath:   "",
	ForceGenesis:      false,
	SealMode:          "instant",
	SealInterval:      time.Second,
	Coinbase:          "",
	GasLimitTarget:    30_000_000,
	MaxBlockTxs:       0,
	AllowEmptyInstant: false,
	PoolSize:          4096,
	Cache:             256,
	Handles:           512,
	LogLevel:          "info",
	Verbosity:         3,
	EnableHealth:      true,
	HealthPort:        9545,
	EnableMetrics:     true,
}

// DefaultConfig exposes the default values, e.g. for CLI flag defaults.
var DefaultConfig = defaultConfig

// LoadConfig resolves the effective configuration from defaults, the
// config file and environment variables bound through viper.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateAndCreateDirs(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	logger.Debugf("Effective config: datadir=%s rpc=%s:%d chainid=%d sealmode=%s interval=%s",
		cfg.DataDir, cfg.RPCAddr, cfg.RPCPort, cfg.ChainID, cfg.SealMode, cfg.SealInterval)
	return &cfg, nil
}

func validateAndCreateDirs(cfg *Config) error {
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir cannot be empty")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "chaindata"), 0755); err != nil {
		return fmt.Errorf("failed to create chaindata directory: %w", err)
	}

	switch strings.ToLower(cfg.SealMode) {
	case "instant", "interval":
	default:
		return fmt.Errorf("invalid sealmode %q, want \"instant\" or \"interval\"", cfg.SealMode)
	}
	if strings.ToLower(cfg.SealMode) == "interval" && cfg.SealInterval <= 0 {
		logger.Warningf("Seal interval %s is invalid, using default %s", cfg.SealInterval, DefaultConfig.SealInterval)
		cfg.SealInterval = DefaultConfig.SealInterval
	}

	if cfg.RPCPort <= 0 || cfg.RPCPort > 65535 {
		return fmt.Errorf("invalid RPC port %d", cfg.RPCPort)
	}
	if cfg.EnableHealth {
		if cfg.HealthPort <= 0 || cfg.HealthPort > 65535 {
			return fmt.Errorf("invalid health port %d", cfg.HealthPort)
		}
		if cfg.HealthPort == cfg.RPCPort {
			return fmt.Errorf("health port %d conflicts with RPC port", cfg.HealthPort)
		}
	}

	if cfg.GasLimitTarget == 0 {
		logger.Warningf("Gas limit target is 0, using default %d", DefaultConfig.GasLimitTarget)
		cfg.GasLimitTarget = DefaultConfig.GasLimitTarget
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultConfig.PoolSize
	}
	if cfg.Cache <= 0 {
		cfg.Cache = DefaultConfig.Cache
	}
	if cfg.Handles <= 0 {
		cfg.Handles = DefaultConfig.Handles
	}

	if cfg.GenesisFilePath != "" {
		if _, err := os.Stat(cfg.GenesisFilePath); os.IsNotExist(err) {
			logger.Warningf("Genesis file %s does not exist; a default genesis will be used on first start", cfg.GenesisFilePath)
		}
	}
	return nil
}

// ChainDataDir is where the LevelDB database lives.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, "chaindata")
}

func (c *Config) GetLogLevel() logger.LogLevel {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "trace":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warn", "warning":
		return logger.WARNING
	case "error":
		return logger.ERROR
	case "fatal":
		return logger.FATAL
	default:
		switch c.Verbosity {
		case 0, 1:
			return logger.ERROR
		case 2:
			return logger.WARNING
		case 4, 5:
			return logger.DEBUG
		default:
			return logger.INFO
		}
	}
}
