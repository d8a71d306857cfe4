package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/84hero/evm-txclient/pkg/chain"
	"github.com/84hero/evm-txclient/pkg/rpc"
	"github.com/84hero/evm-txclient/pkg/transport"
)

// EnvPrefix prefixes environment overrides, e.g. EVMTX_CLIENT_BATCH_SIZE.
const EnvPrefix = "EVMTX"

const defaultBatchSize = 100

type Config struct {
	Project string       `mapstructure:"project" validate:"required"`
	Log     LogConfig    `mapstructure:"log"`
	Client  ClientConfig `mapstructure:"client"`
	RPC     []NodeConfig `mapstructure:"rpc_nodes" validate:"required,min=1,dive"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error crit"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json"`
}

type NodeConfig struct {
	URL           string  `mapstructure:"url" validate:"required"`
	Priority      int     `mapstructure:"priority" validate:"gte=0,lte=100"`
	RateLimit     float64 `mapstructure:"rate_limit" validate:"gte=0"`
	MaxConcurrent int     `mapstructure:"max_concurrent" validate:"gte=0"`
}

type ClientConfig struct {
	// Chain names a registered preset. ChainID wins when both are set.
	// Either one pins the network and skips net_version.
	Chain   string `mapstructure:"chain"`
	ChainID uint64 `mapstructure:"chain_id"`

	// Log collection
	BatchSize uint64 `mapstructure:"batch_size"`
	MaxDepth  int    `mapstructure:"max_depth" validate:"gte=0,lte=64"`
	Parallel  bool   `mapstructure:"parallel"`
	UseBloom  bool   `mapstructure:"use_bloom"`

	// SyncInterval is how often node heights are polled.
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Client.Chain != "" {
		if _, ok := chain.Get(c.Client.Chain); !ok {
			return fmt.Errorf("unknown chain preset %q", c.Client.Chain)
		}
	}
	preset, hasPreset := c.preset()
	if c.Client.BatchSize == 0 {
		c.Client.BatchSize = defaultBatchSize
		if hasPreset && preset.LogBatchSize > 0 {
			c.Client.BatchSize = preset.LogBatchSize
		}
	}
	// Fall back to the preset's public endpoint
	if len(c.RPC) == 0 && hasPreset && preset.Endpoint != "" {
		c.RPC = []NodeConfig{{URL: preset.Endpoint, Priority: 1}}
	}
	if c.Client.MaxDepth == 0 {
		c.Client.MaxDepth = rpc.DefaultMaxDepth
	}
	if c.Client.SyncInterval == 0 {
		c.Client.SyncInterval = transport.DefaultSyncInterval
	}
	return nil
}

func (c *Config) preset() (chain.Preset, bool) {
	n, ok := c.Client.Network()
	if !ok {
		return chain.Preset{}, false
	}
	return n.Preset()
}

// Network returns the pinned network, if any.
func (c ClientConfig) Network() (chain.Network, bool) {
	if c.ChainID > 0 {
		return chain.NewNetwork(c.ChainID), true
	}
	if p, ok := chain.Get(c.Chain); ok {
		return chain.NewNetwork(p.ChainID), true
	}
	return chain.Unknown, false
}

// NodeConfigs converts the rpc_nodes section for transport.NewPool.
func (c *Config) NodeConfigs() []transport.NodeConfig {
	out := make([]transport.NodeConfig, 0, len(c.RPC))
	for _, n := range c.RPC {
		out = append(out, transport.NodeConfig{
			URL:           n.URL,
			Priority:      n.Priority,
			RateLimit:     n.RateLimit,
			MaxConcurrent: n.MaxConcurrent,
		})
	}
	return out
}
