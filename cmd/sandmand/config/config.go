// Package config loads the sandmand daemon configuration and its genesis.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/defistate/sandman-swap/dex"
	"github.com/defistate/sandman-swap/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"
)

const DefaultListenAddr = "127.0.0.1:8545"

const DefaultStreamBufferSize uint = 64

// Amount is a token amount written as a decimal string.
type Amount struct {
	uint256.Int
}

// NewAmount returns an Amount holding v.
func NewAmount(v *uint256.Int) Amount {
	var a Amount
	a.Set(v)
	return a
}

func (a *Amount) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: amount must be a scalar", value.Line)
	}
	if err := a.SetFromDecimal(value.Value); err != nil {
		return fmt.Errorf("line %d: invalid amount %q: %w", value.Line, value.Value, err)
	}
	return nil
}

// Value returns the amount as a *uint256.Int.
func (a *Amount) Value() *uint256.Int { return &a.Int }

type Config struct {
	ListenAddr       string         `yaml:"listen_addr"`
	MetricsAddr      string         `yaml:"metrics_addr"`
	WSOrigins        []string       `yaml:"ws_origins"`
	Faucet           bool           `yaml:"faucet"`
	StreamBufferSize uint           `yaml:"stream_buffer_size"`
	FactoryAddress   common.Address `yaml:"factory_address"`
	LogLevel         string         `yaml:"log_level"`
	Genesis          Genesis        `yaml:"genesis"`
}

// Genesis is applied to an empty system before the daemon starts serving.
type Genesis struct {
	Balances []Balance `yaml:"balances"`
	Tokens   []Token   `yaml:"tokens"`
}

type Balance struct {
	Account common.Address `yaml:"account"`
	Amount  Amount         `yaml:"amount"`
}

// Token is deployed by Deployer, which receives the whole supply. When Exchange
// is set an exchange is created and seeded from the deployer's balances.
type Token struct {
	Deployer common.Address `yaml:"deployer"`
	Name     string         `yaml:"name"`
	Symbol   string         `yaml:"symbol"`
	Decimals uint8          `yaml:"decimals"`
	Supply   Amount         `yaml:"supply"`
	Exchange *Seed          `yaml:"exchange"`
}

// Seed is the first deposit into a genesis exchange.
type Seed struct {
	Base  Amount `yaml:"base"`
	Asset Amount `yaml:"asset"`
}

// LoadConfig reads a configuration file from the given path, applies defaults and
// validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.StreamBufferSize == 0 {
		c.StreamBufferSize = DefaultStreamBufferSize
	}
	if c.FactoryAddress == (common.Address{}) {
		c.FactoryAddress = dex.DefaultFactoryAddress
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.MetricsAddr != "" && c.MetricsAddr == c.ListenAddr {
		return errors.New("config: metrics_addr must differ from listen_addr")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	for i, b := range c.Genesis.Balances {
		if b.Account == (common.Address{}) {
			return fmt.Errorf("config: genesis balance %d has no account", i)
		}
	}
	for i, t := range c.Genesis.Tokens {
		if t.Symbol == "" {
			return fmt.Errorf("config: genesis token %d has no symbol", i)
		}
		if t.Deployer == (common.Address{}) {
			return fmt.Errorf("config: genesis token %s has no deployer", t.Symbol)
		}
		if t.Exchange == nil {
			continue
		}
		if t.Exchange.Base.IsZero() || t.Exchange.Asset.IsZero() {
			return fmt.Errorf("config: genesis exchange for %s needs positive base and asset", t.Symbol)
		}
		if t.Exchange.Asset.Gt(&t.Supply.Int) {
			return fmt.Errorf("config: genesis exchange for %s seeds more than the supply", t.Symbol)
		}
	}
	return nil
}

// Deployment records where a genesis token landed.
type Deployment struct {
	Symbol   string
	Asset    common.Address
	Exchange common.Address
}

// Apply funds the genesis balances, then deploys and lists the genesis tokens in
// order. The first failure aborts; operations already applied stay committed.
func (g *Genesis) Apply(s *dex.System) ([]Deployment, error) {
	for _, b := range g.Balances {
		if b.Amount.IsZero() {
			continue
		}
		if err := s.Fund(b.Account, b.Amount.Value()); err != nil {
			return nil, fmt.Errorf("fund %s: %w", b.Account, err)
		}
	}

	deployments := make([]Deployment, 0, len(g.Tokens))
	for _, t := range g.Tokens {
		meta := ledger.Metadata{Name: t.Name, Symbol: t.Symbol, Decimals: t.Decimals}
		asset, err := s.DeployToken(t.Deployer, meta, t.Supply.Value())
		if err != nil {
			return deployments, fmt.Errorf("deploy %s: %w", t.Symbol, err)
		}
		d := Deployment{Symbol: t.Symbol, Asset: asset}

		if t.Exchange != nil {
			if d.Exchange, err = s.CreateExchange(asset); err != nil {
				return deployments, fmt.Errorf("create exchange for %s: %w", t.Symbol, err)
			}
			if err := s.Approve(asset, t.Deployer, d.Exchange, t.Exchange.Asset.Value()); err != nil {
				return deployments, fmt.Errorf("approve %s: %w", t.Symbol, err)
			}
			if _, err := s.AddLiquidity(t.Deployer, asset, t.Exchange.Base.Value(), t.Exchange.Asset.Value()); err != nil {
				return deployments, fmt.Errorf("seed %s: %w", t.Symbol, err)
			}
		}
		deployments = append(deployments, d)
	}
	return deployments, nil
}
