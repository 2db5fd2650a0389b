//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

// Package config implements the helper configuration. The
// configuration is read from a TOML file and any value can be
// overridden with IPA_ prefixed environment variables, for example
// IPA_GATEWAY_CAPACITY.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/markkurossi/ipa"
	"github.com/markkurossi/ipa/ff"
	"github.com/markkurossi/ipa/gateway"
	"github.com/markkurossi/ipa/query"
	"github.com/markkurossi/ipa/step"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the configuration environment
// variables.
const EnvPrefix = "IPA"

// Peer defines a helper's network address.
type Peer struct {
	Role string `mapstructure:"role"`
	Addr string `mapstructure:"addr"`
}

// Gateway defines the gateway configuration.
type Gateway struct {
	Capacity       int           `mapstructure:"capacity"`
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout"`
	SendTimeout    time.Duration `mapstructure:"send_timeout"`
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
}

// Query defines the query defaults.
type Query struct {
	Field      string `mapstructure:"field"`
	Steps      string `mapstructure:"steps"`
	ActiveWork int    `mapstructure:"active_work"`
}

// Config defines the helper configuration.
type Config struct {
	HTTP    string  `mapstructure:"http"`
	Verbose bool    `mapstructure:"verbose"`
	Peers   []Peer  `mapstructure:"peers"`
	Gateway Gateway `mapstructure:"gateway"`
	Query   Query   `mapstructure:"query"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")

	v.SetDefault("http", "")
	v.SetDefault("verbose", false)
	v.SetDefault("gateway.capacity", gateway.DefaultCapacity)
	v.SetDefault("gateway.receive_timeout", gateway.DefaultReceiveTimeout)
	v.SetDefault("gateway.send_timeout", gateway.DefaultSendTimeout)
	v.SetDefault("gateway.drain_timeout", gateway.DefaultDrainTimeout)
	v.SetDefault("query.field", ff.Fp32BitPrime.Name())
	v.SetDefault("query.steps", step.ModeDescriptive.String())
	v.SetDefault("query.active_work", query.DefaultActiveWork)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the configuration from the file.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return decode(v)
}

// Parse reads the TOML configuration from the reader.
func Parse(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	config := new(Config)
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if len(c.Peers) != ipa.NumHelpers {
		return fmt.Errorf("config: expected %d peers, got %d",
			ipa.NumHelpers, len(c.Peers))
	}
	seen := make(map[ipa.Role]bool)
	for _, p := range c.Peers {
		r, err := ipa.ParseRole(p.Role)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if seen[r] {
			return fmt.Errorf("config: duplicate peer %s", r)
		}
		seen[r] = true
		if len(p.Addr) == 0 {
			return fmt.Errorf("config: no address for peer %s", r)
		}
	}
	// The step graph comes with the circuit.
	qc, err := c.QueryConfig(step.Declare(query.DefaultRoot))
	if err != nil {
		return err
	}
	if err := qc.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// PeerAddr returns the network address of the helper.
func (c *Config) PeerAddr(r ipa.Role) (string, error) {
	for _, p := range c.Peers {
		pr, err := ipa.ParseRole(p.Role)
		if err == nil && pr == r {
			return p.Addr, nil
		}
	}
	return "", fmt.Errorf("config: no peer %s", r)
}

// GatewayConfig returns the gateway configuration.
func (c *Config) GatewayConfig() gateway.Config {
	return gateway.Config{
		Capacity:       c.Gateway.Capacity,
		ReceiveTimeout: c.Gateway.ReceiveTimeout,
		SendTimeout:    c.Gateway.SendTimeout,
		DrainTimeout:   c.Gateway.DrainTimeout,
	}
}

// QueryConfig returns the query configuration for circuits with
// the step graph. The graph is used only in the compact step mode.
func (c *Config) QueryConfig(graph *step.Node) (query.Config, error) {
	f, err := ff.ByName(c.Query.Field)
	if err != nil {
		return query.Config{}, fmt.Errorf("config: %w", err)
	}
	mode, err := step.ParseMode(c.Query.Steps)
	if err != nil {
		return query.Config{}, fmt.Errorf("config: %w", err)
	}
	return query.Config{
		Field:      f,
		Steps:      mode,
		Graph:      graph,
		ActiveWork: c.Query.ActiveWork,
		Gateway:    c.GatewayConfig(),
	}, nil
}
