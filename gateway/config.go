//
// Copyright (c) 2026 Markku Rossi
//
// All rights reserved.
//

package gateway

import (
	"fmt"
	"time"
)

// Default configuration values.
const (
	DefaultCapacity       = 1024
	DefaultReceiveTimeout = 30 * time.Second
	DefaultSendTimeout    = 30 * time.Second
	DefaultDrainTimeout   = 30 * time.Second
)

// Config defines the gateway configuration. The capacity is the
// number of unacknowledged messages a sender can have in flight on
// one stream. If any timeout is exceeded, the operation fails with a
// communication error.
type Config struct {
	Capacity       int
	ReceiveTimeout time.Duration
	SendTimeout    time.Duration
	DrainTimeout   time.Duration
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:       DefaultCapacity,
		ReceiveTimeout: DefaultReceiveTimeout,
		SendTimeout:    DefaultSendTimeout,
		DrainTimeout:   DefaultDrainTimeout,
	}
}

// Symmetric returns the default configuration with the capacity.
func Symmetric(capacity int) Config {
	config := DefaultConfig()
	config.Capacity = capacity
	return config
}

// Validate checks the configuration values.
func (config Config) Validate() error {
	if config.Capacity <= 0 {
		return fmt.Errorf("invalid gateway capacity %d", config.Capacity)
	}
	if config.ReceiveTimeout <= 0 {
		return fmt.Errorf("invalid receive timeout %s", config.ReceiveTimeout)
	}
	if config.SendTimeout <= 0 {
		return fmt.Errorf("invalid send timeout %s", config.SendTimeout)
	}
	if config.DrainTimeout <= 0 {
		return fmt.Errorf("invalid drain timeout %s", config.DrainTimeout)
	}
	return nil
}

// AckBatch returns the number of consumed messages acknowledged with
// one credit frame.
func (config Config) AckBatch() int {
	return max(1, config.Capacity/2)
}
