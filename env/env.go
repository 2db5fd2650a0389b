//
// Copyright (c) 2025-2026 Markku Rossi
//
// All rights reserved.
//

// Package env implements global environment for the helper.
package env

import (
	"crypto/rand"
	"io"
	"log"
)

// Config defines the global system configuration for the helper. It
// configures system operation for all modules. Config must not be
// modified after being passed to any module. It is safe for
// concurrent use by multiple modules as they do not modify it.
type Config struct {
	Rand    io.Reader
	Verbose bool
	Logger  *log.Logger
}

// GetRandom returns the source of entropy for key agreement, input
// sharing, and other cryptography operations.
func (config *Config) GetRandom() io.Reader {
	if config != nil && config.Rand != nil {
		return config.Rand
	}
	return rand.Reader
}

// Logf logs a message to the configured logger, or to the standard
// logger if no logger is configured.
func (config *Config) Logf(format string, a ...interface{}) {
	if config != nil && config.Logger != nil {
		config.Logger.Printf(format, a...)
		return
	}
	log.Printf(format, a...)
}

// Debugf logs a debugging message if Verbose debugging is enabled.
func (config *Config) Debugf(format string, a ...interface{}) {
	if config == nil || !config.Verbose {
		return
	}
	config.Logf(format, a...)
}
