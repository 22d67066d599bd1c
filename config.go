// SPDX-License-Identifier: GPL-3.0-or-later

package opstack

import (
	"net"
	"time"
)

// Config holds common configuration for stacks, middleware and transports.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*ConnectHandler].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Resolver maps host names to addresses for [*DirectHandler].
	//
	// Set by [NewConfig] to [*SystemResolver].
	Resolver Resolver

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:        &net.Dialer{},
		ErrClassifier: DefaultErrClassifier,
		Resolver:      &SystemResolver{Resolver: net.DefaultResolver},
		TimeNow:       time.Now,
	}
}
