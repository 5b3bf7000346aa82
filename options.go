// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcpeer

// BackpressurePolicy selects how the engine's read loop behaves when a
// request's inbox is full. The default configuration uses
// StrictOrdering with a generous default capacity.
type BackpressurePolicy uint8

const (
	// StrictOrdering blocks the read loop until inbox space is
	// available. Simple; may stall the whole peer on one slow consumer.
	StrictOrdering BackpressurePolicy = iota
	// DropOldestUpdates discards the oldest buffered update (never a
	// Response) to make room for a new dispatch, preserving liveness.
	DropOldestUpdates
)

// Config configures a peer engine. The zero value is invalid; use
// DefaultConfig or an Option to build one.
type Config struct {
	// MaxBodyLen caps accepted body size in bytes.
	MaxBodyLen int
	// InboxCapacity bounds the per-request inbox queue depth.
	InboxCapacity int
	// CommandQueueCapacity bounds the engine's command channel depth.
	CommandQueueCapacity int
	// Backpressure selects the full-inbox policy.
	Backpressure BackpressurePolicy
}

var defaultConfig = Config{
	MaxBodyLen:           4 << 20, // 4 MiB
	InboxCapacity:        32,
	CommandQueueCapacity: 32,
	Backpressure:         StrictOrdering,
}

// DefaultConfig returns a copy of the library's default peer configuration.
func DefaultConfig() Config { return defaultConfig }

// Option mutates a Config under construction.
type Option func(*Config)

// NewConfig builds a Config starting from DefaultConfig and applying opts in order.
func NewConfig(opts ...Option) Config {
	c := defaultConfig
	for _, fn := range opts {
		fn(&c)
	}
	return c
}

// WithMaxBodyLen caps accepted body size in bytes. A non-positive value
// disables the check (unbounded).
func WithMaxBodyLen(n int) Option {
	return func(c *Config) { c.MaxBodyLen = n }
}

// WithInboxCapacity sets the per-request inbox depth.
func WithInboxCapacity(n int) Option {
	return func(c *Config) { c.InboxCapacity = n }
}

// WithCommandQueueCapacity sets the engine's command channel depth.
func WithCommandQueueCapacity(n int) Option {
	return func(c *Config) { c.CommandQueueCapacity = n }
}

// WithBackpressure selects the full-inbox policy.
func WithBackpressure(p BackpressurePolicy) Option {
	return func(c *Config) { c.Backpressure = p }
}
