// Package options provides functional-options configuration for a store
// handle: WAL ring sizing, auto-commit pressure threshold, default payload
// compression, and open-time behavior (repair, read-only).
package options

import (
	"strings"

	"github.com/google/uuid"
)

// Options holds the full configuration for a store handle.
type Options struct {
	// WalSize is the size in bytes of the WAL ring (§6), fixed at create
	// time and unchanged for the life of the file.
	WalSize uint64 `json:"walSize"`

	// AutoCommitThresholdPercent is the pending_bytes/wal_size percentage
	// that triggers an internal commit before the caller's next explicit
	// Commit (§4.6). 0 disables pressure-triggered auto-commit.
	AutoCommitThresholdPercent int `json:"autoCommitThresholdPercent"`

	// DefaultCompression names the canonical encoding ("plain", "lz4",
	// "deflate", "lzfse") applied to Put payloads when the caller doesn't
	// request one explicitly.
	DefaultCompression string `json:"defaultCompression"`

	// Repair, when true, causes Open to truncate trailing garbage bytes
	// beyond the last recoverable footer (and beyond any pending WAL
	// payload) once recovery completes (§4.7).
	Repair bool `json:"repair"`

	// ReadOnly opens the store with a shared advisory lock instead of an
	// exclusive one, and rejects all mutation calls.
	ReadOnly bool `json:"readOnly"`

	// InstanceID is an optional caller-supplied identifier surfaced
	// through Stats() for operators running a fleet of stores; it is
	// never persisted in the on-disk format.
	InstanceID string `json:"instanceId"`
}

// OptionFunc mutates an Options value during construction.
type OptionFunc func(*Options)

// WithDefaultOptions resets WalSize, AutoCommitThresholdPercent,
// DefaultCompression, and Repair to their baseline values.
func WithDefaultOptions() OptionFunc {
	return func(o *Options) {
		opts := NewDefaultOptions()
		o.WalSize = opts.WalSize
		o.AutoCommitThresholdPercent = opts.AutoCommitThresholdPercent
		o.DefaultCompression = opts.DefaultCompression
		o.Repair = opts.Repair
	}
}

// WithWalSize sets the WAL ring size; values outside [MinWalSize,
// MaxWalSize] are ignored.
func WithWalSize(size uint64) OptionFunc {
	return func(o *Options) {
		if size >= MinWalSize && size <= MaxWalSize {
			o.WalSize = size
		}
	}
}

// WithAutoCommitThresholdPercent sets the pending-bytes pressure threshold.
// A value of 0 disables pressure-triggered auto-commit; values outside
// [0, 100] are ignored.
func WithAutoCommitThresholdPercent(percent int) OptionFunc {
	return func(o *Options) {
		if percent >= 0 && percent <= 100 {
			o.AutoCommitThresholdPercent = percent
		}
	}
}

// WithDefaultCompression sets the canonical encoding applied to Put calls
// that don't specify one.
func WithDefaultCompression(encoding string) OptionFunc {
	return func(o *Options) {
		encoding = strings.TrimSpace(encoding)
		if encoding != "" {
			o.DefaultCompression = encoding
		}
	}
}

// WithRepair toggles trailing-garbage truncation on open.
func WithRepair(repair bool) OptionFunc {
	return func(o *Options) {
		o.Repair = repair
	}
}

// WithReadOnly opens the store with a shared lock and rejects mutations.
func WithReadOnly(readOnly bool) OptionFunc {
	return func(o *Options) {
		o.ReadOnly = readOnly
	}
}

// WithInstanceID sets a caller-visible store identifier. If unset, New
// generates a random one.
func WithInstanceID(id string) OptionFunc {
	return func(o *Options) {
		id = strings.TrimSpace(id)
		if id != "" {
			o.InstanceID = id
		}
	}
}

// New builds an Options value from the baseline defaults plus the given
// functional options, generating an InstanceID if none was supplied.
func New(opts ...OptionFunc) Options {
	o := NewDefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.InstanceID == "" {
		o.InstanceID = uuid.NewString()
	}
	return o
}
