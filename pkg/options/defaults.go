package options

const (
	// DefaultWalSize is the default size in bytes of the WAL ring (§6): 256 MiB.
	DefaultWalSize uint64 = 256 * 1024 * 1024

	// MinWalSize is the smallest WAL ring size WithWalSize accepts.
	MinWalSize uint64 = 64 * 1024

	// MaxWalSize is the largest WAL ring size accepted; arbitrary but keeps
	// the ring inside a sane fraction of typical disk sizes.
	MaxWalSize uint64 = 64 * 1024 * 1024 * 1024

	// DefaultAutoCommitThresholdPercent is the default pending_bytes/wal_size
	// fraction (as a percent) that triggers an internal commit (§4.6).
	DefaultAutoCommitThresholdPercent = 25

	// DefaultCanonicalEncoding is the compression applied to Put payloads
	// when the caller doesn't request one explicitly.
	DefaultCanonicalEncoding = "plain"
)

// defaultOptions holds the baseline configuration for a new store.
var defaultOptions = Options{
	WalSize:                    DefaultWalSize,
	AutoCommitThresholdPercent: DefaultAutoCommitThresholdPercent,
	DefaultCompression:         DefaultCanonicalEncoding,
	Repair:                     true,
}

// NewDefaultOptions returns a copy of the baseline store configuration.
func NewDefaultOptions() Options {
	return defaultOptions
}
