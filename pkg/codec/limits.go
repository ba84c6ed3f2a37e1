package codec

// Wire-format limits enforced by every encoder/decoder in this package,
// per §4.1 and §6.
const (
	// MaxStringBytes is the largest length-prefixed string accepted: 16 MiB.
	MaxStringBytes = 16 * 1024 * 1024

	// MaxBlobBytes is the largest length-prefixed byte array accepted: 256 MiB.
	MaxBlobBytes = 256 * 1024 * 1024

	// MaxArrayCount is the largest element count an array prefix may declare.
	MaxArrayCount = 10_000_000
)
