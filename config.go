package pstreams

// Config enumerates every pool and region capacity a Stream is built
// with. Every field has a conservative, non-zero default (see
// DefaultConfig) except the size-class pool sizes, any of which may be
// set to 0 to disable that tier entirely.
type Config struct {
	MaxQueues     int
	MaxMsgBlocks  int
	MaxDataBlocks int

	FastBufSize int

	Pool16Size   int
	Pool64Size   int
	Pool256Size  int
	Pool512Size  int
	Pool1792Size int

	RegionVolatileBytes   int
	RegionPersistentBytes int

	UDPDevTraceLevel LTCode
}

// DefaultConfig returns a Config sized for modest, demo-scale use: a
// handful of modules, small-to-medium datagrams, and enough region
// headroom to carve every pool without the caller needing to compute
// byte footprints by hand.
func DefaultConfig() Config {
	return Config{
		MaxQueues:     32,
		MaxMsgBlocks:  256,
		MaxDataBlocks: 256,

		FastBufSize: 4,

		Pool16Size:   64,
		Pool64Size:   64,
		Pool256Size:  32,
		Pool512Size:  16,
		Pool1792Size: 8,

		RegionVolatileBytes:   1 << 20,
		RegionPersistentBytes: 1 << 16,

		UDPDevTraceLevel: LTWarning,
	}
}
