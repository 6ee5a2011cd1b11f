// Package hostmem gives a concrete body to spec.md §1's "memory
// allocation of buffer payloads" external collaborator: the node itself
// never allocates (port_alloc_buffers stays UNSUPPORTED), so something
// else has to produce the backing []byte a host registers via
// port.Port.UseBuffers. This is that something — a tiered sync.Pool
// allocator adapted from the teacher's bufferPoolImpl
// (internal/audiocore/buffer.go), generalized from byte-slice "audio
// buffers" with a refcount to plain pooled []byte payloads sized to a
// port's negotiated bytes-per-frame.
package hostmem

import (
	"log/slog"
	"sync"

	"github.com/audiograph/convnode/internal/logging"
)

// PoolConfig mirrors the teacher's BufferPoolConfig shape: three fixed
// tiers plus an unpooled overflow for anything larger.
type PoolConfig struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// DefaultPoolConfig matches typical port_use_buffers payload sizes: a
// few hundred frames up to a few seconds of audio at common rates.
var DefaultPoolConfig = PoolConfig{
	SmallSize:  4 << 10,
	MediumSize: 64 << 10,
	LargeSize:  1 << 20,
}

// Pool hands out pooled []byte payloads and returns them for reuse.
type Pool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
	config PoolConfig
	logger *slog.Logger
}

// NewPool constructs a Pool for the given tier sizes.
func NewPool(config PoolConfig) *Pool {
	logger := logging.ForService("hostmem")
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{config: config, logger: logger}
	p.small.New = func() any { return make([]byte, config.SmallSize) }
	p.medium.New = func() any { return make([]byte, config.MediumSize) }
	p.large.New = func() any { return make([]byte, config.LargeSize) }
	return p
}

// Get returns a []byte of at least size bytes, zeroed, drawn from the
// smallest tier that fits (or a one-off allocation for anything larger
// than the large tier, which Put will not pool).
func (p *Pool) Get(size int) []byte {
	var buf []byte
	switch {
	case size <= p.config.SmallSize:
		buf = p.small.Get().([]byte)
	case size <= p.config.MediumSize:
		buf = p.medium.Get().([]byte)
	case size <= p.config.LargeSize:
		buf = p.large.Get().([]byte)
	default:
		p.logger.Debug("allocating custom-sized host buffer", "size", size)
		return make([]byte, size)
	}
	clear(buf)
	return buf[:size]
}

// Put returns buf to the pool tier matching its capacity. Buffers
// larger than the large tier are dropped (not pooled), same policy as
// Get's overflow path.
func (p *Pool) Put(buf []byte) {
	switch cap(buf) {
	case p.config.SmallSize:
		p.small.Put(buf[:cap(buf)])
	case p.config.MediumSize:
		p.medium.Put(buf[:cap(buf)])
	case p.config.LargeSize:
		p.large.Put(buf[:cap(buf)])
	default:
		// Not one of our tiers; let the GC reclaim it.
	}
}
