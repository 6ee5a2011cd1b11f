package hostmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsZeroedBufferOfRequestedSize(t *testing.T) {
	t.Parallel()
	p := NewPool(DefaultPoolConfig)

	buf := p.Get(1024)
	require.Len(t, buf, 1024)
	for _, b := range buf {
		assert.Zero(t, b)
	}
}

func TestGetSelectsSmallestFittingTier(t *testing.T) {
	t.Parallel()
	p := NewPool(PoolConfig{SmallSize: 16, MediumSize: 256, LargeSize: 4096})

	assert.Equal(t, 16, cap(p.Get(10)))
	assert.Equal(t, 10, len(p.Get(10)))
}

func TestGetOverflowAllocatesExactSize(t *testing.T) {
	t.Parallel()
	p := NewPool(PoolConfig{SmallSize: 16, MediumSize: 32, LargeSize: 64})
	buf := p.Get(1000)
	assert.Len(t, buf, 1000)
}

func TestPutReturnsBufferForReuse(t *testing.T) {
	t.Parallel()
	p := NewPool(PoolConfig{SmallSize: 16, MediumSize: 32, LargeSize: 64})

	buf := p.Get(16)
	buf[0] = 0xff
	p.Put(buf)

	again := p.Get(16)
	// Pool doesn't guarantee the exact same backing array, but Get must
	// always hand back a zeroed slice regardless of what Put received.
	assert.Zero(t, again[0])
}
