package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func planarBuf(channels, frames int, fill func(ch, i int) float32) [][]float32 {
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
		for i := range out[ch] {
			out[ch][i] = fill(ch, i)
		}
	}
	return out
}

func TestDefaultRemixerSameChannelsCopies(t *testing.T) {
	t.Parallel()
	src := planarBuf(2, 4, func(ch, i int) float32 { return float32(ch*10 + i) })
	dst := planarBuf(2, 4, func(ch, i int) float32 { return -1 })

	DefaultRemixer{}.Remix(dst, src, 4)
	assert.Equal(t, src, dst)
}

func TestDefaultRemixerDownmixAverages(t *testing.T) {
	t.Parallel()
	src := [][]float32{{1, 1}, {-1, 3}}
	dst := [][]float32{make([]float32, 2)}

	DefaultRemixer{}.Remix(dst, src, 2)
	assert.Equal(t, float32(0), dst[0][0])
	assert.Equal(t, float32(2), dst[0][1])
}

func TestDefaultRemixerUpmixDuplicatesCyclically(t *testing.T) {
	t.Parallel()
	src := [][]float32{{0.5, -0.5}}
	dst := [][]float32{make([]float32, 2), make([]float32, 2), make([]float32, 2)}

	DefaultRemixer{}.Remix(dst, src, 2)
	for ch := range dst {
		assert.Equal(t, src[0], dst[ch])
	}
}
