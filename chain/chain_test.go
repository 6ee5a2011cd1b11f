package chain

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiograph/convnode/format"
	"github.com/audiograph/convnode/port"
)

func s16Format(channels, rate int) format.AudioFormat {
	return format.AudioFormat{
		SampleFormat: format.SampleFormatS16,
		Layout:       format.LayoutInterleaved,
		Channels:     channels,
		Rate:         rate,
	}
}

func f32NonInterleaved(channels, rate int) format.AudioFormat {
	return format.AudioFormat{
		SampleFormat: format.SampleFormatF32,
		Layout:       format.LayoutNonInterleaved,
		Channels:     channels,
		Rate:         rate,
	}
}

func encodeS16Interleaved(samples [][]int16) *port.Buffer {
	channels := len(samples)
	frames := len(samples[0])
	data := make([]byte, frames*channels*2)
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(data[(f*channels+ch)*2:], uint16(samples[ch][f]))
		}
	}
	return &port.Buffer{Planes: []port.Plane{{Data: data, Size: len(data)}}}
}

func decodeF32Planar(buf *port.Buffer) [][]float32 {
	out := make([][]float32, len(buf.Planes))
	for ch, p := range buf.Planes {
		n := p.Size / 4
		fs := make([]float32, n)
		for i := range fs {
			fs[i] = math.Float32frombits(binary.LittleEndian.Uint32(p.Data[i*4:]))
		}
		out[ch] = fs
	}
	return out
}

func scratchOut(channels, frames int) *port.Buffer {
	planes := make([]port.Plane, channels)
	for ch := range planes {
		planes[ch] = port.Plane{Data: make([]byte, frames*4)}
	}
	return &port.Buffer{Planes: planes}
}

func TestPlanNoOpWhenFormatsMatch(t *testing.T) {
	t.Parallel()
	f := f32NonInterleaved(2, 44100)
	c, err := Plan(f, f, nil, nil)
	require.NoError(t, err)
	require.Len(t, c.Steps, 1)
	assert.IsType(t, &passthroughStep{}, c.Steps[0])
}

func TestPlanOrdersUnpackDownmixResampleUpmixPack(t *testing.T) {
	t.Parallel()
	in := s16Format(4, 48000)
	out := s16Format(2, 44100)

	c, err := Plan(in, out, nil, nil)
	require.NoError(t, err)

	var kinds []StepKind
	for _, s := range c.Steps {
		kinds = append(kinds, s.Kind())
	}
	assert.Equal(t, []StepKind{StepUnpack, StepDownmix, StepResample, StepPack}, kinds)
}

func TestPlanUpmixRunsAfterResample(t *testing.T) {
	t.Parallel()
	in := s16Format(1, 22050)
	out := s16Format(2, 44100)

	c, err := Plan(in, out, nil, nil)
	require.NoError(t, err)

	var kinds []StepKind
	for _, s := range c.Steps {
		kinds = append(kinds, s.Kind())
	}
	assert.Equal(t, []StepKind{StepUnpack, StepResample, StepUpmix, StepPack}, kinds)
}

func TestPlanRejectsUnsupportedSampleFormat(t *testing.T) {
	t.Parallel()
	in := format.AudioFormat{SampleFormat: format.SampleFormatS24, Channels: 1, Rate: 44100}
	out := f32NonInterleaved(1, 44100)

	_, err := Plan(in, out, nil, nil)
	assert.Error(t, err)
}

func TestExecuteUnpackOnlyConvertsS16ToF32(t *testing.T) {
	t.Parallel()
	in := s16Format(1, 44100)
	out := f32NonInterleaved(1, 44100)

	c, err := Plan(in, out, nil, nil)
	require.NoError(t, err)
	require.Len(t, c.Steps, 1)
	require.Equal(t, StepUnpack, c.Steps[0].Kind())

	src := encodeS16Interleaved([][]int16{{0, 16384, -16384}})
	dst := scratchOut(1, 3)

	require.NoError(t, c.Execute(src, dst))
	got := decodeF32Planar(dst)
	assert.InDelta(t, 0, got[0][0], 0.001)
	assert.InDelta(t, 0.5, got[0][1], 0.001)
	assert.InDelta(t, -0.5, got[0][2], 0.001)
}

func TestExecuteFullChainUpmixesMonoToStereo(t *testing.T) {
	t.Parallel()
	in := s16Format(1, 8000)
	out := s16Format(2, 8000)

	c, err := Plan(in, out, nil, nil)
	require.NoError(t, err)

	src := encodeS16Interleaved([][]int16{{0, 16384}})
	dst := &port.Buffer{Planes: []port.Plane{{Data: make([]byte, 2*2*2)}}}

	require.NoError(t, c.Execute(src, dst))
	assert.Equal(t, 2*2*2, dst.Planes[0].Size)
}

func TestPassthroughStepCopiesPlanes(t *testing.T) {
	t.Parallel()
	src := &port.Buffer{Planes: []port.Plane{{Data: []byte{1, 2, 3, 4}, Size: 4}}}
	dst := &port.Buffer{Planes: []port.Plane{{Data: make([]byte, 4)}}}

	s := &passthroughStep{}
	require.NoError(t, s.Process(src, dst))
	assert.Equal(t, src.Planes[0].Data, dst.Planes[0].Data)
	assert.Equal(t, 4, dst.Planes[0].Size)
}
