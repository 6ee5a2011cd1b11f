package convnode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiograph/convnode/format"
	"github.com/audiograph/convnode/port"
)

func TestAdvertisedSampleFormatsExcludesUnkernelledFormats(t *testing.T) {
	t.Parallel()
	for _, sf := range []format.SampleFormat{format.SampleFormatU8, format.SampleFormatS16, format.SampleFormatF32} {
		assert.Contains(t, advertisedSampleFormats, sf)
	}
	for _, sf := range []format.SampleFormat{format.SampleFormatS24, format.SampleFormatS2432, format.SampleFormatS32} {
		assert.NotContains(t, advertisedSampleFormats, sf)
	}
}

func TestPortEnumParamsListEnumeratesKinds(t *testing.T) {
	t.Parallel()
	n := New(Options{})
	v, err := n.PortEnumParams(port.DirectionInput, ParamKindList, 0)
	require.NoError(t, err)
	assert.Equal(t, enumerableKinds[0], v)

	v, err = n.PortEnumParams(port.DirectionInput, ParamKindList, len(enumerableKinds))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPortEnumParamsEnumFormatFixedWhenOtherPortNegotiated(t *testing.T) {
	t.Parallel()
	n := New(Options{})
	f := &format.AudioFormat{SampleFormat: format.SampleFormatS16, Channels: 2, Rate: 48000}
	require.NoError(t, n.SetFormat(port.DirectionOutput, f))

	v, err := n.PortEnumParams(port.DirectionInput, ParamKindEnumFormat, 0)
	require.NoError(t, err)
	p := v.(EnumFormatParam)
	assert.True(t, p.Rate.Fixed)
	assert.Equal(t, 48000, p.Rate.Value)
	assert.True(t, p.Channels.Fixed)
	assert.Equal(t, 2, p.Channels.Value)
}

func TestPortEnumParamsFormatRequiresAcceptedFormat(t *testing.T) {
	t.Parallel()
	n := New(Options{})
	_, err := n.PortEnumParams(port.DirectionInput, ParamKindFormat, 0)
	assert.Error(t, err)
}

func TestPortEnumParamsBuffersRequiresAcceptedFormat(t *testing.T) {
	t.Parallel()
	n := New(Options{})
	_, err := n.PortEnumParams(port.DirectionInput, ParamKindBuffers, 0)
	assert.Error(t, err)
}

func TestPortEnumParamsUnknownKind(t *testing.T) {
	t.Parallel()
	n := New(Options{})
	_, err := n.PortEnumParams(port.DirectionInput, ParamKind(99), 0)
	require.Error(t, err)
	assert.Equal(t, ResultNotFound, CodeFor(err))
}

func TestPortSetParamDelegatesToSetFormat(t *testing.T) {
	t.Parallel()
	n := New(Options{})
	f := &format.AudioFormat{SampleFormat: format.SampleFormatS16, Channels: 1, Rate: 44100}
	require.NoError(t, n.PortSetParam(port.DirectionInput, ParamKindFormat, f))
	assert.True(t, n.port(port.DirectionInput).FormatAccepted())
}

func TestPortSetParamUnknownKind(t *testing.T) {
	t.Parallel()
	n := New(Options{})
	err := n.PortSetParam(port.DirectionInput, ParamKindMeta, nil)
	require.Error(t, err)
	assert.Equal(t, ResultNotFound, CodeFor(err))
}
