package chain

import (
	"encoding/binary"
	"math"

	"github.com/audiograph/convnode/kernel"
	"github.com/audiograph/convnode/port"
)

// decodeF32 reads an internal scratch buffer (always F32 non-interleaved
// byte planes) into plain float32 slices for a step's math to operate on.
func decodeF32(buf *port.Buffer) [][]float32 {
	out := make([][]float32, len(buf.Planes))
	for ch, p := range buf.Planes {
		n := p.Size / 4
		fs := make([]float32, n)
		for i := 0; i < n; i++ {
			fs[i] = math.Float32frombits(binary.LittleEndian.Uint32(p.Data[i*4:]))
		}
		out[ch] = fs
	}
	return out
}

// encodeF32 writes plain float32 slices back into an internal scratch
// buffer's F32 non-interleaved byte planes.
func encodeF32(buf *port.Buffer, frames [][]float32) {
	for ch, fs := range frames {
		p := &buf.Planes[ch]
		for i, s := range fs {
			binary.LittleEndian.PutUint32(p.Data[i*4:], math.Float32bits(s))
		}
		p.Size = len(fs) * 4
	}
}

// unpackStep converts the node's external input format into internal
// F32 non-interleaved planes, per fmtconvert.c's do_unpack: if the
// source already presents one plane per channel, it uses the codec's
// per-plane variant (format conversion only, no deinterleave); otherwise
// it treats the source as a single interleaved plane and deinterleaves.
type unpackStep struct {
	codec    *kernel.Codec
	channels int
}

func (s *unpackStep) Kind() StepKind { return StepUnpack }

func (s *unpackStep) Process(src, dst *port.Buffer) error {
	if len(src.Planes) == len(dst.Planes) {
		for ch := range dst.Planes {
			n := frameCountFromBytes(src.Planes[ch].Size, s.codec.Format)
			dstF := make([]float32, n)
			s.codec.UnpackPlane(dstF, src.Planes[ch].Data[:src.Planes[ch].Size])
			writePlaneF32(&dst.Planes[ch], dstF)
		}
		return nil
	}
	n := frameCountFromBytes(src.Planes[0].Size, s.codec.Format) / s.channels
	frames := make([][]float32, s.channels)
	for ch := range frames {
		frames[ch] = make([]float32, n)
	}
	s.codec.UnpackMulti(frames, src.Planes[0].Data[:src.Planes[0].Size])
	for ch := range frames {
		writePlaneF32(&dst.Planes[ch], frames[ch])
	}
	return nil
}

// packStep converts internal F32 non-interleaved planes into the node's
// external output format, mirroring do_pack's same per-plane vs
// multi-plane split.
type packStep struct {
	codec    *kernel.Codec
	channels int
}

func (s *packStep) Kind() StepKind { return StepPack }

func (s *packStep) Process(src, dst *port.Buffer) error {
	if len(src.Planes) == len(dst.Planes) {
		for ch := range dst.Planes {
			srcF := readPlaneF32(&src.Planes[ch])
			size := len(srcF) * s.codec.Format.BytesPerSample()
			s.codec.PackPlane(dst.Planes[ch].Data[:size], srcF)
			dst.Planes[ch].Size = size
		}
		return nil
	}
	frames := make([][]float32, len(src.Planes))
	for ch := range src.Planes {
		frames[ch] = readPlaneF32(&src.Planes[ch])
	}
	size := len(frames[0]) * s.channels * s.codec.Format.BytesPerSample()
	s.codec.PackMulti(dst.Planes[0].Data[:size], frames)
	dst.Planes[0].Size = size
	return nil
}

// downmixStep reduces channel count before resampling (spec.md §4.1
// step 2, runs before RESAMPLE).
type downmixStep struct {
	remixer  kernel.Remixer
	inCh     int
	outCh    int
}

func (s *downmixStep) Kind() StepKind { return StepDownmix }

func (s *downmixStep) Process(src, dst *port.Buffer) error {
	srcF := decodeF32(src)
	nFrames := len(srcF[0])
	dstF := make([][]float32, s.outCh)
	for ch := range dstF {
		dstF[ch] = make([]float32, nFrames)
	}
	s.remixer.Remix(dstF, srcF, nFrames)
	encodeF32(dst, dstF)
	return nil
}

// upmixStep increases channel count after resampling (spec.md §4.1
// step 4, runs after RESAMPLE).
type upmixStep struct {
	remixer kernel.Remixer
	inCh    int
	outCh   int
}

func (s *upmixStep) Kind() StepKind { return StepUpmix }

func (s *upmixStep) Process(src, dst *port.Buffer) error {
	srcF := decodeF32(src)
	nFrames := len(srcF[0])
	dstF := make([][]float32, s.outCh)
	for ch := range dstF {
		dstF[ch] = make([]float32, nFrames)
	}
	s.remixer.Remix(dstF, srcF, nFrames)
	encodeF32(dst, dstF)
	return nil
}

// resampleStep changes sample rate, channel count unaffected.
type resampleStep struct {
	resampler kernel.Resampler
	channels  int
	inRate    int
	outRate   int
}

func (s *resampleStep) Kind() StepKind { return StepResample }

func (s *resampleStep) Process(src, dst *port.Buffer) error {
	srcF := decodeF32(src)
	inFrames := len(srcF[0])
	outFrames := s.resampler.OutFrames(inFrames, s.inRate, s.outRate)
	dstF := make([][]float32, s.channels)
	for ch := range dstF {
		dstF[ch] = make([]float32, outFrames)
	}
	s.resampler.Resample(dstF, srcF, inFrames, s.inRate, s.outRate)
	encodeF32(dst, dstF)
	return nil
}

// passthroughStep is the degenerate single-step chain used when every
// spec.md §4.1 condition is false: a planar copy (spec.md: "the chain is
// a single pass-through PACK step that degenerates to a planar copy").
type passthroughStep struct{}

func (s *passthroughStep) Kind() StepKind { return StepPack }

func (s *passthroughStep) Process(src, dst *port.Buffer) error {
	for ch := range src.Planes {
		n := copy(dst.Planes[ch].Data, src.Planes[ch].Data[:src.Planes[ch].Size])
		dst.Planes[ch].Size = n
	}
	return nil
}

func frameCountFromBytes(byteLen int, sf interface{ BytesPerSample() int }) int {
	bps := sf.BytesPerSample()
	if bps == 0 {
		return 0
	}
	return byteLen / bps
}

func writePlaneF32(p *port.Plane, data []float32) {
	for i, s := range data {
		binary.LittleEndian.PutUint32(p.Data[i*4:], math.Float32bits(s))
	}
	p.Size = len(data) * 4
}

func readPlaneF32(p *port.Plane) []float32 {
	n := p.Size / 4
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p.Data[i*4:]))
	}
	return out
}
