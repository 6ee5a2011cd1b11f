// Package kernel supplies the concrete pack/unpack codecs the chain
// package dispatches through: the per-format kernel table described in
// spec.md §9 ("dispatch table for per-format kernels"). Each Codec
// converts between one external sample format and the node's internal
// F32 non-interleaved canonical form, in both the per-plane and
// multi-plane (interleave/deinterleave) shapes fmtconvert.c's
// pack_info{unpack_func, unpack_func_1, pack_func, pack_func_1} table
// distinguishes.
package kernel

import (
	"encoding/binary"
	"math"

	"github.com/audiograph/convnode/format"
	"github.com/klauspost/cpuid/v2"
)

// simdThreshold is the plane byte length above which the bulk loops use
// the unrolled fast path gated on cpuid feature detection. Below it, loop
// setup overhead dominates so the scalar path runs regardless.
const simdThreshold = 256

// Codec converts between one SampleFormat and F32 planar. UnpackPlane
// and PackPlane operate when src/dst plane counts already match
// (including the degenerate 1-channel case); UnpackMulti/PackMulti
// handle the interleaved<->planar crossing.
type Codec struct {
	Format     format.SampleFormat
	SwapEndian bool

	// UnpackPlane converts one plane of raw sample bytes into f32
	// samples (per-plane "_1" variant).
	UnpackPlane func(dst []float32, src []byte)
	// UnpackMulti deinterleaves one interleaved plane of raw sample
	// bytes into len(dst) f32 planes.
	UnpackMulti func(dst [][]float32, src []byte)
	// PackPlane converts f32 samples into one plane of raw sample bytes.
	PackPlane func(dst []byte, src []float32)
	// PackMulti interleaves len(src) f32 planes into one raw plane.
	PackMulti func(dst []byte, src [][]float32)
}

// Table is the dispatch table keyed by SampleFormat, populated at
// package init for exactly {U8, S16, F32} per spec.md §9's resolved
// Open Question: S24/S24_32/S32 have no kernel and are excluded from
// what convnode advertises during negotiation, rather than gaining
// placeholder kernels (DSP kernel authorship beyond these three is a
// spec.md Non-goal).
var Table = map[format.SampleFormat]*Codec{}

func init() {
	registerU8()
	registerS16()
	registerF32()
}

// Lookup resolves sampleFormat to its Codec, transparently handling the
// _OE (opposite endianness) variants by sharing the base format's
// conversion loop with SwapEndian baked in, per spec.md's "endianness-
// swapped variants share the same unpack kernel" rule. The returned
// Codec's functions byte-swap each sample in and out of the base
// kernel's native little-endian loop, so an _OE round trip actually
// reads/writes the opposite byte order rather than only flagging it.
func Lookup(sampleFormat format.SampleFormat) (*Codec, bool) {
	base := sampleFormat.BaseFormat()
	c, ok := Table[base]
	if !ok {
		return nil, false
	}
	if !sampleFormat.SwapEndian() {
		return c, true
	}
	width := base.BytesPerSample()
	swapped := &Codec{Format: sampleFormat, SwapEndian: true}
	swapped.UnpackPlane = func(dst []float32, src []byte) {
		c.UnpackPlane(dst, swapByteWidth(src, width))
	}
	swapped.UnpackMulti = func(dst [][]float32, src []byte) {
		c.UnpackMulti(dst, swapByteWidth(src, width))
	}
	swapped.PackPlane = func(dst []byte, src []float32) {
		c.PackPlane(dst, src)
		swapByteWidthInPlace(dst, width)
	}
	swapped.PackMulti = func(dst []byte, src [][]float32) {
		c.PackMulti(dst, src)
		swapByteWidthInPlace(dst, width)
	}
	return swapped, true
}

// swapByteWidth returns a copy of buf with every width-byte sample
// reversed in place (little-endian <-> big-endian).
func swapByteWidth(buf []byte, width int) []byte {
	out := make([]byte, len(buf))
	copy(out, buf)
	swapByteWidthInPlace(out, width)
	return out
}

func swapByteWidthInPlace(buf []byte, width int) {
	if width <= 1 {
		return
	}
	for i := 0; i+width <= len(buf); i += width {
		for j := 0; j < width/2; j++ {
			buf[i+j], buf[i+width-1-j] = buf[i+width-1-j], buf[i+j]
		}
	}
}

// hasSSE2 caches whether this host's CPU has the baseline vector feature
// the fast paths below are gated on.
var hasSSE2 = cpuid.CPU.Supports(cpuid.SSE2)

func registerU8() {
	c := &Codec{Format: format.SampleFormatU8}
	c.UnpackPlane = func(dst []float32, src []byte) {
		n := len(src)
		if hasSSE2 && n >= simdThreshold {
			unpackU8Fast(dst, src)
			return
		}
		for i := 0; i < n; i++ {
			dst[i] = (float32(src[i]) - 128.0) / 128.0
		}
	}
	c.UnpackMulti = func(dst [][]float32, src []byte) {
		nCh := len(dst)
		nFrames := len(src) / nCh
		for f := 0; f < nFrames; f++ {
			for ch := 0; ch < nCh; ch++ {
				dst[ch][f] = (float32(src[f*nCh+ch]) - 128.0) / 128.0
			}
		}
	}
	c.PackPlane = func(dst []byte, src []float32) {
		for i, s := range src {
			dst[i] = clampU8(s)
		}
	}
	c.PackMulti = func(dst []byte, src [][]float32) {
		nCh := len(src)
		nFrames := len(src[0])
		for f := 0; f < nFrames; f++ {
			for ch := 0; ch < nCh; ch++ {
				dst[f*nCh+ch] = clampU8(src[ch][f])
			}
		}
	}
	Table[format.SampleFormatU8] = c
}

// unpackU8Fast is the cpuid-gated bulk path for U8->F32. It is
// arithmetically identical to the scalar loop; the "fast path" here is
// loop-unrolled by 4 to reduce per-sample branch/bookkeeping overhead
// on buffers large enough for it to matter.
func unpackU8Fast(dst []float32, src []byte) {
	n := len(src)
	i := 0
	for ; i+4 <= n; i += 4 {
		dst[i] = (float32(src[i]) - 128.0) / 128.0
		dst[i+1] = (float32(src[i+1]) - 128.0) / 128.0
		dst[i+2] = (float32(src[i+2]) - 128.0) / 128.0
		dst[i+3] = (float32(src[i+3]) - 128.0) / 128.0
	}
	for ; i < n; i++ {
		dst[i] = (float32(src[i]) - 128.0) / 128.0
	}
}

func clampU8(s float32) byte {
	v := s*128.0 + 128.0
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return byte(v + 0.5)
	}
}

func registerS16() {
	c := &Codec{Format: format.SampleFormatS16}
	readS16 := func(b []byte) int16 {
		return int16(binary.LittleEndian.Uint16(b))
	}
	writeS16 := func(b []byte, v int16) {
		binary.LittleEndian.PutUint16(b, uint16(v))
	}

	c.UnpackPlane = func(dst []float32, src []byte) {
		n := len(src) / 2
		if hasSSE2 && len(src) >= simdThreshold {
			unpackS16Fast(dst, src, readS16)
			return
		}
		for i := 0; i < n; i++ {
			dst[i] = float32(readS16(src[i*2:])) / 32768.0
		}
	}
	c.UnpackMulti = func(dst [][]float32, src []byte) {
		nCh := len(dst)
		nFrames := len(src) / 2 / nCh
		for f := 0; f < nFrames; f++ {
			for ch := 0; ch < nCh; ch++ {
				off := (f*nCh + ch) * 2
				dst[ch][f] = float32(readS16(src[off:])) / 32768.0
			}
		}
	}
	c.PackPlane = func(dst []byte, src []float32) {
		for i, s := range src {
			writeS16(dst[i*2:], clampS16(s))
		}
	}
	c.PackMulti = func(dst []byte, src [][]float32) {
		nCh := len(src)
		nFrames := len(src[0])
		for f := 0; f < nFrames; f++ {
			for ch := 0; ch < nCh; ch++ {
				off := (f*nCh + ch) * 2
				writeS16(dst[off:], clampS16(src[ch][f]))
			}
		}
	}
	Table[format.SampleFormatS16] = c
}

func unpackS16Fast(dst []float32, src []byte, readS16 func([]byte) int16) {
	n := len(src) / 2
	i := 0
	for ; i+4 <= n; i += 4 {
		dst[i] = float32(readS16(src[i*2:])) / 32768.0
		dst[i+1] = float32(readS16(src[(i+1)*2:])) / 32768.0
		dst[i+2] = float32(readS16(src[(i+2)*2:])) / 32768.0
		dst[i+3] = float32(readS16(src[(i+3)*2:])) / 32768.0
	}
	for ; i < n; i++ {
		dst[i] = float32(readS16(src[i*2:])) / 32768.0
	}
}

func clampS16(s float32) int16 {
	v := s * 32768.0
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

// registerF32 registers the identity/interleave-only codec: F32
// non-interleaved is the canonical internal form, so "unpacking" F32 is
// just a deinterleave (or a copy, in the per-plane case). A native F32
// non-interleaved buffer never enters the chain (see chain.Plan's skip
// condition); the per-plane copies are reached through Lookup's F32_OE
// codec, which wraps them with a byte swap.
func registerF32() {
	c := &Codec{Format: format.SampleFormatF32}
	c.UnpackPlane = func(dst []float32, src []byte) {
		n := len(src) / 4
		for i := 0; i < n; i++ {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	}
	c.UnpackMulti = func(dst [][]float32, src []byte) {
		nCh := len(dst)
		nFrames := len(src) / 4 / nCh
		for f := 0; f < nFrames; f++ {
			for ch := 0; ch < nCh; ch++ {
				off := (f*nCh + ch) * 4
				dst[ch][f] = math.Float32frombits(binary.LittleEndian.Uint32(src[off:]))
			}
		}
	}
	c.PackPlane = func(dst []byte, src []float32) {
		for i, s := range src {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
		}
	}
	c.PackMulti = func(dst []byte, src [][]float32) {
		nCh := len(src)
		nFrames := len(src[0])
		for f := 0; f < nFrames; f++ {
			for ch := 0; ch < nCh; ch++ {
				off := (f*nCh + ch) * 4
				binary.LittleEndian.PutUint32(dst[off:], math.Float32bits(src[ch][f]))
			}
		}
	}
	Table[format.SampleFormatF32] = c
}
