// Package chain plans and executes the unpack->remix->resample->pack
// processing chain described in spec.md §4.1: given the accepted
// formats of a node's two ports, Plan produces an ordered, acyclic
// sequence of Steps; Chain.Execute runs that sequence against one
// (src, dst) buffer pair per process tick.
package chain

import (
	"github.com/audiograph/convnode/format"
	"github.com/audiograph/convnode/internal/errors"
	"github.com/audiograph/convnode/kernel"
	"github.com/audiograph/convnode/port"
)

// StepKind discriminates the chain step record of spec.md §3.
type StepKind int

const (
	StepUnpack StepKind = iota
	StepDownmix
	StepResample
	StepUpmix
	StepPack
)

func (k StepKind) String() string {
	switch k {
	case StepUnpack:
		return "unpack"
	case StepDownmix:
		return "downmix"
	case StepResample:
		return "resample"
	case StepUpmix:
		return "upmix"
	case StepPack:
		return "pack"
	default:
		return "unknown"
	}
}

// Step is one stage of a planned Chain. Process reads from src (the
// preceding step's output, or the chain's true input for the first
// step) and writes to dst.
type Step interface {
	Kind() StepKind
	Process(src, dst *port.Buffer) error
}

// Chain is the planned, ordered sequence of Steps between two negotiated
// formats — a linear array per design note §9 (rejecting the original's
// linked-list-with-prev-pointer/recursive-descent model, see DESIGN.md).
type Chain struct {
	Steps []Step
	In    format.AudioFormat
	Out   format.AudioFormat
}

// Plan builds the deterministic chain for the (in, out) format pair,
// per spec.md §4.1's five ordered, conditionally-included steps. remixer
// and resampler are the pluggable DOWNMIX/UPMIX and RESAMPLE
// collaborators (spec.md §1 lists both as external); nil selects
// kernel.DefaultRemixer / kernel.DefaultResampler.
func Plan(in, out format.AudioFormat, remixer kernel.Remixer, resampler kernel.Resampler) (*Chain, error) {
	if remixer == nil {
		remixer = kernel.DefaultRemixer{}
	}
	if resampler == nil {
		resampler = kernel.DefaultResampler{}
	}

	c := &Chain{In: in, Out: out}
	channels := in.Channels

	needsUnpack := in.SampleFormat != format.SampleFormatF32 ||
		(in.Channels > 1 && in.Layout != format.LayoutNonInterleaved)
	if needsUnpack {
		codec, ok := kernel.Lookup(in.SampleFormat)
		if !ok {
			return nil, errors.Newf("no kernel for input sample format %s", in.SampleFormat).
				Component("chain").
				Category(errors.CategoryValidation).
				Context("sample_format", in.SampleFormat.String()).
				Build()
		}
		c.Steps = append(c.Steps, &unpackStep{codec: codec, channels: channels})
	}

	if channels > out.Channels {
		c.Steps = append(c.Steps, &downmixStep{remixer: remixer, inCh: channels, outCh: out.Channels})
		channels = out.Channels
	}

	if in.Rate != out.Rate {
		c.Steps = append(c.Steps, &resampleStep{resampler: resampler, channels: channels, inRate: in.Rate, outRate: out.Rate})
	}

	if channels < out.Channels {
		c.Steps = append(c.Steps, &upmixStep{remixer: remixer, inCh: channels, outCh: out.Channels})
		channels = out.Channels
	}

	needsPack := out.SampleFormat != format.SampleFormatF32 ||
		(out.Channels > 1 && out.Layout != format.LayoutNonInterleaved)
	if needsPack {
		codec, ok := kernel.Lookup(out.SampleFormat)
		if !ok {
			return nil, errors.Newf("no kernel for output sample format %s", out.SampleFormat).
				Component("chain").
				Category(errors.CategoryValidation).
				Context("sample_format", out.SampleFormat.String()).
				Build()
		}
		c.Steps = append(c.Steps, &packStep{codec: codec, channels: channels})
	}

	if len(c.Steps) == 0 {
		// spec.md §4.1: "if all five are skipped the chain is a single
		// pass-through PACK step that degenerates to a planar copy".
		c.Steps = append(c.Steps, &passthroughStep{})
	}

	return c, nil
}

// Execute runs the planned chain against one (src, dst) buffer pair,
// allocating scratch buffers between intermediate steps. Per spec.md
// §4.1: "set this.src = src_buffer; first_step.dst = dst_buffer" for a
// single-step chain; for multi-step chains every non-final step writes
// into its own scratch destination instead of the original's shared-dst
// aliasing trick (the original reuses the final output buffer as scratch
// for intermediate steps, which this module treats as an implementation
// quirk, not a semantic to preserve).
func (c *Chain) Execute(src, dst *port.Buffer) error {
	cur := src
	for i, step := range c.Steps {
		stepDst := dst
		if i != len(c.Steps)-1 {
			stepDst = scratchBuffer(c.channelsAfter(i), c.framesAfter(i, src))
		}
		if err := step.Process(cur, stepDst); err != nil {
			return err
		}
		cur = stepDst
	}
	return nil
}

// channelsAfter returns the channel count of the internal F32 planar
// representation after step index i has run.
func (c *Chain) channelsAfter(i int) int {
	channels := c.In.Channels
	for j := 0; j <= i; j++ {
		switch s := c.Steps[j].(type) {
		case *downmixStep:
			channels = s.outCh
		case *upmixStep:
			channels = s.outCh
		}
	}
	return channels
}

// framesAfter estimates the frame count of the internal representation
// after step index i has run, based on the source buffer's size and any
// resample step already applied.
func (c *Chain) framesAfter(i int, src *port.Buffer) int {
	frames := inputFrameCount(c.In, src)
	for j := 0; j <= i; j++ {
		if s, ok := c.Steps[j].(*resampleStep); ok {
			frames = s.resampler.OutFrames(frames, s.inRate, s.outRate)
		}
	}
	return frames
}

// scratchBuffer allocates a fresh F32 non-interleaved intermediate
// buffer with the given channel and frame counts.
func scratchBuffer(channels, frames int) *port.Buffer {
	planes := make([]port.Plane, channels)
	for ch := range planes {
		data := make([]byte, frames*4)
		planes[ch] = port.Plane{Kind: port.PlaneKindMemPtr, Data: data, Size: len(data)}
	}
	return &port.Buffer{Planes: planes}
}

// inputFrameCount derives the frame count of a raw (possibly
// interleaved) buffer from its accepted format.
func inputFrameCount(f format.AudioFormat, buf *port.Buffer) int {
	bps := f.SampleFormat.BytesPerSample()
	if bps == 0 || len(buf.Planes) == 0 {
		return 0
	}
	if len(buf.Planes) == f.Channels && f.Channels > 1 {
		return buf.Planes[0].Size / bps
	}
	if len(buf.Planes) == 1 {
		return buf.Planes[0].Size / (bps * f.Channels)
	}
	return buf.Planes[0].Size / bps
}
