package convnode

import (
	"github.com/audiograph/convnode/format"
	"github.com/audiograph/convnode/internal/errors"
	"github.com/audiograph/convnode/kernel"
	"github.com/audiograph/convnode/port"
)

// ParamKind enumerates the parameter kinds port_enum_params /
// port_set_param recognize (spec.md §4.1).
type ParamKind int

const (
	ParamKindList ParamKind = iota
	ParamKindEnumFormat
	ParamKindFormat
	ParamKindBuffers
	ParamKindMeta
	ParamKindIOBuffers
)

// enumerableKinds is the LIST response.
var enumerableKinds = []ParamKind{
	ParamKindEnumFormat, ParamKindFormat, ParamKindBuffers, ParamKindMeta, ParamKindIOBuffers,
}

// IntRange is a [Min, Max] range with a Default, or a single Fixed value
// when the opposite port has already pinned it (spec.md §4.1 EnumFormat).
type IntRange struct {
	Fixed   bool
	Value   int
	Default int
	Min     int
	Max     int
}

// EnumFormatParam is the EnumFormat response.
type EnumFormatParam struct {
	SampleFormats       []format.SampleFormat
	DefaultSampleFormat format.SampleFormat
	Layouts             []format.Layout
	DefaultLayout       format.Layout
	Rate                IntRange
	Channels            IntRange
}

// BuffersParam is the Buffers response.
type BuffersParam struct {
	Size    IntRange
	Stride  int
	Buffers IntRange
	Align   int
}

// MetaParam is the Meta response: this node only ever advertises a
// Header metadata block.
type MetaParam struct {
	Kind string
}

// IOBuffersParam is the IOBuffers response: a marker advertising the
// I/O slot layout described in spec.md §6.
type IOBuffersParam struct{}

// advertisedSampleFormats intersects the raw spec.md enum with the
// kernel dispatch table, per §9's resolved Open Question: kernel table
// entries only exist for {U8, S16, F32}, so S24/S24_32/S32 (and their
// _OE partners) are no longer advertised even though the raw enum lists
// them — negotiation must not be able to succeed for a format the chain
// can't plan.
var advertisedSampleFormats = func() []format.SampleFormat {
	all := []format.SampleFormat{
		format.SampleFormatU8,
		format.SampleFormatS16, format.SampleFormatS16OE,
		format.SampleFormatS24, format.SampleFormatS24OE,
		format.SampleFormatS2432, format.SampleFormatS2432OE,
		format.SampleFormatS32, format.SampleFormatS32OE,
		format.SampleFormatF32, format.SampleFormatF32OE,
	}
	var out []format.SampleFormat
	for _, sf := range all {
		if _, ok := kernel.Lookup(sf); ok {
			out = append(out, sf)
		}
	}
	return out
}()

// PortEnumParams implements spec.md §4.1 port_enum_params. Per
// fmtconvert.c's port_get_format/enum-params, the "no format yet"
// precondition for Format/Buffers is checked before the index
// end-of-sequence shortcut, not after — a NOT_INITIALIZED query at
// index > 0 must still report NOT_INITIALIZED, not silently end the
// sequence.
func (n *Node) PortEnumParams(dir port.Direction, kind ParamKind, index int) (any, error) {
	switch kind {
	case ParamKindList:
		if index > 0 && index >= len(enumerableKinds) {
			return nil, nil
		}
		return enumerableKinds[index], nil

	case ParamKindEnumFormat:
		if index > 0 {
			return nil, nil
		}
		p := EnumFormatParam{
			SampleFormats:       advertisedSampleFormats,
			DefaultSampleFormat: format.SampleFormatS16,
			Layouts:             []format.Layout{format.LayoutInterleaved, format.LayoutNonInterleaved},
			DefaultLayout:       format.LayoutInterleaved,
			Rate:                IntRange{Default: 44100, Min: 1, Max: 1<<31 - 1},
			Channels:            IntRange{Default: 2, Min: 1, Max: 1<<31 - 1},
		}
		if other := n.port(n.other(dir)); other.FormatAccepted() {
			f := other.Format()
			p.Rate = IntRange{Fixed: true, Value: f.Rate}
			p.Channels = IntRange{Fixed: true, Value: f.Channels}
		}
		return p, nil

	case ParamKindFormat:
		p := n.port(dir)
		if !p.FormatAccepted() {
			return nil, errors.New(nil).
				Component("convnode").
				Category(errors.CategoryState).
				Context("operation", "port_enum_params").
				Context("kind", "Format").
				Build()
		}
		if index > 0 {
			return nil, nil
		}
		f := p.Format()
		return f, nil

	case ParamKindBuffers:
		p := n.port(dir)
		if !p.FormatAccepted() {
			return nil, errors.New(nil).
				Component("convnode").
				Category(errors.CategoryState).
				Context("operation", "port_enum_params").
				Context("kind", "Buffers").
				Build()
		}
		if index > 0 {
			return nil, nil
		}
		bpf := p.Format().BytesPerFrame()
		return BuffersParam{
			Size:    IntRange{Default: 1024 * bpf, Min: 16 * bpf, Max: (1<<31 - 1) / maxInt(bpf, 1)},
			Stride:  0,
			Buffers: IntRange{Default: 1, Min: 1, Max: port.MaxBuffers},
			Align:   16,
		}, nil

	case ParamKindMeta:
		if index > 0 {
			return nil, nil
		}
		return MetaParam{Kind: "Header"}, nil

	case ParamKindIOBuffers:
		if index > 0 {
			return nil, nil
		}
		return IOBuffersParam{}, nil

	default:
		return nil, errors.Newf("unknown parameter kind %d", kind).
			Component("convnode").
			Category(errors.CategoryNotFound).
			Context("kind", int(kind)).
			Build()
	}
}

// PortSetParam implements spec.md §4.1 port_set_param: only Format is
// recognized, delegating to SetFormat; anything else is NOT_FOUND.
func (n *Node) PortSetParam(dir port.Direction, kind ParamKind, f *format.AudioFormat) error {
	if kind != ParamKindFormat {
		return errors.Newf("unknown parameter kind %d", kind).
			Component("convnode").
			Category(errors.CategoryNotFound).
			Context("kind", int(kind)).
			Build()
	}
	return n.SetFormat(dir, f)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
