// Package port implements the buffer, port, and I/O-slot primitives of
// spec.md §3: a Port owns a bounded registry of Buffers and a FIFO of
// free ones, and exchanges buffer handoffs with a scheduler exclusively
// through an IOSlot.
package port

import (
	"github.com/audiograph/convnode/format"
	"github.com/audiograph/convnode/internal/errors"
)

// MaxBuffers is the hard ceiling on registered buffers per port
// (spec.md §3 invariant "n_buffers_per_port <= 32").
const MaxBuffers = 32

// Direction is IN or OUT for a port.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
)

func (d Direction) String() string {
	if d == DirectionInput {
		return "in"
	}
	return "out"
}

// PlaneKind enumerates the buffer-plane data kinds a node accepts
// (spec.md §6). The node only ever dereferences .Data; MemFd and DmaBuf
// are recorded for completeness, their underlying fd/handle mapping is
// the host's responsibility before registering the buffer here.
type PlaneKind int

const (
	PlaneKindMemPtr PlaneKind = iota
	PlaneKindMemFd
	PlaneKindDmaBuf
)

// Plane is one data plane of a Buffer.
type Plane struct {
	Kind PlaneKind
	Data []byte
	Size int
}

// BufferID identifies a registered buffer within a port's registry.
type BufferID uint32

// InvalidBufferID is the sentinel for "no buffer".
const InvalidBufferID BufferID = 0xffffffff

// BufferFlags is a bitfield on Buffer.
type BufferFlags uint32

// FlagOutWithConsumer marks a buffer as currently owned by a consumer
// (scheduler for output buffers, producer for input buffers) rather than
// sitting on the port's free queue.
const FlagOutWithConsumer BufferFlags = 1 << 0

// Header is the optional metadata block a buffer may carry.
type Header struct {
	PTS      int64
	DTS      int64
	SeqNum   uint64
}

// Buffer is one registered buffer (spec.md §3 Buffer).
type Buffer struct {
	ID     BufferID
	Planes []Plane
	Header *Header
	Flags  BufferFlags
}

// IOStatus is the status word of an I/O slot (spec.md §6 ABI).
type IOStatus int32

const (
	IOStatusOK          IOStatus = 0
	IOStatusNeedBuffer   IOStatus = 1
	IOStatusHaveBuffer   IOStatus = 2
	// Negative values are error statuses; see convnode.ResultCode.
)

// IOSlot mirrors the shared-memory ABI structurally (status, buffer_id)
// but is a plain Go struct shared by reference — this module has no cgo
// layout requirement; a host embedding this in a real shared-memory ABI
// owns the marshaling into that ABI's binary layout.
type IOSlot struct {
	Status   IOStatus
	BufferID BufferID
}

// Port is one directional attachment point on a node (spec.md §3 Port).
type Port struct {
	Direction Direction

	formatAccepted bool
	format         format.AudioFormat

	io *IOSlot

	buffers  [MaxBuffers]*Buffer
	nBuffers int
	free     []BufferID
}

// New constructs an empty port with no accepted format and no buffers.
func New(dir Direction) *Port {
	return &Port{Direction: dir}
}

// FormatAccepted reports whether SetFormat(non-nil format) last succeeded.
func (p *Port) FormatAccepted() bool { return p.formatAccepted }

// Format returns the currently accepted format; only meaningful when
// FormatAccepted is true.
func (p *Port) Format() format.AudioFormat { return p.format }

// BytesPerFrame returns the accepted format's frame size, or 0 if none.
func (p *Port) BytesPerFrame() int {
	if !p.formatAccepted {
		return 0
	}
	return p.format.BytesPerFrame()
}

// SetFormat implements the Port half of spec.md §4.1's set_format: nil
// clears the format and all registered buffers; non-nil records it
// (validity of the parsed format itself is convnode's job, since only it
// knows the kernel table and opposite-port constraints).
func (p *Port) SetFormat(f *format.AudioFormat) {
	if f == nil {
		p.formatAccepted = false
		p.format = format.AudioFormat{}
		p.ClearBuffers()
		return
	}
	p.format = *f
	p.formatAccepted = true
}

// SetIO records the scheduler's shared I/O slot pointer for this port.
func (p *Port) SetIO(slot *IOSlot) { p.io = slot }

// IO returns the port's bound I/O slot, or nil if none is bound.
func (p *Port) IO() *IOSlot { return p.io }

// UseBuffers registers up to MaxBuffers buffers on the port, per spec.md
// §4.1 port_use_buffers. Output-direction buffers begin on the free
// queue; input-direction buffers begin marked OUT (the producer retains
// ownership until the scheduler presents them). Fails NOT_INITIALIZED
// if no format has been accepted yet.
func (p *Port) UseBuffers(buffers []*Buffer) error {
	if !p.formatAccepted {
		return errors.New(nil).
			Component("port").
			Category(errors.CategoryState).
			Context("operation", "port_use_buffers").
			Build()
	}
	if len(buffers) > MaxBuffers {
		return errors.Newf("too many buffers: %d > %d", len(buffers), MaxBuffers).
			Component("port").
			Category(errors.CategoryValidation).
			Build()
	}
	for _, b := range buffers {
		if len(b.Planes) == 0 || b.Planes[0].Data == nil {
			return errors.New(nil).
				Component("port").
				Category(errors.CategoryValidation).
				Context("operation", "port_use_buffers").
				Context("buffer_id", b.ID).
				Build()
		}
	}

	p.ClearBuffers()
	for i, b := range buffers {
		b.ID = BufferID(i)
		if p.Direction == DirectionInput {
			b.Flags |= FlagOutWithConsumer
		} else {
			b.Flags &^= FlagOutWithConsumer
			p.free = append(p.free, b.ID)
		}
		p.buffers[i] = b
	}
	p.nBuffers = len(buffers)
	return nil
}

// ClearBuffers empties the registry and free queue (spec.md §3 invariant
// P3: format clear cascades into this).
func (p *Port) ClearBuffers() {
	for i := range p.buffers {
		p.buffers[i] = nil
	}
	p.nBuffers = 0
	p.free = p.free[:0]
}

// NumBuffers returns how many buffers are currently registered.
func (p *Port) NumBuffers() int { return p.nBuffers }

// Lookup returns the registered buffer for id, or nil if out of range.
func (p *Port) Lookup(id BufferID) *Buffer {
	if int(id) < 0 || int(id) >= p.nBuffers {
		return nil
	}
	return p.buffers[id]
}

// DequeueFree pops a free buffer id (marking it OUT), or false if none
// is free.
func (p *Port) DequeueFree() (BufferID, bool) {
	if len(p.free) == 0 {
		return InvalidBufferID, false
	}
	id := p.free[0]
	p.free = p.free[1:]
	if b := p.Lookup(id); b != nil {
		b.Flags |= FlagOutWithConsumer
	}
	return id, true
}

// Reuse recycles a buffer: clears OUT_WITH_CONSUMER and re-enqueues it.
// Idempotent if the buffer is already free (spec.md P2).
func (p *Port) Reuse(id BufferID) {
	b := p.Lookup(id)
	if b == nil {
		return
	}
	if b.Flags&FlagOutWithConsumer == 0 {
		return
	}
	b.Flags &^= FlagOutWithConsumer
	p.free = append(p.free, id)
}

// FreeCount returns how many buffers currently sit on the free queue.
func (p *Port) FreeCount() int { return len(p.free) }
