// Package convnode implements the audio format conversion node of
// spec.md §4.1: a graph node with one input and one output port that
// negotiates an AudioFormat between its peers and transforms buffers on
// demand through a planned chain.Chain.
package convnode

import (
	"log/slog"

	"github.com/audiograph/convnode/chain"
	"github.com/audiograph/convnode/format"
	"github.com/audiograph/convnode/internal/errors"
	"github.com/audiograph/convnode/internal/logging"
	"github.com/audiograph/convnode/internal/metrics"
	"github.com/audiograph/convnode/kernel"
	"github.com/audiograph/convnode/port"
)

// ResultCode mirrors spec.md §6's negative result codes, so scheduler
// code that only wants the int doesn't need to import internal/errors.
type ResultCode int32

const (
	ResultOK             ResultCode = 0
	ResultNeedBuffer     ResultCode = 1
	ResultHaveBuffer     ResultCode = 2
	ResultInvalid        ResultCode = -22
	ResultIOError        ResultCode = -5
	ResultNotFound       ResultCode = -2
	ResultUnsupported    ResultCode = -95
	ResultBrokenPipe     ResultCode = -32
	// ResultNotInitialized shares IO_ERROR's numeric value per spec.md
	// §6 ("NOT_INITIALIZED(-5-as-EIO)").
	ResultNotInitialized ResultCode = ResultIOError
)

// CodeFor derives the ResultCode a scheduler should see from an error's
// internal/errors category, per spec.md §7's taxonomy.
func CodeFor(err error) ResultCode {
	if err == nil {
		return ResultOK
	}
	switch {
	case errors.IsCategory(err, errors.CategoryValidation):
		return ResultInvalid
	case errors.IsCategory(err, errors.CategoryState):
		return ResultNotInitialized
	case errors.IsCategory(err, errors.CategoryUnsupported):
		return ResultUnsupported
	case errors.IsCategory(err, errors.CategoryFlow):
		return ResultBrokenPipe
	case errors.IsCategory(err, errors.CategoryNotFound):
		return ResultNotFound
	default:
		return ResultIOError
	}
}

// Command is the set of commands send_command recognizes.
type Command int

const (
	CommandStart Command = iota
	CommandPause
)

// Callbacks are the scheduler-supplied hooks a node can invoke.
// Process itself never calls back into the scheduler (spec.md §4.1:
// "Process must not block and must not call scheduler callbacks");
// these exist for the handful of asynchronous notifications a real
// graph host expects (none are required by the tests in this module,
// but the node always has a place to call them from).
type Callbacks struct {
	Done func(userData any, seq int)
}

// Options configures a new Node. All fields are optional.
type Options struct {
	Remixer    kernel.Remixer
	Resampler  kernel.Resampler
	Recorder   metrics.Recorder
	Logger     *slog.Logger
}

// Node is the audio format conversion node (spec.md §3 Node).
type Node struct {
	ports     [2]*port.Port
	started   bool
	chain     *chain.Chain
	callbacks Callbacks
	userData  any

	remixer   kernel.Remixer
	resampler kernel.Resampler
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// New constructs a Node with one input and one output port, neither
// with an accepted format yet.
func New(opts Options) *Node {
	logger := opts.Logger
	if logger == nil {
		logger = logging.ForService("convnode")
		if logger == nil {
			logger = slog.Default()
		}
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = metrics.NoOp{}
	}
	return &Node{
		ports: [2]*port.Port{
			port.DirectionInput:  port.New(port.DirectionInput),
			port.DirectionOutput: port.New(port.DirectionOutput),
		},
		remixer:   opts.Remixer,
		resampler: opts.Resampler,
		recorder:  recorder,
		logger:    logger,
	}
}

func (n *Node) port(dir port.Direction) *port.Port {
	return n.ports[dir]
}

func (n *Node) other(dir port.Direction) port.Direction {
	if dir == port.DirectionInput {
		return port.DirectionOutput
	}
	return port.DirectionInput
}

// GetNPorts implements spec.md §4.1 get_n_ports: always (1,1,1,1).
func (n *Node) GetNPorts() (nInput, maxInput, nOutput, maxOutput int) {
	return 1, 1, 1, 1
}

// SetCallbacks implements spec.md §4.1 set_callbacks.
func (n *Node) SetCallbacks(cb Callbacks, userData any) {
	n.callbacks = cb
	n.userData = userData
}

// SendCommand implements spec.md §4.1 send_command: Start/Pause toggle
// n.started; anything else fails UNSUPPORTED.
func (n *Node) SendCommand(cmd Command) error {
	switch cmd {
	case CommandStart:
		n.started = true
		n.recorder.RecordOperation("send_command_start")
		return nil
	case CommandPause:
		n.started = false
		n.recorder.RecordOperation("send_command_pause")
		return nil
	default:
		n.recorder.RecordError("send_command")
		return errors.Newf("unsupported command %d", cmd).
			Component("convnode").
			Category(errors.CategoryUnsupported).
			Context("command", int(cmd)).
			Build()
	}
}

// Started reports whether the node is in the Start state.
func (n *Node) Started() bool { return n.started }

// PortInfo is the capability record returned by PortGetInfo.
type PortInfo struct {
	CanUseBuffers bool
}

// PortGetInfo implements spec.md §4.1 port_get_info: the only advertised
// flag is CAN_USE_BUFFERS.
func (n *Node) PortGetInfo(dir port.Direction) PortInfo {
	return PortInfo{CanUseBuffers: true}
}

// SetFormat implements spec.md §4.1's set_format, the key protocol of
// this component. A nil format clears the port (cascading into
// ClearBuffers, spec.md P3) and invalidates the chain. A non-nil format
// is validated, recorded, and triggers a chain (re)plan once both ports
// have accepted formats.
func (n *Node) SetFormat(dir port.Direction, f *format.AudioFormat) error {
	p := n.port(dir)
	if f == nil {
		p.SetFormat(nil)
		n.chain = nil
		n.recorder.RecordOperation("set_format_clear")
		return nil
	}
	if !f.Valid() {
		n.recorder.RecordError("set_format")
		return errors.New(nil).
			Component("convnode").
			Category(errors.CategoryValidation).
			Context("operation", "set_format").
			Context("direction", dir.String()).
			Build()
	}

	p.SetFormat(f)
	n.chain = nil

	other := n.port(n.other(dir))
	if other.FormatAccepted() {
		var in, out format.AudioFormat
		if dir == port.DirectionInput {
			in, out = *f, other.Format()
		} else {
			in, out = other.Format(), *f
		}
		c, err := chain.Plan(in, out, n.remixer, n.resampler)
		if err != nil {
			n.recorder.RecordError("chain_plan")
			return err
		}
		n.chain = c
		n.recorder.RecordOperation("chain_plan")
	}
	return nil
}

// PortUseBuffers implements spec.md §4.1 port_use_buffers.
func (n *Node) PortUseBuffers(dir port.Direction, buffers []*port.Buffer) error {
	if err := n.port(dir).UseBuffers(buffers); err != nil {
		n.recorder.RecordError("port_use_buffers")
		return err
	}
	n.recorder.RecordOperation("port_use_buffers")
	return nil
}

// PortAllocBuffers implements spec.md §4.1 port_alloc_buffers: the node
// is a data transformer, it never allocates its own backing memory.
func (n *Node) PortAllocBuffers(dir port.Direction) error {
	return errors.New(nil).
		Component("convnode").
		Category(errors.CategoryUnsupported).
		Context("operation", "port_alloc_buffers").
		Build()
}

// PortSetIO implements spec.md §4.1 port_set_io: records the
// scheduler's shared I/O slot pointer for the given port.
func (n *Node) PortSetIO(dir port.Direction, slot *port.IOSlot) {
	n.port(dir).SetIO(slot)
}

// PortReuseBuffer implements spec.md §4.1 port_reuse_buffer: recycles
// an output buffer, idempotent if already free (P2).
func (n *Node) PortReuseBuffer(id port.BufferID) {
	n.port(port.DirectionOutput).Reuse(id)
	n.recorder.RecordOperation("port_reuse_buffer")
}

// Process implements spec.md §4.1 process, the one-tick algorithm.
// Process never blocks and never calls scheduler callbacks.
func (n *Node) Process() error {
	in := n.port(port.DirectionInput)
	out := n.port(port.DirectionOutput)
	inSlot, outSlot := in.IO(), out.IO()

	if inSlot == nil || outSlot == nil {
		n.recorder.RecordError("process_no_io")
		return errors.New(nil).
			Component("convnode").
			Category(errors.CategoryState).
			Context("operation", "process").
			Build()
	}

	if outSlot.Status == port.IOStatusHaveBuffer {
		return nil
	}
	if inSlot.Status != port.IOStatusHaveBuffer {
		outSlot.Status = port.IOStatusNeedBuffer
		return nil
	}

	if outSlot.BufferID != port.InvalidBufferID && out.Lookup(outSlot.BufferID) != nil {
		out.Reuse(outSlot.BufferID)
		outSlot.BufferID = port.InvalidBufferID
	}

	srcBuf := in.Lookup(inSlot.BufferID)
	if srcBuf == nil {
		inSlot.Status = port.IOStatus(ResultInvalid)
		n.recorder.RecordError("process_invalid_buffer_id")
		return nil
	}

	dstID, ok := out.DequeueFree()
	if !ok {
		outSlot.Status = port.IOStatus(ResultBrokenPipe)
		n.recorder.RecordOperation("process_broken_pipe")
		return nil
	}
	dstBuf := out.Lookup(dstID)

	if n.chain == nil {
		out.Reuse(dstID)
		n.recorder.RecordError("process_no_chain")
		return errors.New(nil).
			Component("convnode").
			Category(errors.CategoryState).
			Context("operation", "process").
			Build()
	}

	if err := n.chain.Execute(srcBuf, dstBuf); err != nil {
		out.Reuse(dstID)
		n.recorder.RecordError("process_chain_execute")
		return err
	}

	outSlot.Status = port.IOStatusHaveBuffer
	outSlot.BufferID = dstID
	n.recorder.RecordOperation("process_ok")
	return nil
}
