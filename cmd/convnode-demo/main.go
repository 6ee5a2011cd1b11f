// convnode-demo wires a live capture device through a convnode.Node
// running inside a threadloop.ThreadLoop, and writes the converted
// output to a WAV file. It is the capture-backed counterpart to
// the in-memory conversion tests of chain and kernel: the same negotiation and
// process loop, driven by a real soundcard instead of fixture bytes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/audiograph/convnode/convnode"
	"github.com/audiograph/convnode/format"
	"github.com/audiograph/convnode/internal/capture"
	"github.com/audiograph/convnode/internal/hostmem"
	"github.com/audiograph/convnode/internal/logging"
	"github.com/audiograph/convnode/plugin"
	"github.com/audiograph/convnode/port"
	"github.com/audiograph/convnode/threadloop"
	"github.com/audiograph/convnode/typeid"
)

func main() {
	device := flag.String("device", "default", "capture device name, or \"default\"")
	outPath := flag.String("out", "capture.wav", "output WAV path")
	duration := flag.Duration("duration", 10*time.Second, "how long to capture")
	outRate := flag.Int("rate", 44100, "output sample rate")
	outChannels := flag.Int("channels", 2, "output channel count")
	listDevices := flag.Bool("list-devices", false, "list capture devices and exit")
	logFile := flag.String("log-file", "", "write rotated JSON logs here instead of stderr")
	flag.Parse()

	if *listDevices {
		devices, err := capture.EnumerateDevices()
		if err != nil {
			log.Fatalf("enumerate devices: %v", err)
		}
		for _, d := range devices {
			fmt.Printf("  %d: %s (ID: %s)\n", d.Index, d.Name, d.ID)
		}
		return
	}

	if err := run(*device, *outPath, *logFile, *duration, *outRate, *outChannels); err != nil {
		log.Fatal(err)
	}
}

// openLogger builds the demo's top-level logger: a lumberjack-rotated file
// logger when -log-file is set, otherwise logging.ForService's stderr
// default. The returned closer must be called before exit when non-nil.
func openLogger(logFile string) (*slog.Logger, func() error, error) {
	if logFile == "" {
		logger := logging.ForService("convnode-demo")
		if logger == nil {
			logger = slog.Default()
		}
		return logger, nil, nil
	}
	return logging.NewFileLogger(logFile, "convnode-demo", nil, logging.RotationConfig{
		Rotation:     logging.RotationSize,
		MaxSizeBytes: 10 * 1024 * 1024,
	})
}

func run(device, outPath, logFile string, duration time.Duration, outRate, outChannels int) error {
	logger, closeLogger, err := openLogger(logFile)
	if err != nil {
		return fmt.Errorf("open logger: %w", err)
	}
	if closeLogger != nil {
		defer closeLogger()
	}

	inFormat := format.AudioFormat{
		SampleFormat: format.SampleFormatS16,
		Layout:       format.LayoutInterleaved,
		Channels:     1,
		Rate:         48000,
	}
	outFormat := format.AudioFormat{
		SampleFormat: format.SampleFormatF32,
		Layout:       format.LayoutInterleaved,
		Channels:     outChannels,
		Rate:         outRate,
	}

	support := plugin.Support{TypeMap: typeid.NewRegistry(), Logger: logger}
	handle, err := plugin.NodeFactory.NewHandle(support)
	if err != nil {
		return fmt.Errorf("create node handle: %w", err)
	}
	nodeIface, err := handle.GetInterface(plugin.InterfaceNode)
	if err != nil {
		return fmt.Errorf("resolve node interface: %w", err)
	}
	node, ok := nodeIface.(*convnode.Node)
	if !ok {
		return fmt.Errorf("unexpected node interface type %T", nodeIface)
	}

	if err := node.SetFormat(port.DirectionInput, &inFormat); err != nil {
		return fmt.Errorf("set input format: %w", err)
	}
	if err := node.SetFormat(port.DirectionOutput, &outFormat); err != nil {
		return fmt.Errorf("set output format: %w", err)
	}
	if err := node.SendCommand(convnode.CommandStart); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	pool := hostmem.NewPool(hostmem.DefaultPoolConfig)
	const framesPerTick = 1024
	inBytesPerTick := framesPerTick * inFormat.BytesPerFrame()
	outBytesCapacity := framesPerTick * outFormat.BytesPerFrame() * 4 // headroom for resample growth

	inBuf := &port.Buffer{Planes: []port.Plane{{
		Data: pool.Get(inBytesPerTick),
		Size: inBytesPerTick,
	}}}
	outBuf := &port.Buffer{Planes: []port.Plane{{
		Data: pool.Get(outBytesCapacity),
	}}}
	if err := node.PortUseBuffers(port.DirectionInput, []*port.Buffer{inBuf}); err != nil {
		return fmt.Errorf("use input buffers: %w", err)
	}
	if err := node.PortUseBuffers(port.DirectionOutput, []*port.Buffer{outBuf}); err != nil {
		return fmt.Errorf("use output buffers: %w", err)
	}

	inSlot := &port.IOSlot{Status: port.IOStatusNeedBuffer, BufferID: 0}
	outSlot := &port.IOSlot{Status: port.IOStatusNeedBuffer, BufferID: port.InvalidBufferID}
	node.PortSetIO(port.DirectionInput, inSlot)
	node.PortSetIO(port.DirectionOutput, outSlot)

	src := capture.New("demo-capture", capture.Config{DeviceName: device, Format: inFormat})

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()
	sigCtx, stopSig := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSig()

	if err := src.Start(sigCtx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	defer func() { _ = src.Stop() }()

	outFile, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer outFile.Close()

	bitDepth := outFormat.SampleFormat.BytesPerSample() * 8
	enc := wav.NewEncoder(outFile, outFormat.Rate, bitDepth, outFormat.Channels, 1)
	defer enc.Close()

	loop := threadloop.New("convnode-demo", nil)
	if err := loop.Start(); err != nil {
		return fmt.Errorf("start thread loop: %w", err)
	}
	defer loop.Stop()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCtx.Done():
			return nil
		case <-ticker.C:
		}

		n, err := src.Read(inBuf.Planes[0].Data[:inBytesPerTick])
		if err != nil || n < inBytesPerTick {
			continue
		}
		inSlot.Status = port.IOStatusHaveBuffer

		if err := threadloop.WithLock(loop, func() error {
			return node.Process()
		}); err != nil {
			logger.Warn("process failed", "error", err)
			continue
		}

		if outSlot.Status != port.IOStatusHaveBuffer {
			continue
		}
		produced := outBuf.Planes[0].Data[:outBuf.Planes[0].Size]
		if err := writeF32Chunk(enc, produced, outFormat); err != nil {
			return fmt.Errorf("write wav chunk: %w", err)
		}
		node.PortReuseBuffer(outSlot.BufferID)
		outSlot.BufferID = port.InvalidBufferID
		outSlot.Status = port.IOStatusNeedBuffer
	}
}

// writeF32Chunk converts a little-endian F32 interleaved byte plane
// into the go-audio/audio.IntBuffer shape wav.Encoder expects, scaling
// into the int32 range wav's 32-bit PCM writer assumes.
func writeF32Chunk(enc *wav.Encoder, data []byte, f format.AudioFormat) error {
	const bytesPerSample = 4
	n := len(data) / bytesPerSample
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.Rate},
		Data:           make([]int, n),
		SourceBitDepth: 32,
	}
	for i := 0; i < n; i++ {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		sample := math.Float32frombits(bits)
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		buf.Data[i] = int(sample * 2147483647)
	}
	return enc.Write(buf)
}
