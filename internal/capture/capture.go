// Package capture supplies the convnode input port's upstream data
// source the way a real host would: a live soundcard line. Adapted
// from the teacher's internal/audiocore/sources/malgo package — device
// discovery is reused nearly verbatim (EnumerateDevices, SelectDevice),
// while the capture loop itself is rebuilt around a ring buffer feeding
// convnode directly instead of the teacher's fan-out AudioData channel,
// since this module has exactly one consumer (a single node's input
// port) rather than a multi-subscriber pipeline.
package capture

import (
	"context"
	"encoding/hex"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/audiograph/convnode/format"
	"github.com/audiograph/convnode/internal/errors"
	"github.com/audiograph/convnode/internal/logging"
	"github.com/audiograph/convnode/internal/metrics"
)

// DeviceInfo describes one enumerated capture device.
type DeviceInfo struct {
	Index int
	Name  string
	ID    string
}

func backendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system %s", runtime.GOOS).
			Component("capture").
			Category(errors.CategoryUnsupported).
			Context("os", runtime.GOOS).
			Build()
	}
}

// EnumerateDevices lists available capture devices, skipping the
// loopback/null "discard all samples" device malgo always reports.
func EnumerateDevices() ([]DeviceInfo, error) {
	backend, err := backendForPlatform()
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryFlow).
			Context("operation", "init_context").
			Build()
	}
	defer func() { _ = ctx.Uninit() }()

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component("capture").
			Category(errors.CategoryFlow).
			Context("operation", "enumerate_devices").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		if strings.Contains(infos[i].Name(), "Discard all samples") {
			continue
		}
		id, err := hex.DecodeString(infos[i].ID.String())
		decodedID := infos[i].ID.String()
		if err == nil {
			decodedID = string(id)
		}
		devices = append(devices, DeviceInfo{Index: i, Name: infos[i].Name(), ID: decodedID})
	}
	return devices, nil
}

// SelectDevice finds the device matching name, falling back to the
// platform default when name is empty/"default".
func SelectDevice(devices []malgo.DeviceInfo, name string) (*malgo.DeviceInfo, error) {
	if name == "" || name == "default" {
		for i := range devices {
			if devices[i].IsDefault == 1 {
				return &devices[i], nil
			}
		}
		if len(devices) > 0 {
			return &devices[0], nil
		}
	}
	for i := range devices {
		if devices[i].Name() == name {
			return &devices[i], nil
		}
	}
	for i := range devices {
		if strings.Contains(devices[i].Name(), name) {
			return &devices[i], nil
		}
	}
	return nil, errors.Newf("no capture device matches %q", name).
		Component("capture").
		Category(errors.CategoryNotFound).
		Context("device_name", name).
		Context("available_devices", len(devices)).
		Build()
}

// Config configures a Source.
type Config struct {
	DeviceName string
	Format     format.AudioFormat
	// RingBytes sizes the jitter buffer sitting between the malgo
	// capture callback (which runs on malgo's own thread, outside any
	// Go scheduling control) and whatever goroutine eventually drains
	// Source via Read — large enough to absorb scheduling jitter
	// without the callback ever blocking.
	RingBytes int
}

// Source captures raw interleaved PCM from a soundcard into a ring
// buffer, matching the byte layout of Config.Format so a caller can
// hand Read's output straight to a convnode input port as-is.
type Source struct {
	id     string
	config Config

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	ring    *ringbuffer.RingBuffer
	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc

	dropped  atomic.Uint64
	logger   *slog.Logger
	recorder metrics.Recorder
}

// New constructs a Source. It does not open the device; call Start.
func New(id string, config Config) *Source {
	if config.RingBytes == 0 {
		config.RingBytes = 1 << 20
	}
	logger := logging.ForService("capture").With("source_id", id)
	return &Source{
		id:       id,
		config:   config,
		ring:     ringbuffer.New(config.RingBytes).SetBlocking(false),
		logger:   logger,
		recorder: metrics.NoOp{},
	}
}

// SetRecorder attaches a metrics.Recorder; nil resets to a no-op.
func (s *Source) SetRecorder(r metrics.Recorder) {
	if r == nil {
		r = metrics.NoOp{}
	}
	s.mu.Lock()
	s.recorder = r
	s.mu.Unlock()
}

// Start opens the device and begins filling the ring buffer. ctx
// cancellation stops capture the same way Stop does.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running.Load() {
		return errors.New(nil).
			Component("capture").
			Category(errors.CategoryState).
			Context("source_id", s.id).
			Build()
	}

	backend, err := backendForPlatform()
	if err != nil {
		return err
	}
	malgoCtx, err := malgo.InitContext([]malgo.Backend{backend}, malgo.ContextConfig{}, nil)
	if err != nil {
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryFlow).
			Context("source_id", s.id).
			Context("operation", "init_context").
			Build()
	}

	devices, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		_ = malgoCtx.Uninit()
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryFlow).
			Context("source_id", s.id).
			Context("operation", "enumerate_devices").
			Build()
	}
	deviceInfo, err := SelectDevice(devices, s.config.DeviceName)
	if err != nil {
		_ = malgoCtx.Uninit()
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Channels = uint32(s.config.Format.Channels)
	deviceConfig.Capture.Format = sampleFormatToMalgo(s.config.Format.SampleFormat)
	deviceConfig.Capture.DeviceID = deviceInfo.ID.Pointer()
	deviceConfig.SampleRate = uint32(s.config.Format.Rate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryFlow).
			Context("source_id", s.id).
			Context("operation", "init_device").
			Build()
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryFlow).
			Context("source_id", s.id).
			Context("operation", "start_device").
			Build()
	}

	captureCtx, cancel := context.WithCancel(ctx)
	s.ctx = malgoCtx
	s.device = device
	s.cancel = cancel
	s.running.Store(true)
	go func() {
		<-captureCtx.Done()
		_ = s.Stop()
	}()
	return nil
}

// Stop closes the device. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running.Load() {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx = nil
	}
	s.running.Store(false)
	return nil
}

// Read drains up to len(dst) bytes of captured audio, matching
// io.Reader semantics except it never blocks: with nothing buffered it
// returns (0, nil) rather than io.EOF, since the source is still alive.
func (s *Source) Read(dst []byte) (int, error) {
	n, err := s.ring.Read(dst)
	if err == ringbuffer.ErrIsEmpty {
		return 0, nil
	}
	return n, err
}

// Buffered reports how many captured bytes are waiting to be Read.
func (s *Source) Buffered() int {
	return s.ring.Length()
}

// Dropped reports how many bytes were discarded because the ring
// buffer was full when a capture callback tried to write into it.
func (s *Source) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Source) onData(_ []byte, samples []byte, _ uint32) {
	n, err := s.ring.Write(samples)
	if err != nil || n < len(samples) {
		dropped := len(samples) - n
		s.dropped.Add(uint64(dropped))
		s.recorder.RecordError("capture_ring_overflow")
		s.logger.Debug("ring buffer overflow, dropping captured audio", "bytes", dropped)
	}
}

func (s *Source) onStop() {
	s.logger.Warn("capture device stopped unexpectedly")
	s.recorder.RecordError("capture_device_stopped")
}

func sampleFormatToMalgo(sf format.SampleFormat) malgo.FormatType {
	switch sf.BaseFormat() {
	case format.SampleFormatU8:
		return malgo.FormatU8
	case format.SampleFormatS16:
		return malgo.FormatS16
	case format.SampleFormatF32:
		return malgo.FormatF32
	default:
		return malgo.FormatS16
	}
}
