package audio

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
)

// defaultStallTimeout bounds how long the stream may go without delivering a
// buffer before the device is considered dead. An open input stream delivers
// buffers continuously (silence included), so starvation means driver failure.
const defaultStallTimeout = 5 * time.Second

// DeviceError wraps capture-device failures. It is fatal to the listening
// session but never to the process.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// CaptureConfig controls how the input stream is opened.
type CaptureConfig struct {
	DeviceName      string // empty selects the default input device
	FramesPerBuffer int
	QueueSize       int           // capacity of the frame channel
	StallTimeout    time.Duration // zero means defaultStallTimeout
}

// Capture owns a portaudio input stream and forwards every delivered buffer
// as a Frame on a bounded channel. The stream callback runs on the audio
// thread and is restricted to copying the buffer and a non-blocking send;
// when the channel is full the frame is dropped and counted, never blocking
// the driver.
type Capture struct {
	cfg CaptureConfig

	mu      sync.Mutex
	stream  *portaudio.Stream
	running bool

	frames chan Frame
	errs   chan error

	channels   int
	sampleRate int

	// dropped and lastFrame are written from the audio thread, so they are
	// atomic rather than guarded by mu.
	dropped   atomic.Uint64
	lastFrame atomic.Int64 // unix nanoseconds of the latest callback

	watchStop chan struct{}

	// OnDrop, if set before Start, is invoked (on the audio thread) each
	// time a frame is dropped. It must be non-blocking.
	OnDrop func()
}

// NewCapture initializes portaudio and prepares a capture for the configured
// device. Callers must Close it to release the host API.
func NewCapture(cfg CaptureConfig) (*Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &DeviceError{Op: "init", Err: err}
	}

	return &Capture{cfg: cfg}, nil
}

// Start opens the input stream at the device's native rate and channel count
// and begins delivering frames. It fails with a DeviceError when no input
// device exists or the configuration is unsupported.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	device, err := c.selectDevice()
	if err != nil {
		return err
	}
	if device.MaxInputChannels < 1 {
		return &DeviceError{Op: "open", Err: fmt.Errorf("device %q has no input channels", device.Name)}
	}

	channels := device.MaxInputChannels
	if channels > 2 {
		channels = 2
	}

	params := portaudio.HighLatencyParameters(device, nil)
	params.Input.Channels = channels
	params.SampleRate = device.DefaultSampleRate
	params.FramesPerBuffer = c.cfg.FramesPerBuffer

	c.channels = channels
	c.sampleRate = int(device.DefaultSampleRate)
	c.frames = make(chan Frame, c.cfg.QueueSize)
	c.errs = make(chan error, 1)

	stream, err := portaudio.OpenStream(params, c.callback)
	if err != nil {
		return &DeviceError{Op: "open", Err: err}
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return &DeviceError{Op: "start", Err: err}
	}

	c.stream = stream
	c.running = true

	stallTimeout := c.cfg.StallTimeout
	if stallTimeout <= 0 {
		stallTimeout = defaultStallTimeout
	}
	c.lastFrame.Store(time.Now().UnixNano())
	c.watchStop = make(chan struct{})
	go watchStall(&c.lastFrame, stallTimeout, stallTimeout/4, c.watchStop, func(err error) {
		select {
		case c.errs <- err:
		default:
		}
	})

	return nil
}

// watchStall reports a DeviceError once if last (unix nanoseconds) goes stale
// for longer than timeout. It returns after reporting or when stop is closed.
func watchStall(last *atomic.Int64, timeout, tick time.Duration, stop <-chan struct{}, report func(error)) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if time.Since(time.Unix(0, last.Load())) > timeout {
				report(&DeviceError{
					Op:  "stream",
					Err: fmt.Errorf("no buffers delivered for %v, device presumed dead", timeout),
				})
				return
			}
		}
	}
}

// callback runs on the realtime audio thread. It copies the delivered buffer
// (the driver reuses it) and performs a single non-blocking send.
func (c *Capture) callback(in []float32) {
	c.lastFrame.Store(time.Now().UnixNano())

	samples := make([]float32, len(in))
	copy(samples, in)

	frame := Frame{
		Samples:    samples,
		Channels:   c.channels,
		SampleRate: c.sampleRate,
	}

	select {
	case c.frames <- frame:
	default:
		c.dropped.Add(1)
		if c.OnDrop != nil {
			c.OnDrop()
		}
	}
}

// Frames returns the bounded channel of captured frames. The channel is
// closed by Stop, which signals end-of-stream to the consumer.
func (c *Capture) Frames() <-chan Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Errors returns the channel carrying mid-stream device failures.
func (c *Capture) Errors() <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errs
}

// Format reports the native channel count and sample rate of the running
// stream.
func (c *Capture) Format() (channels, sampleRate int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels, c.sampleRate
}

// Dropped returns the number of frames rejected by the full queue.
func (c *Capture) Dropped() uint64 {
	return c.dropped.Load()
}

// Stop halts the stream and closes the frame channel. It is idempotent.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false

	close(c.watchStop)
	c.watchStop = nil

	var stopErr error
	if err := c.stream.Stop(); err != nil {
		stopErr = &DeviceError{Op: "stop", Err: err}
	}
	if err := c.stream.Close(); err != nil && stopErr == nil {
		stopErr = &DeviceError{Op: "close", Err: err}
	}
	c.stream = nil

	close(c.frames)

	return stopErr
}

// Close stops any running stream and releases portaudio.
func (c *Capture) Close() error {
	err := c.Stop()
	if termErr := portaudio.Terminate(); termErr != nil && err == nil {
		err = &DeviceError{Op: "terminate", Err: termErr}
	}
	return err
}

// selectDevice resolves the configured device name, or the default input
// device when the name is empty.
func (c *Capture) selectDevice() (*portaudio.DeviceInfo, error) {
	if c.cfg.DeviceName == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, &DeviceError{Op: "select", Err: err}
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, &DeviceError{Op: "select", Err: err}
	}
	for _, d := range devices {
		if d.Name == c.cfg.DeviceName && d.MaxInputChannels > 0 {
			return d, nil
		}
	}

	return nil, &DeviceError{
		Op:  "select",
		Err: fmt.Errorf("no input device named %q", c.cfg.DeviceName),
	}
}

// ListInputDevices returns the names of all devices with input channels.
// It initializes and terminates portaudio around the query.
func ListInputDevices() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, &DeviceError{Op: "init", Err: err}
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, &DeviceError{Op: "list", Err: err}
	}

	var names []string
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			names = append(names, fmt.Sprintf("%s (%d ch, %.0f Hz)",
				d.Name, d.MaxInputChannels, d.DefaultSampleRate))
		}
	}

	return names, nil
}
