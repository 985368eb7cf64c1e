package portaudio

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-assistant/core/audio"
)

var (
	initMu    sync.Mutex
	initCount int
)

// acquire initializes PortAudio on first use. Every acquire must be paired
// with a release.
func acquire() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initCount == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize portaudio: %w", err)
		}
	}
	initCount++
	return nil
}

func release() error {
	initMu.Lock()
	defer initMu.Unlock()

	if initCount == 0 {
		return nil
	}
	initCount--
	if initCount == 0 {
		return portaudio.Terminate()
	}
	return nil
}

// findDevice looks a device up by name. It falls back to fallback when name
// is empty or no device with enough channels matches.
func findDevice(name string, input bool, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if name != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			log.Printf("Failed to list portaudio devices, using default: %v", err)
		}
		for _, device := range devices {
			if device.Name != name {
				continue
			}
			if input && device.MaxInputChannels > 0 || !input && device.MaxOutputChannels > 0 {
				return device, nil
			}
		}
		log.Printf("Preferred audio device %q not found, using default", name)
	}

	return fallback()
}

// Source captures mono linear16 from an input device with blocking reads.
type Source struct {
	mu sync.Mutex

	encodingInfo audio.EncodingInfo
	blockSize    int
	deviceName   string

	stream  *portaudio.Stream
	in      []int16
	started bool
	closed  bool
}

type SourceOption func(*Source)

func WithInputDevice(name string) SourceOption {
	return func(s *Source) { s.deviceName = name }
}

func WithBlockSize(blockSize int) SourceOption {
	return func(s *Source) { s.blockSize = blockSize }
}

func NewSource(sampleRate int, opts ...SourceOption) (*Source, error) {
	s := &Source{
		encodingInfo: audio.NewEncodingInfo(sampleRate),
		blockSize:    audio.DefaultBlockSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.blockSize <= 0 || s.blockSize%2 != 0 {
		return nil, fmt.Errorf("invalid block size %d: must be a positive even number", s.blockSize)
	}

	if err := acquire(); err != nil {
		return nil, err
	}
	if err := s.open(); err != nil {
		_ = release()
		return nil, err
	}
	return s, nil
}

// SelectDevice reopens the capture stream on the named device. A missing
// device is not an error, capture falls back to the default input.
func (s *Source) SelectDevice(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("source closed")
	}
	if s.started {
		return fmt.Errorf("cannot change device while capturing")
	}

	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
	s.deviceName = name
	return s.openLocked()
}

func (s *Source) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *Source) openLocked() error {
	device, err := findDevice(s.deviceName, true, portaudio.DefaultInputDevice)
	if err != nil {
		return fmt.Errorf("failed to find input device: %w", err)
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(s.encodingInfo.SampleRate)
	params.FramesPerBuffer = s.encodingInfo.Samples(s.blockSize)

	s.in = make([]int16, params.FramesPerBuffer)
	stream, err := portaudio.OpenStream(params, s.in)
	if err != nil {
		return fmt.Errorf("failed to open portaudio input stream: %w", err)
	}
	s.stream = stream
	return nil
}

func (s *Source) EncodingInfo() audio.EncodingInfo { return s.encodingInfo }

func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.stream == nil {
		return fmt.Errorf("source closed")
	} else if s.started {
		return nil
	}

	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio input stream: %w", err)
	}
	s.started = true
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false
	if err := s.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop portaudio input stream: %w", err)
	}
	return nil
}

// ReadFrame fills buf with one block of capture. buf shorter than the
// configured block receives a truncated block.
func (s *Source) ReadFrame(buf []byte) (int, error) {
	s.mu.Lock()
	stream, started := s.stream, s.started
	s.mu.Unlock()
	if !started {
		return 0, audio.ErrSourceStopped
	}

	if err := stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
		s.mu.Lock()
		started = s.started
		s.mu.Unlock()
		if !started {
			return 0, audio.ErrSourceStopped
		}
		return 0, &audio.DeviceError{Op: "read", Err: err}
	}

	return audio.Int16sToBytes(buf, s.in), nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs error
	if s.stream != nil {
		if s.started {
			errs = errors.Join(errs, s.stream.Stop())
			s.started = false
		}
		errs = errors.Join(errs, s.stream.Close())
		s.stream = nil
	}
	return errors.Join(errs, release())
}
