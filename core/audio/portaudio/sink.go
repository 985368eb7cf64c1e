package portaudio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/koscakluka/ema-assistant/core/audio"
)

// SinkFactory opens a new PortAudio output stream for every playback phase.
type SinkFactory struct{}

func (SinkFactory) NewSink(info audio.EncodingInfo, bufferBytes int, preferredDevice string) (audio.Sink, error) {
	return NewSink(info, bufferBytes, preferredDevice)
}

// Sink writes linear16 frames to an output device with blocking writes and
// a software gain.
type Sink struct {
	mu sync.Mutex

	stream        *portaudio.Stream
	out           []int16
	leftoverAudio []byte
	gain          float64

	playing  bool
	released bool
}

func NewSink(info audio.EncodingInfo, bufferBytes int, preferredDevice string) (*Sink, error) {
	if info.IsZero() {
		return nil, fmt.Errorf("invalid encoding info")
	}
	framesPerBuffer := info.Samples(bufferBytes)
	if framesPerBuffer <= 0 {
		framesPerBuffer = info.Samples(audio.DefaultBlockSize)
	}

	if err := acquire(); err != nil {
		return nil, err
	}

	device, err := findDevice(preferredDevice, false, portaudio.DefaultOutputDevice)
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("failed to find output device: %w", err)
	}

	params := portaudio.LowLatencyParameters(nil, device)
	params.Output.Channels = 1
	params.SampleRate = float64(info.SampleRate)
	params.FramesPerBuffer = framesPerBuffer

	out := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenStream(params, out)
	if err != nil {
		_ = release()
		return nil, fmt.Errorf("failed to open portaudio output stream: %w", err)
	}

	return &Sink{stream: stream, out: out, gain: 1}, nil
}

func (s *Sink) SetVolume(scalar float64) error {
	if scalar < 0 || scalar > 1 {
		return fmt.Errorf("volume %v out of range [0, 1]", scalar)
	}
	s.mu.Lock()
	s.gain = scalar
	s.mu.Unlock()
	return nil
}

func (s *Sink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return fmt.Errorf("sink released")
	} else if s.playing {
		return nil
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio output stream: %w", err)
	}
	s.playing = true
	return nil
}

// Write blocks until every whole buffer in frame has been handed to the
// device. A partial trailing buffer is held until the next Write or Stop.
func (s *Sink) Write(frame []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing {
		return 0, fmt.Errorf("sink not playing")
	}

	pcm := make([]byte, 0, len(s.leftoverAudio)+len(frame))
	pcm = append(pcm, s.leftoverAudio...)
	pcm = append(pcm, frame...)
	audio.ScaleLinear16(pcm[len(s.leftoverAudio):], s.gain)

	bufferSize := len(s.out) * 2
	for len(pcm) >= bufferSize {
		audio.BytesToInt16s(s.out, pcm[:bufferSize])
		if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			s.leftoverAudio = nil
			return 0, fmt.Errorf("failed to write to portaudio output stream: %w", err)
		}
		pcm = pcm[bufferSize:]
	}
	s.leftoverAudio = pcm

	return len(frame), nil
}

// Stop pads and flushes any held partial buffer, then stops the stream.
func (s *Sink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing {
		return nil
	}
	s.playing = false

	var errs error
	if len(s.leftoverAudio) > 0 {
		clear(s.out)
		audio.BytesToInt16s(s.out, s.leftoverAudio)
		s.leftoverAudio = nil
		if err := s.stream.Write(); err != nil && !errors.Is(err, portaudio.OutputUnderflowed) {
			errs = errors.Join(errs, err)
		}
	}
	return errors.Join(errs, s.stream.Stop())
}

func (s *Sink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil
	}
	s.released = true
	return errors.Join(s.stream.Close(), release())
}
