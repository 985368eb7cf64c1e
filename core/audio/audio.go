package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrSourceStopped is returned by Source.ReadFrame once the source has been
// stopped. It marks the normal end of a capture phase, not a device failure.
var ErrSourceStopped = errors.New("audio source stopped")

// Source produces fixed-size linear16 frames from a capture device.
//
// Start is idempotent within a turn and Stop is called once per turn.
// ReadFrame blocks until buf is filled or the source is stopped. Close
// releases the device for good.
type Source interface {
	Start() error
	Stop() error
	ReadFrame(buf []byte) (int, error)
	Close() error
}

// DeviceSelector is implemented by sources that can capture from a named
// device instead of the system default.
type DeviceSelector interface {
	SelectDevice(name string) error
}

// Sink plays linear16 frames. A sink lives for exactly one playback phase:
// Play, any number of blocking Writes, then Stop and Release.
type Sink interface {
	// SetVolume applies a software gain in the range [0, 1].
	SetVolume(scalar float64) error
	Play() error
	Write(frame []byte) (int, error)
	Stop() error
	Release() error
}

// SinkFactory builds a fresh sink for each playback phase. preferredDevice
// is empty when the default output should be used.
type SinkFactory interface {
	NewSink(info EncodingInfo, bufferBytes int, preferredDevice string) (Sink, error)
}

type SinkFactoryFunc func(info EncodingInfo, bufferBytes int, preferredDevice string) (Sink, error)

func (f SinkFactoryFunc) NewSink(info EncodingInfo, bufferBytes int, preferredDevice string) (Sink, error) {
	return f(info, bufferBytes, preferredDevice)
}

// DeviceError reports a capture or playback failure.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s failed: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ClampVolume maps a percentage onto the [0, 1] gain range.
func ClampVolume(percent int) float64 {
	switch {
	case percent <= 0:
		return 0
	case percent >= 100:
		return 1
	}
	return float64(percent) / 100
}

// ScaleLinear16 applies gain to little-endian signed 16-bit samples in place.
// A trailing odd byte is left untouched.
func ScaleLinear16(pcm []byte, gain float64) {
	if gain >= 1 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		scaled := math.Round(float64(sample) * gain)
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(scaled)))
	}
}

// Int16sToBytes encodes samples as little-endian linear16 into dst and
// returns the number of bytes written.
func Int16sToBytes(dst []byte, samples []int16) int {
	n := 0
	for _, sample := range samples {
		if n+2 > len(dst) {
			break
		}
		binary.LittleEndian.PutUint16(dst[n:], uint16(sample))
		n += 2
	}
	return n
}

// BytesToInt16s decodes little-endian linear16 from src into samples and
// returns the number of samples written.
func BytesToInt16s(samples []int16, src []byte) int {
	n := 0
	for i := 0; i+1 < len(src) && n < len(samples); i += 2 {
		samples[n] = int16(binary.LittleEndian.Uint16(src[i:]))
		n++
	}
	return n
}
