package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-assistant/core/audio"
)

// playbackClient is a single-use sink. The device callback drains pending
// audio and Write blocks while more than bufferBytes are queued.
type playbackClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	pending     []byte
	bufferBytes int
	gain        float64
	playing     bool
	drained     *sync.Cond

	mu sync.Mutex
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, info audio.EncodingInfo, bufferBytes int, deviceName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if info.IsZero() {
		return fmt.Errorf("invalid encoding info")
	}
	if bufferBytes <= 0 {
		bufferBytes = audio.DefaultBlockSize
	}

	sampleRate := uint32(info.SampleRate)
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Playback)
	c.config.SampleRate = sampleRate
	c.config.Playback.Format = format
	c.config.Playback.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	c.config.Periods = 4
	if id := deviceID(audioContext, malgo.Playback, deviceName); id != nil {
		c.config.Playback.DeviceID = id.Pointer()
	}

	c.audioContext = audioContext
	c.bufferBytes = bufferBytes
	c.gain = 1
	c.drained = sync.NewCond(&c.mu)

	var err error
	if c.device, err = malgo.InitDevice(
		c.audioContext.Context,
		c.config,
		malgo.DeviceCallbacks{Data: c.processAudio(bytesPerFrame)},
	); err != nil {
		c.device = nil
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) SetVolume(scalar float64) error {
	if scalar < 0 || scalar > 1 {
		return fmt.Errorf("volume %v out of range [0, 1]", scalar)
	}
	c.mu.Lock()
	c.gain = scalar
	c.mu.Unlock()
	return nil
}

func (c *playbackClient) Play() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.playing {
		return nil
	}

	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	c.playing = true

	return nil
}

// Write queues frame for playback and blocks until the device has consumed
// enough that at most bufferBytes remain queued.
func (c *playbackClient) Write(frame []byte) (int, error) {
	scaled := make([]byte, len(frame))
	copy(scaled, frame)

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return 0, fmt.Errorf("device not started")
	}

	audio.ScaleLinear16(scaled, c.gain)
	c.pending = append(c.pending, scaled...)
	for c.playing && len(c.pending) > c.bufferBytes {
		c.drained.Wait()
	}
	if !c.playing {
		return 0, fmt.Errorf("playback stopped")
	}

	return len(frame), nil
}

// Stop waits for queued audio to finish and stops the device.
func (c *playbackClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if !c.playing {
		return nil
	}

	for len(c.pending) > 0 {
		c.drained.Wait()
	}
	c.playing = false
	c.drained.Broadcast()

	// Device.Stop waits on the data callback, which takes mu.
	c.mu.Unlock()
	err := c.device.Stop()
	c.mu.Lock()
	if err != nil {
		return fmt.Errorf("failed to stop playback device: %w", err)
	}

	return nil
}

func (c *playbackClient) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.device == nil {
		return nil
	}

	c.playing = false
	c.pending = nil
	c.drained.Broadcast()

	device := c.device
	c.device = nil
	c.mu.Unlock()
	device.Uninit()
	c.mu.Lock()

	return nil
}

func (c *playbackClient) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame

		c.mu.Lock()
		defer c.mu.Unlock()

		n := copy(pOutput[:min(need, len(pOutput))], c.pending)
		clear(pOutput[n:])
		c.pending = c.pending[n:]
		c.drained.Broadcast()
	}
}
