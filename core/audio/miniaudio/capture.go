package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-assistant/core/audio"
)

// maxPendingBlocks bounds how much capture is held between reads. Older
// audio is dropped first so reads stay near real time.
const maxPendingBlocks = 2

type captureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	encodingInfo audio.EncodingInfo

	pending   []byte
	capturing bool
	ready     *sync.Cond

	mu sync.Mutex
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext, encodingInfo audio.EncodingInfo, deviceName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.audioContext = audioContext
	c.encodingInfo = encodingInfo
	if c.ready == nil {
		c.ready = sync.NewCond(&c.mu)
	}
	return c.initDeviceLocked(deviceName)
}

func (c *captureClient) initDeviceLocked(deviceName string) error {
	channels := 1
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = uint32(c.encodingInfo.SampleRate)
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = 480
	c.config.Periods = 3
	if id := deviceID(c.audioContext, malgo.Capture, deviceName); id != nil {
		c.config.Capture.DeviceID = id.Pointer()
	}

	var err error
	c.device, err = malgo.InitDevice(c.audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}
			c.push(pInput[:n])
		},
	})
	if err != nil {
		c.device = nil
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (c *captureClient) push(pcm []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.capturing {
		return
	}

	c.pending = append(c.pending, pcm...)
	if limit := maxPendingBlocks * audio.DefaultBlockSize; len(c.pending) > limit {
		c.pending = c.pending[len(c.pending)-limit:]
	}
	c.ready.Broadcast()
}

func (c *captureClient) Reinit(deviceName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return fmt.Errorf("cannot change device while capturing")
	}
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return c.initDeviceLocked(deviceName)
}

func (c *captureClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	c.pending = c.pending[:0]
	c.capturing = true
	if err := c.device.Start(); err != nil {
		c.capturing = false
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	return nil
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	}

	c.capturing = false
	c.ready.Broadcast()
	if !c.device.IsStarted() {
		return nil
	}

	// Device.Stop waits on the data callback, which takes mu.
	device := c.device
	c.mu.Unlock()
	err := device.Stop()
	c.mu.Lock()
	if err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}

	return nil
}

// ReadFrame blocks until len(buf) bytes have been captured or the capture
// is stopped.
func (c *captureClient) ReadFrame(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.capturing && len(c.pending) < len(buf) {
		c.ready.Wait()
	}
	if !c.capturing {
		return 0, audio.ErrSourceStopped
	}

	n := copy(buf, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capturing = false
	if c.ready != nil {
		c.ready.Broadcast()
	}
	if c.device != nil {
		device := c.device
		c.device = nil
		c.mu.Unlock()
		device.Uninit()
		c.mu.Lock()
	}

	return nil
}
