package miniaudio

import (
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/ema-assistant/core/audio"
)

// Client owns the miniaudio context shared by the capture source and every
// playback sink it creates.
type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	encodingInfo audio.EncodingInfo

	captureClient

	mu     sync.Mutex
	closed bool
}

func NewClient(sampleRate int) (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) {}, //log.Println("malgo:", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize miniaudio context: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
		encodingInfo: audio.NewEncodingInfo(sampleRate),
	}

	if err := client.captureClient.Init(audioCtx, client.encodingInfo, ""); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo { return c.encodingInfo }

// SelectDevice reinitializes capture on the named device. When the device
// does not exist capture stays on the default input and the miss is logged.
func (c *Client) SelectDevice(name string) error {
	return c.captureClient.Reinit(name)
}

func (c *Client) Start() error { return c.captureClient.Start() }
func (c *Client) Stop() error  { return c.captureClient.Stop() }

func (c *Client) ReadFrame(buf []byte) (int, error) { return c.captureClient.ReadFrame(buf) }

// NewSink creates a fresh playback device for one playback phase.
func (c *Client) NewSink(info audio.EncodingInfo, bufferBytes int, preferredDevice string) (audio.Sink, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("client closed")
	}

	sink := &playbackClient{}
	if err := sink.Init(c.audioContext, info, bufferBytes, preferredDevice); err != nil {
		return nil, fmt.Errorf("failed to initialize playback client: %w", err)
	}
	return sink, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	_ = c.captureClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
	return nil
}

// deviceID resolves a device name to its miniaudio id. A nil id selects the
// default device.
func deviceID(audioContext *malgo.AllocatedContext, deviceType malgo.DeviceType, name string) *malgo.DeviceID {
	if name == "" {
		return nil
	}

	devices, err := audioContext.Devices(deviceType)
	if err != nil {
		log.Printf("Failed to list audio devices, using default: %v", err)
		return nil
	}
	for _, device := range devices {
		if device.Name() == name {
			id := device.ID
			return &id
		}
	}

	log.Printf("Preferred audio device %q not found, using default", name)
	return nil
}
