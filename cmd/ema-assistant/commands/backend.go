package commands

import (
	"fmt"

	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/audio/miniaudio"
	"github.com/koscakluka/ema-assistant/core/audio/portaudio"
)

const (
	backendPortAudio = "portaudio"
	backendMiniaudio = "miniaudio"
)

// newAudioBackend opens the capture source and playback sink factory of the
// named backend. The engine owns the source and closes it on Destroy.
func newAudioBackend(name string, sampleRate int) (audio.Source, audio.SinkFactory, error) {
	switch name {
	case backendPortAudio:
		source, err := portaudio.NewSource(sampleRate)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open portaudio source: %w", err)
		}
		return source, portaudio.SinkFactory{}, nil

	case backendMiniaudio:
		client, err := miniaudio.NewClient(sampleRate)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open miniaudio client: %w", err)
		}
		return client, client, nil
	}
	return nil, nil, fmt.Errorf("unknown audio backend %q, use %s or %s", name, backendPortAudio, backendMiniaudio)
}
