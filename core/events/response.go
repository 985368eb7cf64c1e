package events

const (
	// KindResponseStarted identifies the start of response playback.
	KindResponseStarted Kind = "response.started"
	// KindAudioSample identifies one response chunk about to be played.
	KindAudioSample Kind = "response.audio_sample"
	// KindResponseFinished identifies the end of response playback.
	KindResponseFinished Kind = "response.finished"
)

// ResponseStarted marks the start of response playback.
type ResponseStarted struct{ Base }

// NewResponseStarted creates a response started event.
func NewResponseStarted() ResponseStarted {
	return ResponseStarted{Base: NewBase(KindResponseStarted)}
}

// AudioSample carries a response chunk right before it is written to the
// sink.
type AudioSample struct {
	Base
	Audio []byte
}

// NewAudioSample creates an audio sample event.
func NewAudioSample(audio []byte) AudioSample {
	return AudioSample{Base: NewBase(KindAudioSample), Audio: audio}
}

// ResponseFinished marks the end of response playback.
type ResponseFinished struct{ Base }

// NewResponseFinished creates a response finished event.
func NewResponseFinished() ResponseFinished {
	return ResponseFinished{Base: NewBase(KindResponseFinished)}
}
