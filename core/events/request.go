package events

const namespaceRequest = "request"

const (
	// KindRequestStarted identifies a turn whose configuration was sent.
	KindRequestStarted Kind = "request.started"
	// KindAudioRecording identifies one captured frame sent upstream.
	KindAudioRecording Kind = "request.audio_recording"
	// KindSpeechRecognition identifies interim or final recognition results.
	KindSpeechRecognition Kind = "request.speech_recognition"
	// KindRequestFinished identifies the server detecting end of utterance.
	KindRequestFinished Kind = "request.finished"
)

// RequestStart marks the start of a turn.
type RequestStart struct{ Base }

// NewRequestStart creates a request started event.
func NewRequestStart() RequestStart {
	return RequestStart{Base: NewBase(KindRequestStarted)}
}

// AudioRecording carries a captured frame exactly as it was sent upstream.
type AudioRecording struct {
	Base
	Audio []byte
}

// NewAudioRecording creates an audio recording event.
func NewAudioRecording(audio []byte) AudioRecording {
	return AudioRecording{Base: NewBase(KindAudioRecording), Audio: audio}
}

// SpeechResult is one recognition hypothesis. Stability ranges from 0 to 1,
// with 1 meaning the transcript will not change.
type SpeechResult struct {
	Transcript string  `json:"transcript"`
	Stability  float32 `json:"stability"`
}

// SpeechRecognition carries the recognition results of one response.
type SpeechRecognition struct {
	Base
	Results []SpeechResult
}

// NewSpeechRecognition creates a speech recognition event.
func NewSpeechRecognition(results []SpeechResult) SpeechRecognition {
	return SpeechRecognition{Base: NewBase(KindSpeechRecognition), Results: results}
}

// Transcript joins the transcripts of all results in order.
func (e SpeechRecognition) Transcript() string {
	var transcript string
	for _, result := range e.Results {
		transcript += result.Transcript
	}
	return transcript
}

// RequestFinished marks the end of the user's utterance.
type RequestFinished struct{ Base }

// NewRequestFinished creates a request finished event.
func NewRequestFinished() RequestFinished {
	return RequestFinished{Base: NewBase(KindRequestFinished)}
}
