package assistant

import "github.com/koscakluka/ema-assistant/core/events"

// Handler receives engine events. Request events and conversation events
// go to separate handlers, see events.Kind.IsRequest.
type Handler interface {
	HandleEvent(event events.Event)
}

type HandlerFunc func(event events.Event)

func (f HandlerFunc) HandleEvent(event events.Event) { f(event) }

// RequestCallbacks adapts optional funcs into a request Handler. Unset
// callbacks are skipped.
type RequestCallbacks struct {
	OnRequestStart      func()
	OnAudioRecording    func(audio []byte)
	OnSpeechRecognition func(results []events.SpeechResult)
	OnRequestFinished   func()
}

func (c RequestCallbacks) HandleEvent(event events.Event) {
	switch typedEvent := event.(type) {
	case events.RequestStart:
		if c.OnRequestStart != nil {
			c.OnRequestStart()
		}
	case events.AudioRecording:
		if c.OnAudioRecording != nil {
			c.OnAudioRecording(typedEvent.Audio)
		}
	case events.SpeechRecognition:
		if c.OnSpeechRecognition != nil {
			c.OnSpeechRecognition(typedEvent.Results)
		}
	case events.RequestFinished:
		if c.OnRequestFinished != nil {
			c.OnRequestFinished()
		}
	}
}

// ConversationCallbacks adapts optional funcs into a conversation Handler.
// Unset callbacks are skipped.
type ConversationCallbacks struct {
	OnResponseStarted      func()
	OnAudioSample          func(audio []byte)
	OnResponseFinished     func()
	OnVolumeChanged        func(percentage int)
	OnAssistantResponse    func(text string)
	OnAssistantDisplayOut  func(html string)
	OnDeviceAction         func(command string, params map[string]any)
	OnError                func(err error)
	OnConversationFinished func()
}

func (c ConversationCallbacks) HandleEvent(event events.Event) {
	switch typedEvent := event.(type) {
	case events.ResponseStarted:
		if c.OnResponseStarted != nil {
			c.OnResponseStarted()
		}
	case events.AudioSample:
		if c.OnAudioSample != nil {
			c.OnAudioSample(typedEvent.Audio)
		}
	case events.ResponseFinished:
		if c.OnResponseFinished != nil {
			c.OnResponseFinished()
		}
	case events.VolumeChanged:
		if c.OnVolumeChanged != nil {
			c.OnVolumeChanged(typedEvent.Percentage)
		}
	case events.AssistantResponse:
		if c.OnAssistantResponse != nil {
			c.OnAssistantResponse(typedEvent.Text)
		}
	case events.AssistantDisplayOut:
		if c.OnAssistantDisplayOut != nil {
			c.OnAssistantDisplayOut(typedEvent.HTML)
		}
	case events.DeviceAction:
		if c.OnDeviceAction != nil {
			c.OnDeviceAction(typedEvent.Command, typedEvent.Params)
		}
	case events.Error:
		if c.OnError != nil {
			c.OnError(typedEvent.Err)
		}
	case events.ConversationFinished:
		if c.OnConversationFinished != nil {
			c.OnConversationFinished()
		}
	}
}
