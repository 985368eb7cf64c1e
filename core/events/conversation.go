package events

const (
	KindVolumeChanged        Kind = "conversation.volume_changed"
	KindAssistantResponse    Kind = "conversation.assistant_response"
	KindAssistantDisplayOut  Kind = "conversation.display_out"
	KindDeviceAction         Kind = "conversation.device_action"
	KindError                Kind = "conversation.error"
	KindConversationFinished Kind = "conversation.finished"
)

// VolumeChanged carries a server requested volume in percent.
type VolumeChanged struct {
	Base
	Percentage int
}

func NewVolumeChanged(percentage int) VolumeChanged {
	return VolumeChanged{Base: NewBase(KindVolumeChanged), Percentage: percentage}
}

// AssistantResponse carries the supplemental display text of a response.
type AssistantResponse struct {
	Base
	Text string
}

func NewAssistantResponse(text string) AssistantResponse {
	return AssistantResponse{Base: NewBase(KindAssistantResponse), Text: text}
}

// AssistantDisplayOut carries a screen payload, HTML when the turn asked
// for it.
type AssistantDisplayOut struct {
	Base
	HTML string
}

func NewAssistantDisplayOut(html string) AssistantDisplayOut {
	return AssistantDisplayOut{Base: NewBase(KindAssistantDisplayOut), HTML: html}
}

// DeviceAction carries one command the device is asked to execute, for
// example action.devices.commands.OnOff with params {"on": true}.
type DeviceAction struct {
	Base
	Command string
	Params  map[string]any
}

func NewDeviceAction(command string, params map[string]any) DeviceAction {
	return DeviceAction{Base: NewBase(KindDeviceAction), Command: command, Params: params}
}

// Error reports a failure that terminated the current turn.
type Error struct {
	Base
	Err error
}

func NewError(err error) Error {
	return Error{Base: NewBase(KindError), Err: err}
}

// ConversationFinished marks the end of a dialog chain.
type ConversationFinished struct{ Base }

func NewConversationFinished() ConversationFinished {
	return ConversationFinished{Base: NewBase(KindConversationFinished)}
}
