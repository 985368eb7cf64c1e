package assistant

import (
	"encoding/json"

	"github.com/koscakluka/ema-assistant/core/events"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
	"google.golang.org/protobuf/proto"
)

const intentExecute = "action.devices.EXECUTE"

type deviceRequest struct {
	Inputs []struct {
		Intent  string `json:"intent"`
		Payload struct {
			Commands []struct {
				Execution []struct {
					Command string         `json:"command"`
					Params  map[string]any `json:"params"`
				} `json:"execution"`
			} `json:"commands"`
		} `json:"payload"`
	} `json:"inputs"`
}

type dialogState struct {
	conversationState []byte
	volume            int
	microphoneMode    embedded.DialogStateOut_MicrophoneMode
	text              string
}

// routedResponse is one response split into what the engine acts on.
// events holds everything to emit, in emission order.
type routedResponse struct {
	events []events.Event

	endOfUtterance bool
	dialogState    *dialogState

	audio      []byte
	audioEnded bool
}

// demultiplexer routes the responses of one turn. It only keeps the size
// of the largest audio message seen so far.
type demultiplexer struct {
	sizeHeuristic   bool
	maxAudioOutSize int
}

func newDemultiplexer(sizeHeuristic bool) *demultiplexer {
	return &demultiplexer{sizeHeuristic: sizeHeuristic}
}

// route handles every populated field of resp. Device actions come first,
// then end of utterance, dialog state, audio and screen output.
func (d *demultiplexer) route(resp *embedded.AssistResponse) (routedResponse, error) {
	var routed routedResponse
	var protocolErr error

	if payload := resp.GetDeviceAction().GetDeviceRequestJson(); payload != "" {
		actions, err := parseDeviceActions(payload)
		if err != nil {
			protocolErr = &ProtocolError{Payload: "device action", Err: err}
		}
		for _, action := range actions {
			routed.events = append(routed.events, action)
		}
	}

	if resp.GetEventType() == embedded.AssistResponse_END_OF_UTTERANCE {
		routed.endOfUtterance = true
		routed.events = append(routed.events, events.NewRequestFinished())
	}

	if out := resp.GetDialogStateOut(); out != nil {
		state := &dialogState{
			conversationState: out.GetConversationState(),
			volume:            int(out.GetVolumePercentage()),
			microphoneMode:    out.GetMicrophoneMode(),
			text:              out.GetSupplementalDisplayText(),
		}
		routed.dialogState = state

		if state.volume != 0 {
			routed.events = append(routed.events, events.NewVolumeChanged(state.volume))
		}
		routed.events = append(routed.events, events.NewSpeechRecognition(speechResults(resp)))
		routed.events = append(routed.events, events.NewAssistantResponse(state.text))
	} else if len(resp.GetSpeechResults()) > 0 {
		routed.events = append(routed.events, events.NewSpeechRecognition(speechResults(resp)))
	}

	if out := resp.GetAudioOut(); out != nil {
		routed.audio = out.GetAudioData()
		if d.sizeHeuristic {
			if size := proto.Size(out); size <= d.maxAudioOutSize {
				d.maxAudioOutSize = 0
				routed.audioEnded = true
			} else {
				d.maxAudioOutSize = size
			}
		}
	}

	if out := resp.GetScreenOut(); out != nil {
		routed.events = append(routed.events, events.NewAssistantDisplayOut(string(out.GetData())))
	}

	return routed, protocolErr
}

func speechResults(resp *embedded.AssistResponse) []events.SpeechResult {
	results := make([]events.SpeechResult, 0, len(resp.GetSpeechResults()))
	for _, result := range resp.GetSpeechResults() {
		results = append(results, events.SpeechResult{
			Transcript: result.GetTranscript(),
			Stability:  result.GetStability(),
		})
	}
	return results
}

// parseDeviceActions returns one DeviceAction per execution entry of every
// EXECUTE input.
func parseDeviceActions(payload string) ([]events.DeviceAction, error) {
	var request deviceRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		return nil, err
	}

	var actions []events.DeviceAction
	for _, input := range request.Inputs {
		if input.Intent != intentExecute {
			continue
		}
		for _, command := range input.Payload.Commands {
			for _, execution := range command.Execution {
				actions = append(actions, events.NewDeviceAction(execution.Command, execution.Params))
			}
		}
	}
	return actions, nil
}
