package assistant

import (
	"errors"
	"testing"

	"github.com/koscakluka/ema-assistant/core/events"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
)

func eventKinds(list []events.Event) []events.Kind {
	kinds := make([]events.Kind, 0, len(list))
	for _, event := range list {
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func TestRouteOrdersEveryPopulatedField(t *testing.T) {
	demux := newDemultiplexer(true)
	routed, err := demux.route(&embedded.AssistResponse{
		EventType: embedded.AssistResponse_END_OF_UTTERANCE,
		DeviceAction: &embedded.DeviceAction{
			DeviceRequestJson: `{"inputs":[{"intent":"action.devices.EXECUTE","payload":{"commands":[{"execution":[{"command":"a"},{"command":"b"}]}]}}]}`,
		},
		SpeechResults: []*embedded.SpeechRecognitionResult{{Transcript: "hello", Stability: 0.9}},
		DialogStateOut: &embedded.DialogStateOut{
			SupplementalDisplayText: "Hi there",
			VolumePercentage:        30,
		},
		AudioOut:  &embedded.AudioOut{AudioData: []byte{1, 2}},
		ScreenOut: &embedded.ScreenOut{Data: []byte("<b>hi</b>")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertKinds(t, "routed", eventKinds(routed.events),
		events.KindDeviceAction, events.KindDeviceAction,
		events.KindRequestFinished,
		events.KindVolumeChanged,
		events.KindSpeechRecognition,
		events.KindAssistantResponse,
		events.KindAssistantDisplayOut,
	)
	if !routed.endOfUtterance {
		t.Fatalf("expected end of utterance")
	}
	if routed.dialogState == nil || routed.dialogState.volume != 30 {
		t.Fatalf("expected dialog state with volume 30, got %+v", routed.dialogState)
	}
	if len(routed.audio) != 2 || routed.audioEnded {
		t.Fatalf("expected first audio chunk not to end the response")
	}

	recognition := routed.events[4].(events.SpeechRecognition)
	if recognition.Transcript() != "hello" || recognition.Results[0].Stability != 0.9 {
		t.Fatalf("unexpected speech results %+v", recognition.Results)
	}
}

func TestRouteSpeechResultsWithoutDialogState(t *testing.T) {
	routed, err := newDemultiplexer(true).route(&embedded.AssistResponse{
		SpeechResults: []*embedded.SpeechRecognitionResult{{Transcript: "what"}, {Transcript: " time"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertKinds(t, "routed", eventKinds(routed.events), events.KindSpeechRecognition)

	empty, _ := newDemultiplexer(true).route(&embedded.AssistResponse{})
	if len(empty.events) != 0 || empty.dialogState != nil || empty.audio != nil {
		t.Fatalf("expected an empty response to route to nothing, got %+v", empty)
	}
}

func TestRouteDialogStateAlwaysAnnouncesResponse(t *testing.T) {
	routed, _ := newDemultiplexer(true).route(&embedded.AssistResponse{
		DialogStateOut: &embedded.DialogStateOut{ConversationState: []byte("S")},
	})
	assertKinds(t, "routed", eventKinds(routed.events),
		events.KindSpeechRecognition,
		events.KindAssistantResponse,
	)
	if text := routed.events[1].(events.AssistantResponse).Text; text != "" {
		t.Fatalf("expected empty response text, got %q", text)
	}
	if string(routed.dialogState.conversationState) != "S" {
		t.Fatalf("expected conversation state to be carried")
	}
}

func TestRouteSizeHeuristic(t *testing.T) {
	testCases := []struct {
		name      string
		heuristic bool
		sizes     []int
		ended     []bool
	}{
		{
			name:      "growing chunks keep buffering",
			heuristic: true,
			sizes:     []int{10, 20, 30},
			ended:     []bool{false, false, false},
		},
		{
			name:      "smaller chunk ends the response",
			heuristic: true,
			sizes:     []int{100, 80},
			ended:     []bool{false, true},
		},
		{
			name:      "equal chunk ends the response",
			heuristic: true,
			sizes:     []int{100, 100},
			ended:     []bool{false, true},
		},
		{
			name:      "tracking restarts after a terminator",
			heuristic: true,
			sizes:     []int{100, 50, 60, 40},
			ended:     []bool{false, true, false, true},
		},
		{
			name:      "disabled heuristic never ends",
			heuristic: false,
			sizes:     []int{100, 80},
			ended:     []bool{false, false},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			demux := newDemultiplexer(tc.heuristic)
			for i, size := range tc.sizes {
				routed, err := demux.route(audioOut(size))
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(routed.audio) != size {
					t.Fatalf("chunk %d: expected %d bytes, got %d", i, size, len(routed.audio))
				}
				if routed.audioEnded != tc.ended[i] {
					t.Fatalf("chunk %d: expected ended=%v, got %v", i, tc.ended[i], routed.audioEnded)
				}
			}
		})
	}
}

func TestRouteMalformedDeviceActionKeepsOtherFields(t *testing.T) {
	routed, err := newDemultiplexer(true).route(&embedded.AssistResponse{
		DeviceAction: &embedded.DeviceAction{DeviceRequestJson: "not json"},
		EventType:    embedded.AssistResponse_END_OF_UTTERANCE,
	})

	var protocolErr *ProtocolError
	if !errors.As(err, &protocolErr) || protocolErr.Payload != "device action" {
		t.Fatalf("expected device action protocol error, got %v", err)
	}
	assertKinds(t, "routed", eventKinds(routed.events), events.KindRequestFinished)
}

func TestParseDeviceActions(t *testing.T) {
	testCases := []struct {
		name     string
		payload  string
		commands []string
	}{
		{
			name:     "skips non execute intents",
			payload:  `{"inputs":[{"intent":"action.devices.SYNC"},{"intent":"action.devices.EXECUTE","payload":{"commands":[{"execution":[{"command":"x"}]}]}}]}`,
			commands: []string{"x"},
		},
		{
			name:     "flattens commands in order",
			payload:  `{"inputs":[{"intent":"action.devices.EXECUTE","payload":{"commands":[{"execution":[{"command":"a"}]},{"execution":[{"command":"b"},{"command":"c"}]}]}}]}`,
			commands: []string{"a", "b", "c"},
		},
		{
			name:    "no inputs",
			payload: `{}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actions, err := parseDeviceActions(tc.payload)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(actions) != len(tc.commands) {
				t.Fatalf("expected %d actions, got %d", len(tc.commands), len(actions))
			}
			for i, action := range actions {
				if action.Command != tc.commands[i] {
					t.Fatalf("action %d: expected %q, got %q", i, tc.commands[i], action.Command)
				}
			}
		})
	}
}
