// Package events defines the typed conversation event contract.
//
// Event kinds are grouped by namespace, and the namespace decides which
// handler receives them:
//
//   - request.* goes to the request handler.
//   - response.* and conversation.* go to the conversation handler.
//
// request events
//
//   - RequestStart (request.started): the turn configuration was sent.
//   - AudioRecording (request.audio_recording): one captured frame, emitted
//     right before it is sent upstream.
//   - SpeechRecognition (request.speech_recognition): interim or final
//     recognition results.
//   - RequestFinished (request.finished): the server detected the end of the
//     utterance.
//
// response events
//
//   - ResponseStarted (response.started): playback of the response audio
//     started.
//   - AudioSample (response.audio_sample): one response chunk, emitted right
//     before the blocking write to the sink.
//   - ResponseFinished (response.finished): playback ended.
//
// conversation events
//
//   - VolumeChanged (conversation.volume_changed): server requested volume.
//   - AssistantResponse (conversation.assistant_response): supplemental
//     display text.
//   - AssistantDisplayOut (conversation.display_out): screen payload.
//   - DeviceAction (conversation.device_action): command with params.
//   - Error (conversation.error): the turn failed.
//   - ConversationFinished (conversation.finished): the dialog chain ended.
package events
