package assistant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
	"google.golang.org/genproto/googleapis/type/latlng"
)

type State int32

const (
	StateIdle State = iota
	StateOpening
	StateStreaming
	StateServerResponding
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateServerResponding:
		return "server_responding"
	case StatePlaying:
		return "playing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Engine drives push-to-talk conversations with the Assistant service.
//
// State transitions, stream setup and teardown, response handling and
// playback all run on the engine queue. Capture runs on its own queue so a
// blocking read never stalls the state machine. Events reach the consumer
// through one dispatcher per handler.
type Engine struct {
	config Config

	baseContext context.Context
	cancel      context.CancelFunc

	engineQueue  *serialQueue
	captureQueue *serialQueue
	requests     *dispatcher
	conversation *dispatcher

	transportMu sync.Mutex
	transport   transport.Transport

	state          atomic.Int32
	turn           atomic.Pointer[pendingTurn]
	responseFormat atomic.Int32
	destroyed      atomic.Bool

	// Carried across turns, only touched on the engine queue.
	volume            int
	conversationState []byte
}

// New validates the options and builds an engine. The engine still has to
// Connect before a conversation can start.
func New(opts ...Option) (*Engine, error) {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	config, err := config.frozen()
	if err != nil {
		return nil, err
	}

	if name := config.PreferredInputDevice; name != "" && config.AudioSource != nil {
		if selector, ok := config.AudioSource.(audio.DeviceSelector); ok {
			if err := selector.SelectDevice(name); err != nil {
				logger.Warn("failed to select preferred input device, using default", "device", name, "error", err)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	engine := &Engine{
		config:       config,
		baseContext:  ctx,
		cancel:       cancel,
		engineQueue:  newSerialQueue("engine"),
		captureQueue: newSerialQueue("capture"),
		requests:     newDispatcher("request callbacks", config.RequestHandler, config.RequestExecutor),
		conversation: newDispatcher("conversation callbacks", config.ConversationHandler, config.ConversationExecutor),
		transport:    config.Transport,
		volume:       config.Volume,
	}
	engine.responseFormat.Store(int32(config.ResponseFormat))
	return engine, nil
}

// Connect dials the Assistant endpoint. It is a no-op when a transport was
// provided or the engine is already connected.
func (e *Engine) Connect(ctx context.Context) error {
	if e.destroyed.Load() {
		return ErrDestroyed
	}

	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	if e.transport != nil {
		return nil
	}

	client, err := transport.Dial(e.config.Endpoint, transport.WithTokenSource(e.config.Credentials))
	if err != nil {
		return fmt.Errorf("failed to connect to assistant: %w", err)
	}
	e.transport = client
	logger.InfoContext(ctx, "connected to assistant", "endpoint", e.config.Endpoint)
	return nil
}

func (e *Engine) currentTransport() transport.Transport {
	e.transportMu.Lock()
	defer e.transportMu.Unlock()
	return e.transport
}

// StartConversation starts a voice turn. It fails with
// ErrConversationActive unless the engine is idle.
func (e *Engine) StartConversation() error {
	return e.start(turnInput{mode: inputVoice})
}

// StartConversationText starts a turn with a typed query instead of
// captured audio. The audio source is not touched.
func (e *Engine) StartConversationText(query string) error {
	if query == "" {
		return ErrEmptyQuery
	}
	return e.start(turnInput{mode: inputText, query: query})
}

func (e *Engine) start(input turnInput) error {
	if e.destroyed.Load() {
		return ErrDestroyed
	} else if e.currentTransport() == nil {
		return ErrNotConnected
	} else if input.mode == inputVoice && e.config.AudioSource == nil {
		return ErrNoAudioSource
	}

	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateOpening)) {
		return ErrConversationActive
	}
	if !e.engineQueue.Post(func() { e.startTurn(input) }) {
		e.setState(StateIdle)
		return ErrDestroyed
	}
	return nil
}

// StopConversation ends the current turn. Capture stops right away, the
// rest of the teardown happens on the engine queue and ends with
// ConversationFinished.
func (e *Engine) StopConversation() {
	if e.destroyed.Load() {
		return
	}
	if turn := e.turn.Load(); turn != nil {
		turn.stopRequested.Store(true)
		e.stopCapture(turn)
	}
	e.engineQueue.Post(e.teardown)
}

// SetResponseFormat changes the screen output requested from the next turn
// on.
func (e *Engine) SetResponseFormat(format ResponseFormat) {
	e.responseFormat.Store(int32(format))
}

func (e *Engine) ResponseFormat() ResponseFormat {
	return ResponseFormat(e.responseFormat.Load())
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

// Destroy stops any conversation, drains the engine and capture queues and
// releases the audio source and transport. No event is delivered after
// Destroy returns when the default executors are used. It must not be
// called from an event handler.
func (e *Engine) Destroy() error {
	if !e.destroyed.CompareAndSwap(false, true) {
		return nil
	}

	if turn := e.turn.Load(); turn != nil {
		turn.stopRequested.Store(true)
		e.stopCapture(turn)
	}
	e.engineQueue.Post(e.teardown)
	e.engineQueue.Shutdown()
	e.captureQueue.Shutdown()

	e.requests.close()
	e.conversation.close()

	var errs error
	if e.config.AudioSource != nil {
		if err := e.config.AudioSource.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close audio source: %w", err))
		}
	}
	if t := e.currentTransport(); t != nil {
		if err := t.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to close transport: %w", err))
		}
	}
	e.cancel()

	return errs
}

func (e *Engine) setState(state State) {
	e.state.Store(int32(state))
}

func (e *Engine) isCurrent(turn *pendingTurn) bool {
	return e.turn.Load() == turn
}

func (e *Engine) emit(event events.Event) {
	if event.Kind().IsRequest() {
		e.requests.dispatch(event)
		return
	}
	e.conversation.dispatch(event)
}

// startTurn opens the stream and sends the turn config. It runs on the
// engine queue with the state already moved to Opening.
func (e *Engine) startTurn(input turnInput) {
	if e.destroyed.Load() {
		e.setState(StateIdle)
		return
	} else if current := e.turn.Load(); current != nil {
		logger.Warn("dropping start while a turn is active", "turn_id", current.id)
		return
	}

	turn := newPendingTurn(e.baseContext, input, e.config.SizeHeuristic)
	turn.ctx, turn.span = tracer.Start(turn.ctx, "assistant turn", trace.WithAttributes(
		attribute.String("assistant_turn.id", turn.id),
		attribute.String("assistant_turn.input_mode", input.mode.String()),
	))
	e.turn.Store(turn)

	if input.mode == inputVoice {
		if err := e.config.AudioSource.Start(); err != nil {
			e.failTurn(turn, &audio.DeviceError{Op: "start capture", Err: err})
			return
		}
	}

	sender, err := e.currentTransport().OpenStream(turn.ctx, transport.StreamHandlers{
		OnResponse: func(resp *embedded.AssistResponse) {
			e.engineQueue.Post(func() { e.handleResponse(turn, resp) })
		},
		OnError: func(err error) {
			e.engineQueue.Post(func() { e.handleStreamError(turn, err) })
		},
		OnComplete: func() {
			e.engineQueue.Post(func() { e.handleStreamComplete(turn) })
		},
	})
	if err != nil {
		e.failTurn(turn, err)
		return
	}
	turn.sender = sender

	if err := sender.Send(transport.ConfigRequest(e.assistConfig(input))); err != nil {
		e.failTurn(turn, fmt.Errorf("failed to send turn config: %w", err))
		return
	}
	e.emit(events.NewRequestStart())

	if input.mode == inputText {
		if err := sender.CloseSend(); err != nil {
			logger.WarnContext(turn.ctx, "failed to half-close text turn", "turn_id", turn.id, "error", err)
		}
		e.setState(StateServerResponding)
		return
	}

	e.setState(StateStreaming)
	turn.capturing.Store(true)
	e.captureQueue.Post(func() { e.pump(turn) })
}

func (e *Engine) assistConfig(input turnInput) *embedded.AssistConfig {
	settings := e.config.Settings

	config := &embedded.AssistConfig{
		AudioOutConfig: &embedded.AudioOutConfig{
			Encoding:         embedded.AudioOutConfig_LINEAR16,
			SampleRateHertz:  int32(settings.SampleRate),
			VolumePercentage: int32(e.volume),
		},
		DeviceConfig: &embedded.DeviceConfig{
			DeviceId:      settings.DeviceInstanceID,
			DeviceModelId: settings.DeviceModelID,
		},
		DialogStateIn: &embedded.DialogStateIn{
			ConversationState: e.conversationState,
			LanguageCode:      settings.LanguageCode,
		},
		ScreenOutConfig: &embedded.ScreenOutConfig{
			ScreenMode: screenMode(e.ResponseFormat()),
		},
	}

	if loc := settings.DeviceLocation; loc != nil {
		config.DialogStateIn.DeviceLocation = &embedded.DeviceLocation{
			Type: &embedded.DeviceLocation_Coordinates{
				Coordinates: &latlng.LatLng{Latitude: loc.Latitude, Longitude: loc.Longitude},
			},
		}
	}

	if input.mode == inputText {
		config.Type = &embedded.AssistConfig_TextQuery{TextQuery: input.query}
	} else {
		config.Type = &embedded.AssistConfig_AudioInConfig{
			AudioInConfig: &embedded.AudioInConfig{
				Encoding:        embedded.AudioInConfig_LINEAR16,
				SampleRateHertz: int32(settings.SampleRate),
			},
		}
	}

	return config
}

func screenMode(format ResponseFormat) embedded.ScreenOutConfig_ScreenMode {
	if format == ResponseFormatHTML {
		return embedded.ScreenOutConfig_PLAYING
	}
	return embedded.ScreenOutConfig_SCREEN_MODE_UNSPECIFIED
}

func (e *Engine) handleResponse(turn *pendingTurn, resp *embedded.AssistResponse) {
	if !e.isCurrent(turn) || turn.stopRequested.Load() {
		return
	}

	routed, err := turn.demux.route(resp)
	if err != nil {
		logger.WarnContext(turn.ctx, "discarding malformed response payload", "turn_id", turn.id, "error", err)
	}

	if state := routed.dialogState; state != nil {
		e.conversationState = state.conversationState
		if state.volume != 0 {
			e.volume = state.volume
		}
		turn.microphoneMode = state.microphoneMode
	}
	if routed.endOfUtterance {
		e.stopCapture(turn)
		if e.State() == StateStreaming {
			e.setState(StateServerResponding)
		}
	}
	for _, event := range routed.events {
		e.emit(event)
	}

	if len(routed.audio) > 0 {
		turn.chunks = append(turn.chunks, routed.audio)
	}
	if routed.audioEnded {
		e.engineQueue.Post(func() { e.playPending(turn) })
	}
}

// playPending plays what the size heuristic marked as a complete response.
func (e *Engine) playPending(turn *pendingTurn) {
	if !e.isCurrent(turn) || turn.stopRequested.Load() || turn.streamDone {
		return
	}
	if err := e.play(turn); err != nil {
		e.failTurn(turn, err)
		return
	}
	if e.State() == StatePlaying {
		e.setState(StateServerResponding)
	}
}

// handleStreamComplete is the authoritative end of a turn: whatever is still
// buffered gets played before the turn finishes.
func (e *Engine) handleStreamComplete(turn *pendingTurn) {
	if !e.isCurrent(turn) {
		return
	}
	turn.streamDone = true
	e.stopCapture(turn)
	if turn.stopRequested.Load() {
		return
	}

	if len(turn.chunks) > 0 || !turn.played {
		if err := e.play(turn); err != nil {
			e.failTurn(turn, err)
			return
		}
	}
	e.finishTurn(turn)
}

func (e *Engine) handleStreamError(turn *pendingTurn, err error) {
	if !e.isCurrent(turn) || turn.stopRequested.Load() {
		return
	}
	e.failTurn(turn, err)
}

// finishTurn either chains a follow-on turn or ends the conversation.
func (e *Engine) finishTurn(turn *pendingTurn) {
	followOn := turn.microphoneMode == embedded.DialogStateOut_DIALOG_FOLLOW_ON &&
		!turn.stopRequested.Load() && !e.destroyed.Load()
	if followOn && e.config.AudioSource == nil {
		logger.WarnContext(turn.ctx, "cannot follow on without an audio source", "turn_id", turn.id)
		followOn = false
	}

	if followOn {
		e.endTurn(turn, outcomeFollowOn, StateOpening)
		if !e.engineQueue.Post(func() { e.startTurn(turnInput{mode: inputVoice}) }) {
			e.setState(StateIdle)
		}
		return
	}

	e.endTurn(turn, outcomeCompleted, StateIdle)
	e.emit(events.NewConversationFinished())
}

func (e *Engine) failTurn(turn *pendingTurn, err error) {
	turn.span.RecordError(err)
	turn.span.SetStatus(codes.Error, err.Error())
	logger.ErrorContext(turn.ctx, "assistant turn failed", "turn_id", turn.id, "state", e.State().String(), "error", err)

	e.endTurn(turn, outcomeFailed, StateIdle)
	e.emit(events.NewError(err))
}

// teardown ends whatever turn is current on behalf of StopConversation or
// Destroy.
func (e *Engine) teardown() {
	turn := e.turn.Load()
	if turn == nil {
		if e.State() != StateIdle {
			e.setState(StateIdle)
			e.emit(events.NewConversationFinished())
		}
		return
	}

	turn.stopRequested.Store(true)
	e.stopCapture(turn)
	if turn.sender != nil {
		if err := turn.sender.CloseSend(); err != nil {
			logger.WarnContext(turn.ctx, "failed to half-close stream", "turn_id", turn.id, "error", err)
		}
	}
	e.endTurn(turn, outcomeStopped, StateIdle)
	e.emit(events.NewConversationFinished())
}

// endTurn releases everything the turn holds and moves the engine to next.
func (e *Engine) endTurn(turn *pendingTurn, outcome string, next State) {
	turn.end(func() {
		e.stopCapture(turn)
		turn.cancel()

		turn.span.SetAttributes(
			attribute.String("assistant_turn.outcome", outcome),
			attribute.String("assistant_turn.microphone_mode", turn.microphoneMode.String()),
			attribute.Int64("assistant_turn.audio_in_bytes", turn.audioInBytes.Load()),
			attribute.Int64("assistant_turn.audio_out_bytes", turn.audioOutBytes),
		)
		turn.span.End()
		turnsCounter.Add(e.baseContext, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

		e.turn.CompareAndSwap(turn, nil)
		e.setState(next)
	})
}
