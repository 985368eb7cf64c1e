package assistant

import (
	"errors"

	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/transport"
	"go.opentelemetry.io/otel/codes"
)

// pump reads one block from the source, sends it upstream and reposts
// itself. It runs on the capture queue until the turn stops capturing.
func (e *Engine) pump(turn *pendingTurn) {
	if !turn.capturing.Load() {
		return
	}

	buf := make([]byte, e.config.BlockSize)
	n, err := e.config.AudioSource.ReadFrame(buf)
	if err != nil {
		if !errors.Is(err, audio.ErrSourceStopped) {
			e.engineQueue.Post(func() { e.handleCaptureFailure(turn, err) })
		}
		return
	}

	frame := buf[:n]
	e.emit(events.NewAudioRecording(frame))
	if err := turn.sender.Send(transport.AudioInRequest(frame)); err != nil {
		logger.DebugContext(turn.ctx, "stopping capture, stream no longer accepts audio", "turn_id", turn.id, "error", err)
		return
	}
	turn.audioInBytes.Add(int64(n))
	audioInBytes.Add(turn.ctx, int64(n))

	e.captureQueue.Post(func() { e.pump(turn) })
}

// handleCaptureFailure stops capture and half-closes the stream so the
// server can answer whatever it already received.
func (e *Engine) handleCaptureFailure(turn *pendingTurn, err error) {
	if !e.isCurrent(turn) || turn.stopRequested.Load() {
		return
	}

	var deviceErr *audio.DeviceError
	if !errors.As(err, &deviceErr) {
		err = &audio.DeviceError{Op: "read", Err: err}
	}
	logger.WarnContext(turn.ctx, "audio capture failed", "turn_id", turn.id, "error", err)
	turn.span.RecordError(err)
	turn.span.SetStatus(codes.Error, err.Error())

	e.stopCapture(turn)
	if err := turn.sender.CloseSend(); err != nil {
		logger.WarnContext(turn.ctx, "failed to half-close stream", "turn_id", turn.id, "error", err)
	}
	if e.State() == StateStreaming {
		e.setState(StateServerResponding)
	}
}

// stopCapture halts the pump and stops the source once per turn. It is
// safe to call from any goroutine.
func (e *Engine) stopCapture(turn *pendingTurn) {
	turn.capturing.Store(false)
	if turn.input.mode != inputVoice || e.config.AudioSource == nil {
		return
	}

	turn.stopSourceOnce.Do(func() {
		if err := e.config.AudioSource.Stop(); err != nil {
			logger.WarnContext(turn.ctx, "failed to stop audio source", "turn_id", turn.id, "error", err)
		}
	})
}
