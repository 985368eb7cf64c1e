package assistant

import (
	"errors"

	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/events"
)

// play writes the buffered response audio to a fresh sink in arrival order.
// It blocks the engine queue for as long as playback lasts.
func (e *Engine) play(turn *pendingTurn) error {
	chunks := turn.takeChunks()
	turn.played = true
	e.setState(StatePlaying)

	info := audio.NewEncodingInfo(e.config.SampleRate)
	var sink audio.Sink
	if e.config.SinkFactory != nil {
		var err error
		sink, err = e.config.SinkFactory.NewSink(info, info.BytesPerSecond()/10, e.config.PreferredOutputDevice)
		if err != nil {
			return &audio.DeviceError{Op: "create sink", Err: err}
		}
		if err := sink.SetVolume(audio.ClampVolume(e.volume)); err != nil {
			logger.WarnContext(turn.ctx, "failed to set playback volume", "turn_id", turn.id, "volume", e.volume, "error", err)
		}
		if err := sink.Play(); err != nil {
			releaseSink(turn, sink)
			return &audio.DeviceError{Op: "play", Err: err}
		}
	}

	e.emit(events.NewResponseStarted())
	for _, chunk := range chunks {
		if turn.stopRequested.Load() {
			break
		}

		e.emit(events.NewAudioSample(chunk))
		if sink != nil {
			if _, err := sink.Write(chunk); err != nil {
				releaseSink(turn, sink)
				return &audio.DeviceError{Op: "write", Err: err}
			}
		}
		turn.audioOutBytes += int64(len(chunk))
		audioOutBytes.Add(turn.ctx, int64(len(chunk)))
	}

	if sink != nil {
		releaseSink(turn, sink)
	}
	e.emit(events.NewResponseFinished())
	return nil
}

func releaseSink(turn *pendingTurn, sink audio.Sink) {
	if err := errors.Join(sink.Stop(), sink.Release()); err != nil {
		logger.WarnContext(turn.ctx, "failed to release audio sink", "turn_id", turn.id, "error", err)
	}
}
