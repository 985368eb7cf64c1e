package commands

import (
	"log"

	"github.com/koscakluka/ema-assistant/core/events"
)

// eventSink is anything that wants a copy of every event, the event tap in
// practice.
type eventSink interface {
	HandleEvent(event events.Event)
}

// bridge receives engine events on the dispatcher goroutines and hands the
// ones the UI shows to the bubbletea program.
type bridge struct {
	ui    chan events.Event
	done  chan struct{}
	state *stateStore
	sinks []eventSink
}

func newBridge(state *stateStore, sinks ...eventSink) *bridge {
	return &bridge{
		ui:    make(chan events.Event, 256),
		done:  make(chan struct{}),
		state: state,
		sinks: sinks,
	}
}

func (b *bridge) HandleEvent(event events.Event) {
	for _, sink := range b.sinks {
		sink.HandleEvent(event)
	}

	switch typedEvent := event.(type) {
	case events.AudioRecording, events.AudioSample:
		return
	case events.VolumeChanged:
		if b.state != nil {
			if err := b.state.SetVolume(typedEvent.Percentage); err != nil {
				log.Printf("Failed to save volume: %v", err)
			}
		}
	}

	select {
	case b.ui <- event:
	case <-b.done:
	}
}

// Events is read by the UI until close.
func (b *bridge) Events() <-chan events.Event {
	return b.ui
}

// close unblocks handlers once the UI stopped reading.
func (b *bridge) close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}
