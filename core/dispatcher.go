package assistant

import (
	"sync/atomic"

	"github.com/koscakluka/ema-assistant/core/events"
)

// dispatcher delivers events to one handler on its execution context.
// Handlers are never invoked on the caller's goroutine.
type dispatcher struct {
	handler  Handler
	executor Executor
	// own is set when the dispatcher created its executor and has to stop it.
	own *serialQueue

	closed atomic.Bool
}

func newDispatcher(name string, handler Handler, executor Executor) *dispatcher {
	d := &dispatcher{handler: handler, executor: executor}
	if executor == nil {
		d.own = newSerialQueue(name)
		d.executor = d.own
	}
	return d
}

func (d *dispatcher) dispatch(event events.Event) {
	if d.closed.Load() {
		return
	}
	d.executor.Execute(func() {
		if d.closed.Load() {
			return
		}
		d.handler.HandleEvent(event)
	})
}

// close drops every event not yet handed to the handler. With its own
// queue it also waits for a handler that is still running.
func (d *dispatcher) close() {
	d.closed.Store(true)
	if d.own != nil {
		d.own.Shutdown()
	}
}
