// Package transport carries Assist requests and responses over a
// bidirectional stream.
package transport

import (
	"context"
	"errors"

	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
)

var (
	ErrSendClosed    = errors.New("outbound stream already half-closed")
	ErrStreamClosed  = errors.New("stream closed")
	ErrMissingHandle = errors.New("stream handlers must all be set")
)

// Sender is the outbound half of a stream. Send never blocks and requests
// go out in the order they were sent. CloseSend half-closes the stream after
// every request queued before it.
type Sender interface {
	Send(req *embedded.AssistRequest) error
	CloseSend() error
}

// StreamHandlers receive inbound traffic. OnResponse is called for every
// response in arrival order, then exactly one of OnError or OnComplete.
// Handlers run on the transport's receive goroutine and should only hand
// work off.
type StreamHandlers struct {
	OnResponse func(*embedded.AssistResponse)
	OnError    func(error)
	OnComplete func()
}

func (h StreamHandlers) valid() bool {
	return h.OnResponse != nil && h.OnError != nil && h.OnComplete != nil
}

// Transport opens one stream per turn.
type Transport interface {
	OpenStream(ctx context.Context, handlers StreamHandlers) (Sender, error)
	Close() error
}

// ConfigRequest wraps a turn configuration into its request message.
func ConfigRequest(config *embedded.AssistConfig) *embedded.AssistRequest {
	return &embedded.AssistRequest{Type: &embedded.AssistRequest_Config{Config: config}}
}

// AudioInRequest wraps captured audio into its request message.
func AudioInRequest(audio []byte) *embedded.AssistRequest {
	return &embedded.AssistRequest{Type: &embedded.AssistRequest_AudioIn{AudioIn: audio}}
}
