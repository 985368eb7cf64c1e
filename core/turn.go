package assistant

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-assistant/core/transport"
	"go.opentelemetry.io/otel/trace"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
)

type inputMode int

const (
	inputVoice inputMode = iota
	inputText
)

func (m inputMode) String() string {
	if m == inputText {
		return "text"
	}
	return "voice"
}

type turnInput struct {
	mode  inputMode
	query string
}

const (
	outcomeCompleted = "completed"
	outcomeFollowOn  = "follow_on"
	outcomeStopped   = "stopped"
	outcomeFailed    = "failed"
)

// pendingTurn is the in-flight state of one request/response exchange.
// Everything not atomic is only touched on the engine queue.
type pendingTurn struct {
	id     string
	input  turnInput
	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span

	sender transport.Sender
	demux  *demultiplexer

	chunks         [][]byte
	microphoneMode embedded.DialogStateOut_MicrophoneMode
	played         bool
	streamDone     bool
	audioOutBytes  int64

	capturing     atomic.Bool
	stopRequested atomic.Bool
	audioInBytes  atomic.Int64

	stopSourceOnce sync.Once
	endOnce        sync.Once
}

func newPendingTurn(ctx context.Context, input turnInput, sizeHeuristic bool) *pendingTurn {
	ctx, cancel := context.WithCancel(ctx)
	return &pendingTurn{
		id:     uuid.NewString(),
		input:  input,
		ctx:    ctx,
		cancel: cancel,
		demux:  newDemultiplexer(sizeHeuristic),
	}
}

func (t *pendingTurn) takeChunks() [][]byte {
	chunks := t.chunks
	t.chunks = nil
	return chunks
}

// end runs fn the first time it is called.
func (t *pendingTurn) end(fn func()) {
	t.endOnce.Do(fn)
}
