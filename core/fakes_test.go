package assistant

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-assistant/core/audio"
	"github.com/koscakluka/ema-assistant/core/events"
	"github.com/koscakluka/ema-assistant/core/transport"
	"golang.org/x/oauth2"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
)

const testTimeout = 2 * time.Second

type fakeTransport struct {
	mu      sync.Mutex
	streams []*fakeStream
	opened  chan *fakeStream
	openErr error
	closed  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{opened: make(chan *fakeStream, 16)}
}

func (t *fakeTransport) OpenStream(ctx context.Context, handlers transport.StreamHandlers) (transport.Sender, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return nil, t.openErr
	}

	stream := &fakeStream{ctx: ctx, handlers: handlers}
	t.streams = append(t.streams, stream)
	t.opened <- stream
	return stream, nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) waitForStream(tb testing.TB) *fakeStream {
	tb.Helper()
	select {
	case stream := <-t.opened:
		return stream
	case <-time.After(testTimeout):
		tb.Fatalf("timed out waiting for a stream to open")
		return nil
	}
}

type fakeStream struct {
	ctx      context.Context
	handlers transport.StreamHandlers

	mu         sync.Mutex
	requests   []*embedded.AssistRequest
	halfClosed bool
}

func (s *fakeStream) Send(req *embedded.AssistRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halfClosed {
		return transport.ErrSendClosed
	}
	s.requests = append(s.requests, req)
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halfClosed = true
	return nil
}

func (s *fakeStream) isHalfClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halfClosed
}

func (s *fakeStream) config() *embedded.AssistConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[0].GetConfig()
}

func (s *fakeStream) audioIn() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	var frames [][]byte
	for _, req := range s.requests {
		if frame := req.GetAudioIn(); frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames
}

func (s *fakeStream) waitForAudioIn(tb testing.TB, count int) [][]byte {
	tb.Helper()
	deadline := time.Now().Add(testTimeout)
	for {
		frames := s.audioIn()
		if len(frames) >= count {
			return frames
		}
		if time.Now().After(deadline) {
			tb.Fatalf("timed out waiting for %d audio frames, got %d", count, len(frames))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (s *fakeStream) respond(responses ...*embedded.AssistResponse) {
	for _, resp := range responses {
		s.handlers.OnResponse(resp)
	}
}

func (s *fakeStream) complete() { s.handlers.OnComplete() }

func (s *fakeStream) fail(err error) { s.handlers.OnError(err) }

// fakeSource hands out queued frames and then blocks until stopped, the way
// a microphone with nothing more to say would. endless sources never run
// out.
type fakeSource struct {
	mu      sync.Mutex
	cond    *sync.Cond
	frames  [][]byte
	endless bool
	readErr error

	started    bool
	startCalls int
	stopCalls  int
	bytesRead  int
	closed     bool
	selected   string
}

func newFakeSource(frames ...[]byte) *fakeSource {
	source := &fakeSource{frames: frames}
	source.cond = sync.NewCond(&source.mu)
	return source
}

func (s *fakeSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.startCalls++
	return nil
}

func (s *fakeSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.stopCalls++
	s.cond.Broadcast()
	return nil
}

func (s *fakeSource) ReadFrame(buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.started && s.readErr == nil && !s.endless && len(s.frames) == 0 {
		s.cond.Wait()
	}
	if !s.started {
		return 0, audio.ErrSourceStopped
	}
	if s.readErr != nil {
		return 0, s.readErr
	}

	var n int
	if s.endless {
		n = len(buf)
	} else {
		n = copy(buf, s.frames[0])
		s.frames = s.frames[1:]
	}
	s.bytesRead += n
	return n, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) SelectDevice(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = name
	return nil
}

func (s *fakeSource) failReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
	s.cond.Broadcast()
}

func (s *fakeSource) counts() (startCalls, stopCalls, bytesRead int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCalls, s.stopCalls, s.bytesRead
}

type fakeSinkFactory struct {
	mu     sync.Mutex
	sinks  []*fakeSink
	err    error
	device string
}

func (f *fakeSinkFactory) NewSink(info audio.EncodingInfo, bufferBytes int, preferredDevice string) (audio.Sink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.device = preferredDevice
	sink := &fakeSink{info: info, bufferBytes: bufferBytes}
	f.sinks = append(f.sinks, sink)
	return sink, nil
}

func (f *fakeSinkFactory) created() []*fakeSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSink(nil), f.sinks...)
}

type fakeSink struct {
	info        audio.EncodingInfo
	bufferBytes int

	mu       sync.Mutex
	volume   float64
	writes   [][]byte
	playing  bool
	stopped  bool
	released bool
	writeErr error
}

func (s *fakeSink) SetVolume(scalar float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = scalar
	return nil
}

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	return nil
}

func (s *fakeSink) Write(frame []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.writes = append(s.writes, frame)
	return len(frame), nil
}

func (s *fakeSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.stopped = true
	return nil
}

func (s *fakeSink) finished() (stopped, released bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped, s.released
}

func (s *fakeSink) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) HandleEvent(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) snapshot() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) kinds() []events.Kind {
	var kinds []events.Kind
	for _, event := range r.snapshot() {
		if event.Kind() == kindBarrier || event.Kind() == kindRequestBarrier {
			continue
		}
		kinds = append(kinds, event.Kind())
	}
	return kinds
}

func (r *eventRecorder) count(kind events.Kind) int {
	count := 0
	for _, event := range r.snapshot() {
		if event.Kind() == kind {
			count++
		}
	}
	return count
}

func (r *eventRecorder) waitFor(tb testing.TB, kind events.Kind, count int) {
	tb.Helper()
	deadline := time.Now().Add(testTimeout)
	for r.count(kind) < count {
		if time.Now().After(deadline) {
			tb.Fatalf("timed out waiting for %d %q events, got kinds %v", count, kind, r.kinds())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

const (
	kindBarrier        events.Kind = "test.barrier"
	kindRequestBarrier events.Kind = "request.test_barrier"
)

type barrierEvent struct{ events.Base }

// settle waits until every task queued on the engine so far has run and
// every event it emitted reached both handlers.
func (te *testEngine) settle(tb testing.TB) {
	tb.Helper()
	conversationBefore := te.conversation.count(kindBarrier)
	requestsBefore := te.requests.count(kindRequestBarrier)
	te.engineQueue.Post(func() {
		te.emit(barrierEvent{Base: events.NewBase(kindBarrier)})
		te.emit(barrierEvent{Base: events.NewBase(kindRequestBarrier)})
	})
	te.conversation.waitFor(tb, kindBarrier, conversationBefore+1)
	te.requests.waitFor(tb, kindRequestBarrier, requestsBefore+1)
}

type testEngine struct {
	*Engine
	requests     *eventRecorder
	conversation *eventRecorder
	transport    *fakeTransport
	source       *fakeSource
	sinks        *fakeSinkFactory
}

func newTestEngine(tb testing.TB, source *fakeSource, opts ...Option) *testEngine {
	tb.Helper()

	te := &testEngine{
		requests:     &eventRecorder{},
		conversation: &eventRecorder{},
		transport:    newFakeTransport(),
		source:       source,
		sinks:        &fakeSinkFactory{},
	}

	baseOpts := []Option{
		WithRequestHandler(te.requests),
		WithConversationHandler(te.conversation),
		WithCredentials(staticCredentials()),
		WithSampleRate(16000),
		WithBlockSize(4),
		WithTransport(te.transport),
		WithAudioSinkFactory(te.sinks),
	}
	if source != nil {
		baseOpts = append(baseOpts, WithAudioSource(source))
	}

	engine, err := New(append(baseOpts, opts...)...)
	if err != nil {
		tb.Fatalf("failed to build engine: %v", err)
	}
	if err := engine.Connect(context.Background()); err != nil {
		tb.Fatalf("failed to connect engine: %v", err)
	}
	tb.Cleanup(func() { _ = engine.Destroy() })

	te.Engine = engine
	return te
}

func staticCredentials() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"})
}

func frame(b byte) []byte {
	return []byte{b, b, b, b}
}

func audioOut(size int) *embedded.AssistResponse {
	return &embedded.AssistResponse{AudioOut: &embedded.AudioOut{AudioData: make([]byte, size)}}
}
