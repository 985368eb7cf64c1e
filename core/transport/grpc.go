package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/oauth2"
	embedded "google.golang.org/genproto/googleapis/assistant/embedded/v1alpha2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/credentials/oauth"
)

// DefaultEndpoint is the Assistant API host.
const DefaultEndpoint = "embeddedassistant.googleapis.com:443"

var (
	requestsSent, _      = meter.Int64Counter("transport.requests.sent")
	responsesReceived, _ = meter.Int64Counter("transport.responses.received")
)

type dialOptions struct {
	insecure    bool
	tokenSource oauth2.TokenSource
	extra       []grpc.DialOption
}

type DialOption func(*dialOptions)

// WithTokenSource authenticates every call with a bearer token from ts.
// Tokens are only attached over TLS.
func WithTokenSource(ts oauth2.TokenSource) DialOption {
	return func(o *dialOptions) {
		o.tokenSource = ts
	}
}

// WithInsecure dials without TLS. Only meant for local test servers.
func WithInsecure() DialOption {
	return func(o *dialOptions) {
		o.insecure = true
	}
}

func WithDialOptions(opts ...grpc.DialOption) DialOption {
	return func(o *dialOptions) {
		o.extra = append(o.extra, opts...)
	}
}

// Client is a Transport backed by the EmbeddedAssistant Assist RPC.
type Client struct {
	conn   *grpc.ClientConn
	client embedded.EmbeddedAssistantClient
}

func Dial(target string, opts ...DialOption) (*Client, error) {
	options := dialOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	var grpcOpts []grpc.DialOption
	if options.insecure {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if options.tokenSource != nil {
			logger.Warn("not attaching bearer token to plaintext connection", "target", target)
		}
	} else {
		grpcOpts = append(grpcOpts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
		if options.tokenSource != nil {
			grpcOpts = append(grpcOpts, grpc.WithPerRPCCredentials(oauth.TokenSource{TokenSource: options.tokenSource}))
		}
	}
	grpcOpts = append(grpcOpts, options.extra...)

	conn, err := grpc.NewClient(target, grpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", target, err)
	}

	return &Client{conn: conn, client: embedded.NewEmbeddedAssistantClient(conn)}, nil
}

// OpenStream starts an Assist call. The stream lives until ctx is canceled
// or the server ends the call.
func (c *Client) OpenStream(ctx context.Context, handlers StreamHandlers) (Sender, error) {
	if !handlers.valid() {
		return nil, ErrMissingHandle
	}

	_, span := tracer.Start(ctx, "open assist stream")
	defer span.End()

	rpc, err := c.client.Assist(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, newError("open", err)
	}

	s := newStream(ctx, rpc, handlers)
	go s.sendLoop()
	go s.receiveLoop()
	return s, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

type outbound struct {
	req       *embedded.AssistRequest
	closeSend bool
}

// stream keeps an unbounded outbound queue drained by a single writer so
// Send never blocks the caller and Send/CloseSend never race on the RPC.
type stream struct {
	ctx      context.Context
	rpc      embedded.EmbeddedAssistant_AssistClient
	handlers StreamHandlers

	mu         sync.Mutex
	queue      []outbound
	sendClosed bool
	wake       chan struct{}
	done       chan struct{}
}

func newStream(ctx context.Context, rpc embedded.EmbeddedAssistant_AssistClient, handlers StreamHandlers) *stream {
	return &stream{
		ctx:      ctx,
		rpc:      rpc,
		handlers: handlers,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (s *stream) Send(req *embedded.AssistRequest) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return ErrSendClosed
	}
	s.queue = append(s.queue, outbound{req: req})
	s.signal()
	return nil
}

func (s *stream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return nil
	}
	s.sendClosed = true
	s.queue = append(s.queue, outbound{closeSend: true})
	s.signal()
	return nil
}

func (s *stream) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *stream) next() (outbound, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return outbound{}, false
	}
	next := s.queue[0]
	s.queue[0] = outbound{}
	s.queue = s.queue[1:]
	return next, true
}

func (s *stream) sendLoop() {
	for {
		select {
		case <-s.wake:
		case <-s.done:
			return
		}

		for {
			next, ok := s.next()
			if !ok {
				break
			}

			if next.closeSend {
				if err := s.rpc.CloseSend(); err != nil {
					logger.WarnContext(s.ctx, "failed to half-close assist stream", "error", err)
				}
				return
			}

			if err := s.rpc.Send(next.req); err != nil {
				// The real status of a broken stream is reported by Recv.
				if !errors.Is(err, io.EOF) {
					logger.WarnContext(s.ctx, "failed to send assist request", "error", err)
				}
				return
			}
			requestsSent.Add(s.ctx, 1, metric.WithAttributes(attribute.String("request.type", requestType(next.req))))
		}
	}
}

func (s *stream) receiveLoop() {
	defer close(s.done)
	for {
		resp, err := s.rpc.Recv()
		if errors.Is(err, io.EOF) {
			s.handlers.OnComplete()
			return
		} else if err != nil {
			s.handlers.OnError(newError("receive", err))
			return
		}
		responsesReceived.Add(s.ctx, 1)
		s.handlers.OnResponse(resp)
	}
}

func requestType(req *embedded.AssistRequest) string {
	switch req.GetType().(type) {
	case *embedded.AssistRequest_Config:
		return "config"
	case *embedded.AssistRequest_AudioIn:
		return "audio_in"
	}
	return "unknown"
}
