// Package eventtap forwards engine events as JSON to websocket clients so
// an external view can follow a conversation.
package eventtap

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-assistant/core/events"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const (
	scopeName = "github.com/koscakluka/ema-assistant/internal/eventtap"

	clientBuffer = 64
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10
)

var logger = otelslog.NewLogger(scopeName)

// Message is the JSON form of one event.
type Message struct {
	Kind      events.Kind `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload,omitempty"`
}

// NewMessage converts event into its wire form. Audio is reduced to its
// size and errors to their text.
func NewMessage(event events.Event) Message {
	msg := Message{Kind: event.Kind(), Timestamp: event.Timestamp()}

	switch typedEvent := event.(type) {
	case events.AudioRecording:
		msg.Payload = map[string]int{"bytes": len(typedEvent.Audio)}
	case events.AudioSample:
		msg.Payload = map[string]int{"bytes": len(typedEvent.Audio)}
	case events.SpeechRecognition:
		msg.Payload = map[string]any{"transcript": typedEvent.Transcript(), "results": typedEvent.Results}
	case events.VolumeChanged:
		msg.Payload = map[string]int{"percentage": typedEvent.Percentage}
	case events.AssistantResponse:
		msg.Payload = map[string]string{"text": typedEvent.Text}
	case events.AssistantDisplayOut:
		msg.Payload = map[string]string{"html": typedEvent.HTML}
	case events.DeviceAction:
		msg.Payload = map[string]any{"command": typedEvent.Command, "params": typedEvent.Params}
	case events.Error:
		if typedEvent.Err != nil {
			msg.Payload = map[string]string{"error": typedEvent.Err.Error()}
		}
	}

	return msg
}

type client struct {
	conn *websocket.Conn
	send chan Message
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Tap is an http.Handler that upgrades requests to websockets and an event
// handler that broadcasts every event to the connected clients. A client
// that cannot keep up is disconnected.
type Tap struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func New() *Tap {
	return &Tap{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		clients: make(map[*client]struct{}),
	}
}

// HandleEvent broadcasts event without blocking.
func (t *Tap) HandleEvent(event events.Event) {
	msg := NewMessage(event)

	t.mu.Lock()
	defer t.mu.Unlock()
	for c := range t.clients {
		select {
		case c.send <- msg:
		default:
			logger.Warn("dropping slow event tap client", "remote", c.conn.RemoteAddr().String())
			delete(t.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected clients.
func (t *Tap) Clients() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

func (t *Tap) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnContext(r.Context(), "failed to upgrade event tap connection", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan Message, clientBuffer), done: make(chan struct{})}
	if !t.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "tap closed"),
			time.Now().Add(writeTimeout))
		return
	}
	defer t.unregister(c)

	go t.readLoop(c)
	t.writeLoop(c)
}

func (t *Tap) register(c *client) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.clients[c] = struct{}{}
	return true
}

func (t *Tap) unregister(c *client) {
	t.mu.Lock()
	delete(t.clients, c)
	t.mu.Unlock()
	c.close()
}

// readLoop discards inbound messages and keeps the read deadline fresh
// while pongs arrive.
func (t *Tap) readLoop(c *client) {
	defer c.close()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (t *Tap) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeTimeout))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Debug("event tap write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client and rejects new ones.
func (t *Tap) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for c := range t.clients {
		delete(t.clients, c)
		c.close()
	}
}

// ListenAndServe serves the tap on addr until ctx is done.
func (t *Tap) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: t, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	t.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
