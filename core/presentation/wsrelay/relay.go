package wsrelay

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	controller "github.com/koscakluka/ema-discuss/core"
	"github.com/koscakluka/ema-discuss/core/dialog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultSendBuffer = 256
	defaultBacklog    = 4096
	writeTimeout      = 5 * time.Second
)

const (
	FrameMessageShell = "message_shell"
	FrameToken        = "token"
	FrameFinalize     = "finalize"
	FrameStatus       = "status"
	FrameProgress     = "progress"
	FrameModerator    = "moderator"
)

// Frame is one render instruction as sent to browsers.
type Frame struct {
	Type      string    `json:"type"`
	TurnIndex *int      `json:"turn_index,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	RoleLabel string    `json:"role_label,omitempty"`
	Token     string    `json:"token,omitempty"`
	HTML      string    `json:"html,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Text      string    `json:"text,omitempty"`
	Turn      int       `json:"turn,omitempty"`
	MaxTurns  int       `json:"max_turns,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var (
	_ http.Handler                = (*Relay)(nil)
	_ controller.PresentationSink = (*Relay)(nil)
	_ controller.TurnProgressSink = (*Relay)(nil)
	_ controller.ModeratorSink    = (*Relay)(nil)
)

// Relay is a presentation sink that broadcasts every instruction to the
// websocket clients connected to it. Clients joining late first receive the
// frames they missed. Broadcasting never blocks; a client that falls behind
// is disconnected.
type Relay struct {
	upgrader   websocket.Upgrader
	sendBuffer int
	maxBacklog int

	mu      sync.Mutex
	clients map[*client]struct{}
	backlog [][]byte
	closed  bool
}

type Option func(*Relay)

// WithAllowedOrigins restricts which browser origins may connect. Without it
// every origin is accepted.
func WithAllowedOrigins(origins ...string) Option {
	return func(r *Relay) {
		r.upgrader.CheckOrigin = func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, origin)
		}
	}
}

func WithSendBuffer(frames int) Option {
	return func(r *Relay) { r.sendBuffer = frames }
}

// WithBacklog bounds how many frames are kept for clients that connect
// later. Zero disables the replay.
func WithBacklog(frames int) Option {
	return func(r *Relay) { r.maxBacklog = frames }
}

func NewRelay(opts ...Option) *Relay {
	r := &Relay{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sendBuffer: defaultSendBuffer,
		maxBacklog: defaultBacklog,
		clients:    map[*client]struct{}{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (r *Relay) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		logger.WarnContext(req.Context(), "failed to upgrade websocket", "error", err)
		return
	}

	c := &client{conn: conn, done: make(chan struct{})}
	if !r.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay closed"),
			time.Now().Add(writeTimeout))
		_ = conn.Close()
		return
	}
	logger.DebugContext(req.Context(), "websocket client connected", "remote_addr", req.RemoteAddr)

	go r.writeLoop(c)

	// Clients only listen; reading keeps control frames flowing and notices
	// when the browser goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	r.unregister(c)
	logger.DebugContext(req.Context(), "websocket client disconnected", "remote_addr", req.RemoteAddr)
}

func (r *Relay) register(c *client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false
	}

	c.send = make(chan []byte, max(r.sendBuffer, len(r.backlog)+1))
	for _, frame := range r.backlog {
		c.send <- frame
	}
	r.clients[c] = struct{}{}
	connectedClients.Add(context.Background(), 1)
	return true
}

func (r *Relay) unregister(c *client) {
	r.mu.Lock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		connectedClients.Add(context.Background(), -1)
	}
	r.mu.Unlock()

	c.close()
}

func (r *Relay) writeLoop(c *client) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("failed to write websocket frame", "error", err)
				r.unregister(c)
				return
			}
		}
	}
}

func (r *Relay) broadcast(frame Frame) {
	frame.Timestamp = time.Now()
	data, err := json.Marshal(frame)
	if err != nil {
		logger.Error("failed to marshal relay frame", "type", frame.Type, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if r.maxBacklog > 0 {
		r.backlog = append(r.backlog, data)
		if overflow := len(r.backlog) - r.maxBacklog; overflow > 0 {
			r.backlog = slices.Delete(r.backlog, 0, overflow)
		}
	}

	for c := range r.clients {
		select {
		case c.send <- data:
		default:
			logger.Warn("dropping slow websocket client")
			droppedClients.Add(context.Background(), 1, metric.WithAttributes(attribute.String("frame", frame.Type)))
			delete(r.clients, c)
			connectedClients.Add(context.Background(), -1)
			c.close()
		}
	}
}

// Clients returns the number of connected clients.
func (r *Relay) Clients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Close disconnects every client and stops accepting new ones.
func (r *Relay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	for c := range r.clients {
		delete(r.clients, c)
		connectedClients.Add(context.Background(), -1)
		c.close()
	}
	return nil
}

func (r *Relay) AppendMessageShell(turnIndex int, provider dialog.Provider, roleLabel string) {
	if roleLabel == "" {
		roleLabel = provider.DefaultRoleLabel()
	}
	r.broadcast(Frame{Type: FrameMessageShell, TurnIndex: &turnIndex, Provider: string(provider), RoleLabel: roleLabel})
}

func (r *Relay) AppendToken(text string) {
	r.broadcast(Frame{Type: FrameToken, Token: text})
}

func (r *Relay) FinalizeMessage(content controller.FormattedContent) {
	r.broadcast(Frame{Type: FrameFinalize, HTML: content.HTML()})
}

func (r *Relay) StatusNotice(kind controller.StatusKind, text string) {
	r.broadcast(Frame{Type: FrameStatus, Kind: string(kind), Text: text})
}

func (r *Relay) TurnProgress(turn int, maxTurns int) {
	r.broadcast(Frame{Type: FrameProgress, Turn: turn, MaxTurns: maxTurns})
}

func (r *Relay) ModeratorMessage(content controller.FormattedContent) {
	r.broadcast(Frame{Type: FrameModerator, RoleLabel: "Moderator (You)", HTML: content.HTML()})
}
