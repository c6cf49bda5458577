package live

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/cellgraph/internal/errors"
	"github.com/vango-dev/cellgraph/pkg/reactive"
	"github.com/vango-dev/cellgraph/pkg/reconcile"
)

// MessageType is the kind of a message sent to clients.
type MessageType string

const (
	// TypeReset carries the full list. It is the first message on every
	// connection.
	TypeReset MessageType = "reset"

	// TypeOps carries the removals and ops turning the previous list into
	// the current one.
	TypeOps MessageType = "ops"
)

// Message is sent to clients as JSON.
type Message struct {
	Type MessageType `json:"type"`

	// Seq increases by one with every change. A reset carries the sequence
	// number of the list it describes.
	Seq uint64 `json:"seq"`

	Items   []string    `json:"items,omitempty"`
	Removed []string    `json:"removed,omitempty"`
	Ops     []OpMessage `json:"ops,omitempty"`
}

// OpMessage is the wire form of a reconcile.Op. Apply ops in order: each one
// is anchored before a key that is already in place.
type OpMessage struct {
	Kind   string   `json:"kind"`
	Keys   []string `json:"keys"`
	Before string   `json:"before,omitempty"`
	AtEnd  bool     `json:"atEnd,omitempty"`
}

// OpsOf converts the ops of a plan to their wire form.
func OpsOf(plan reconcile.Plan[string]) []OpMessage {
	out := make([]OpMessage, 0, len(plan.Ops))
	for _, op := range plan.Ops {
		out = append(out, OpMessage{
			Kind:   strings.ToLower(op.Kind.String()),
			Keys:   op.Nodes,
			Before: op.Anchor,
			AtEnd:  op.AtEnd,
		})
	}
	return out
}

// Metrics receives feed activity. *middleware.Metrics implements it.
type Metrics interface {
	ClientConnected()
	ClientDisconnected()
	OpsSent(n int)
	WriteFailed()
}

// Config configures a Feed.
type Config struct {
	// Logger receives connection and reconcile errors.
	// Default: slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics Metrics

	// WriteTimeout bounds each websocket write (default: 10s).
	WriteTimeout time.Duration

	// CheckOrigin is passed to the websocket upgrader. Default: allow all.
	CheckOrigin func(r *http.Request) bool
}

type client struct {
	conn *websocket.Conn
}

// Feed streams a sequence cell to websocket clients. The cell's items are
// identified by key; every change is diffed against the previous keys and
// broadcast as reconcile ops.
type Feed[N any] struct {
	key      func(N) string
	logger   *slog.Logger
	metrics  Metrics
	timeout  time.Duration
	upgrader websocket.Upgrader
	sub      *reactive.Subscription

	// mu guards the model and the client set, and is held while a message
	// fans out so a joining client never misses or repeats a change.
	mu      sync.Mutex
	model   *reconcile.List[string]
	seq     uint64
	clients map[*client]struct{}
	closed  bool
}

// NewFeed creates a feed mirroring src. It fails with
// reconcile.ErrDuplicateItem if two items of the current value share a key.
func NewFeed[N any](src reactive.ReadonlyCell[[]N], key func(N) string, cfg Config) (*Feed[N], error) {
	keys := keysOf(src.Value(), key)
	if _, err := reconcile.Diff(nil, keys); err != nil {
		return nil, err
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = func(*http.Request) bool { return true }
	}

	f := &Feed[N]{
		key:     key,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		timeout: cfg.WriteTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		model:   reconcile.NewList(keys...),
		clients: make(map[*client]struct{}),
	}
	f.sub = src.Subscribe(f.update)
	return f, nil
}

func keysOf[N any](items []N, key func(N) string) []string {
	keys := make([]string, len(items))
	for i, item := range items {
		keys[i] = key(item)
	}
	return keys
}

// update runs on the scheduler's goroutine after each flush that changed
// the source.
func (f *Feed[N]) update(items []N) {
	keys := keysOf(items, f.key)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	plan, err := reconcile.Diff(f.model.Items(), keys)
	if err != nil {
		f.logger.Error("live: skipping update", "error", err)
		return
	}
	if plan.Empty() {
		return
	}
	reconcile.Apply(f.model, plan)
	f.seq++

	msg := Message{Type: TypeOps, Seq: f.seq, Removed: plan.Removed, Ops: OpsOf(plan)}
	f.broadcastLocked(msg)
	if f.metrics != nil {
		f.metrics.OpsSent(len(msg.Ops))
	}
}

// ServeHTTP upgrades the request and keeps the connection until the client
// goes away.
func (f *Feed[N]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("live: upgrade failed", "remote", r.RemoteAddr,
			"error", errors.New("E060").Wrap(err))
		return
	}
	c := &client{conn: conn}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		conn.Close()
		return
	}
	reset := Message{Type: TypeReset, Seq: f.seq, Items: f.model.Items()}
	if err := f.writeLocked(c, reset); err != nil {
		f.mu.Unlock()
		conn.Close()
		return
	}
	f.clients[c] = struct{}{}
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.ClientConnected()
	}
	f.logger.Debug("live: client connected", "remote", r.RemoteAddr)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	f.drop(c)
}

// drop forgets c and closes its connection. Safe to call more than once.
func (f *Feed[N]) drop(c *client) {
	f.mu.Lock()
	_, ok := f.clients[c]
	delete(f.clients, c)
	f.mu.Unlock()
	c.conn.Close()
	if ok && f.metrics != nil {
		f.metrics.ClientDisconnected()
	}
}

func (f *Feed[N]) writeLocked(c *client, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(f.timeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if f.metrics != nil {
			f.metrics.WriteFailed()
		}
		return err
	}
	return nil
}

// broadcastLocked sends msg to every client, dropping the ones whose write
// fails.
func (f *Feed[N]) broadcastLocked(msg Message) {
	for c := range f.clients {
		if err := f.writeLocked(c, msg); err != nil {
			f.logger.Debug("live: dropping client", "error", err)
			delete(f.clients, c)
			c.conn.Close()
			if f.metrics != nil {
				f.metrics.ClientDisconnected()
			}
		}
	}
}

// Items returns the keys as last broadcast.
func (f *Feed[N]) Items() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.model.Items()
}

// Seq returns the sequence number of the last broadcast change.
func (f *Feed[N]) Seq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seq
}

// ClientCount returns the number of connected clients.
func (f *Feed[N]) ClientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

// Close unsubscribes from the source and closes all client connections.
func (f *Feed[N]) Close() {
	f.sub.Unsubscribe()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for c := range f.clients {
		c.conn.Close()
		delete(f.clients, c)
		if f.metrics != nil {
			f.metrics.ClientDisconnected()
		}
	}
}
