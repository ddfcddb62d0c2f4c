package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/zeuscript/internal/core/events/bus"
	"github.com/zeusync/zeuscript/internal/core/observability/log"
	"github.com/zeusync/zeuscript/internal/core/scripts"
)

const (
	requestTimeout  = 10 * time.Second
	writeTimeout    = 5 * time.Second
	sessionBacklog  = 64
	maxRequestBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Console operations
const (
	OpList    = "list"
	OpSend    = "send"
	OpScripts = "scripts"
	OpEnable  = "enable"
)

// Message types pushed to clients
const (
	TypeResponse = "response"
	TypeEvent    = "event"
	EventWelcome = "console.welcome"
)

// Request is one console command.
type Request struct {
	ID      string              `json:"id,omitempty"`
	Op      string              `json:"op"`
	Entity  string              `json:"entity,omitempty"`
	Script  string              `json:"script,omitempty"`
	Method  string              `json:"method,omitempty"`
	Args    []any               `json:"args,omitempty"`
	Scripts []scripts.Reference `json:"scripts,omitempty"`
	Enabled *bool               `json:"enabled,omitempty"`
}

// Message is either the response to a Request or a pushed event.
type Message struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Event   string `json:"event,omitempty"`
	Session string `json:"session,omitempty"`
}

type session struct {
	id     string
	conn   *websocket.Conn
	out    chan Message
	ctx    context.Context
	cancel context.CancelFunc
	logger log.Log
}

// push queues msg without blocking; it reports false when the backlog is full.
func (s *session) push(msg Message) bool {
	select {
	case s.out <- msg:
		return true
	default:
		return false
	}
}

// Console is the websocket endpoint for remote script control.
type Console struct {
	host   *Host
	token  string
	logger log.Log

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	sub      bus.Subscription
}

// NewConsole serves host. A non-empty token is required as the "token" query
// parameter or a bearer Authorization header.
func NewConsole(host *Host, token string, logger log.Log) *Console {
	c := &Console{
		host:     host,
		token:    token,
		logger:   logger.With(log.String("component", "console")),
		sessions: make(map[string]*session),
	}
	sub, err := host.bus.Subscribe(bus.EventScriptError, c.onScriptError)
	if err != nil {
		c.logger.Warn("Script errors will not be pushed", log.Error(err))
	}
	c.sub = sub
	return c
}

func (c *Console) authorize(r *http.Request) error {
	if c.token == "" {
		return nil
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token != c.token {
		return ErrUnauthorized
	}
	return nil
}

func (c *Console) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := c.authorize(r); err != nil {
		c.logger.Warn("Console connection rejected",
			log.String("remote_addr", r.RemoteAddr),
			log.Error(err))
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Error("Failed to upgrade console connection", log.Error(err))
		return
	}
	conn.SetReadLimit(maxRequestBytes)

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		conn:   conn,
		out:    make(chan Message, sessionBacklog),
		ctx:    ctx,
		cancel: cancel,
	}
	s.logger = c.logger.With(log.String("session_id", s.id))

	if !c.register(s) {
		cancel()
		_ = conn.Close()
		return
	}
	s.logger.Info("Console session opened", log.String("remote_addr", conn.RemoteAddr().String()))

	s.push(Message{Type: TypeEvent, OK: true, Event: EventWelcome, Session: s.id})

	go c.writeLoop(s)
	c.readLoop(s)
}

func (c *Console) register(s *session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.sessions[s.id] = s
	return true
}

func (c *Console) unregister(s *session) {
	c.mu.Lock()
	delete(c.sessions, s.id)
	c.mu.Unlock()
	s.cancel()
	_ = s.conn.Close()
	s.logger.Info("Console session closed")
}

func (c *Console) readLoop(s *session) {
	defer c.unregister(s)

	for {
		var req Request
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Console read failed", log.Error(err))
			}
			return
		}

		resp := c.handle(s.ctx, req)
		select {
		case s.out <- resp:
		case <-s.ctx.Done():
			return
		}
	}
}

func (c *Console) writeLoop(s *session) {
	for {
		select {
		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Warn("Console write failed", log.Error(err))
				s.cancel()
				_ = s.conn.Close()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// handle executes req on the loop goroutine.
func (c *Console) handle(ctx context.Context, req Request) Message {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var result any
	err := c.host.Do(ctx, func() (err error) {
		switch req.Op {
		case OpList:
			result, err = c.host.listEntities()
		case OpSend:
			result, err = c.host.send(req.Entity, req.Script, req.Method, req.Args)
		case OpScripts:
			result, err = c.host.setScripts(req.Entity, req.Scripts)
		case OpEnable:
			if req.Enabled == nil {
				return errors.New("enable: missing enabled flag")
			}
			err = c.host.setEnabled(req.Entity, *req.Enabled)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownOp, req.Op)
		}
		return err
	})

	msg := Message{Type: TypeResponse, ID: req.ID, OK: err == nil}
	if err != nil {
		msg.Error = err.Error()
	} else {
		msg.Result = result
	}
	return msg
}

// onScriptError runs on the loop goroutine and must not block.
func (c *Console) onScriptError(event bus.Event) error {
	msg := Message{Type: TypeEvent, Event: event.Type()}
	if err, ok := event.Data().(error); ok {
		msg.Error = err.Error()
	} else {
		msg.Error = fmt.Sprint(event.Data())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if !s.push(msg) {
			s.logger.Debug("Dropping event for slow console client", log.String("event", msg.Event))
		}
	}
	return nil
}

// Sessions returns the number of connected clients.
func (c *Console) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close disconnects every client and rejects new ones.
func (c *Console) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	if c.sub != nil {
		_ = c.sub.Cancel()
	}
	for _, s := range sessions {
		s.cancel()
		_ = s.conn.Close()
	}
}
