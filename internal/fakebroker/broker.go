// Package fakebroker is an in-process STOMP-over-websocket broker for
// integration tests. It records every client frame, answers CONNECT and
// receipt requests, and can drop its connections on demand to simulate a
// broker failure.
package fakebroker

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/simlegate/onstomp/stomp"
	"github.com/simlegate/onstomp/stomp/log"
)

// Subprotocols are the STOMP websocket subprotocols the broker accepts.
var Subprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// Received is one frame recorded by the broker.
type Received struct {
	Session string
	Frame   *stomp.Frame
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(logger log.Logger) Option {
	return func(b *Broker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithServerName sets the server header sent in CONNECTED frames.
func WithServerName(name string) Option {
	return func(b *Broker) {
		b.serverName = name
	}
}

type session struct {
	id        string
	conn      *websocket.Conn
	writeLock sync.Mutex
	logger    log.Logger
}

func (s *session) send(frame *stomp.Frame) error {
	payload, err := frame.Bytes()
	if err != nil {
		return err
	}
	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Broker implements http.Handler.
type Broker struct {
	lock       sync.Mutex
	wg         sync.WaitGroup
	upgrader   websocket.Upgrader
	sessions   map[string]*session
	received   []Received
	closed     bool
	serverName string
	logger     log.Logger

	set              *metrics.Set
	connections      *metrics.Counter
	framesReceived   *metrics.Counter
	droppedSessions  *metrics.Counter
	protocolFailures *metrics.Counter
}

// New returns a broker ready to be mounted on an HTTP server.
func New(opts ...Option) *Broker {
	set := metrics.NewSet()
	b := &Broker{
		upgrader: websocket.Upgrader{
			Subprotocols: Subprotocols,
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		sessions:         make(map[string]*session),
		serverName:       "fakestomp/1.0",
		logger:           log.NewNoopLogger(),
		set:              set,
		connections:      set.NewCounter("fakestomp_connections_total"),
		framesReceived:   set.NewCounter("fakestomp_frames_received_total"),
		droppedSessions:  set.NewCounter("fakestomp_sessions_dropped_total"),
		protocolFailures: set.NewCounter("fakestomp_protocol_errors_total"),
	}
	for _, opt := range opts {
		opt(b)
	}
	set.NewGauge("fakestomp_sessions", func() float64 {
		return float64(b.Sessions())
	})
	return b
}

func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		http.Error(w, "broker closed", http.StatusServiceUnavailable)
		return
	}
	b.wg.Add(1)
	b.lock.Unlock()
	defer b.wg.Done()

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", log.Err(err))
		return
	}

	id := uuid.NewString()
	s := &session{id: id, conn: conn, logger: b.logger.With(log.Session(id))}
	b.lock.Lock()
	if b.closed {
		b.lock.Unlock()
		_ = conn.Close()
		return
	}
	b.sessions[s.id] = s
	b.lock.Unlock()
	b.connections.Inc()
	s.logger.Info("session opened",
		log.String("remote", r.RemoteAddr),
		log.String("subprotocol", conn.Subprotocol()),
	)

	defer func() {
		b.lock.Lock()
		delete(b.sessions, s.id)
		b.lock.Unlock()
		_ = conn.Close()
		s.logger.Info("session closed")
	}()

	b.serve(s)
}

func (b *Broker) serve(s *session) {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		frames, err := decodeFrames(payload)
		for _, frame := range frames {
			if !b.handleFrame(s, frame) {
				return
			}
		}
		if err != nil {
			b.protocolFailures.Inc()
			s.logger.Warn("protocol error", log.Err(err))
			_ = s.send(stomp.NewFrame(stomp.CommandErrorFrame, "message", err.Error()))
			return
		}
	}
}

// handleFrame records frame and answers it. It reports false when the
// session should end.
func (b *Broker) handleFrame(s *session, frame *stomp.Frame) bool {
	b.lock.Lock()
	b.received = append(b.received, Received{Session: s.id, Frame: frame})
	b.lock.Unlock()
	b.framesReceived.Inc()
	s.logger.Debug("frame received", log.Command(frame.Command))

	switch frame.Command {
	case stomp.CommandConnect, stomp.CommandStomp:
		connected := stomp.NewFrame(stomp.CommandConnected,
			"version", "1.2",
			"session", s.id,
			"server", b.serverName,
			"heart-beat", "0,0",
		)
		if err := s.send(connected); err != nil {
			return false
		}
	}

	if receipt, ok := frame.Header(stomp.HeaderReceipt); ok {
		if err := s.send(stomp.NewFrame(stomp.CommandReceipt, stomp.HeaderReceiptID, receipt)); err != nil {
			return false
		}
	}
	return frame.Command != stomp.CommandDisconnect
}

// Frames returns every recorded frame in arrival order.
func (b *Broker) Frames() []Received {
	b.lock.Lock()
	defer b.lock.Unlock()
	return append([]Received(nil), b.received...)
}

// Commands returns the command of every recorded frame.
func (b *Broker) Commands() []string {
	received := b.Frames()
	commands := make([]string, 0, len(received))
	for _, entry := range received {
		commands = append(commands, entry.Frame.Command)
	}
	return commands
}

// WaitForFrames polls until at least n frames were recorded or timeout
// elapses.
func (b *Broker) WaitForFrames(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		b.lock.Lock()
		count := len(b.received)
		b.lock.Unlock()
		if count >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Sessions returns the number of open sessions.
func (b *Broker) Sessions() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.sessions)
}

// DropConnections closes every open session without a websocket close
// handshake and returns how many were dropped.
func (b *Broker) DropConnections() int {
	b.lock.Lock()
	sessions := make([]*session, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.lock.Unlock()

	for _, s := range sessions {
		_ = s.conn.UnderlyingConn().Close()
		b.droppedSessions.Add(1)
	}
	if len(sessions) > 0 {
		b.logger.Info("dropped sessions", log.Int("sessions", len(sessions)))
	}
	return len(sessions)
}

// Close drops every session, rejects new ones, and waits for session
// goroutines to exit.
func (b *Broker) Close() {
	b.lock.Lock()
	b.closed = true
	b.lock.Unlock()

	b.DropConnections()
	b.wg.Wait()
}

// WritePrometheus writes the broker metrics in Prometheus text format.
func (b *Broker) WritePrometheus(w io.Writer) {
	b.set.WritePrometheus(w)
}
