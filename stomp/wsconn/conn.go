// Package wsconn transmits STOMP frames over a websocket connection and fires
// the failover hooks around every write.
package wsconn

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/simlegate/onstomp/stomp"
	"github.com/simlegate/onstomp/stomp/log"
)

// DefaultSubprotocols are offered during the websocket handshake.
var DefaultSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

const closeGracePeriod = time.Second

type config struct {
	header           http.Header
	handshakeTimeout time.Duration
	subprotocols     []string
	onReceive        func(payload []byte)
	logger           log.Logger
}

// Option configures Dial.
type Option func(*config)

// WithHeader adds HTTP headers to the handshake request.
func WithHeader(header http.Header) Option {
	return func(c *config) {
		c.header = header
	}
}

// WithHandshakeTimeout bounds the websocket handshake. Default: 10s.
func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(c *config) {
		if timeout > 0 {
			c.handshakeTimeout = timeout
		}
	}
}

// WithSubprotocols replaces the offered subprotocols.
func WithSubprotocols(subprotocols ...string) Option {
	return func(c *config) {
		c.subprotocols = subprotocols
	}
}

// WithReceiveHandler delivers every inbound websocket payload to handler on
// the read goroutine.
func WithReceiveHandler(handler func(payload []byte)) Option {
	return func(c *config) {
		c.onReceive = handler
	}
}

// WithLogger sets the connection logger.
func WithLogger(logger log.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Conn is a websocket connection implementing stomp.Transmitter.
type Conn struct {
	conn      *websocket.Conn
	hooks     *stomp.Hooks
	writeLock sync.Mutex
	closed    atomic.Bool
	done      chan struct{}
	readErr   error
	onReceive func(payload []byte)
	logger    log.Logger
}

var _ stomp.Transmitter = (*Conn)(nil)

// Dial opens a websocket connection to rawURL. hooks may be nil.
func Dial(ctx context.Context, rawURL string, hooks *stomp.Hooks, opts ...Option) (*Conn, error) {
	cfg := config{
		handshakeTimeout: 10 * time.Second,
		subprotocols:     DefaultSubprotocols,
		logger:           log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, stomp.NewError(stomp.InvalidURIError, err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, stomp.NewError(stomp.InvalidURIError, "unsupported scheme "+parsed.Scheme)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.handshakeTimeout,
		Subprotocols:     cfg.subprotocols,
	}
	wsConn, response, err := dialer.DialContext(ctx, rawURL, cfg.header)
	if response != nil && response.Body != nil {
		_ = response.Body.Close()
	}
	if err != nil {
		return nil, stomp.NewError(stomp.ConnectionError, err)
	}

	conn := &Conn{
		conn:      wsConn,
		hooks:     hooks,
		done:      make(chan struct{}),
		onReceive: cfg.onReceive,
		logger:    cfg.logger.With(log.String("url", rawURL)),
	}
	conn.logger.Debug("websocket connected", log.String("subprotocol", wsConn.Subprotocol()))
	go conn.readLoop()
	return conn, nil
}

// Transmit fires the before hooks, writes frame as one text message, and
// fires the after hooks once the write completed. The before hooks fire even
// when the connection is already down so that the frame is buffered for
// replay; the call then fails with a DisconnectedError.
func (conn *Conn) Transmit(frame *stomp.Frame) error {
	if conn == nil {
		return stomp.NewError(stomp.DisconnectedError, "nil connection")
	}
	if frame == nil {
		return stomp.NewError(stomp.CommandError, "nil frame")
	}
	conn.hooks.TriggerBeforeTransmit(frame)

	if !conn.Connected() {
		return stomp.NewError(stomp.DisconnectedError, "connection closed")
	}
	payload, err := frame.Bytes()
	if err != nil {
		return err
	}

	conn.writeLock.Lock()
	err = conn.conn.WriteMessage(websocket.TextMessage, payload)
	conn.writeLock.Unlock()
	if err != nil {
		conn.logger.Warn("frame write failed", log.Command(frame.Command), log.Err(err))
		return stomp.NewError(stomp.DisconnectedError, err)
	}

	conn.hooks.TriggerTransmitted(frame)
	return nil
}

// Connected reports whether the connection is still usable.
func (conn *Conn) Connected() bool {
	if conn == nil || conn.closed.Load() {
		return false
	}
	select {
	case <-conn.done:
		return false
	default:
		return true
	}
}

// Done is closed when the read side of the connection fails or the
// connection is closed.
func (conn *Conn) Done() <-chan struct{} {
	return conn.done
}

// Err returns the error that ended the read loop, once Done is closed.
func (conn *Conn) Err() error {
	select {
	case <-conn.done:
		return conn.readErr
	default:
		return nil
	}
}

// Close sends a websocket close frame, closes the socket, and waits for the
// read goroutine to exit.
func (conn *Conn) Close() error {
	if conn == nil || !conn.closed.CompareAndSwap(false, true) {
		return nil
	}
	message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.writeLock.Lock()
	_ = conn.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeGracePeriod))
	conn.writeLock.Unlock()

	err := conn.conn.Close()
	<-conn.done
	return err
}

func (conn *Conn) readLoop() {
	defer close(conn.done)
	for {
		_, payload, err := conn.conn.ReadMessage()
		if err != nil {
			conn.readErr = err
			if !conn.closed.Load() {
				conn.logger.Info("websocket connection lost", log.Err(err))
			}
			return
		}
		if conn.onReceive != nil {
			conn.onReceive(payload)
		}
	}
}
