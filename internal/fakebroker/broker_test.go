package fakebroker

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/simlegate/onstomp/stomp"
	"github.com/simlegate/onstomp/stomp/log"
)

func startBroker(t *testing.T) (*Broker, string) {
	t.Helper()
	broker := New()
	server := httptest.NewServer(broker)
	t.Cleanup(func() {
		broker.Close()
		server.Close()
	})
	return broker, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{Subprotocols: []string{"v12.stomp"}, HandshakeTimeout: time.Second}
	conn, _, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func write(t *testing.T, conn *websocket.Conn, frame *stomp.Frame) {
	t.Helper()
	payload, err := frame.Bytes()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func read(t *testing.T, conn *websocket.Conn) *stomp.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	frames, err := decodeFrames(payload)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	return frames[0]
}

func TestBrokerAnswersConnectAndReceipts(t *testing.T) {
	broker, url := startBroker(t)
	conn := dial(t, url)
	require.Equal(t, "v12.stomp", conn.Subprotocol())

	write(t, conn, stomp.NewFrame(stomp.CommandConnect, "accept-version", "1.2", "host", "/"))
	connected := read(t, conn)
	require.Equal(t, stomp.CommandConnected, connected.Command)
	version, _ := connected.Header("version")
	require.Equal(t, "1.2", version)
	session, ok := connected.Header("session")
	require.True(t, ok)

	write(t, conn, stomp.NewFrame(stomp.CommandSend, stomp.HeaderDestination, "/queue/a", stomp.HeaderReceipt, "r-1"))
	receipt := read(t, conn)
	require.Equal(t, stomp.CommandReceipt, receipt.Command)
	receiptID, _ := receipt.Header(stomp.HeaderReceiptID)
	require.Equal(t, "r-1", receiptID)

	received := broker.Frames()
	require.Len(t, received, 2)
	require.Equal(t, session, received[0].Session)
	require.Equal(t, []string{stomp.CommandConnect, stomp.CommandSend}, broker.Commands())
	require.Equal(t, 1, broker.Sessions())
}

func TestBrokerDropConnections(t *testing.T) {
	broker, url := startBroker(t)
	conn := dial(t, url)
	write(t, conn, stomp.NewFrame(stomp.CommandSend, stomp.HeaderDestination, "/queue/a"))
	require.True(t, broker.WaitForFrames(1, 2*time.Second))

	require.Equal(t, 1, broker.DropConnections())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	require.Eventually(t, func() bool { return broker.Sessions() == 0 }, 2*time.Second, 5*time.Millisecond)

	var metrics bytes.Buffer
	broker.WritePrometheus(&metrics)
	require.Contains(t, metrics.String(), "fakestomp_sessions_dropped_total 1")
	require.Contains(t, metrics.String(), "fakestomp_frames_received_total 1")
}

func TestBrokerProtocolErrorEndsSession(t *testing.T) {
	broker, url := startBroker(t)
	conn := dial(t, url)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("SEND\nbroken\n\n\x00")))

	errorFrame := read(t, conn)
	require.Equal(t, stomp.CommandErrorFrame, errorFrame.Command)
	require.Eventually(t, func() bool { return broker.Sessions() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestBrokerDisconnectEndsSession(t *testing.T) {
	broker, url := startBroker(t)
	conn := dial(t, url)
	write(t, conn, stomp.NewFrame(stomp.CommandDisconnect, stomp.HeaderReceipt, "bye"))

	receipt := read(t, conn)
	require.Equal(t, stomp.CommandReceipt, receipt.Command)
	require.Eventually(t, func() bool { return broker.Sessions() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestBrokerRejectsAfterClose(t *testing.T) {
	broker := New()
	server := httptest.NewServer(broker)
	defer server.Close()
	broker.Close()

	dialer := websocket.Dialer{HandshakeTimeout: time.Second}
	_, response, err := dialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.Error(t, err)
	require.NotNil(t, response)
	require.Equal(t, 503, response.StatusCode)
}

type entry struct {
	msg    string
	fields map[string]any
}

type captureLogger struct {
	lock    *sync.Mutex
	entries *[]entry
	scope   []log.Field
}

func newCaptureLogger() captureLogger {
	return captureLogger{lock: &sync.Mutex{}, entries: &[]entry{}}
}

func (logger captureLogger) add(msg string, fields []log.Field) {
	all := map[string]any{}
	for _, field := range append(append([]log.Field(nil), logger.scope...), fields...) {
		all[field.Key] = field.Value
	}
	logger.lock.Lock()
	*logger.entries = append(*logger.entries, entry{msg: msg, fields: all})
	logger.lock.Unlock()
}

func (logger captureLogger) Debug(msg string, fields ...log.Field) { logger.add(msg, fields) }
func (logger captureLogger) Info(msg string, fields ...log.Field)  { logger.add(msg, fields) }
func (logger captureLogger) Warn(msg string, fields ...log.Field)  { logger.add(msg, fields) }
func (logger captureLogger) Error(msg string, fields ...log.Field) { logger.add(msg, fields) }

func (logger captureLogger) With(fields ...log.Field) log.Logger {
	logger.scope = append(append([]log.Field(nil), logger.scope...), fields...)
	return logger
}

func (logger captureLogger) find(msg string) (entry, bool) {
	logger.lock.Lock()
	defer logger.lock.Unlock()
	for _, candidate := range *logger.entries {
		if candidate.msg == msg {
			return candidate, true
		}
	}
	return entry{}, false
}

func TestBrokerScopesLogsBySession(t *testing.T) {
	logger := newCaptureLogger()
	broker := New(WithLogger(logger))
	server := httptest.NewServer(broker)
	t.Cleanup(func() {
		broker.Close()
		server.Close()
	})

	conn := dial(t, "ws"+strings.TrimPrefix(server.URL, "http"))
	write(t, conn, stomp.NewFrame(stomp.CommandSend, stomp.HeaderDestination, "/queue/a"))
	require.True(t, broker.WaitForFrames(1, 2*time.Second))

	session := broker.Frames()[0].Session
	opened, ok := logger.find("session opened")
	require.True(t, ok)
	require.Equal(t, session, opened.fields[log.KeySession])

	var received entry
	require.Eventually(t, func() bool {
		var found bool
		received, found = logger.find("frame received")
		return found
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, session, received.fields[log.KeySession])
	require.Equal(t, stomp.CommandSend, received.fields[log.KeyCommand])
}
