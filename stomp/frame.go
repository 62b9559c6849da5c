package stomp

import "sort"

const (
	CommandConnect     = "CONNECT"
	CommandStomp       = "STOMP"
	CommandConnected   = "CONNECTED"
	CommandSend        = "SEND"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandBegin       = "BEGIN"
	CommandCommit      = "COMMIT"
	CommandAbort       = "ABORT"
	CommandAck         = "ACK"
	CommandNack        = "NACK"
	CommandDisconnect  = "DISCONNECT"
	CommandMessage     = "MESSAGE"
	CommandReceipt     = "RECEIPT"
	CommandErrorFrame  = "ERROR"
)

const (
	HeaderTransaction   = "transaction"
	HeaderID            = "id"
	HeaderDestination   = "destination"
	HeaderReceipt       = "receipt"
	HeaderReceiptID     = "receipt-id"
	HeaderContentLength = "content-length"
	HeaderContentType   = "content-type"

	// ReplayHeader marks a frame retransmitted by WrittenBuffer after a
	// reconnect. The value is the sequence id of the pending entry.
	ReplayHeader = "x-onstomp-failover-replay"
)

// Frame is one STOMP protocol message.
type Frame struct {
	Command string
	Body    []byte
	headers map[string]string
}

// NewFrame returns a frame for command with the given key/value header pairs.
// A trailing key without a value is ignored.
func NewFrame(command string, keyValues ...string) *Frame {
	frame := &Frame{Command: command}
	for index := 0; index+1 < len(keyValues); index += 2 {
		frame.SetHeader(keyValues[index], keyValues[index+1])
	}
	return frame
}

// SetBody sets the frame body and returns the frame.
func (frame *Frame) SetBody(body []byte) *Frame {
	if frame == nil {
		return frame
	}
	frame.Body = body
	return frame
}

// Header returns the value of key and whether it is present.
func (frame *Frame) Header(key string) (string, bool) {
	if frame == nil || frame.headers == nil {
		return "", false
	}
	value, ok := frame.headers[key]
	return value, ok
}

// HasHeader reports whether key is present.
func (frame *Frame) HasHeader(key string) bool {
	_, ok := frame.Header(key)
	return ok
}

// SetHeader sets key to value and returns the frame.
func (frame *Frame) SetHeader(key string, value string) *Frame {
	if frame == nil {
		return frame
	}
	if frame.headers == nil {
		frame.headers = make(map[string]string)
	}
	frame.headers[key] = value
	return frame
}

// DelHeader removes key and returns the frame.
func (frame *Frame) DelHeader(key string) *Frame {
	if frame == nil || frame.headers == nil {
		return frame
	}
	delete(frame.headers, key)
	return frame
}

// HeaderKeys returns the header keys in sorted order.
func (frame *Frame) HeaderKeys() []string {
	if frame == nil {
		return nil
	}
	keys := make([]string, 0, len(frame.headers))
	for key := range frame.headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Transaction returns the transaction header.
func (frame *Frame) Transaction() (string, bool) {
	return frame.Header(HeaderTransaction)
}

// SubscriptionID returns the id header.
func (frame *Frame) SubscriptionID() (string, bool) {
	return frame.Header(HeaderID)
}

// Clone returns a deep copy of the frame.
func (frame *Frame) Clone() *Frame {
	if frame == nil {
		return nil
	}
	cloned := &Frame{Command: frame.Command}
	if frame.Body != nil {
		cloned.Body = append([]byte(nil), frame.Body...)
	}
	if len(frame.headers) > 0 {
		cloned.headers = make(map[string]string, len(frame.headers))
		for key, value := range frame.headers {
			cloned.headers[key] = value
		}
	}
	return cloned
}
