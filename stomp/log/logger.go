package log

import "time"

// Logger is the structured logger taken by the buffer, the hooks, the
// websocket connection and the fake broker.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a logger that attaches fields to every entry, e.g. one
	// logger per broker session or per websocket connection.
	With(fields ...Field) Logger
}

// Field is one key/value pair of a log entry.
type Field struct {
	Key   string
	Value any
}

// Keys shared by every component so entries about the same frame correlate.
const (
	KeyCommand      = "command"
	KeySequence     = "sequence"
	KeyTransaction  = "transaction"
	KeySubscription = "subscription"
	KeySession      = "session"
)

// Command tags an entry with a STOMP command.
func Command(command string) Field { return Field{Key: KeyCommand, Value: command} }

// Sequence tags an entry with a buffer sequence id.
func Sequence(sequence uint64) Field { return Field{Key: KeySequence, Value: sequence} }

// Transaction tags an entry with a STOMP transaction id.
func Transaction(id string) Field { return Field{Key: KeyTransaction, Value: id} }

// Subscription tags an entry with a STOMP subscription id.
func Subscription(id string) Field { return Field{Key: KeySubscription, Value: id} }

// Session tags an entry with a broker session id.
func Session(id string) Field { return Field{Key: KeySession, Value: id} }

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field { return Field{Key: key, Value: value} }

// Err stores err under "error".
func Err(err error) Field { return Field{Key: "error", Value: err} }

func Any(key string, value any) Field { return Field{Key: key, Value: value} }
