package stomp

import (
	"bytes"
	"io"
	"strconv"
	"strings"
)

var headerEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"\r", "\\r",
	"\n", "\\n",
	":", "\\c",
)

// CONNECT and CONNECTED headers are sent raw for 1.0 compatibility.
func escapesHeaders(command string) bool {
	return command != CommandConnect && command != CommandConnected
}

func encodeHeader(command string, value string) string {
	if !escapesHeaders(command) {
		return value
	}
	return headerEscaper.Replace(value)
}

// WriteTo encodes the frame in STOMP 1.2 wire format. Headers are written in
// key order and content-length is added for non-empty bodies.
func (frame *Frame) WriteTo(writer io.Writer) (int64, error) {
	if frame == nil {
		return 0, NewError(CommandError, "nil frame")
	}
	if frame.Command == "" {
		return 0, NewError(CommandError, "frame has no command")
	}

	var buffer bytes.Buffer
	buffer.WriteString(frame.Command)
	buffer.WriteByte('\n')

	for _, key := range frame.HeaderKeys() {
		buffer.WriteString(encodeHeader(frame.Command, key))
		buffer.WriteByte(':')
		buffer.WriteString(encodeHeader(frame.Command, frame.headers[key]))
		buffer.WriteByte('\n')
	}
	if len(frame.Body) > 0 && !frame.HasHeader(HeaderContentLength) {
		buffer.WriteString(HeaderContentLength)
		buffer.WriteByte(':')
		buffer.WriteString(strconv.Itoa(len(frame.Body)))
		buffer.WriteByte('\n')
	}

	buffer.WriteByte('\n')
	buffer.Write(frame.Body)
	buffer.WriteByte(0)

	return buffer.WriteTo(writer)
}

// Bytes returns the encoded frame.
func (frame *Frame) Bytes() ([]byte, error) {
	var buffer bytes.Buffer
	if _, err := frame.WriteTo(&buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
