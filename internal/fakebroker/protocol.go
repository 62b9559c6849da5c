package fakebroker

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"

	stompframe "github.com/go-stomp/stomp/v3/frame"

	"github.com/simlegate/onstomp/stomp"
)

// endMarkerHeader tags the frame appended after every message. A truncated
// client frame swallows the marker or fails on it, so a message decodes
// cleanly only when the marker comes back as its own frame.
const endMarkerHeader = "x-fakebroker-end-of-message"

var endMarker = []byte("\n" + stomp.CommandDisconnect + "\n" + endMarkerHeader + ":1\n\n\x00")

// decodeFrames parses every frame in one websocket message. Heart-beat EOLs
// between frames are skipped. Frames decoded before an error are returned
// with it.
func decodeFrames(payload []byte) ([]*stomp.Frame, error) {
	if err := checkContentLengths(payload); err != nil {
		return nil, err
	}

	var frames []*stomp.Frame
	reader := stompframe.NewReader(io.MultiReader(bytes.NewReader(payload), bytes.NewReader(endMarker)))
	for {
		decoded, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("truncated frame")
			}
			return frames, stomp.NewError(stomp.ProtocolError, err)
		}
		if decoded == nil {
			continue
		}
		if decoded.Command == stomp.CommandDisconnect && decoded.Header != nil && decoded.Header.Get(endMarkerHeader) == "1" {
			return frames, nil
		}
		frames = append(frames, convertFrame(decoded))
	}
}

func convertFrame(decoded *stompframe.Frame) *stomp.Frame {
	frame := stomp.NewFrame(decoded.Command)
	if decoded.Header != nil {
		for index := 0; index < decoded.Header.Len(); index++ {
			key, value := decoded.Header.GetAt(index)
			// Repeated headers: the first occurrence wins.
			if !frame.HasHeader(key) {
				frame.SetHeader(key, value)
			}
		}
	}
	if len(decoded.Body) > 0 {
		frame.SetBody(decoded.Body)
	}
	return frame
}

// checkContentLengths rejects a message whose content-length headers claim
// more bytes than the message holds, before the reader sizes a body buffer
// from them.
func checkContentLengths(payload []byte) error {
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 4096), len(payload)+1)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		value, found := strings.CutPrefix(line, stomp.HeaderContentLength+":")
		if !found {
			continue
		}
		length, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return stomp.NewError(stomp.ProtocolError, "invalid content-length "+strconv.Quote(value))
		}
		if length >= uint64(len(payload)) {
			return stomp.NewError(stomp.ProtocolError, "content-length "+value+" exceeds message size")
		}
	}
	return nil
}
