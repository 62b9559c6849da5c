package stomp_test

import (
	"bytes"
	"strconv"
	"testing"

	"github.com/simlegate/onstomp/stomp"
)

type hookTransmitter struct {
	hooks *stomp.Hooks
}

func (transmitter hookTransmitter) Transmit(frame *stomp.Frame) error {
	transmitter.hooks.TriggerBeforeTransmit(frame)
	transmitter.hooks.TriggerTransmitted(frame)
	return nil
}

func BenchmarkWrittenBufferSendConfirm(b *testing.B) {
	hooks, _ := newBuffer()
	client := hookTransmitter{hooks: hooks}
	frame := send("m")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = client.Transmit(frame)
	}
}

func BenchmarkWrittenBufferTransaction(b *testing.B) {
	hooks, _ := newBuffer()
	client := hookTransmitter{hooks: hooks}
	begin := txFrame(stomp.CommandBegin, "tx")
	member := send("m", stomp.HeaderTransaction, "tx")
	commit := txFrame(stomp.CommandCommit, "tx")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = client.Transmit(begin)
		_ = client.Transmit(member)
		_ = client.Transmit(commit)
	}
}

func BenchmarkWrittenBufferReplay64(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		hooks, buffer := newBuffer()
		for index := 0; index < 64; index++ {
			hooks.TriggerBeforeTransmit(send(strconv.Itoa(index)))
		}
		b.StartTimer()

		if err := buffer.Replay(hooks, hookTransmitter{hooks: hooks}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFrameWriteTo(b *testing.B) {
	frame := send("m", "content-type", "text/plain").SetBody([]byte("hello, world"))
	var out bytes.Buffer

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out.Reset()
		if _, err := frame.WriteTo(&out); err != nil {
			b.Fatal(err)
		}
	}
}
