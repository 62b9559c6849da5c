package testutil

import (
	"testing"

	"github.com/simlegate/onstomp/stomp"
	"github.com/stretchr/testify/require"
)

func TestTransmitterFiresHooksAndRecords(t *testing.T) {
	hooks := stomp.NewHooks()
	var before, after int
	hooks.BeforeSend(func(*stomp.Frame) { before++ })
	hooks.OnSend(func(*stomp.Frame) { after++ })

	transmitter := NewTransmitter(hooks, true)
	require.NoError(t, transmitter.Transmit(stomp.NewFrame(stomp.CommandSend)))
	require.Equal(t, 1, before)
	require.Equal(t, 1, after)
	require.Equal(t, []string{stomp.CommandSend}, transmitter.Commands())
}

func TestTransmitterFailAfter(t *testing.T) {
	transmitter := NewTransmitter(stomp.NewHooks(), false).FailAfter(1)
	require.NoError(t, transmitter.Transmit(stomp.NewFrame(stomp.CommandSend)))
	require.ErrorIs(t, transmitter.Transmit(stomp.NewFrame(stomp.CommandSend)), ErrTransmitFailed)
	require.Len(t, transmitter.Frames(), 1)
}
