package vm

import (
	"bytes"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/require"

	"github.com/simlegate/onstomp/stomp"
)

func TestCollectorWithBuffer(t *testing.T) {
	set := metrics.NewSet()
	collector := New(WithMetricsSet(set), WithPrefix("test"), WithClientName("orders"))
	require.Same(t, set, collector.Set())

	hooks := stomp.NewHooks()
	buffer := stomp.NewWrittenBuffer(hooks).SetMetrics(collector)

	sent := stomp.NewFrame(stomp.CommandSend, stomp.HeaderDestination, "/queue/a")
	hooks.TriggerBeforeTransmit(sent)
	hooks.TriggerBeforeTransmit(stomp.NewFrame(stomp.CommandSubscribe, stomp.HeaderID, "s1"))
	hooks.TriggerTransmitted(sent)
	hooks.TriggerBeforeTransmit(stomp.NewFrame(stomp.CommandUnsubscribe, stomp.HeaderID, "s1"))
	hooks.TriggerBeforeTransmit(stomp.NewFrame(stomp.CommandBegin, stomp.HeaderTransaction, "tx"))
	hooks.TriggerTransmitted(stomp.NewFrame(stomp.CommandCommit, stomp.HeaderTransaction, "tx"))
	require.Zero(t, buffer.Len())

	var out bytes.Buffer
	collector.WritePrometheus(&out)
	text := out.String()
	require.Contains(t, text, `test_frames_buffered_total{client="orders"} 3`)
	require.Contains(t, text, `test_frames_confirmed_total{client="orders"} 1`)
	require.Contains(t, text, `test_subscriptions_debuffered_total{client="orders"} 1`)
	require.Contains(t, text, `test_transactions_confirmed_total{client="orders"} 1`)
	require.Contains(t, text, `test_pending_frames{client="orders"} 0`)
}

func TestCollectorReplayCounters(t *testing.T) {
	set := metrics.NewSet()
	collector := New(WithMetricsSet(set))

	collector.IncFramesReplayed()
	collector.IncFramesReplayed()
	collector.IncReplayErrors()
	collector.SetPendingFrames(4)

	var out bytes.Buffer
	collector.WritePrometheus(&out)
	text := out.String()
	require.Contains(t, text, "onstomp_frames_replayed_total 2")
	require.Contains(t, text, "onstomp_replay_errors_total 1")
	require.Contains(t, text, "onstomp_pending_frames 4")
}
