// Package vm implements stomp.Metrics with VictoriaMetrics counters and
// gauges.
//
//	collector := vm.New(vm.WithPrefix("orders_client"))
//	buffer := stomp.NewWrittenBuffer(hooks).SetMetrics(collector)
//
// Expose the metrics with metrics.WritePrometheus or, when WithMetricsSet
// is used, with the set's own WritePrometheus.
package vm
