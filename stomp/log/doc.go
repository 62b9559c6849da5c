// Package log provides the structured logging facade used by the stomp
// packages.
//
// Components accept a Logger and default to NoopLogger, so they never need
// nil checks. The zerolog adapter is the production implementation:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	buffer := stomp.NewWrittenBuffer(hooks).SetLogger(logger)
package log
