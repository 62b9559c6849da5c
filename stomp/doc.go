// Package stomp provides the failover delivery pieces of a STOMP client:
// frames, the failover extension points, and a written-frame buffer that
// replays unconfirmed frames after a reconnect.
//
// The primary lifecycle is:
//   - construct a Hooks value owned by the failover manager
//   - construct a WrittenBuffer with NewWrittenBuffer(hooks)
//   - let the transport fire TriggerBeforeTransmit and TriggerTransmitted
//     around every frame write
//   - fire TriggerFailoverConnected once a replacement connection is live
//
// WrittenBuffer gives at-least-once delivery for SEND, SUBSCRIBE, BEGIN,
// COMMIT and ABORT frames: a frame stays pending until its write has been
// confirmed on the active connection, and transactional frames stay pending
// until their COMMIT or ABORT has been confirmed. Replayed frames are tagged
// copies carrying ReplayHeader, so they are never buffered twice.
//
// All exported buffer and hook operations are safe for concurrent use.
// Handlers registered on Hooks may run on transport writer and reader
// goroutines and should be written as thread-safe.
//
// Errors are reported as typed values created with NewError and may wrap
// connection, protocol, command, timeout, or disconnect causes.
package stomp
