// Package codec serializes and deserializes nested sets. Every distinct
// sub-graph of a root is emitted exactly once per blob as a frame
// `[digest][length][body]`, children before parents, so a parent's body
// can name its children by digest alone. On read, frames resolve against
// a per-call table and then against a process-wide weak interner, which
// restores sharing across independent deserializations.
//
// The codec is synchronous: it performs no task spawning and blocks only
// on its streams and the payload codec. Concurrent calls over different
// sets are safe; the interner is the only shared state
package codec

import (
	"sync/atomic"

	"github.com/samsun639/bazel/interner"
	"github.com/samsun639/bazel/nested"
)

// interned is the process-wide digest interner. One per process, shared
// by all element types: the node graph is untyped below the Set level
var interned = interner.New[nested.Node]()

var disabled atomic.Bool

// SetEnabled toggles serialization process-wide. When disabled, Write
// emits nothing and Read returns the empty stable-order set without
// touching its input. Only for test environments that need the codec
// instantiated but never exercise real encoding: reads silently discard
// data
func SetEnabled(enabled bool) {
	disabled.Store(!enabled)
}

// Enabled reports whether the codec currently serializes for real
func Enabled() bool {
	return !disabled.Load()
}
