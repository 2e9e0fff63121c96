package common

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the codec. Every failure aborts the current call;
// nothing is retried and partial output on the stream is garbage
var (
	// ErrMalformed - the byte stream does not conform to the wire format
	ErrMalformed = errors.New("malformed input")
	// ErrMissingReference - an entry names a digest absent from the local
	// per-blob table. Strictly a sender bug or corruption
	ErrMissingReference = errors.New("reference to unknown digest")
	// ErrOrderingViolation - writer internal error: a child's digest was
	// needed before it was computed
	ErrOrderingViolation = errors.New("child digest not computed before parent")
	// ErrCycle - cycle detected among children nodes. Unreachable for
	// well-formed inputs
	ErrCycle = errors.New("cycle in children graph")
	// ErrEmptySet - an empty nested set reached a layer that requires
	// callers to short-circuit it out-of-band
	ErrEmptySet = errors.New("empty nested set has no serialized form")
	// ErrNotAllBytesConsumed - a frame body carried trailing bytes
	ErrNotAllBytesConsumed = errors.New("not all bytes consumed")
)

// FrameError attaches the index of the frame in flight to a decode failure
func FrameError(index int, err error) error {
	return fmt.Errorf("frame %d: %w", index, err)
}

// PayloadError wraps an error surfaced from the payload codec, adding no
// context beyond the frame that was in flight
func PayloadError(index int, err error) error {
	return fmt.Errorf("frame %d: payload codec: %w", index, err)
}
