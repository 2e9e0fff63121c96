package common

import (
	"io"

	"golang.org/x/xerrors"
)

// PayloadCodec is the seam through which element payloads are handed off
// to the caller. The codec makes no assumptions about payload equality,
// hashability or size; payload errors propagate unchanged
type PayloadCodec[T any] interface {
	// Serialize writes one element. The bytes written become part of the
	// canonical digest input of every node containing the element, so the
	// encoding must be deterministic
	Serialize(w io.Writer, elem T) error
	// Deserialize reads back exactly the bytes Serialize produced
	Deserialize(r Reader) (T, error)
}

// StringPayloads is the common payload codec for string elements,
// length-prefixed like every other byte string on the wire
type StringPayloads struct{}

func (StringPayloads) Serialize(w io.Writer, elem string) error {
	return WriteVarBytes(w, []byte(elem))
}

func (StringPayloads) Deserialize(r Reader) (string, error) {
	data, err := ReadVarBytes(r, 0)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BytesPayloads serializes raw byte slice elements
type BytesPayloads struct{}

func (BytesPayloads) Serialize(w io.Writer, elem []byte) error {
	return WriteVarBytes(w, elem)
}

func (BytesPayloads) Deserialize(r Reader) ([]byte, error) {
	return ReadVarBytes(r, 0)
}

// BoundedBytesPayloads is BytesPayloads with a size cap, for callers that
// know their element size and want corrupted lengths rejected early
type BoundedBytesPayloads struct {
	MaxSize int
}

func (p BoundedBytesPayloads) Serialize(w io.Writer, elem []byte) error {
	if len(elem) > p.MaxSize {
		return xerrors.Errorf("payload of %d bytes exceeds limit %d", len(elem), p.MaxSize)
	}
	return WriteVarBytes(w, elem)
}

func (p BoundedBytesPayloads) Deserialize(r Reader) ([]byte, error) {
	return ReadVarBytes(r, p.MaxSize)
}
