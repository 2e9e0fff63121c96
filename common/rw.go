package common

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// r/w utility functions. All integers on the wire are protobuf-style
// varints, all byte strings are length-prefixed with a varint

// Reader is what the deserialization side needs from its input.
// bytes.Reader and bufio.Reader both satisfy it. The byte-oriented reads
// keep varint decoding from consuming past the value
type Reader interface {
	io.Reader
	io.ByteReader
}

func WriteUvarint(w io.Writer, val uint64) error {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], val)
	_, err := w.Write(tmp[:n])
	return err
}

func ReadUvarint(r io.ByteReader) (uint64, error) {
	ret, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, xerrors.Errorf("bad varint: %w", ErrMalformed)
	}
	return ret, nil
}

func WriteByte(w io.Writer, val byte) error {
	_, err := w.Write([]byte{val})
	return err
}

func ReadByte(r io.ByteReader) (byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, xerrors.Errorf("unexpected end of input: %w", ErrMalformed)
	}
	return b, nil
}

// WriteBool encodes a boolean as a single 0x00 or 0x01 byte. The canonical
// digest input depends on this exact encoding
func WriteBool(w io.Writer, val bool) error {
	b := byte(0)
	if val {
		b = 1
	}
	return WriteByte(w, b)
}

func ReadBool(r io.ByteReader) (bool, error) {
	b, err := ReadByte(r)
	if err != nil {
		return false, err
	}
	if b != 0 && b != 1 {
		return false, xerrors.Errorf("bad boolean byte 0x%02x: %w", b, ErrMalformed)
	}
	return b == 1, nil
}

// WriteVarBytes writes a varint length followed by the data
func WriteVarBytes(w io.Writer, data []byte) error {
	if err := WriteUvarint(w, uint64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return err
}

// ReadVarBytes reads a length-prefixed byte string. maxLen bounds the
// declared length so that a corrupted prefix cannot trigger a huge
// allocation; maxLen <= 0 means no bound
func ReadVarBytes(r Reader, maxLen int) ([]byte, error) {
	length, err := ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if maxLen > 0 && length > uint64(maxLen) {
		return nil, xerrors.Errorf("impossible length %d: %w", length, ErrMalformed)
	}
	if length == 0 {
		return []byte{}, nil
	}
	ret := make([]byte, length)
	if _, err = io.ReadFull(r, ret); err != nil {
		return nil, xerrors.Errorf("truncated input: %w", ErrMalformed)
	}
	return ret, nil
}
