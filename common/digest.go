package common

import (
	"encoding/hex"
	"io"

	"golang.org/x/xerrors"
)

// DigestSize is the byte length of a node digest (128 bit MD5)
const DigestSize = 16

// Digest is the content-addressed identity of a children node: the MD5 of
// its canonical body encoding. It is an owned value, safe to use as a map
// key after the buffer it was read from is gone
type Digest [DigestSize]byte

func DigestFromBytes(data []byte) (Digest, error) {
	var ret Digest
	if len(data) != DigestSize {
		return ret, xerrors.Errorf("digest must be %d bytes, got %d: %w", DigestSize, len(data), ErrMalformed)
	}
	copy(ret[:], data)
	return ret, nil
}

func (d Digest) Bytes() []byte {
	return d[:]
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Write emits the digest in its wire form: length-prefixed 16 bytes
func (d Digest) Write(w io.Writer) error {
	return WriteVarBytes(w, d[:])
}

// ReadDigest reads a length-prefixed digest from the wire
func ReadDigest(r Reader) (Digest, error) {
	data, err := ReadVarBytes(r, DigestSize)
	if err != nil {
		return Digest{}, err
	}
	return DigestFromBytes(data)
}
