// Package blobstore stores serialized nested sets in a key/value store,
// content-addressed by a blake2b-160 hash of the stored record. The record
// starts with a presence byte: empty sets, which have no envelope form,
// round-trip through the store as presence 0 plus their order
package blobstore

import (
	"bytes"
	"encoding/hex"
	"errors"

	"golang.org/x/xerrors"

	"github.com/samsun639/bazel/codec"
	"github.com/samsun639/bazel/common"
	"github.com/samsun639/bazel/nested"
)

var ErrBlobNotFound = errors.New("blob not found")

// BlobKey addresses one stored blob
type BlobKey [20]byte

func (k BlobKey) Bytes() []byte {
	return k[:]
}

func (k BlobKey) String() string {
	return hex.EncodeToString(k[:])
}

func BlobKeyFromBytes(data []byte) (BlobKey, error) {
	var ret BlobKey
	if len(data) != len(ret) {
		return ret, xerrors.Errorf("blob key must be %d bytes, got %d", len(ret), len(data))
	}
	copy(ret[:], data)
	return ret, nil
}

// KV is what the store needs from its backing storage. Both the hive
// adaptors and the in-memory map store satisfy it
type KV interface {
	common.KVReader
	common.KVWriter
}

// Store reads and writes nested set blobs on top of a key/value store
type Store[T any] struct {
	kv       KV
	payloads common.PayloadCodec[T]
}

func New[T any](kv KV, payloads common.PayloadCodec[T]) *Store[T] {
	return &Store[T]{kv: kv, payloads: payloads}
}

// Put serializes the set and stores it under its content key. Storing the
// same set twice hits the same key and is a no-op at the kv level
func (s *Store[T]) Put(set nested.Set[T]) (BlobKey, error) {
	var buf bytes.Buffer
	if err := common.WriteBool(&buf, !set.IsEmpty()); err != nil {
		return BlobKey{}, err
	}
	if set.IsEmpty() {
		if err := common.WriteUvarint(&buf, uint64(set.Order())); err != nil {
			return BlobKey{}, err
		}
	} else if err := codec.Write(&buf, set, s.payloads); err != nil {
		return BlobKey{}, err
	}
	key := BlobKey(common.Blake2b160(buf.Bytes()))
	s.kv.Set(key[:], buf.Bytes())
	return key, nil
}

// Get deserializes the blob stored under key
func (s *Store[T]) Get(key BlobKey) (nested.Set[T], error) {
	data := s.kv.Get(key[:])
	if data == nil {
		return nested.Set[T]{}, xerrors.Errorf("%s: %w", key, ErrBlobNotFound)
	}
	rdr := bytes.NewReader(data)
	present, err := common.ReadBool(rdr)
	if err != nil {
		return nested.Set[T]{}, err
	}
	var ret nested.Set[T]
	if !present {
		ordinal, err := common.ReadUvarint(rdr)
		if err != nil {
			return nested.Set[T]{}, err
		}
		order, ok := nested.OrderFromOrdinal(ordinal)
		if !ok {
			return nested.Set[T]{}, xerrors.Errorf("unknown order ordinal %d: %w", ordinal, common.ErrMalformed)
		}
		ret = nested.EmptySet[T](order)
	} else if ret, err = codec.Read[T](rdr, s.payloads); err != nil {
		return nested.Set[T]{}, err
	}
	if rdr.Len() != 0 {
		return nested.Set[T]{}, common.ErrNotAllBytesConsumed
	}
	return ret, nil
}

func (s *Store[T]) Has(key BlobKey) bool {
	return s.kv.Has(key[:])
}
