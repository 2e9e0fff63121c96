// Package hive_adaptor contains adaptor interfaces with the key/value interfaces implemented in the `hive.go` repository.
package hive_adaptor

import (
	"errors"

	"github.com/iotaledger/hive.go/core/kvstore"

	"github.com/samsun639/bazel/common"
)

// HiveKVStoreAdaptor maps a partition of the Hive KVStore to common.KVStore
type HiveKVStoreAdaptor struct {
	kvs    kvstore.KVStore
	prefix []byte
}

// NewHiveKVStoreAdaptor creates a new KVStore as a partition of hive.go KVStore
func NewHiveKVStoreAdaptor(kvs kvstore.KVStore, prefix []byte) *HiveKVStoreAdaptor {
	return &HiveKVStoreAdaptor{kvs: kvs, prefix: prefix}
}

func mustNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func makeKey(prefix, k []byte) []byte {
	if len(prefix) == 0 {
		return k
	}
	return common.Concat(prefix, k)
}

func (kvs *HiveKVStoreAdaptor) Get(key []byte) []byte {
	v, err := kvs.kvs.Get(makeKey(kvs.prefix, key))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil
	}
	mustNoErr(err)
	return v
}

func (kvs *HiveKVStoreAdaptor) Has(key []byte) bool {
	v, err := kvs.kvs.Has(makeKey(kvs.prefix, key))
	mustNoErr(err)
	return v
}

func (kvs *HiveKVStoreAdaptor) Set(key, value []byte) {
	var err error
	if len(value) == 0 {
		err = kvs.kvs.Delete(makeKey(kvs.prefix, key))
	} else {
		err = kvs.kvs.Set(makeKey(kvs.prefix, key), value)
	}
	mustNoErr(err)
}

func (kvs *HiveKVStoreAdaptor) Iterate(fun func(k []byte, v []byte) bool) {
	err := kvs.kvs.Iterate(kvs.prefix, func(key kvstore.Key, value kvstore.Value) bool {
		return fun(key[len(kvs.prefix):], value)
	})
	mustNoErr(err)
}

func (kvs *HiveKVStoreAdaptor) IterateKeys(fun func(k []byte) bool) {
	err := kvs.kvs.IterateKeys(kvs.prefix, func(key kvstore.Key) bool {
		return fun(key[len(kvs.prefix):])
	})
	mustNoErr(err)
}

// HiveBatchedPartition buffers writes to a partition of a hive KVStore and
// applies them as one atomic batch. Bulk blob imports go through this:
// either every blob of an import lands or none does
type HiveBatchedPartition struct {
	kvs    kvstore.KVStore
	prefix []byte
	batch  kvstore.BatchedMutations
}

// NewHiveBatchedPartition creates a batched writer over a partition of the hive.go KVStore
func NewHiveBatchedPartition(kvs kvstore.KVStore, prefix []byte) *HiveBatchedPartition {
	return &HiveBatchedPartition{kvs: kvs, prefix: prefix}
}

// Get reads through to the committed state; buffered writes are not visible
func (b *HiveBatchedPartition) Get(key []byte) []byte {
	v, err := b.kvs.Get(makeKey(b.prefix, key))
	if errors.Is(err, kvstore.ErrKeyNotFound) {
		return nil
	}
	mustNoErr(err)
	return v
}

func (b *HiveBatchedPartition) Has(key []byte) bool {
	v, err := b.kvs.Has(makeKey(b.prefix, key))
	mustNoErr(err)
	return v
}

func (b *HiveBatchedPartition) Set(key, value []byte) {
	var err error
	if b.batch == nil {
		b.batch, err = b.kvs.Batched()
		mustNoErr(err)
	}
	if len(value) > 0 {
		err = b.batch.Set(makeKey(b.prefix, key), value)
	} else {
		err = b.batch.Delete(makeKey(b.prefix, key))
	}
	mustNoErr(err)
}

// Commit applies buffered mutations as an atomic update and flushes the store
func (b *HiveBatchedPartition) Commit() error {
	if b.batch == nil {
		return nil
	}
	if err := b.batch.Commit(); err != nil {
		return err
	}
	if err := b.kvs.Flush(); err != nil {
		return err
	}
	b.batch = nil
	return nil
}
