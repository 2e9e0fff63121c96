// Package interner provides a process-wide weak-valued map from digest to
// deserialized value. It is the sole mechanism restoring structural sharing
// across independent deserializations: any two live values with equal
// digests collapse to one. Values are held weakly, so an entry vanishes
// once no caller keeps its value alive
package interner

import (
	"runtime"
	"sync"
	"weak"

	"github.com/samsun639/bazel/common"
)

const numShards = 16

// Interner is a sharded concurrent digest map with weak values. The zero
// value is not usable; create with New
type Interner[V any] struct {
	shards [numShards]shard[V]
}

type shard[V any] struct {
	mu sync.Mutex
	m  map[common.Digest]weak.Pointer[V]
}

func New[V any]() *Interner[V] {
	ret := &Interner[V]{}
	for i := range ret.shards {
		ret.shards[i].m = make(map[common.Digest]weak.Pointer[V])
	}
	return ret
}

func (in *Interner[V]) shardFor(digest common.Digest) *shard[V] {
	return &in.shards[digest[0]%numShards]
}

// GetOrInsert returns the live value interned under digest, installing
// candidate if there is none. Atomic with single-winner semantics: of two
// concurrent inserts for one digest, the loser's candidate is dropped and
// both callers observe the winner's value
func (in *Interner[V]) GetOrInsert(digest common.Digest, candidate *V) *V {
	common.Assert(candidate != nil, "GetOrInsert: nil candidate")
	sh := in.shardFor(digest)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if wp, ok := sh.m[digest]; ok {
		if v := wp.Value(); v != nil {
			return v
		}
	}
	wp := weak.Make(candidate)
	sh.m[digest] = wp
	// once the candidate is collected, drop the entry - unless the slot
	// was already re-occupied by a newer value under the same digest
	runtime.AddCleanup(candidate, func(stale weak.Pointer[V]) {
		sh.mu.Lock()
		defer sh.mu.Unlock()
		if cur, ok := sh.m[digest]; ok && cur == stale {
			delete(sh.m, digest)
		}
	}, wp)
	return candidate
}

// Get returns the live value interned under digest, if any
func (in *Interner[V]) Get(digest common.Digest) (*V, bool) {
	sh := in.shardFor(digest)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if wp, ok := sh.m[digest]; ok {
		if v := wp.Value(); v != nil {
			return v, true
		}
	}
	return nil, false
}

// Len counts entries whose value is still live. Linearizes each shard
// separately; intended for tests and diagnostics
func (in *Interner[V]) Len() int {
	ret := 0
	for i := range in.shards {
		sh := &in.shards[i]
		sh.mu.Lock()
		for _, wp := range sh.m {
			if wp.Value() != nil {
				ret++
			}
		}
		sh.mu.Unlock()
	}
	return ret
}
