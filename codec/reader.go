package codec

import (
	"bytes"

	"golang.org/x/xerrors"

	"github.com/samsun639/bazel/common"
	"github.com/samsun639/bazel/nested"
)

// Read deserializes one nested set. Frames arrive children-first, so every
// digest reference resolves against the table of frames already read in
// this call. After a frame parses completely, its node goes through the
// process-wide interner: if an equal-digest node is live anywhere in the
// process, the freshly built one is dropped in favor of it. The declared
// digest is trusted as the interning key; the body is not re-hashed.
//
// The last frame is the root
func Read[T any](r common.Reader, payloads common.PayloadCodec[T]) (nested.Set[T], error) {
	if !Enabled() {
		return nested.EmptySet[T](nested.StableOrder), nil
	}
	count, err := common.ReadUvarint(r)
	if err != nil {
		return nested.Set[T]{}, err
	}
	if count == 0 {
		return nested.Set[T]{}, xerrors.Errorf("frame count must be positive: %w", common.ErrMalformed)
	}
	ordinal, err := common.ReadUvarint(r)
	if err != nil {
		return nested.Set[T]{}, err
	}
	order, ok := nested.OrderFromOrdinal(ordinal)
	if !ok {
		return nested.Set[T]{}, xerrors.Errorf("unknown order ordinal %d: %w", ordinal, common.ErrMalformed)
	}

	local := make(map[common.Digest]*nested.Node, allocHint(count))
	var root *nested.Node
	for i := 0; i < int(count); i++ {
		digest, err := common.ReadDigest(r)
		if err != nil {
			return nested.Set[T]{}, common.FrameError(i, err)
		}
		body, err := common.ReadVarBytes(r, 0)
		if err != nil {
			return nested.Set[T]{}, common.FrameError(i, err)
		}
		node, err := readBody[T](bytes.NewReader(body), i, local, payloads)
		if err != nil {
			return nested.Set[T]{}, err
		}
		if !node.IsEmpty() {
			node = interned.GetOrInsert(digest, node)
		}
		local[digest] = node
		root = node
	}
	return nested.NewSet[T](order, root), nil
}

// allocHint caps a wire-declared count before it becomes an allocation
// size. The count itself is still honored; only the pre-allocation is
// bounded against corrupted prefixes
func allocHint(count uint64) int {
	const limit = 1 << 12
	if count > limit {
		return limit
	}
	return int(count)
}

// readBody parses one frame body against the local digest table. The node
// is built completely before the caller lets it anywhere near the
// interner, so a failed read never pollutes process state
func readBody[T any](r *bytes.Reader, frame int, local map[common.Digest]*nested.Node, payloads common.PayloadCodec[T]) (*nested.Node, error) {
	k, err := common.ReadUvarint(r)
	if err != nil {
		return nil, common.FrameError(frame, err)
	}
	var node *nested.Node
	switch {
	case k == 0:
		node = nested.Empty()
	case k == 1:
		elem, err := payloads.Deserialize(r)
		if err != nil {
			return nil, common.PayloadError(frame, err)
		}
		node = nested.Leaf(elem)
	default:
		// every entry costs at least its bool tag, which bounds any
		// declared count against the actual body size
		if k > uint64(r.Len()) {
			return nil, common.FrameError(frame, xerrors.Errorf("impossible entry count %d: %w", k, common.ErrMalformed))
		}
		entries := make([]any, 0, k)
		for j := uint64(0); j < k; j++ {
			isRef, err := common.ReadBool(r)
			if err != nil {
				return nil, common.FrameError(frame, err)
			}
			if !isRef {
				elem, err := payloads.Deserialize(r)
				if err != nil {
					return nil, common.PayloadError(frame, err)
				}
				entries = append(entries, elem)
				continue
			}
			ref, err := common.ReadDigest(r)
			if err != nil {
				return nil, common.FrameError(frame, err)
			}
			child, ok := local[ref]
			if !ok {
				return nil, common.FrameError(frame, xerrors.Errorf("digest %s: %w", ref, common.ErrMissingReference))
			}
			if child.IsEmpty() {
				return nil, common.FrameError(frame, xerrors.Errorf("reference to empty node: %w", common.ErrMalformed))
			}
			entries = append(entries, child)
		}
		node = nested.Branch(entries)
	}
	if r.Len() != 0 {
		return nil, common.FrameError(frame, common.ErrNotAllBytesConsumed)
	}
	return node, nil
}
