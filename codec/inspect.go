package codec

import (
	"bytes"

	"golang.org/x/xerrors"

	"github.com/samsun639/bazel/common"
	"github.com/samsun639/bazel/nested"
)

// Frame inspection for tooling. Inspect walks a blob the way Read does but
// materializes wire-level facts instead of nodes and keeps the interner
// out of it, so dumping a blob has no effect on process state

type Envelope struct {
	Count int
	Order nested.Order
}

type EntryInfo[T any] struct {
	IsRef   bool
	Ref     common.Digest // set when IsRef
	Payload T             // set otherwise
}

type FrameInfo[T any] struct {
	Digest   common.Digest
	BodySize int
	Entries  []EntryInfo[T]
}

// IsLeaf reports whether the frame encodes a single-payload node
func (f FrameInfo[T]) IsLeaf() bool {
	return len(f.Entries) == 1 && !f.Entries[0].IsRef
}

// NumRefs counts digest references among the entries
func (f FrameInfo[T]) NumRefs() int {
	ret := 0
	for _, e := range f.Entries {
		if e.IsRef {
			ret++
		}
	}
	return ret
}

// Inspect decodes the envelope and every frame of a blob. References are
// checked against the digests of preceding frames, as Read resolves them;
// a reference to an empty frame, which Read rejects, is not flagged here
func Inspect[T any](r common.Reader, payloads common.PayloadCodec[T]) (Envelope, []FrameInfo[T], error) {
	var env Envelope
	count, err := common.ReadUvarint(r)
	if err != nil {
		return env, nil, err
	}
	if count == 0 {
		return env, nil, xerrors.Errorf("frame count must be positive: %w", common.ErrMalformed)
	}
	ordinal, err := common.ReadUvarint(r)
	if err != nil {
		return env, nil, err
	}
	order, ok := nested.OrderFromOrdinal(ordinal)
	if !ok {
		return env, nil, xerrors.Errorf("unknown order ordinal %d: %w", ordinal, common.ErrMalformed)
	}
	env = Envelope{Count: int(count), Order: order}

	seen := make(map[common.Digest]struct{}, allocHint(count))
	frames := make([]FrameInfo[T], 0, allocHint(count))
	for i := 0; i < env.Count; i++ {
		digest, err := common.ReadDigest(r)
		if err != nil {
			return env, frames, common.FrameError(i, err)
		}
		body, err := common.ReadVarBytes(r, 0)
		if err != nil {
			return env, frames, common.FrameError(i, err)
		}
		entries, err := inspectBody[T](bytes.NewReader(body), i, seen, payloads)
		if err != nil {
			return env, frames, err
		}
		seen[digest] = struct{}{}
		frames = append(frames, FrameInfo[T]{Digest: digest, BodySize: len(body), Entries: entries})
	}
	return env, frames, nil
}

func inspectBody[T any](r *bytes.Reader, frame int, seen map[common.Digest]struct{}, payloads common.PayloadCodec[T]) ([]EntryInfo[T], error) {
	k, err := common.ReadUvarint(r)
	if err != nil {
		return nil, common.FrameError(frame, err)
	}
	if k == 0 {
		return nil, nil
	}
	if k == 1 {
		elem, err := payloads.Deserialize(r)
		if err != nil {
			return nil, common.PayloadError(frame, err)
		}
		return []EntryInfo[T]{{Payload: elem}}, nil
	}
	if k > uint64(r.Len()) {
		return nil, common.FrameError(frame, xerrors.Errorf("impossible entry count %d: %w", k, common.ErrMalformed))
	}
	entries := make([]EntryInfo[T], 0, k)
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
			entries = append(entries, EntryInfo[T]{Payload: elem})
			continue
		}
		ref, err := common.ReadDigest(r)
		if err != nil {
			return nil, common.FrameError(frame, err)
		}
		if _, ok := seen[ref]; !ok {
			return nil, common.FrameError(frame, xerrors.Errorf("digest %s: %w", ref, common.ErrMissingReference))
		}
		entries = append(entries, EntryInfo[T]{IsRef: true, Ref: ref})
	}
	if r.Len() != 0 {
		return nil, common.FrameError(frame, common.ErrNotAllBytesConsumed)
	}
	return entries, nil
}
