package codec

import (
	"bytes"
	"crypto/md5"
	"io"

	"golang.org/x/xerrors"

	"github.com/samsun639/bazel/common"
	"github.com/samsun639/bazel/nested"
)

// Write serializes a nested set: a varint frame count, the order ordinal,
// then one frame per distinct children node in emission order. Each body
// is streamed simultaneously into an in-memory buffer and the digest
// engine - the digest and length precede the body on the wire, so the
// body must be materialized before the frame can be emitted.
//
// Empty sets have no serialized form at this layer. Callers short-circuit
// them out-of-band (the blob store does so with a presence byte) and
// Write refuses them with ErrEmptySet
func Write[T any](w io.Writer, set nested.Set[T], payloads common.PayloadCodec[T]) error {
	if !Enabled() {
		return nil
	}
	if set.IsEmpty() {
		return common.ErrEmptySet
	}
	order, err := emissionOrder(set.Node())
	if err != nil {
		return err
	}
	if err = common.WriteUvarint(w, uint64(len(order))); err != nil {
		return err
	}
	if err = common.WriteUvarint(w, uint64(set.Order())); err != nil {
		return err
	}

	digests := make(map[*nested.Node]common.Digest, len(order))
	var body bytes.Buffer
	for i, n := range order {
		body.Reset()
		hash := md5.New()
		if err = writeBody[T](io.MultiWriter(&body, hash), i, n, digests, payloads); err != nil {
			return err
		}
		var digest common.Digest
		hash.Sum(digest[:0])
		digests[n] = digest
		if err = digest.Write(w); err != nil {
			return err
		}
		if err = common.WriteVarBytes(w, body.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// writeBody emits the canonical body encoding of one node: varint entry
// count, then the payload (leaf) or the entries, each a bool-tagged
// digest reference or payload. These exact bytes are the digest input
func writeBody[T any](w io.Writer, frame int, n *nested.Node, digests map[*nested.Node]common.Digest, payloads common.PayloadCodec[T]) error {
	k := n.NumEntries()
	if err := common.WriteUvarint(w, uint64(k)); err != nil {
		return err
	}
	if n.IsEmpty() {
		return nil
	}
	if n.IsLeaf() {
		if err := payloads.Serialize(w, payloadOf[T](n.Payload())); err != nil {
			return common.PayloadError(frame, err)
		}
		return nil
	}
	for i := 0; i < k; i++ {
		e := n.Entry(i)
		child, isRef := e.(*nested.Node)
		if err := common.WriteBool(w, isRef); err != nil {
			return err
		}
		if !isRef {
			if err := payloads.Serialize(w, payloadOf[T](e)); err != nil {
				return common.PayloadError(frame, err)
			}
			continue
		}
		digest, ok := digests[child]
		if !ok {
			return xerrors.Errorf("frame %d entry %d: %w", frame, i, common.ErrOrderingViolation)
		}
		if err := digest.Write(w); err != nil {
			return err
		}
	}
	return nil
}

func payloadOf[T any](e any) T {
	ret, ok := e.(T)
	common.Assert(ok, "payload has type %T, codec expects %T", e, ret)
	return ret
}
