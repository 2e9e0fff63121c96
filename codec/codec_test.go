package codec

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/samsun639/bazel/common"
	"github.com/samsun639/bazel/nested"
)

var payloads = common.StringPayloads{}

func writeToBytes(t *testing.T, set nested.Set[string]) []byte {
	var buf bytes.Buffer
	err := Write(&buf, set, payloads)
	require.NoError(t, err)
	return buf.Bytes()
}

func readFromBytes(t *testing.T, data []byte) nested.Set[string] {
	ret, err := Read[string](bytes.NewReader(data), payloads)
	require.NoError(t, err)
	return ret
}

func TestLeafRoundTrip(t *testing.T) {
	set := nested.NewBuilder[string](nested.StableOrder).Add("x").Build()
	data := writeToBytes(t, set)

	env, frames, err := Inspect[string](bytes.NewReader(data), payloads)
	require.NoError(t, err)
	require.EqualValues(t, 1, env.Count)
	require.Equal(t, nested.StableOrder, env.Order)
	require.True(t, frames[0].IsLeaf())

	back := readFromBytes(t, data)
	require.Equal(t, nested.StableOrder, back.Order())
	if diff := cmp.Diff([]string{"x"}, back.Flatten()); diff != "" {
		t.Errorf("flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestTwoElementBranch(t *testing.T) {
	set := nested.NewBuilder[string](nested.CompileOrder).Add("a", "b").Build()
	data := writeToBytes(t, set)

	env, frames, err := Inspect[string](bytes.NewReader(data), payloads)
	require.NoError(t, err)
	require.EqualValues(t, 1, env.Count)
	require.Equal(t, 2, len(frames[0].Entries))
	require.Equal(t, 0, frames[0].NumRefs())

	back := readFromBytes(t, data)
	require.Equal(t, nested.CompileOrder, back.Order())
	if diff := cmp.Diff([]string{"a", "b"}, back.Flatten()); diff != "" {
		t.Errorf("flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestSharedSubGraph(t *testing.T) {
	sub := nested.NewBuilder[string](nested.StableOrder).Add("p", "q").Build()
	root := nested.NewSet[string](nested.StableOrder, nested.Branch([]any{sub.Node(), sub.Node(), "r"}))
	data := writeToBytes(t, root)

	// exactly one frame for the shared sub-graph, referenced twice
	env, frames, err := Inspect[string](bytes.NewReader(data), payloads)
	require.NoError(t, err)
	require.EqualValues(t, 2, env.Count)
	require.Equal(t, 2, frames[1].NumRefs())
	require.Equal(t, frames[0].Digest, frames[1].Entries[0].Ref)
	require.Equal(t, frames[0].Digest, frames[1].Entries[1].Ref)

	back := readFromBytes(t, data)
	first, ok := back.Node().Entry(0).(*nested.Node)
	require.True(t, ok)
	second, ok := back.Node().Entry(1).(*nested.Node)
	require.True(t, ok)
	require.Same(t, first, second)
	if diff := cmp.Diff([]string{"p", "q", "r"}, back.Flatten()); diff != "" {
		t.Errorf("flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestDiamond(t *testing.T) {
	a := nested.NewBuilder[string](nested.StableOrder).Add("1").Build()
	b := nested.NewBuilder[string](nested.StableOrder).AddTransitive(a).Add("2").Build()
	c := nested.NewBuilder[string](nested.StableOrder).AddTransitive(a).Add("3").Build()
	r := nested.NewBuilder[string](nested.StableOrder).AddTransitive(b, c).Build()
	data := writeToBytes(t, r)

	env, frames, err := Inspect[string](bytes.NewReader(data), payloads)
	require.NoError(t, err)
	require.EqualValues(t, 4, env.Count)
	// DFS first-visit order: A, then B, then C, root last
	require.True(t, frames[0].IsLeaf())
	require.Equal(t, frames[0].Digest, frames[1].Entries[0].Ref)
	require.Equal(t, frames[0].Digest, frames[2].Entries[0].Ref)
	require.Equal(t, frames[1].Digest, frames[3].Entries[0].Ref)
	require.Equal(t, frames[2].Digest, frames[3].Entries[1].Ref)

	back := readFromBytes(t, data)
	left := back.Node().Entry(0).(*nested.Node)
	right := back.Node().Entry(1).(*nested.Node)
	require.Same(t, left.Entry(0), right.Entry(0))
	if diff := cmp.Diff([]string{"1", "2", "3"}, back.Flatten()); diff != "" {
		t.Errorf("flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestDigestDeterminism(t *testing.T) {
	sub := nested.NewBuilder[string](nested.StableOrder).Add("p", "q").Build()
	set := nested.NewBuilder[string](nested.StableOrder).Add("r").AddTransitive(sub).Build()
	require.Equal(t, writeToBytes(t, set), writeToBytes(t, set))
}

func TestParentOrderIndependence(t *testing.T) {
	sub := nested.NewBuilder[string](nested.StableOrder).Add("p", "q").Build()
	r1 := nested.NewBuilder[string](nested.StableOrder).AddTransitive(sub).Add("x").Build()
	r2 := nested.NewBuilder[string](nested.StableOrder).AddTransitive(sub).Add("y").Build()

	// serialize in both orders; the shared sub-graph keeps its digest
	blob1a, blob2a := writeToBytes(t, r1), writeToBytes(t, r2)
	blob2b, blob1b := writeToBytes(t, r2), writeToBytes(t, r1)
	require.Equal(t, blob1a, blob1b)
	require.Equal(t, blob2a, blob2b)

	_, frames1, err := Inspect[string](bytes.NewReader(blob1a), payloads)
	require.NoError(t, err)
	_, frames2, err := Inspect[string](bytes.NewReader(blob2a), payloads)
	require.NoError(t, err)
	require.Equal(t, frames1[0].Digest, frames2[0].Digest)
}

func TestInternerIdempotence(t *testing.T) {
	set := nested.NewBuilder[string](nested.LinkOrder).Add("a", "b", "c").Build()
	data := writeToBytes(t, set)

	first := readFromBytes(t, data)
	second := readFromBytes(t, data)
	require.Same(t, first.Node(), second.Node())
	require.True(t, first.Equal(second))
}

func TestNoSpuriousInterning(t *testing.T) {
	s1 := nested.NewBuilder[string](nested.StableOrder).Add("a", "b").Build()
	s2 := nested.NewBuilder[string](nested.StableOrder).Add("a", "c").Build()

	r1 := readFromBytes(t, writeToBytes(t, s1))
	r2 := readFromBytes(t, writeToBytes(t, s2))
	require.NotSame(t, r1.Node(), r2.Node())
}

func TestCrossBlobSharing(t *testing.T) {
	sub := nested.NewBuilder[string](nested.StableOrder).Add("p", "q").Build()
	r1 := nested.NewBuilder[string](nested.StableOrder).AddTransitive(sub).Add("x").Build()
	r2 := nested.NewBuilder[string](nested.StableOrder).AddTransitive(sub).Add("y").Build()

	back1 := readFromBytes(t, writeToBytes(t, r1))
	back2 := readFromBytes(t, writeToBytes(t, r2))
	require.Same(t, back1.Node().Entry(0), back2.Node().Entry(0))
}

func TestConcurrentDeserialization(t *testing.T) {
	sub := nested.NewBuilder[string](nested.StableOrder).Add("shared", "part").Build()
	set := nested.NewBuilder[string](nested.StableOrder).AddTransitive(sub).Add("top").Build()
	data := writeToBytes(t, set)

	const n = 16
	results := make([]nested.Set[string], n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := Read[string](bytes.NewReader(data), payloads)
			if err == nil {
				results[i] = got
			}
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		require.Same(t, results[0].Node(), results[i].Node())
	}
}

func TestDeepChain(t *testing.T) {
	const depth = 2000
	set := nested.NewBuilder[string](nested.StableOrder).Add("0").Build()
	for i := 1; i < depth; i++ {
		set = nested.NewBuilder[string](nested.StableOrder).
			Add(strconv.Itoa(i)).
			AddTransitive(set).
			Build()
	}
	data := writeToBytes(t, set)
	back := readFromBytes(t, data)

	flat := back.Flatten()
	require.Equal(t, depth, len(flat))
	require.Equal(t, strconv.Itoa(depth-1), flat[0])
	require.Equal(t, "0", flat[depth-1])
}

func TestWriteRefusesEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, nested.EmptySet[string](nested.StableOrder), payloads)
	require.ErrorIs(t, err, common.ErrEmptySet)
	require.Zero(t, buf.Len())
}

func TestReadMalformed(t *testing.T) {
	valid := writeToBytes(t, nested.NewBuilder[string](nested.StableOrder).Add("a", "b").Build())

	t.Run("zero frame count", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, common.WriteUvarint(&buf, 0))
		require.NoError(t, common.WriteUvarint(&buf, 0))
		_, err := Read[string](bytes.NewReader(buf.Bytes()), payloads)
		require.ErrorIs(t, err, common.ErrMalformed)
	})
	t.Run("unknown order", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, common.WriteUvarint(&buf, 1))
		require.NoError(t, common.WriteUvarint(&buf, 200))
		_, err := Read[string](bytes.NewReader(buf.Bytes()), payloads)
		require.ErrorIs(t, err, common.ErrMalformed)
	})
	t.Run("truncated", func(t *testing.T) {
		for cut := 1; cut < len(valid); cut += 3 {
			_, err := Read[string](bytes.NewReader(valid[:cut]), payloads)
			require.Error(t, err, "cut at %d", cut)
		}
	})
	t.Run("bad bool tag", func(t *testing.T) {
		var body bytes.Buffer
		require.NoError(t, common.WriteUvarint(&body, 2))
		require.NoError(t, common.WriteByte(&body, 5))
		// padding so the entry count passes the size bound and the tag is read
		require.NoError(t, common.WriteByte(&body, 0))
		_, err := Read[string](bytes.NewReader(envelope(t, body.Bytes())), payloads)
		require.ErrorIs(t, err, common.ErrMalformed)
	})
	t.Run("impossible entry count", func(t *testing.T) {
		var body bytes.Buffer
		require.NoError(t, common.WriteUvarint(&body, 1000))
		_, err := Read[string](bytes.NewReader(envelope(t, body.Bytes())), payloads)
		require.ErrorIs(t, err, common.ErrMalformed)
	})
	t.Run("trailing body bytes", func(t *testing.T) {
		var body bytes.Buffer
		require.NoError(t, common.WriteUvarint(&body, 1))
		require.NoError(t, common.WriteVarBytes(&body, []byte("x")))
		require.NoError(t, common.WriteByte(&body, 0xff))
		_, err := Read[string](bytes.NewReader(envelope(t, body.Bytes())), payloads)
		require.ErrorIs(t, err, common.ErrNotAllBytesConsumed)
	})
}

// envelope wraps a single hand-rolled frame body into a stream
func envelope(t *testing.T, body []byte) []byte {
	var buf bytes.Buffer
	require.NoError(t, common.WriteUvarint(&buf, 1))
	require.NoError(t, common.WriteUvarint(&buf, uint64(nested.StableOrder)))
	digest := common.Digest{0xde, 0xad}
	require.NoError(t, digest.Write(&buf))
	require.NoError(t, common.WriteVarBytes(&buf, body))
	return buf.Bytes()
}

func TestReadMissingReference(t *testing.T) {
	var body bytes.Buffer
	require.NoError(t, common.WriteUvarint(&body, 2))
	require.NoError(t, common.WriteBool(&body, true))
	unknown := common.Digest{1, 2, 3}
	require.NoError(t, unknown.Write(&body))
	require.NoError(t, common.WriteBool(&body, false))
	require.NoError(t, common.WriteVarBytes(&body, []byte("x")))

	_, err := Read[string](bytes.NewReader(envelope(t, body.Bytes())), payloads)
	require.ErrorIs(t, err, common.ErrMissingReference)
	require.Contains(t, err.Error(), "frame 0")
}

// failingPayloads breaks on a chosen element to exercise error propagation
type failingPayloads struct {
	bad string
}

var errBadPayload = xerrors.New("payload exploded")

func (p failingPayloads) Serialize(w io.Writer, elem string) error {
	if elem == p.bad {
		return errBadPayload
	}
	return common.StringPayloads{}.Serialize(w, elem)
}

func (p failingPayloads) Deserialize(r common.Reader) (string, error) {
	elem, err := common.StringPayloads{}.Deserialize(r)
	if err == nil && elem == p.bad {
		return "", errBadPayload
	}
	return elem, err
}

func TestPayloadErrorPropagation(t *testing.T) {
	set := nested.NewBuilder[string](nested.StableOrder).Add("good", "bad").Build()

	t.Run("write side", func(t *testing.T) {
		var buf bytes.Buffer
		err := Write(&buf, set, failingPayloads{bad: "bad"})
		require.ErrorIs(t, err, errBadPayload)
	})
	t.Run("read side", func(t *testing.T) {
		data := writeToBytes(t, set)
		_, err := Read[string](bytes.NewReader(data), failingPayloads{bad: "bad"})
		require.ErrorIs(t, err, errBadPayload)
		require.Contains(t, err.Error(), "frame 0")
	})
}

func TestSerializationToggle(t *testing.T) {
	SetEnabled(false)
	t.Cleanup(func() { SetEnabled(true) })

	set := nested.NewBuilder[string](nested.StableOrder).Add("a", "b").Build()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, set, payloads))
	require.Zero(t, buf.Len())

	back, err := Read[string](bytes.NewReader([]byte("garbage is fine here")), payloads)
	require.NoError(t, err)
	require.True(t, back.IsEmpty())
	require.Equal(t, nested.StableOrder, back.Order())
}

func TestRoundTripAllOrders(t *testing.T) {
	for _, order := range []nested.Order{nested.StableOrder, nested.CompileOrder, nested.LinkOrder, nested.NaiveLinkOrder} {
		t.Run(fmt.Sprintf("order %s", order), func(t *testing.T) {
			set := nested.NewBuilder[string](order).Add("a", "b").Build()
			back := readFromBytes(t, writeToBytes(t, set))
			require.Equal(t, order, back.Order())
		})
	}
}
