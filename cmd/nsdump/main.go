// nsdump prints the wire-level structure of a serialized nested set:
// envelope, per-frame digests, body sizes and entry shapes. Intended for
// poking at blobs a build produced, not for round-tripping them
package main

import (
	"bytes"
	"encoding/hex"
	"log"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/samsun639/bazel/codec"
	"github.com/samsun639/bazel/common"
	"github.com/samsun639/bazel/nested"
)

var (
	flagRecord   bool
	flagBytes    bool
	flagPayloads bool
)

func main() {
	log.SetFlags(0)
	cmd := &cobra.Command{
		Use:   "nsdump <blob-file>",
		Short: "inspect a serialized nested set blob",
		Long: "nsdump decodes the envelope and frames of a serialized nested set " +
			"and prints one line per frame: digest, body size and entry shape.",
		Args:         cobra.ExactArgs(1),
		RunE:         run,
		SilenceUsage: true,
	}
	cmd.Flags().BoolVar(&flagRecord, "record", false, "input is a blob store record (presence byte before the envelope)")
	cmd.Flags().BoolVar(&flagBytes, "bytes", false, "decode payloads as raw byte strings instead of text")
	cmd.Flags().BoolVar(&flagPayloads, "payloads", false, "print payload values even when stdout is not a terminal")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return errors.Wrap(err, "reading blob")
	}
	r := bytes.NewReader(data)

	if flagRecord {
		present, err := common.ReadBool(r)
		if err != nil {
			return errors.Wrap(err, "reading presence byte")
		}
		if !present {
			ordinal, err := common.ReadUvarint(r)
			if err != nil {
				return errors.Wrap(err, "reading order")
			}
			order, ok := nested.OrderFromOrdinal(ordinal)
			if !ok {
				return errors.Errorf("unknown order ordinal %d", ordinal)
			}
			log.Printf("empty nested set, order %s", order)
			return nil
		}
	}

	env, frames, err := inspect(r)
	if err != nil {
		return errors.Wrap(err, "decoding blob")
	}
	log.Printf("%s: %d bytes, %d frames, order %s", args[0], len(data), env.Count, env.Order)
	showPayloads := flagPayloads || term.IsTerminal(int(os.Stdout.Fd()))
	for i, f := range frames {
		shape := "branch"
		if f.IsLeaf() {
			shape = "leaf"
		} else if len(f.Entries) == 0 {
			shape = "empty"
		}
		log.Printf("%4d  %s  %6dB  %-6s %d entries, %d refs",
			i, f.Digest, f.BodySize, shape, len(f.Entries), f.NumRefs())
		if !showPayloads {
			continue
		}
		for j, e := range f.Entries {
			if e.IsRef {
				log.Printf("      %4d  ref     %s", j, e.Ref)
			} else {
				log.Printf("      %4d  payload %s", j, e.Payload)
			}
		}
	}
	return nil
}

// frame with payloads already rendered for printing
type frameDump struct {
	Digest   common.Digest
	BodySize int
	Entries  []entryDump
}

type entryDump struct {
	IsRef   bool
	Ref     common.Digest
	Payload string
}

func (f frameDump) IsLeaf() bool {
	return len(f.Entries) == 1 && !f.Entries[0].IsRef
}

func (f frameDump) NumRefs() int {
	ret := 0
	for _, e := range f.Entries {
		if e.IsRef {
			ret++
		}
	}
	return ret
}

func inspect(r common.Reader) (codec.Envelope, []frameDump, error) {
	if flagBytes {
		env, frames, err := codec.Inspect[[]byte](r, common.BytesPayloads{})
		return env, renderFrames(frames, func(p []byte) string { return hex.EncodeToString(p) }), err
	}
	env, frames, err := codec.Inspect[string](r, common.StringPayloads{})
	return env, renderFrames(frames, func(p string) string { return "\"" + p + "\"" }), err
}

func renderFrames[T any](frames []codec.FrameInfo[T], render func(T) string) []frameDump {
	ret := make([]frameDump, len(frames))
	for i, f := range frames {
		d := frameDump{Digest: f.Digest, BodySize: f.BodySize}
		for _, e := range f.Entries {
			d.Entries = append(d.Entries, entryDump{IsRef: e.IsRef, Ref: e.Ref, Payload: render(e.Payload)})
		}
		ret[i] = d
	}
	return ret
}
