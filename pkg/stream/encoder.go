package stream

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/charlie0129/markercam/pkg/pose"
)

// Encoder serializes a pose into one transport message.
type Encoder interface {
	Encode(p pose.Pose) ([]byte, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(p pose.Pose) ([]byte, error)

func (f EncoderFunc) Encode(p pose.Pose) ([]byte, error) { return f(p) }

// DefaultEncoding is the line-oriented text format.
const DefaultEncoding = "text"

var encoders = map[string]Encoder{
	"text":    EncoderFunc(EncodeText),
	"json":    EncoderFunc(func(p pose.Pose) ([]byte, error) { return json.Marshal(wirePose(p)) }),
	"cbor":    EncoderFunc(func(p pose.Pose) ([]byte, error) { return cbor.Marshal(wirePose(p)) }),
	"msgpack": EncoderFunc(func(p pose.Pose) ([]byte, error) { return msgpack.Marshal(wirePose(p)) }),
}

// NewEncoder returns the encoder registered under name.
func NewEncoder(name string) (Encoder, error) {
	if e, ok := encoders[name]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("unknown encoding %q (supported: %v)", name, Encodings())
}

// Encodings lists the supported encoding names.
func Encodings() []string {
	out := make([]string, 0, len(encoders))
	for name := range encoders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// EncodeText renders
//
//	<seq> <marker> t <x> <y> <z> u <x> <y> <z> f <x> <y> <z>
//
// terminated by a newline.
func EncodeText(p pose.Pose) ([]byte, error) {
	t, u, f := p.Translation, p.Up, p.Forward
	return fmt.Appendf(nil, "%d %d t %.6f %.6f %.6f u %.6f %.6f %.6f f %.6f %.6f %.6f\n",
		p.Seq, p.MarkerID,
		t.X, t.Y, t.Z,
		u.X, u.Y, u.Z,
		f.X, f.Y, f.Z,
	), nil
}

// Pose is the structured wire form shared by the JSON, CBOR and MessagePack
// encodings.
type Pose struct {
	Seq         uint64     `json:"seq" cbor:"seq" msgpack:"seq"`
	Marker      int        `json:"marker" cbor:"marker" msgpack:"marker"`
	TimestampMs int64      `json:"ts" cbor:"ts" msgpack:"ts"`
	Translation [3]float64 `json:"t" cbor:"t" msgpack:"t"`
	Up          [3]float64 `json:"u" cbor:"u" msgpack:"u"`
	Forward     [3]float64 `json:"f" cbor:"f" msgpack:"f"`
}

func wirePose(p pose.Pose) Pose {
	return Pose{
		Seq:         p.Seq,
		Marker:      p.MarkerID,
		TimestampMs: p.Timestamp.UnixMilli(),
		Translation: [3]float64{p.Translation.X, p.Translation.Y, p.Translation.Z},
		Up:          [3]float64{p.Up.X, p.Up.Y, p.Up.Z},
		Forward:     [3]float64{p.Forward.X, p.Forward.Y, p.Forward.Z},
	}
}
