package wsp_test

import (
	"testing"

	"github.com/musewave/maestro/wsp"
)

func TestCodecRoundTrip(t *testing.T) {
	frames := []*wsp.Frame{
		wsp.NewErrorFrame("req-1", wsp.ErrCodeBadRequest, "nope"),
	}
	evt, err := wsp.NewEventFrame("job:abc", map[string]string{"stage": "rendering"})
	if err != nil {
		t.Fatalf("event frame: %v", err)
	}
	frames = append(frames, evt)

	for _, codec := range []wsp.Codec{&wsp.JSONCodec{}, &wsp.MsgpackCodec{}} {
		for _, f := range frames {
			data, err := codec.Encode(f)
			if err != nil {
				t.Fatalf("%s encode: %v", codec.Name(), err)
			}
			got, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("%s decode: %v", codec.Name(), err)
			}
			if got.Type != f.Type || got.ID != f.ID || got.Channel != f.Channel {
				t.Errorf("%s round trip mismatch: %+v vs %+v", codec.Name(), got, f)
			}
		}
	}
}

func TestGetCodec(t *testing.T) {
	if wsp.GetCodec("msgpack").Name() != wsp.CodecNameMsgpack {
		t.Error("msgpack lookup failed")
	}
	if wsp.GetCodec("").Name() != wsp.CodecNameJSON {
		t.Error("default codec should be json")
	}
	if wsp.GetCodec("protobuf").Name() != wsp.CodecNameJSON {
		t.Error("unknown codec should fall back to json")
	}
}
