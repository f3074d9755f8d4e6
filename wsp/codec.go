package wsp

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec defines the serialization contract for protocol frames.
type Codec interface {
	Encode(frame *Frame) ([]byte, error)
	Decode(data []byte) (*Frame, error)

	// Name returns the codec identifier used in format negotiation.
	Name() string
}

// Codec names for format negotiation.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Unknown names fall back to JSON.
func GetCodec(name string) Codec {
	if name == CodecNameMsgpack {
		return &MsgpackCodec{}
	}
	return &JSONCodec{}
}

// JSONCodec encodes frames as JSON text messages.
type JSONCodec struct{}

func (c *JSONCodec) Encode(frame *Frame) ([]byte, error) {
	return json.Marshal(frame)
}

func (c *JSONCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes frames as MessagePack binary messages.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(frame *Frame) ([]byte, error) {
	return msgpack.Marshal(frame)
}

func (c *MsgpackCodec) Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (c *MsgpackCodec) Name() string { return CodecNameMsgpack }
