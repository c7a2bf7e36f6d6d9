package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Codec turns messages into websocket frames of a single frame type.
type Codec interface {
	Name() string
	FrameType() int
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// CodecFor resolves the ?encoding= query value. Empty means JSON.
func CodecFor(encoding string) (Codec, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingJSON:
		return JSONCodec{}, nil
	case EncodingMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// CodecForFrame picks the decoder matching an inbound frame, so a client may
// send JSON text frames even on a msgpack session.
func CodecForFrame(frameType int) Codec {
	if frameType == websocket.BinaryMessage {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return EncodingJSON }

func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// MsgpackCodec reuses the json struct tags so both encodings share one schema.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return EncodingMsgpack }

func (MsgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := msgpack.NewEncoder(&buffer)
	encoder.SetCustomStructTag("json")
	encoder.SetSortMapKeys(true)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (MsgpackCodec) Unmarshal(data []byte, v any) error {
	decoder := msgpack.NewDecoder(bytes.NewReader(data))
	decoder.SetCustomStructTag("json")
	return decoder.Decode(v)
}
