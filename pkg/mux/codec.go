package mux

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Codec converts between logical messages and the raw payload bytes that
// cross the transport. Encode then Decode must be identity for every message
// the codec can represent.
type Codec interface {
	Encode(message interface{}) ([]byte, error)
	Decode(payload []byte) (interface{}, error)
}

// Named payload encodings accepted by CodecForEncoding.
const (
	EncodingJSON   = "json"
	EncodingBase64 = "base64"
)

// CodecForEncoding returns the codec for a named payload encoding. The json
// encoding is the default; base64 wraps the JSON bytes in standard base64 for
// transports that only carry text.
func CodecForEncoding(name string) (Codec, error) {
	switch name {
	case "", EncodingJSON:
		return JSONCodec{}, nil
	case EncodingBase64:
		return Base64Codec{Inner: JSONCodec{}}, nil
	default:
		return nil, fmt.Errorf("unsupported payload encoding %q", name)
	}
}

// JSONCodec serializes messages with encoding/json. Note the usual mapping on
// decode: JSON numbers come back as float64, objects as map[string]interface{}.
type JSONCodec struct{}

func (JSONCodec) Encode(message interface{}) ([]byte, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

func (JSONCodec) Decode(payload []byte) (interface{}, error) {
	var message interface{}
	if err := json.Unmarshal(payload, &message); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	return message, nil
}

// Base64Codec wraps another codec, base64-encoding its bytes on the wire.
type Base64Codec struct {
	Inner Codec
}

func (c Base64Codec) Encode(message interface{}) ([]byte, error) {
	data, err := c.Inner.Encode(message)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(data)))
	base64.StdEncoding.Encode(out, data)
	return out, nil
}

func (c Base64Codec) Decode(payload []byte) (interface{}, error) {
	data := make([]byte, base64.StdEncoding.DecodedLen(len(payload)))
	n, err := base64.StdEncoding.Decode(data, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 payload: %w", err)
	}
	return c.Inner.Decode(data[:n])
}
