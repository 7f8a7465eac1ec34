package mux

import (
	"encoding/base64"
	"reflect"
	"testing"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		message interface{}
	}{
		{"string", "test"},
		{"number", 42.5},
		{"bool", true},
		{"null", nil},
		{"object", map[string]interface{}{"id": "a1", "likes": 3.0}},
		{"array", []interface{}{"x", 1.0, false}},
	}

	codec := JSONCodec{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := codec.Encode(tt.message)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			decoded, err := codec.Decode(payload)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if !reflect.DeepEqual(decoded, tt.message) {
				t.Errorf("round trip changed message: %#v -> %#v", tt.message, decoded)
			}
		})
	}
}

func TestJSONCodecDecodeError(t *testing.T) {
	if _, err := (JSONCodec{}).Decode([]byte("{broken")); err == nil {
		t.Error("expected decode error for malformed JSON")
	}
}

func TestBase64CodecRoundTrip(t *testing.T) {
	codec := Base64Codec{Inner: JSONCodec{}}

	message := map[string]interface{}{"body": "hello", "score": 2.0}
	payload, err := codec.Encode(message)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// The wire bytes must actually be base64.
	if _, err := base64.StdEncoding.DecodeString(string(payload)); err != nil {
		t.Errorf("expected base64 payload, got %q", payload)
	}

	decoded, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, message) {
		t.Errorf("round trip changed message: %#v -> %#v", message, decoded)
	}
}

func TestBase64CodecDecodeError(t *testing.T) {
	codec := Base64Codec{Inner: JSONCodec{}}
	if _, err := codec.Decode([]byte("!!! not base64 !!!")); err == nil {
		t.Error("expected decode error for invalid base64")
	}
}

func TestWithEncoding(t *testing.T) {
	cfg := defaultConfig()

	WithEncoding(EncodingBase64)(&cfg)
	if _, ok := cfg.codec.(Base64Codec); !ok {
		t.Fatalf("expected Base64Codec, got %T", cfg.codec)
	}

	// Unknown names leave the codec untouched.
	WithEncoding("zstd")(&cfg)
	if _, ok := cfg.codec.(Base64Codec); !ok {
		t.Errorf("unknown encoding replaced codec with %T", cfg.codec)
	}
}

func TestCodecForEncoding(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		wantErr  bool
	}{
		{"default", "", false},
		{"json", EncodingJSON, false},
		{"base64", EncodingBase64, false},
		{"unknown", "zstd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := CodecForEncoding(tt.encoding)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unsupported encoding")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if codec == nil {
				t.Fatal("expected a codec")
			}
		})
	}
}
