package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	cbor "github.com/fxamacker/cbor/v2"
)

// Codec serializes envelopes for transports that store bytes.
type Codec interface {
	Name() string
	Marshal(env Envelope) ([]byte, error)
	Unmarshal(data []byte) (Envelope, error)
}

// Codec names accepted by CodecByName.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

type jsonCodec struct{}

// JSON returns the default envelope codec.
func JSON() Codec { return jsonCodec{} }

func (jsonCodec) Name() string { return CodecJSON }

func (jsonCodec) Marshal(env Envelope) ([]byte, error) { return json.Marshal(env) }

func (jsonCodec) Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a canonical CBOR envelope codec.
func CBOR() (Codec, error) {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, err
	}
	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		return nil, err
	}
	return cborCodec{enc: em, dec: dm}, nil
}

func (c cborCodec) Name() string { return CodecCBOR }

func (c cborCodec) Marshal(env Envelope) ([]byte, error) { return c.enc.Marshal(env) }

func (c cborCodec) Unmarshal(data []byte) (Envelope, error) {
	var env Envelope
	err := c.dec.Unmarshal(data, &env)
	return env, err
}

// CodecByName resolves a configured codec name. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", CodecJSON:
		return JSON(), nil
	case CodecCBOR:
		return CBOR()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// ValidCodecs returns the accepted codec names.
func ValidCodecs() []string {
	return []string{CodecJSON, CodecCBOR}
}
