// Package rpc defines the threadlive.v1.Events gRPC service: its messages,
// a JSON wire codec, and the service descriptor shared by server and client.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// CodecName is the content subtype the Events service is called with
// ("application/grpc+json").
const CodecName = "json"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec marshals messages as JSON. Protobuf messages, such as the standard
// health service types, go through protojson so they remain callable with
// the same content subtype.
type Codec struct{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json codec marshal %T: %w", v, err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return protojson.Unmarshal(data, m)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json codec unmarshal %T: %w", v, err)
	}
	return nil
}
