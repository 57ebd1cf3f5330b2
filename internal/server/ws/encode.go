package ws

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Frame formats negotiated with ?format= on connect.
const (
	FormatJSON  = "json"
	FormatProto = "proto"
)

// encodeProto converts a JSON object into a binary google.protobuf.Struct.
func encodeProto(jsonMsg []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(jsonMsg, &m); err != nil {
		return nil, fmt.Errorf("ws: decode frame: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("ws: build struct: %w", err)
	}
	out, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("ws: marshal proto: %w", err)
	}
	return out, nil
}

// DecodeProto turns a binary frame back into its JSON form.
func DecodeProto(frame []byte) ([]byte, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(frame, &s); err != nil {
		return nil, fmt.Errorf("ws: unmarshal proto: %w", err)
	}
	return json.Marshal(s.AsMap())
}
