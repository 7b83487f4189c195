package grpc

import (
	"github.com/bytedance/sonic"
	"google.golang.org/grpc/encoding"
)

// codecName is sent as the gRPC content-subtype (application/grpc+json)
const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries plain Go structs, so the service needs no generated protobuf code
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}
