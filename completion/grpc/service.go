package grpc

import (
	"google.golang.org/grpc"

	"vermithor/completion"
)

const (
	serviceName      = "vermithor.completion.CompletionService"
	streamMethodName = "Stream"
	streamMethod     = "/" + serviceName + "/" + streamMethodName

	upstreamStatusKey = "x-upstream-status"
)

type StreamRequest struct {
	Model    string               `json:"model"`
	Messages []completion.Message `json:"messages"`
}

type StreamChunk struct {
	Content string `json:"content"`
}

type completionServer interface {
	Stream(req *StreamRequest, stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*completionServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    streamMethodName,
			Handler:       streamHandler,
			ServerStreams: true,
		},
	},
	Metadata: "vermithor/completion/grpc",
}

func streamHandler(srv any, stream grpc.ServerStream) error {
	req := new(StreamRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(completionServer).Stream(req, stream)
}

// Register exposes the completion service on a gRPC server
func Register(s grpc.ServiceRegistrar, completionService completion.Service) {
	s.RegisterService(&serviceDesc, NewServer(completionService))
}
