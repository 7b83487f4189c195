package grpc

import (
	"errors"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"vermithor/completion"
	"vermithor/logger"
)

type Server struct {
	completionService completion.Service
}

func NewServer(completionService completion.Service) *Server {
	return &Server{
		completionService: completionService,
	}
}

func (s *Server) Stream(req *StreamRequest, stream grpc.ServerStream) error {
	completionReq := &completion.CompletionRequest{
		Model:    req.Model,
		Messages: req.Messages,
	}

	// Call the completion service
	chunks, err := s.completionService.Stream(stream.Context(), completionReq)
	if err != nil {
		logger.Errorf("Fail to open completion stream: %s", err)
		return toStatus(stream, err)
	}
	defer chunks.Close()

	// Stream the fragments back to the client
	for chunks.Next() {
		if err := stream.SendMsg(&StreamChunk{Content: chunks.Text()}); err != nil {
			return err
		}
	}
	if err := chunks.Err(); err != nil {
		logger.Errorf("Completion stream error: %s", err)
		return toStatus(stream, err)
	}

	if reporter, ok := chunks.(completion.UsageReporter); ok && reporter.TotalTokens() > 0 {
		logger.Debugf("Completion used %d tokens", reporter.TotalTokens())
	}
	return nil
}

// toStatus keeps the error class visible to remote callers.
// The upstream HTTP status travels in the trailer.
func toStatus(stream grpc.ServerStream, err error) error {
	var cfgErr *completion.ConfigurationError
	if errors.As(err, &cfgErr) {
		return status.Error(codes.FailedPrecondition, cfgErr.Message)
	}

	var transportErr *completion.TransportError
	if errors.As(err, &transportErr) {
		if transportErr.StatusCode > 0 {
			stream.SetTrailer(metadata.Pairs(upstreamStatusKey, strconv.Itoa(transportErr.StatusCode)))
		}
		msg := transportErr.Message
		if msg == "" && transportErr.Err != nil {
			msg = transportErr.Err.Error()
		}
		return status.Error(codes.Unavailable, msg)
	}

	return status.Error(codes.Internal, err.Error())
}
