package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"vermithor/completion"
)

type Client struct {
	conn    *grpc.ClientConn
	address string
}

func NewClient(address string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to completion service: %w", err)
	}

	return &Client{
		conn:    conn,
		address: address,
	}, nil
}

// Stream opens the remote stream and waits for the first fragment, so errors
// raised before any output (missing credential, upstream refusal) are
// returned here just like with the in-process client.
func (c *Client) Stream(ctx context.Context, req *completion.CompletionRequest) (completion.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid completion request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	cs, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], streamMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		cancel()
		return nil, c.fromStatus(nil, err)
	}

	if err := cs.SendMsg(&StreamRequest{Model: req.Model, Messages: req.Messages}); err != nil {
		cancel()
		return nil, c.fromStatus(cs, err)
	}
	if err := cs.CloseSend(); err != nil {
		cancel()
		return nil, c.fromStatus(cs, err)
	}

	s := &remoteStream{client: c, cs: cs, cancel: cancel}
	first := new(StreamChunk)
	switch err := cs.RecvMsg(first); {
	case err == nil:
		s.pending = first
	case errors.Is(err, io.EOF):
		s.finished = true
	default:
		cancel()
		return nil, c.fromStatus(cs, err)
	}
	return s, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// fromStatus maps gRPC status codes back to the completion error taxonomy
func (c *Client) fromStatus(cs grpc.ClientStream, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &completion.TransportError{Endpoint: c.address, Message: "completion service stream failed", Err: err}
	}

	switch st.Code() {
	case codes.FailedPrecondition:
		return completion.NewConfigurationError(st.Message(), nil)
	case codes.Canceled:
		return &completion.TransportError{Endpoint: c.address, Message: st.Message(), Err: context.Canceled}
	case codes.DeadlineExceeded:
		return &completion.TransportError{Endpoint: c.address, Message: st.Message(), Err: context.DeadlineExceeded}
	}

	transportErr := &completion.TransportError{Endpoint: c.address, Message: st.Message(), Err: err}
	if cs != nil {
		if values := cs.Trailer().Get(upstreamStatusKey); len(values) > 0 {
			if code, convErr := strconv.Atoi(values[0]); convErr == nil {
				transportErr.StatusCode = code
			}
		}
	}
	return transportErr
}

type remoteStream struct {
	client    *Client
	cs        grpc.ClientStream
	cancel    context.CancelFunc
	pending   *StreamChunk
	text      string
	err       error
	finished  bool
	closeOnce sync.Once
}

func (s *remoteStream) Next() bool {
	if s.finished {
		return false
	}

	for {
		chunk := s.pending
		s.pending = nil
		if chunk == nil {
			chunk = new(StreamChunk)
			if err := s.cs.RecvMsg(chunk); err != nil {
				if !errors.Is(err, io.EOF) {
					s.err = s.client.fromStatus(s.cs, err)
				}
				s.text = ""
				s.finished = true
				s.Close()
				return false
			}
		}
		if chunk.Content != "" {
			s.text = chunk.Content
			return true
		}
	}
}

func (s *remoteStream) Text() string {
	return s.text
}

func (s *remoteStream) Err() error {
	return s.err
}

func (s *remoteStream) Close() error {
	s.closeOnce.Do(func() {
		s.finished = true
		s.cancel()
	})
	return nil
}
