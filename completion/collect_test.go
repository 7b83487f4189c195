package completion

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceStream struct {
	fragments []string
	err       error
	pos       int
	current   string
	closed    int
}

func (s *sliceStream) Next() bool {
	if s.pos >= len(s.fragments) {
		return false
	}
	s.current = s.fragments[s.pos]
	s.pos++
	return true
}

func (s *sliceStream) Text() string { return s.current }
func (s *sliceStream) Err() error   { return s.err }
func (s *sliceStream) Close() error { s.closed++; return nil }

func TestCollect(t *testing.T) {
	stream := &sliceStream{fragments: []string{"4", "."}}
	var seen []string

	answer, err := Collect(stream, func(fragment string) error {
		seen = append(seen, fragment)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "4.", answer)
	assert.Equal(t, []string{"4", "."}, seen)
	assert.Equal(t, 1, stream.closed)
}

func TestCollectNilSink(t *testing.T) {
	stream := &sliceStream{fragments: []string{"a", "b", "c"}}

	answer, err := Collect(stream, nil)

	require.NoError(t, err)
	assert.Equal(t, "abc", answer)
}

func TestCollectStreamError(t *testing.T) {
	streamErr := &TransportError{Message: "connection reset"}
	stream := &sliceStream{fragments: []string{"par", "tial"}, err: streamErr}

	answer, err := Collect(stream, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, "partial", answer)
	assert.Equal(t, 1, stream.closed)
}

func TestCollectSinkErrorStopsEarly(t *testing.T) {
	stream := &sliceStream{fragments: []string{"one", "two", "three"}}
	sinkErr := errors.New("client went away")

	answer, err := Collect(stream, func(fragment string) error {
		if fragment == "two" {
			return sinkErr
		}
		return nil
	})

	require.ErrorIs(t, err, sinkErr)
	assert.Equal(t, "onetwo", answer)
	assert.Equal(t, 2, stream.pos)
	assert.Equal(t, 1, stream.closed)
}

func TestCompletionRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     CompletionRequest
		wantErr bool
	}{
		{
			name: "valid",
			req:  CompletionRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}},
		},
		{
			name:    "missing model",
			req:     CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}},
			wantErr: true,
		},
		{
			name:    "no messages",
			req:     CompletionRequest{Model: "m"},
			wantErr: true,
		},
		{
			name:    "bad role",
			req:     CompletionRequest{Model: "m", Messages: []Message{{Role: "tool", Content: "hi"}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
