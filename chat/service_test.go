package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vermithor/completion"
	"vermithor/config"
	"vermithor/transcript/memory"
)

const greeting = "Hello! I'm Vermithor. How can I help you today?"

var testModels = []Model{
	{Name: "Mistral 7B (Free)", ID: "mistralai/mistral-7b-instruct:free"},
	{Name: "Llama 3.1 8B (Free)", ID: "meta-llama/llama-3.1-8b-instruct:free"},
}

type scriptedStream struct {
	fragments []string
	err       error
	pos       int
	current   string
	tokens    int
	closed    bool
}

func (s *scriptedStream) Next() bool {
	if s.pos >= len(s.fragments) {
		return false
	}
	s.current = s.fragments[s.pos]
	s.pos++
	return true
}

func (s *scriptedStream) Text() string     { return s.current }
func (s *scriptedStream) Err() error       { return s.err }
func (s *scriptedStream) Close() error     { s.closed = true; return nil }
func (s *scriptedStream) TotalTokens() int { return s.tokens }

type scriptedService struct {
	fragments []string
	streamErr error
	openErr   error
	requests  []*completion.CompletionRequest
	// block, when set, holds Stream until closed
	block chan struct{}
}

func (s *scriptedService) Stream(ctx context.Context, req *completion.CompletionRequest) (completion.Stream, error) {
	s.requests = append(s.requests, req)
	if s.openErr != nil {
		return nil, s.openErr
	}
	if s.block != nil {
		<-s.block
	}
	return &scriptedStream{fragments: s.fragments, err: s.streamErr, tokens: 7}, nil
}

func newTestService(t *testing.T, upstream completion.Service) *Service {
	t.Helper()
	catalog, err := NewCatalog(testModels, "")
	require.NoError(t, err)
	return NewService(upstream, memory.New(), catalog, greeting)
}

func TestHistorySeedsGreeting(t *testing.T) {
	svc := newTestService(t, &scriptedService{})
	ctx := context.Background()

	msgs, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []completion.Message{{Role: completion.RoleAssistant, Content: greeting}}, msgs)

	again, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, msgs, again, "greeting is seeded only once")
}

func TestSendStreamsAndCommits(t *testing.T) {
	upstream := &scriptedService{fragments: []string{"4", "."}}
	svc := newTestService(t, upstream)
	ctx := context.Background()

	var delivered []string
	answer, err := svc.Send(ctx, "s1", "", "  What is 2+2?  ", func(s string) error {
		delivered = append(delivered, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "4.", answer)
	assert.Equal(t, []string{"4", "."}, delivered)

	require.Len(t, upstream.requests, 1)
	req := upstream.requests[0]
	assert.Equal(t, "mistralai/mistral-7b-instruct:free", req.Model)
	assert.Equal(t, []completion.Message{
		{Role: completion.RoleAssistant, Content: greeting},
		{Role: completion.RoleUser, Content: "What is 2+2?"},
	}, req.Messages)

	history, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []completion.Message{
		{Role: completion.RoleAssistant, Content: greeting},
		{Role: completion.RoleUser, Content: "What is 2+2?"},
		{Role: completion.RoleAssistant, Content: "4."},
	}, history)
}

func TestSendResolvesModelByNameOrID(t *testing.T) {
	upstream := &scriptedService{fragments: []string{"ok"}}
	svc := newTestService(t, upstream)
	ctx := context.Background()

	_, err := svc.Send(ctx, "s1", "Llama 3.1 8B (Free)", "hi", nil)
	require.NoError(t, err)
	_, err = svc.Send(ctx, "s2", "meta-llama/llama-3.1-8b-instruct:free", "hi", nil)
	require.NoError(t, err)

	require.Len(t, upstream.requests, 2)
	for _, req := range upstream.requests {
		assert.Equal(t, "meta-llama/llama-3.1-8b-instruct:free", req.Model)
	}
}

func TestSendRejectsBadInput(t *testing.T) {
	upstream := &scriptedService{}
	svc := newTestService(t, upstream)
	ctx := context.Background()

	_, err := svc.Send(ctx, "s1", "", "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = svc.Send(ctx, "s1", "gpt-99", "hi", nil)
	assert.ErrorIs(t, err, ErrUnknownModel)

	assert.Empty(t, upstream.requests)
}

func TestSendFailureLeavesTranscriptUnchanged(t *testing.T) {
	tests := []struct {
		name     string
		upstream *scriptedService
		sink     func(string) error
	}{
		{
			name:     "configuration error",
			upstream: &scriptedService{openErr: completion.NewConfigurationError("API key for OpenRouter was not found", nil)},
		},
		{
			name: "transport error mid stream",
			upstream: &scriptedService{
				fragments: []string{"par"},
				streamErr: &completion.TransportError{Message: "connection reset"},
			},
		},
		{
			name:     "sink gone",
			upstream: &scriptedService{fragments: []string{"a", "b"}},
			sink:     func(string) error { return errors.New("client went away") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.upstream)
			ctx := context.Background()

			before, err := svc.History(ctx, "s1")
			require.NoError(t, err)

			_, err = svc.Send(ctx, "s1", "", "hello", tt.sink)
			require.Error(t, err)

			after, err := svc.History(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

func TestSendRejectsConcurrentSendOnSameSession(t *testing.T) {
	upstream := &scriptedService{fragments: []string{"slow"}, block: make(chan struct{})}
	svc := newTestService(t, upstream)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, "s1", "", "first", nil)
		done <- err
	}()

	// wait until the first send holds the session
	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.active["s1"]
	}, time.Second, time.Millisecond)

	_, err := svc.Send(ctx, "s1", "", "second", nil)
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(upstream.block)
	require.NoError(t, <-done)

	_, err = svc.Send(ctx, "s1", "", "third", nil)
	assert.NoError(t, err, "session is released after the send completes")
}

func TestResetWaitsForStreamingAnswer(t *testing.T) {
	upstream := &scriptedService{fragments: []string{"4."}, block: make(chan struct{})}
	svc := newTestService(t, upstream)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := svc.Send(ctx, "s1", "", "2+2?", nil)
		done <- err
	}()

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		return svc.active["s1"]
	}, time.Second, time.Millisecond)

	assert.ErrorIs(t, svc.Reset(ctx, "s1"), ErrSessionBusy)

	close(upstream.block)
	require.NoError(t, <-done)

	require.NoError(t, svc.Reset(ctx, "s1"))
	msgs, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs, "reset after the answer commits leaves nothing behind")
}

func TestResetEmptiesTranscript(t *testing.T) {
	svc := newTestService(t, &scriptedService{fragments: []string{"4."}})
	ctx := context.Background()

	_, err := svc.Send(ctx, "s1", "", "2+2?", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx, "s1"))

	msgs, err := svc.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs, "reset does not re-seed the greeting")
}

func TestNewCatalog(t *testing.T) {
	c, err := NewCatalog(testModels, "Llama 3.1 8B (Free)")
	require.NoError(t, err)
	assert.Equal(t, testModels[1], c.Default())
	assert.Equal(t, testModels, c.All())

	_, err = NewCatalog(testModels, "unknown")
	assert.ErrorIs(t, err, ErrUnknownModel)

	_, err = NewCatalog(nil, "")
	assert.Error(t, err)

	_, err = NewCatalog([]Model{{Name: "a", ID: "x"}, {Name: "b", ID: "x"}}, "")
	assert.Error(t, err)
}

func TestCatalogFromConfig(t *testing.T) {
	c, err := CatalogFromConfig(config.ChatConfig{
		DefaultModel: "deepseek/deepseek-chat-v3-0324:free",
		Models:       config.DefaultModels(),
	})
	require.NoError(t, err)
	assert.Len(t, c.All(), 3)
	assert.Equal(t, "DeepSeek V3 (Free)", c.Default().Name)
}
