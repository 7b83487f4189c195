package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"vermithor/completion"
	"vermithor/logger"
	"vermithor/transcript"
)

var (
	ErrEmptyPrompt = errors.New("prompt is empty")
	ErrSessionBusy = errors.New("session is already streaming an answer")
)

// Service runs chat sessions: it owns no transcript itself, every call loads
// the session's transcript from the store and commits to it explicitly.
type Service struct {
	completion  completion.Service
	transcripts transcript.Store
	catalog     *Catalog
	greeting    string

	mu     sync.Mutex
	active map[string]bool
}

func NewService(completionService completion.Service, transcripts transcript.Store, catalog *Catalog, greeting string) *Service {
	return &Service{
		completion:  completionService,
		transcripts: transcripts,
		catalog:     catalog,
		greeting:    greeting,
		active:      make(map[string]bool),
	}
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// History returns the session transcript. A session seen for the first time
// starts with the assistant greeting.
func (s *Service) History(ctx context.Context, sessionID string) ([]completion.Message, error) {
	msgs, known, err := s.transcripts.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fail to load transcript: %w", err)
	}
	if known {
		return msgs, nil
	}

	var seed []completion.Message
	if s.greeting != "" {
		seed = append(seed, completion.Message{Role: completion.RoleAssistant, Content: s.greeting})
	}
	if err := s.transcripts.Append(ctx, sessionID, seed...); err != nil {
		return nil, fmt.Errorf("fail to start transcript: %w", err)
	}
	return seed, nil
}

// Send streams the answer to prompt into sink, fragment by fragment. The user
// message and the assistant reply are committed together once the stream
// completes; on any failure the transcript is left as it was.
func (s *Service) Send(ctx context.Context, sessionID, modelKey, prompt string, sink func(string) error) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	model := s.catalog.Default()
	if modelKey != "" {
		m, ok := s.catalog.Resolve(modelKey)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownModel, modelKey)
		}
		model = m
	}

	if !s.acquire(sessionID) {
		return "", ErrSessionBusy
	}
	defer s.release(sessionID)

	history, err := s.History(ctx, sessionID)
	if err != nil {
		return "", err
	}

	userMsg := completion.Message{Role: completion.RoleUser, Content: prompt}
	req := &completion.CompletionRequest{
		Model:    model.ID,
		Messages: append(history, userMsg),
	}

	logger.Debugf("Session %s: sending %d messages to %s", sessionID, len(req.Messages), model.ID)

	stream, err := s.completion.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	answer, err := completion.Collect(stream, sink)
	if err != nil {
		return answer, err
	}
	if reporter, ok := stream.(completion.UsageReporter); ok && reporter.TotalTokens() > 0 {
		logger.Debugf("Session %s: answer used %d tokens", sessionID, reporter.TotalTokens())
	}

	assistantMsg := completion.Message{Role: completion.RoleAssistant, Content: answer}
	if err := s.transcripts.Append(ctx, sessionID, userMsg, assistantMsg); err != nil {
		return answer, fmt.Errorf("fail to save transcript: %w", err)
	}
	return answer, nil
}

// Reset clears the session's chat history. It fails with ErrSessionBusy while
// an answer for the session is still streaming.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if !s.acquire(sessionID) {
		return ErrSessionBusy
	}
	defer s.release(sessionID)

	if err := s.transcripts.Reset(ctx, sessionID); err != nil {
		return fmt.Errorf("fail to reset transcript: %w", err)
	}
	return nil
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[sessionID] {
		return false
	}
	s.active[sessionID] = true
	return true
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, sessionID)
}
