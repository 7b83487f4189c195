package memory

import (
	"context"
	"strings"
	"sync"

	"vermithor/completion"
	"vermithor/transcript"
)

// Store implements transcript.Store in process memory
type Store struct {
	mu       sync.RWMutex
	sessions map[string][]completion.Message
}

func New() *Store {
	return &Store{
		sessions: make(map[string][]completion.Message),
	}
}

func (s *Store) Load(ctx context.Context, sessionID string) ([]completion.Message, bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, false, transcript.ErrInvalidSessionID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	return cloneMessages(msgs), true, nil
}

func (s *Store) Append(ctx context.Context, sessionID string, msgs ...completion.Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return transcript.ErrInvalidSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], msgs...)
	return nil
}

func (s *Store) Reset(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return transcript.ErrInvalidSessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = []completion.Message{}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string][]completion.Message)
	return nil
}

func cloneMessages(src []completion.Message) []completion.Message {
	dst := make([]completion.Message, len(src))
	copy(dst, src)
	return dst
}
