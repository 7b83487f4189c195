package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"vermithor/completion"
	"vermithor/transcript"
)

const keyPrefix = "vermithor:transcript:"

// Store implements transcript.Store on Redis. Each session is a list of
// JSON-encoded messages plus a marker key recording that the session exists,
// because Redis drops empty lists.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and checks the connection. A zero ttl keeps sessions forever;
// otherwise every write extends the session lifetime.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("fail to connect to redis at %s: %w", addr, err)
	}
	return NewWithClient(client, ttl), nil
}

func NewWithClient(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

func messagesKey(sessionID string) string {
	return keyPrefix + sessionID + ":messages"
}

func seenKey(sessionID string) string {
	return keyPrefix + sessionID + ":seen"
}

func (s *Store) Load(ctx context.Context, sessionID string) ([]completion.Message, bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, false, transcript.ErrInvalidSessionID
	}

	var (
		seen *redis.IntCmd
		raw  *redis.StringSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		seen = pipe.Exists(ctx, seenKey(sessionID))
		raw = pipe.LRange(ctx, messagesKey(sessionID), 0, -1)
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("fail to load transcript %s: %w", sessionID, err)
	}
	if seen.Val() == 0 {
		return nil, false, nil
	}

	msgs := make([]completion.Message, 0, len(raw.Val()))
	for i, item := range raw.Val() {
		var msg completion.Message
		if err := sonic.UnmarshalString(item, &msg); err != nil {
			return nil, true, fmt.Errorf("fail to decode message %d of transcript %s: %w", i, sessionID, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, true, nil
}

func (s *Store) Append(ctx context.Context, sessionID string, msgs ...completion.Message) error {
	if strings.TrimSpace(sessionID) == "" {
		return transcript.ErrInvalidSessionID
	}

	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		encoded, err := sonic.MarshalString(msg)
		if err != nil {
			return fmt.Errorf("fail to encode message: %w", err)
		}
		values = append(values, encoded)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, seenKey(sessionID), 1, s.ttl)
		if len(values) > 0 {
			pipe.RPush(ctx, messagesKey(sessionID), values...)
			if s.ttl > 0 {
				pipe.Expire(ctx, messagesKey(sessionID), s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail to append to transcript %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) Reset(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return transcript.ErrInvalidSessionID
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, messagesKey(sessionID))
		pipe.Set(ctx, seenKey(sessionID), 1, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("fail to reset transcript %s: %w", sessionID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
