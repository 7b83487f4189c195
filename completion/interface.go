package completion

import "context"

// Service opens streaming completions for a transcript
type Service interface {
	Stream(ctx context.Context, req *CompletionRequest) (Stream, error)
}

// Stream is a pull-based, finite sequence of text fragments.
// Next blocks on network I/O. Close must be called once the caller is done,
// including after an early exit, and is safe to call more than once.
type Stream interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// UsageReporter is implemented by streams that learn the token usage of the answer
type UsageReporter interface {
	TotalTokens() int
}
