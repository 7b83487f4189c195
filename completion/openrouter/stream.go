package openrouter

import (
	"bufio"
	"errors"
	"io"
	"sync"

	"vermithor/completion"
	"vermithor/logger"
)

// sseStream pulls fragments off an SSE response body one line at a time
type sseStream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	endpoint  string
	text      string
	err       error
	finished  bool
	tokens    int
	closeOnce sync.Once
}

func newSSEStream(body io.ReadCloser, endpoint string) *sseStream {
	return &sseStream{
		body:     body,
		reader:   bufio.NewReader(body),
		endpoint: endpoint,
	}
}

// Next advances to the next non-empty fragment
func (s *sseStream) Next() bool {
	if s.finished {
		return false
	}

	for {
		line, readErr := s.reader.ReadBytes('\n')

		// the last line may arrive together with io.EOF
		if len(line) > 0 {
			ev, err := parseSSELine(line)
			if err != nil {
				// Non-fatal parse error, continue
				logger.Debugf("Skip malformed chunk: %s", err)
			} else {
				if ev.totalTokens > 0 {
					s.tokens = ev.totalTokens
				}
				if ev.done {
					s.finish(nil)
					return false
				}
				if ev.content != "" {
					s.text = ev.content
					return true
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				// upstream closed without the sentinel: treat as normal end
				s.finish(nil)
			} else {
				s.finish(&completion.TransportError{
					Endpoint: s.endpoint,
					Message:  "failed to read from upstream",
					Err:      readErr,
				})
			}
			return false
		}
	}
}

func (s *sseStream) Text() string {
	return s.text
}

func (s *sseStream) Err() error {
	return s.err
}

// TotalTokens reports the usage block sent by the provider, 0 if none was seen
func (s *sseStream) TotalTokens() int {
	return s.tokens
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.finished = true
		err = s.body.Close()
	})
	return err
}

func (s *sseStream) finish(err error) {
	s.text = ""
	s.err = err
	s.finished = true
	s.Close()
}
