package openrouter

import (
	"bytes"

	"github.com/bytedance/sonic"

	"vermithor/completion"
)

var (
	dataPrefix   = []byte("data: ")
	doneSentinel = []byte("[DONE]")
)

// sseEvent is what one line of the response stream contributes
type sseEvent struct {
	content     string
	done        bool
	totalTokens int
}

// parseSSELine parses a single SSE line. Lines without the "data: " prefix
// (blank lines, ": keep-alive" comments, event names) yield an empty event.
// A data line that is not valid JSON yields a *completion.MalformedChunkError.
func parseSSELine(line []byte) (sseEvent, error) {
	line = bytes.TrimRight(line, "\r\n")
	if !bytes.HasPrefix(line, dataPrefix) {
		return sseEvent{}, nil
	}

	payload := bytes.TrimPrefix(line, dataPrefix)
	if bytes.Equal(bytes.TrimSpace(payload), doneSentinel) {
		return sseEvent{done: true}, nil
	}

	var resp ChatStreamResponse
	if err := sonic.Unmarshal(payload, &resp); err != nil {
		return sseEvent{}, &completion.MalformedChunkError{Line: string(line), Err: err}
	}

	var ev sseEvent
	// usage usually arrives on the last block, with empty choices
	if resp.Usage != nil {
		ev.totalTokens = resp.Usage.TotalTokens
	}
	if len(resp.Choices) > 0 {
		ev.content = resp.Choices[0].Delta.Content
	}
	return ev, nil
}
