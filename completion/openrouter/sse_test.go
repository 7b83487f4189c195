package openrouter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vermithor/completion"
)

func TestParseSSELine(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		want      sseEvent
		malformed bool
	}{
		{
			name: "delta content",
			line: `data: {"choices":[{"delta":{"content":"Hel"}}]}` + "\n",
			want: sseEvent{content: "Hel"},
		},
		{
			name: "crlf line ending",
			line: `data: {"choices":[{"delta":{"content":"lo"}}]}` + "\r\n",
			want: sseEvent{content: "lo"},
		},
		{
			name: "delta without content",
			line: `data: {"choices":[{"delta":{"role":"assistant"}}]}`,
			want: sseEvent{},
		},
		{
			name: "finish reason does not end the stream",
			line: `data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
			want: sseEvent{},
		},
		{
			name: "usage block",
			line: `data: {"choices":[],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`,
			want: sseEvent{totalTokens: 15},
		},
		{
			name: "done sentinel",
			line: "data: [DONE]\n",
			want: sseEvent{done: true},
		},
		{
			name: "done sentinel with padding",
			line: "data:  [DONE] \n",
			want: sseEvent{done: true},
		},
		{
			name: "blank line",
			line: "\n",
			want: sseEvent{},
		},
		{
			name: "keep-alive comment",
			line: ": OPENROUTER PROCESSING\n",
			want: sseEvent{},
		},
		{
			name: "event line",
			line: "event: message\n",
			want: sseEvent{},
		},
		{
			name: "prefix without space is not data",
			line: `data:{"choices":[{"delta":{"content":"x"}}]}`,
			want: sseEvent{},
		},
		{
			name:      "truncated json",
			line:      `data: {"choices":[{"delta":`,
			malformed: true,
		},
		{
			name:      "not json at all",
			line:      "data: hello world",
			malformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSSELine([]byte(tt.line))
			if tt.malformed {
				require.Error(t, err)
				assert.True(t, errors.Is(err, completion.ErrMalformedChunk))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
