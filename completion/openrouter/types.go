package openrouter

import "vermithor/completion"

type ChatCompletionRequest struct {
	Model    string               `json:"model"`
	Messages []completion.Message `json:"messages"`
	Stream   bool                 `json:"stream"`
}

type ChatStreamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}
