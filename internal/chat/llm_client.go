package chat

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is an internal message representation that can include system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

// StreamChunk is one element of a streaming completion. The chunk sequence is
// finite and not restartable: text chunks arrive in order, then exactly one
// chunk with Done set (or an Error) terminates the stream.
type StreamChunk struct {
	Text  string
	Done  bool
	Usage TokenUsage
	Error error
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}

// StreamingLLMClient produces completions incrementally.
type StreamingLLMClient interface {
	LLMClient
	CompleteStream(ctx context.Context, req LLMRequest) (<-chan StreamChunk, error)
}

// Embedder computes dense vectors for texts.
type Embedder interface {
	Embed(ctx context.Context, modelID string, texts []string) ([][]float32, error)
}
