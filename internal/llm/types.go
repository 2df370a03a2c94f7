package llm

// Request types for OpenRouter/OpenAI-compatible API

type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateParams carries the per-request generation knobs.
type GenerateParams struct {
	Temperature *float64
	MaxTokens   int
}

// Response types

type ChatResponse struct {
	ID      string    `json:"id"`
	Choices []Choice  `json:"choices"`
	Usage   *Usage    `json:"usage,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// Usage contains token usage and cost information from the API response.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost,omitempty"` // In USD, if provided by API
}

type Choice struct {
	Index        int    `json:"index"`
	Delta        *Delta `json:"delta,omitempty"`
	Message      *Delta `json:"message,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
}

type Delta struct {
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	Reasoning string `json:"reasoning,omitempty"` // For thinking/reasoning models
}

type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// StreamEvent represents a parsed event from the SSE stream.
type StreamEvent struct {
	Type      string // "content", "reasoning", "done", "error"
	Content   string // For "content" events
	Reasoning string // For "reasoning" events (thinking models)
	Error     string // For "error" events
	Usage     *Usage // For "done" events, if available
}

// ModelInfo from /api/v1/models endpoint.
type ModelInfo struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	ContextLength int          `json:"context_length"`
	Pricing       ModelPricing `json:"pricing"`
}

// ModelPricing contains per-token prices in USD.
type ModelPricing struct {
	Prompt     string `json:"prompt"`     // Price per input token
	Completion string `json:"completion"` // Price per output token
}

// ModelsResponse from /api/v1/models endpoint.
type ModelsResponse struct {
	Data []ModelInfo `json:"data"`
}

// BalanceResponse from /api/v1/credits endpoint.
type BalanceResponse struct {
	Data struct {
		TotalCredits float64 `json:"total_credits"`
		TotalUsage   float64 `json:"total_usage"`
	} `json:"data"`
}
