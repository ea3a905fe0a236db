package ai

import (
	"net/http"
	"time"
)

// ChatMessage is one prompt message in the OpenAI-compatible wire format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationConfig holds API settings for chat completion.
type GenerationConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// EmbeddingConfig holds API settings for text embedding. Dimensions is
// forwarded to the endpoint when positive so vectors match the local
// index dimension.
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
}

// Client talks to any OpenAI-compatible endpoint (OpenAI, DashScope, vLLM
// and the like) over plain HTTP, so the generation and embedding models
// stay swappable behind configuration.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 180 * time.Second},
	}
}
