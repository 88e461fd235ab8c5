package openai

import (
	"sync"

	"github.com/CaptainCrouton89/Saturn-sub003/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// MemoryOpenAIClient talks to OpenAI-compatible endpoints for the memory
// pipeline. It manages separate clients for embeddings and chat so the two
// concerns can point at different providers.
//
// A MemoryOpenAIClient should be created using NewMemoryOpenAIClient.
type MemoryOpenAIClient struct {
	chatModel      string
	embeddingModel string

	chatURL      string
	chatKey      string
	embeddingURL string
	embeddingKey string

	timeoutMin int

	chatLock      *semaphore.Weighted
	embeddingLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// NewMemoryOpenAIClientParams defines the configuration for creating a new
// MemoryOpenAIClient.
//
// ChatModel is used for completions (summaries, extraction, disambiguation).
// EmbeddingModel is used for vector embeddings. The URL/Key pairs configure
// the two endpoints independently; an empty URL means the official OpenAI
// API. TimeoutMin bounds a single embedding request in minutes, and the two
// concurrency limits bound in-flight requests per endpoint.
type NewMemoryOpenAIClientParams struct {
	ChatModel      string
	EmbeddingModel string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	TimeoutMin           int
	ChatConcurrency      int64
	EmbeddingConcurrency int64
}

// NewMemoryOpenAIClient creates a MemoryOpenAIClient from the given params.
func NewMemoryOpenAIClient(
	params NewMemoryOpenAIClientParams,
) *MemoryOpenAIClient {
	timeoutMin := params.TimeoutMin
	if timeoutMin <= 0 {
		timeoutMin = 5
	}
	chatConc := params.ChatConcurrency
	if chatConc <= 0 {
		chatConc = 8
	}
	embedConc := params.EmbeddingConcurrency
	if embedConc <= 0 {
		embedConc = 4
	}

	return &MemoryOpenAIClient{
		chatModel:      params.ChatModel,
		embeddingModel: params.EmbeddingModel,

		chatURL:      params.ChatURL,
		chatKey:      params.ChatKey,
		embeddingURL: params.EmbeddingURL,
		embeddingKey: params.EmbeddingKey,

		timeoutMin: timeoutMin,

		chatLock:      semaphore.NewWeighted(chatConc),
		embeddingLock: semaphore.NewWeighted(embedConc),

		metricsLock: sync.Mutex{},
		metrics:     ai.ModelMetrics{},

		ChatClient:      newOpenaiClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newOpenaiClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
