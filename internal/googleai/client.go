// Package googleai wraps the Google Gen AI SDK for embeddings (Gemini API).
package googleai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/newsdesk/search/internal/embedding"
	"github.com/newsdesk/search/pkg/embeddings"
)

var (
	// ErrEmptyInput is returned when CreateEmbedding is called with empty input.
	ErrEmptyInput = errors.New("googleai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("googleai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("googleai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("googleai: embedding dimension mismatch")
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel     = "gemini-embedding-001"
	defaultDimension = 1536
)

// Client calls the Gemini embeddings API via the Google Gen AI SDK.
// Gemini only normalizes full-size vectors, so every vector is L2-normalized here
// to keep cosine distances comparable with the stored embeddings.
type Client struct {
	client     *genai.Client
	model      string
	dimensions int
	taskType   string
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithDimensions sets the requested embedding dimension (must match the article_embeddings column).
func WithDimensions(dim int) ClientOption {
	return func(c *Client) {
		c.dimensions = dim
	}
}

// WithModel sets the embedding model name (e.g. gemini-embedding-001). Empty keeps DefaultModel.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTaskType sets the Gemini task type, e.g. RETRIEVAL_QUERY for queries and RETRIEVAL_DOCUMENT for articles.
func WithTaskType(taskType string) ClientOption {
	return func(c *Client) {
		c.taskType = taskType
	}
}

// WithBaseURL points the client at a different API host (proxies, tests).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithHTTPClient sets the transport, e.g. embedding.RetryingHTTPClient for background work. Nil keeps the
// SDK default.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Gemini embeddings client.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	client := &Client{
		model:      DefaultModel,
		dimensions: defaultDimension,
	}
	for _, opt := range opts {
		opt(client)
	}

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  client.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: client.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("googleai client: %w", err)
	}

	client.client = genaiClient

	return client, nil
}

// Model returns the model name vectors are produced with.
func (c *Client) Model() string {
	return c.model
}

// CreateEmbedding returns the unit-length embedding vector for input.
// Every error satisfies errors.Is(err, embedding.ErrEmbeddingUnavailable).
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, embedding.Unavailable(ErrEmptyInput)
	}

	if c.dimensions <= 0 || c.dimensions > math.MaxInt32 {
		return nil, embedding.Unavailable(ErrInvalidDims)
	}

	contents := []*genai.Content{genai.NewContentFromText(input, genai.RoleUser)}
	//nolint:gosec // G115: c.dimensions is bounded above by math.MaxInt32
	dimInt32 := int32(c.dimensions)

	resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dimInt32,
		TaskType:             c.taskType,
	})
	if err != nil {
		return nil, embedding.Unavailable(fmt.Errorf("gemini embedding: %w", err))
	}

	if len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, embedding.Unavailable(ErrNoEmbeddingInResponse)
	}

	emb := resp.Embeddings[0].Values
	if len(emb) != c.dimensions {
		return nil, embedding.Unavailable(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), c.dimensions))
	}

	out, err := embeddings.Unit(emb)
	if err != nil {
		return nil, embedding.Unavailable(fmt.Errorf("gemini embedding: %w", err))
	}

	return out, nil
}
