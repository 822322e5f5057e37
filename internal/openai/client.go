// Package openai wraps the official OpenAI Go SDK for embeddings.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/newsdesk/search/internal/embedding"
	"github.com/newsdesk/search/pkg/embeddings"
)

var (
	// ErrEmptyInput is returned when CreateEmbedding is called with empty input.
	ErrEmptyInput = errors.New("openai: input text is empty")
	// ErrInvalidDims is returned when dimensions is not positive.
	ErrInvalidDims = errors.New("openai: embedding dimensions must be positive")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("openai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel     = string(openaisdk.EmbeddingModelTextEmbedding3Small)
	defaultDimension = 1536
)

// Client calls the OpenAI embeddings API via the official SDK. SDK retries are disabled;
// callers decide whether to fall back or fail the job.
type Client struct {
	sdk        openaisdk.Client
	model      string
	dimensions int
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

// WithModel sets the embedding model name. Empty keeps DefaultModel.
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
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

// NewClient creates an OpenAI embeddings client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	client := &Client{
		model:      DefaultModel,
		dimensions: defaultDimension,
	}

	for _, opt := range opts {
		opt(client)
	}

	sdkOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if client.baseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(client.baseURL))
	}

	if client.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(client.httpClient))
	}

	client.sdk = openaisdk.NewClient(sdkOpts...)

	return client
}

// Model returns the model name vectors are produced with.
func (c *Client) Model() string {
	return c.model
}

// CreateEmbedding returns the embedding vector for input. The returned slice length equals the configured
// dimensions. Every error satisfies errors.Is(err, embedding.ErrEmbeddingUnavailable).
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, embedding.Unavailable(ErrEmptyInput)
	}

	if c.dimensions <= 0 {
		return nil, embedding.Unavailable(ErrInvalidDims)
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(input),
		},
		Model:          openaisdk.EmbeddingModel(c.model),
		Dimensions:     param.NewOpt(int64(c.dimensions)),
		EncodingFormat: openaisdk.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, embedding.Unavailable(fmt.Errorf("openai embedding: %w", err))
	}

	if len(resp.Data) == 0 {
		return nil, embedding.Unavailable(ErrNoEmbeddingInResponse)
	}

	emb := resp.Data[0].Embedding
	if len(emb) != c.dimensions {
		return nil, embedding.Unavailable(fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb), c.dimensions))
	}

	out, err := embeddings.Unit(emb)
	if err != nil {
		return nil, embedding.Unavailable(fmt.Errorf("openai embedding: %w", err))
	}

	return out, nil
}
