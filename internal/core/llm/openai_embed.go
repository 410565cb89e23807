package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/markdave123-py/vectorsync/internal/core"
)

const (
	DefaultOpenAIModel     = "text-embedding-3-small"
	DefaultOpenAIDimension = 1536
	// maxOpenAIBatch is the most inputs one embeddings request accepts here.
	maxOpenAIBatch = 2048
)

// OpenAIEmbedder calls the embeddings endpoint. Retries are left to the
// batcher, so the SDK's own retry loop is switched off.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

var _ core.EmbeddingProvider = (*OpenAIEmbedder)(nil)

type openAIOptions struct {
	model     string
	dimension int
	reqOpts   []option.RequestOption
}

type OpenAIOption func(*openAIOptions)

func WithEmbeddingModel(model string) OpenAIOption {
	return func(o *openAIOptions) {
		if model != "" {
			o.model = model
		}
	}
}

func WithEmbeddingDimension(dimension int) OpenAIOption {
	return func(o *openAIOptions) {
		if dimension > 0 {
			o.dimension = dimension
		}
	}
}

// WithBaseURL points the client at a compatible server.
func WithBaseURL(url string) OpenAIOption {
	return func(o *openAIOptions) { o.reqOpts = append(o.reqOpts, option.WithBaseURL(url)) }
}

func NewOpenAIEmbedder(apiKey string, opts ...OpenAIOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key not set")
	}
	o := openAIOptions{model: DefaultOpenAIModel, dimension: DefaultOpenAIDimension}
	for _, opt := range opts {
		opt(&o)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, o.reqOpts...)
	return &OpenAIEmbedder{
		client:    openai.NewClient(reqOpts...),
		model:     o.model,
		dimension: o.dimension,
	}, nil
}

func (e *OpenAIEmbedder) ModelName() string { return e.model }

func (e *OpenAIEmbedder) Dimension() int { return e.dimension }

// EmbedTexts returns one vector per text, in input order.
func (e *OpenAIEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > maxOpenAIBatch {
		return nil, fmt.Errorf("batch of %d exceeds maximum of %d", len(texts), maxOpenAIBatch)
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", data.Index)
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		out[data.Index] = vector
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai embeddings: no vector for input %d", i)
		}
	}
	return out, nil
}
