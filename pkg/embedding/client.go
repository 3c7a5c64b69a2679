// Package embedding provides a client for turning text into embedding vectors.
package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
	"ask-pdf-go/pkg/log"
)

// probeText is embedded once on first use to load the model and learn its dimension.
const probeText = "ask-pdf embedding warm-up"

// Client defines the interface for an embedding client.
type Client interface {
	EmbedMany(ctx context.Context, texts []string) ([]model.EmbeddingVector, error)
	EmbedOne(ctx context.Context, text string) (model.EmbeddingVector, error)
	// Dimension loads the model if necessary and reports its output dimension.
	Dimension(ctx context.Context) (int, error)
	Model() string
}

// Provider is a concrete embedding backend. Implementations may return errors
// wrapped with model.ErrModelUnavailable or model.ErrEmbedding; anything else is
// reported as an embedding error.
type Provider interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

type client struct {
	cfg      config.EmbeddingConfig
	provider Provider

	mu        sync.Mutex
	dimension int
}

// NewClient wraps a provider. Construction is cheap; the model is loaded lazily
// on the first call and kept for the lifetime of the client.
func NewClient(cfg config.EmbeddingConfig, provider Provider) Client {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &client{cfg: cfg, provider: provider}
}

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	case "hash":
		return NewHashProvider(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", model.ErrInvalidConfig, cfg.Provider)
	}
}

func (c *client) Model() string {
	if c.cfg.Model != "" {
		return c.cfg.Model
	}
	return c.provider.Name()
}

func (c *client) Dimension(ctx context.Context) (int, error) {
	return c.load(ctx)
}

// load probes the provider once. A failed load is not cached so a later call can retry.
func (c *client) load(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dimension > 0 {
		return c.dimension, nil
	}

	start := time.Now()
	log.Infof("[EmbeddingClient] 首次调用, 开始加载向量模型, provider: %s, model: %s", c.provider.Name(), c.Model())
	vectors, err := c.provider.Embed(ctx, []string{probeText})
	if err != nil {
		log.Errorf("[EmbeddingClient] 加载向量模型失败, error: %v", err)
		return 0, fmt.Errorf("%w: load %s: %v", model.ErrModelUnavailable, c.Model(), err)
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return 0, fmt.Errorf("%w: %s returned no vector for the probe text", model.ErrModelUnavailable, c.Model())
	}
	dim := len(vectors[0])
	if c.cfg.Dimensions > 0 && dim != c.cfg.Dimensions {
		return 0, fmt.Errorf("%w: %s produces %d dimensions, configured %d",
			model.ErrModelUnavailable, c.Model(), dim, c.cfg.Dimensions)
	}
	c.dimension = dim
	log.Infof("[EmbeddingClient] 向量模型加载完成, 维度: %d, 耗时: %s", dim, time.Since(start))
	return dim, nil
}

// EmbedMany returns one vector per input, in input order. Empty strings map to
// the zero vector without a provider round-trip.
func (c *client) EmbedMany(ctx context.Context, texts []string) ([]model.EmbeddingVector, error) {
	dim, err := c.load(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.EmbeddingVector, len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if !utf8.ValidString(text) {
			return nil, fmt.Errorf("%w: input %d is not valid UTF-8", model.ErrEmbedding, i)
		}
		if text == "" {
			out[i] = make(model.EmbeddingVector, dim)
			continue
		}
		pending = append(pending, i)
	}

	for from := 0; from < len(pending); from += c.cfg.BatchSize {
		to := min(from+c.cfg.BatchSize, len(pending))
		batch := make([]string, 0, to-from)
		for _, idx := range pending[from:to] {
			batch = append(batch, texts[idx])
		}

		log.Debugf("[EmbeddingClient] 调用向量模型, batch: %d-%d/%d", from, to, len(pending))
		vectors, err := c.provider.Embed(ctx, batch)
		if err != nil {
			if model.ErrorKind(err) == "Internal" {
				err = fmt.Errorf("%w: %v", model.ErrEmbedding, err)
			}
			log.Errorf("[EmbeddingClient] 向量化失败, error: %v", err)
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d inputs", model.ErrEmbedding, len(vectors), len(batch))
		}
		for j, vec := range vectors {
			if len(vec) != dim {
				return nil, fmt.Errorf("%w: vector dimension %d, expected %d", model.ErrEmbedding, len(vec), dim)
			}
			out[pending[from+j]] = vec
		}
	}
	return out, nil
}

func (c *client) EmbedOne(ctx context.Context, text string) (model.EmbeddingVector, error) {
	vectors, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
