package embedding

import (
	"context"
	"fmt"
	"strings"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"

	"github.com/philippgille/chromem-go"
)

// OllamaProvider embeds texts one by one through a local Ollama server.
type OllamaProvider struct {
	embed chromem.EmbeddingFunc
}

// NewOllamaProvider expects cfg.BaseURL like http://localhost:11434; the /api
// suffix is added when missing.
func NewOllamaProvider(cfg config.EmbeddingConfig) *OllamaProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if !strings.HasSuffix(baseURL, "/api") {
		baseURL += "/api"
	}
	return &OllamaProvider{embed: chromem.NewEmbeddingFuncOllama(cfg.Model, baseURL)}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := p.embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("%w: ollama input %d: %v", model.ErrModelUnavailable, i, err)
		}
		out = append(out, vec)
	}
	return out, nil
}
