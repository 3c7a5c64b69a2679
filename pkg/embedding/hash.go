package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"ask-pdf-go/internal/model"
)

// HashProvider is a local feature-hashing bag-of-words model. It needs no
// network, is deterministic and produces L2-normalised vectors, which makes it
// the model of choice for offline use and tests.
type HashProvider struct {
	dim int
}

func NewHashProvider(dim int) (*HashProvider, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: hash embedding dimension must be positive", model.ErrInvalidConfig)
	}
	return &HashProvider{dim: dim}, nil
}

func (p *HashProvider) Name() string { return "hash" }

func (p *HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = p.vector(text)
	}
	return out, nil
}

func (p *HashProvider) vector(text string) []float32 {
	vec := make([]float32, p.dim)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		tokens = symbols(text)
	}
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(p.dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// tokenize lower-cases letter/digit runs; Han characters are one token each.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			tokens = append(tokens, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// symbols is the fallback for text without letters or digits (rules, dot
// leaders, bare punctuation): every non-space rune is a token, and pure
// whitespace hashes as a whole, so non-empty text never maps to the zero vector.
func symbols(text string) []string {
	var tokens []string
	for _, r := range text {
		if !unicode.IsSpace(r) {
			tokens = append(tokens, string(r))
		}
	}
	if len(tokens) == 0 && text != "" {
		tokens = append(tokens, text)
	}
	return tokens
}
