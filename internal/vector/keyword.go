package vector

import (
	"context"
	"strings"
)

// keywordDim is the fixed embedding dimensionality of the fallback embedder.
const keywordDim = 64

// keywords are the programming concepts the fallback embedder tracks.
var keywords = []string{
	"class", "function", "def", "import", "export", "const", "var", "let",
	"return", "if", "else", "for", "while", "try", "catch", "async",
	"await", "component", "model", "controller", "view", "route",
	"database", "schema", "api", "http", "request", "response",
	"package", "func", "struct", "interface", "type", "main", "test",
	"config", "server", "client", "handler", "service", "error",
}

// KeywordEmbedder is a deterministic, dependency-free embedder based on
// keyword frequency. Limited fidelity, but always available.
type KeywordEmbedder struct{}

// Embed implements Embedder. Vectors are unit-normalized and padded to
// keywordDim.
func (KeywordEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		vec := make([]float64, keywordDim)
		for j, kw := range keywords {
			vec[j] = float64(strings.Count(lower, kw))
		}
		out[i] = normalize(vec)
	}
	return out, nil
}
