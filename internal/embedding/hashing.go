package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

const defaultHashingDimension = 512

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}+#]+`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "in": {}, "is": {}, "of": {}, "on": {}, "or": {},
	"the": {}, "to": {}, "with": {},
}

// HashingEmbedder is a deterministic bag-of-words embedder based on feature
// hashing. It needs no model download or network and gives every process the
// same vectors, which keeps an index usable across restarts.
type HashingEmbedder struct {
	dim int
}

func NewHashingEmbedder(dim int) *HashingEmbedder {
	if dim <= 0 {
		dim = defaultHashingDimension
	}
	return &HashingEmbedder{dim: dim}
}

func (e *HashingEmbedder) Model() string {
	return fmt.Sprintf("hashing/%d", e.dim)
}

func (e *HashingEmbedder) Dimension() int {
	return e.dim
}

func (e *HashingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

func (e *HashingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *HashingEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, stop := stopwords[tok]; stop {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// a zero vector cannot be normalised; give it a fixed direction
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
