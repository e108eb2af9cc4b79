package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultDimensions is the vector width of the local model.
const DefaultDimensions = 256

// LocalEmbedder is a deterministic bag-of-words feature-hashing model.
// Tokens are normalized, lightly stemmed, hashed into a fixed number of
// buckets, counted, and the resulting vector L2-normalized, so cosine
// similarity between two embeddings approximates weighted vocabulary
// overlap. No randomness, no external calls: the same text always embeds
// to the same vector, which keeps mapping runs reproducible.
type LocalEmbedder struct {
	dims int
}

// NewLocalEmbedder returns a LocalEmbedder. dims <= 0 selects
// DefaultDimensions.
func NewLocalEmbedder(dims int) *LocalEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &LocalEmbedder{dims: dims}
}

func (e *LocalEmbedder) Name() string { return "local-hash" }

func (e *LocalEmbedder) Dimensions() int { return e.dims }

// Embed implements Embedder. It never fails; the error return satisfies
// the interface.
func (e *LocalEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embedOne(t)
	}
	return out, nil
}

func (e *LocalEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%uint32(e.dims)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

var nonWord = regexp.MustCompile(`[^a-z0-9]+`)

// Tokenize lowercases, strips punctuation, and lightly stems tokens.
// Shared with the lexical scorer so both similarity signals see the same
// vocabulary.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = nonWord.ReplaceAllString(f, "")
		if f == "" {
			continue
		}
		out = append(out, stem(f))
	}
	return out
}

// stem strips a few common English suffixes. Deliberately crude: enough to
// equate "encrypted"/"encryption"/"encrypt" without a linguistics
// dependency.
func stem(tok string) string {
	if len(tok) <= 4 {
		return tok
	}
	switch {
	case strings.HasSuffix(tok, "ies"):
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "ing"):
		return tok[:len(tok)-3]
	case strings.HasSuffix(tok, "ions"):
		return tok[:len(tok)-4]
	case strings.HasSuffix(tok, "ion"):
		return tok[:len(tok)-3]
	case strings.HasSuffix(tok, "ed"):
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "es"):
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "s"):
		return tok[:len(tok)-1]
	}
	return tok
}
