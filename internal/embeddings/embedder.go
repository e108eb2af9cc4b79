// Package embeddings provides the text-embedding interface used by the
// control mapper, plus the local model that implements it. Everything runs
// in-process: the mapper is not allowed to call out to a network service.
package embeddings

import (
	"context"

	chromem "github.com/philippgille/chromem-go"
)

// Embedder generates fixed-dimension embeddings for texts.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the identifier of the embedding model.
	Name() string
}

// ToChromemFunc adapts an Embedder to chromem-go, which embeds one text at
// a time.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		results, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			return nil, nil
		}
		return results[0], nil
	}
}
