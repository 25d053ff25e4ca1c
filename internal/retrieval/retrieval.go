// Package retrieval implements the retrieval engine (C3): a persistent
// vector index over a policy corpus, queried by the FAQ handler.
package retrieval

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/embedding"
	chromem "github.com/philippgille/chromem-go"

	"github.com/dohr-michael/advisorbot/internal/config"
)

// Chunk is a single retrieved passage with its similarity score.
type Chunk struct {
	ID         string
	Content    string
	Similarity float32
	Source     string
}

// Engine wraps a chromem-go persistent collection for corpus retrieval.
type Engine struct {
	collection *chromem.Collection
	topK       int
	courseTopK int
}

// New opens (or creates) a persistent collection at indexPath and
// returns an Engine ready for Query. embedder bridges Eino's
// [][]float64 embeddings to chromem-go's []float32 vectors.
func New(ctx context.Context, cfg config.RetrievalConfig, embedder embedding.Embedder) (*Engine, error) {
	db, err := chromem.NewPersistentDB(cfg.IndexPath, false)
	if err != nil {
		return nil, fmt.Errorf("open retrieval index: %w", err)
	}

	name := cfg.CollectionName
	if name == "" {
		name = "policy_corpus"
	}

	ef := bridgeEmbedder(ctx, embedder)
	col, err := db.GetOrCreateCollection(name, nil, ef)
	if err != nil {
		return nil, fmt.Errorf("get or create collection: %w", err)
	}

	topK := cfg.TopK
	if topK == 0 {
		topK = 5
	}
	courseTopK := cfg.CourseTopK
	if courseTopK == 0 {
		courseTopK = 7
	}

	return &Engine{collection: col, topK: topK, courseTopK: courseTopK}, nil
}

// Upsert adds or replaces a chunk under id, tagging it with source for
// citation.
func (e *Engine) Upsert(ctx context.Context, id, content, source string) error {
	return e.collection.Add(ctx, []string{id}, nil, []map[string]string{{"source": source}}, []string{content})
}

// Query runs a semantic search over the corpus and returns the top-k
// chunks (courseOverride uses the wider course/program k from config).
func (e *Engine) Query(ctx context.Context, queryText string, courseOverride bool) ([]Chunk, error) {
	if e.collection.Count() == 0 {
		return nil, nil
	}

	k := e.topK
	if courseOverride {
		k = e.courseTopK
	}
	if k > e.collection.Count() {
		k = e.collection.Count()
	}

	results, err := e.collection.Query(ctx, queryText, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("retrieval query: %w", err)
	}

	out := make([]Chunk, len(results))
	for i, r := range results {
		out[i] = Chunk{
			ID:         r.ID,
			Content:    r.Content,
			Similarity: r.Similarity,
			Source:     r.Metadata["source"],
		}
	}
	return out, nil
}

// Count returns the number of indexed chunks.
func (e *Engine) Count() int {
	return e.collection.Count()
}

func bridgeEmbedder(ctx context.Context, embedder embedding.Embedder) chromem.EmbeddingFunc {
	return func(embedCtx context.Context, text string) ([]float32, error) {
		if embedCtx == context.Background() {
			embedCtx = ctx
		}
		vectors, err := embedder.EmbedStrings(embedCtx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("embed text: %w", err)
		}
		if len(vectors) == 0 || len(vectors[0]) == 0 {
			return nil, fmt.Errorf("embed text: empty result")
		}

		f64 := vectors[0]
		f32 := make([]float32, len(f64))
		for i, v := range f64 {
			f32[i] = float32(v)
		}
		return f32, nil
	}
}
