// internal/docstore/search.go
package docstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Search strategies.
const (
	SearchMMR        = "mmr"
	SearchSimilarity = "similarity"
)

// SearchOptions selects the retrieval strategy.
type SearchOptions struct {
	Type   string
	K      int
	FetchK int
	Lambda float64
}

// Validate checks that the options can be satisfied.
func (o SearchOptions) Validate() error {
	if o.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidSearch, o.K)
	}
	switch o.Type {
	case "", SearchMMR:
		if o.FetchK < o.K {
			return fmt.Errorf("%w: fetchK (%d) must be >= k (%d)", ErrInvalidSearch, o.FetchK, o.K)
		}
		if o.Lambda < 0 || o.Lambda > 1 {
			return fmt.Errorf("%w: lambda %.2f outside [0,1]", ErrInvalidSearch, o.Lambda)
		}
	case SearchSimilarity:
	default:
		return fmt.Errorf("%w: unknown search type %q", ErrInvalidSearch, o.Type)
	}
	return nil
}

// Result is a retrieved chunk with its cosine similarity to the query.
type Result struct {
	Chunk Chunk
	Score float64
}

// Search embeds query and returns up to K chunks. With MMR the FetchK
// nearest chunks form the candidate pool and each pick maximizes
// lambda*sim(query, d) - (1-lambda)*max sim(d, picked).
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !s.Available() {
		return nil, ErrStoreUnavailable
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidSearch)
	}
	if s.embedder == nil {
		return nil, errors.New("search: no embedder configured")
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	chunks, err := s.all(ctx)
	if err != nil {
		return nil, err
	}

	scored := scoreChunks(chunks, queryVec)
	if opts.Type == SearchSimilarity {
		return scored[:min(opts.K, len(scored))], nil
	}
	pool := scored[:min(opts.FetchK, len(scored))]
	return selectMMR(pool, opts.K, opts.Lambda), nil
}

func (s *Store) all(ctx context.Context) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var records []chunkRecord
	if err := db.WithContext(ctx).Order("rowid").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	chunks := make([]Chunk, len(records))
	for i, r := range records {
		chunks[i] = r.chunk()
	}
	return chunks, nil
}

// ListFilenames returns the distinct stored filenames, sorted.
func (s *Store) ListFilenames(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	var names []string
	if err := db.WithContext(ctx).Model(&chunkRecord{}).Distinct().Pluck("filename", &names).Error; err != nil {
		return nil, fmt.Errorf("list filenames: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Stats counts stored documents and chunks.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.handle()
	if err != nil {
		return Stats{}, err
	}
	var chunks, docs int64
	if err := db.WithContext(ctx).Model(&chunkRecord{}).Count(&chunks).Error; err != nil {
		return Stats{}, fmt.Errorf("count chunks: %w", err)
	}
	if err := db.WithContext(ctx).Model(&chunkRecord{}).Distinct("filename").Count(&docs).Error; err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}
	return Stats{TotalDocuments: int(docs), TotalChunks: int(chunks)}, nil
}

// scoreChunks ranks chunks by similarity to queryVec, highest first. Ties
// keep insertion order. Chunks of a different dimension are skipped.
func scoreChunks(chunks []Chunk, queryVec []float32) []Result {
	out := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != len(queryVec) {
			continue
		}
		out = append(out, Result{Chunk: c, Score: cosine(queryVec, c.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// selectMMR picks up to k results from pool. The first pick is always the
// most similar candidate.
func selectMMR(pool []Result, k int, lambda float64) []Result {
	if k > len(pool) {
		k = len(pool)
	}
	if k == 0 {
		return []Result{}
	}
	picked := make([]int, 0, k)
	used := make([]bool, len(pool))
	// redundancy[i] is the max similarity of candidate i to anything picked.
	redundancy := make([]float64, len(pool))
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}

	for len(picked) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i, cand := range pool {
			if used[i] {
				continue
			}
			score := cand.Score
			if len(picked) > 0 {
				score = lambda*cand.Score - (1-lambda)*redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		picked = append(picked, best)
		for i := range pool {
			if used[i] {
				continue
			}
			if sim := cosine(pool[i].Chunk.Embedding, pool[best].Chunk.Embedding); sim > redundancy[i] {
				redundancy[i] = sim
			}
		}
	}

	out := make([]Result, len(picked))
	for i, idx := range picked {
		out[i] = pool[idx]
	}
	return out
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
