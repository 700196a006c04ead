// Copyright 2024 AI SA Assistant Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/knowledge"
)

const (
	// DefaultSimilarityThreshold is the minimum cosine similarity accepted as a match
	DefaultSimilarityThreshold = 0.75

	collectionPrefix = "fixes-"
	// candidates inspected per query so equal similarities resolve to corpus order
	queryCandidates  = 8
	embedConcurrency = 4
)

// Embedder produces embedding vectors; the same model must embed records and queries
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// SemanticConfig configures the semantic resolver
type SemanticConfig struct {
	Threshold float32
	// PersistDir keeps the index on disk between restarts; empty means in-memory
	PersistDir string
	Compress   bool
}

type semanticIndex struct {
	version    uint64
	corpus     *knowledge.Corpus
	collection *chromem.Collection
}

// SemanticResolver matches by cosine similarity between the input and each
// record's description and fix. The index is built lazily per corpus version.
type SemanticResolver struct {
	db        *chromem.DB
	embedder  Embedder
	threshold float32
	logger    *zap.Logger

	mu    sync.Mutex
	index *semanticIndex
}

// NewSemanticResolver creates a semantic resolver backed by a chromem-go database
func NewSemanticResolver(embedder Embedder, config SemanticConfig, logger *zap.Logger) (*SemanticResolver, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultSimilarityThreshold
	}

	db := chromem.NewDB()
	if config.PersistDir != "" {
		var err error
		db, err = chromem.NewPersistentDB(config.PersistDir, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to open semantic index at %s: %w", config.PersistDir, err)
		}
	}

	return &SemanticResolver{
		db:        db,
		embedder:  embedder,
		threshold: config.Threshold,
		logger:    logger,
	}, nil
}

// Name returns the strategy name
func (r *SemanticResolver) Name() string {
	return StrategySemantic
}

// Threshold returns the minimum similarity for a match
func (r *SemanticResolver) Threshold() float32 {
	return r.threshold
}

// Resolve embeds the input and returns the most similar record when it clears the threshold
func (r *SemanticResolver) Resolve(ctx context.Context, input string, corpus *knowledge.Corpus) (Match, error) {
	if strings.TrimSpace(input) == "" || corpus.Len() == 0 {
		return NotFound(StrategySemantic, nil), nil
	}

	idx, err := r.ensureIndex(ctx, corpus)
	if err != nil {
		return Match{}, err
	}

	query, err := r.embedder.EmbedQuery(ctx, input)
	if err != nil {
		return Match{}, fmt.Errorf("failed to embed query: %w", err)
	}

	n := min(queryCandidates, idx.collection.Count())
	results, err := idx.collection.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return Match{}, fmt.Errorf("semantic query failed: %w", err)
	}

	bestPos, bestSim := -1, float32(0)
	for _, res := range results {
		pos, err := strconv.Atoi(res.Metadata["index"])
		if err != nil || pos < 0 || pos >= idx.corpus.Len() {
			continue
		}
		if bestPos < 0 || res.Similarity > bestSim || (res.Similarity == bestSim && pos < bestPos) {
			bestPos, bestSim = pos, res.Similarity
		}
	}

	r.logger.Debug("Semantic resolution",
		zap.Int("best_index", bestPos),
		zap.Float32("similarity", bestSim),
		zap.Float32("threshold", r.threshold),
		zap.Uint64("corpus_version", idx.version))

	if bestPos < 0 || bestSim < r.threshold {
		return NotFound(StrategySemantic, nil), nil
	}

	return Match{
		Found:    true,
		Record:   idx.corpus.At(bestPos),
		Score:    float64(bestSim),
		Strategy: StrategySemantic,
	}, nil
}

// ensureIndex returns an index matching corpus, building it if the version changed
func (r *SemanticResolver) ensureIndex(ctx context.Context, corpus *knowledge.Corpus) (*semanticIndex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index != nil && r.index.version == corpus.Version() && r.index.corpus == corpus {
		return r.index, nil
	}

	idx, err := r.build(ctx, corpus)
	if err != nil {
		return nil, err
	}
	r.index = idx
	return idx, nil
}

func (r *SemanticResolver) build(ctx context.Context, corpus *knowledge.Corpus) (*semanticIndex, error) {
	records := corpus.Records()
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = documentID(rec)
	}
	name := collectionPrefix + fingerprint(ids)

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return r.embedder.EmbedQuery(ctx, text)
	}

	existing := r.db.ListCollections()

	// identical records share an id; the first occurrence keeps its position
	docs := make([]chromem.Document, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if _, dup := seen[ids[i]]; dup {
			continue
		}
		seen[ids[i]] = struct{}{}
		docs = append(docs, chromem.Document{
			ID:      ids[i],
			Content: rec.Content(),
			Metadata: map[string]string{
				"index":     strconv.Itoa(i),
				"source_id": rec.SourceID,
			},
		})
	}

	// a persisted collection for the same ordered content is reusable as-is
	if _, ok := existing[name]; ok {
		if c := r.db.GetCollection(name, embed); c != nil && c.Count() == len(docs) {
			r.logger.Info("Reusing semantic index",
				zap.String("collection", name),
				zap.Int("documents", c.Count()))
			return &semanticIndex{version: corpus.Version(), corpus: corpus, collection: c}, nil
		}
	}

	collection, err := r.db.GetOrCreateCollection(name, map[string]string{"corpus_dir": corpus.Dir()}, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create semantic collection: %w", err)
	}

	reused := 0
	for i := range docs {
		if vec := reuseEmbedding(ctx, existing, docs[i].ID); vec != nil {
			docs[i].Embedding = vec
			reused++
		}
	}

	if err := collection.AddDocuments(ctx, docs, embedConcurrency); err != nil {
		_ = r.db.DeleteCollection(name)
		return nil, fmt.Errorf("failed to index knowledge base: %w", err)
	}

	for old := range existing {
		if old != name && strings.HasPrefix(old, collectionPrefix) {
			if err := r.db.DeleteCollection(old); err != nil {
				r.logger.Warn("Failed to drop stale semantic collection",
					zap.String("collection", old),
					zap.Error(err))
			}
		}
	}

	r.logger.Info("Semantic index built",
		zap.String("collection", name),
		zap.Int("documents", len(docs)),
		zap.Int("reused_embeddings", reused),
		zap.Uint64("corpus_version", corpus.Version()))

	return &semanticIndex{version: corpus.Version(), corpus: corpus, collection: collection}, nil
}

func reuseEmbedding(ctx context.Context, collections map[string]*chromem.Collection, id string) []float32 {
	for name, c := range collections {
		if !strings.HasPrefix(name, collectionPrefix) {
			continue
		}
		if doc, err := c.GetByID(ctx, id); err == nil && len(doc.Embedding) > 0 {
			return doc.Embedding
		}
	}
	return nil
}

func documentID(rec knowledge.FixRecord) string {
	sum := sha256.Sum256([]byte(rec.Content()))
	return hex.EncodeToString(sum[:12])
}

func fingerprint(ids []string) string {
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:8])
}
