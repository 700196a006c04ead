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
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/keywords"
	"github.com/your-org/helpdesk-assistant/internal/knowledge"
)

// DefaultKeywordLimit is the number of leading keywords compared against the corpus
const DefaultKeywordLimit = 4

// KeywordResolver picks the record sharing the most keywords with the input
type KeywordResolver struct {
	extractor keywords.Extractor
	limit     int
	logger    *zap.Logger
}

// NewKeywordResolver creates a keyword-overlap resolver; limit <= 0 uses DefaultKeywordLimit
func NewKeywordResolver(extractor keywords.Extractor, limit int, logger *zap.Logger) *KeywordResolver {
	if extractor == nil {
		extractor = keywords.NewStopwordExtractor()
	}
	if limit <= 0 {
		limit = DefaultKeywordLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeywordResolver{extractor: extractor, limit: limit, logger: logger}
}

// Name returns the strategy name
func (r *KeywordResolver) Name() string {
	return StrategyKeyword
}

// Resolve extracts up to limit keywords and returns the record with the largest overlap.
// Ties go to the record that comes first in the corpus.
func (r *KeywordResolver) Resolve(ctx context.Context, input string, corpus *knowledge.Corpus) (Match, error) {
	if strings.TrimSpace(input) == "" || corpus.Len() == 0 {
		return NotFound(StrategyKeyword, nil), nil
	}

	extracted, err := r.extractor.Extract(ctx, input)
	if err != nil {
		return Match{}, fmt.Errorf("keyword extraction failed: %w", err)
	}
	kws := keywords.Limit(extracted, r.limit)
	if len(kws) == 0 {
		return NotFound(StrategyKeyword, kws), nil
	}

	best, score := BestOverlap(corpus, kws)

	r.logger.Debug("Keyword resolution",
		zap.String("extractor", r.extractor.Name()),
		zap.Strings("keywords", kws),
		zap.Int("best_index", best),
		zap.Int("score", score),
		zap.Uint64("corpus_version", corpus.Version()))

	if best < 0 {
		return NotFound(StrategyKeyword, kws), nil
	}

	return Match{
		Found:    true,
		Record:   corpus.At(best),
		Score:    float64(score),
		Keywords: kws,
		Strategy: StrategyKeyword,
	}, nil
}

// BestOverlap returns the index and score of the first record with the highest
// overlap, or -1 when no record shares a term with terms.
func BestOverlap(corpus *knowledge.Corpus, terms []string) (int, int) {
	best, bestScore := -1, 0
	for i := 0; i < corpus.Len(); i++ {
		// strictly greater keeps the earliest record on ties
		if score := corpus.At(i).Overlap(terms); score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}
