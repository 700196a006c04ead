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

// Package keywords turns free text into the normalized keyword list used for
// fix matching. Extraction strategies are interchangeable behind Extractor.
package keywords

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/cache"
)

const (
	// KindStopword filters stopwords out of the tokenized input
	KindStopword = "stopword"
	// KindStatistical ranks candidate terms by frequency and corpus vocabulary
	KindStatistical = "statistical"
	// KindLLM asks a hosted model for keywords
	KindLLM = "llm"
)

// Extractor produces an ordered list of normalized keywords, most relevant first
type Extractor interface {
	Name() string
	Extract(ctx context.Context, text string) ([]string, error)
}

// Vocabulary exposes the keywords known to the current corpus
type Vocabulary interface {
	Contains(term string) bool
}

// VocabularyFunc returns the vocabulary in effect for a single extraction
type VocabularyFunc func() Vocabulary

// Dependencies carries optional collaborators for the extractor factory
type Dependencies struct {
	Completer  ChatCompleter
	Cache      cache.Cache
	Vocabulary VocabularyFunc
	LLM        LLMConfig
	Logger     *zap.Logger
}

// New builds the extractor selected by kind
func New(kind string, deps Dependencies) (Extractor, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch kind {
	case "", KindStopword:
		return NewStopwordExtractor(), nil
	case KindStatistical:
		return NewStatisticalExtractor(deps.Vocabulary), nil
	case KindLLM:
		if deps.Completer == nil {
			return nil, fmt.Errorf("llm keyword extractor requires a chat completion client")
		}
		return NewLLMExtractor(deps.Completer, deps.Cache, deps.LLM, logger), nil
	default:
		return nil, fmt.Errorf("unsupported keyword extractor: %s", kind)
	}
}

// Limit de-duplicates keywords and keeps the first k; k <= 0 keeps all
func Limit(kws []string, k int) []string {
	seen := make(map[string]struct{}, len(kws))
	out := make([]string, 0, len(kws))
	for _, kw := range kws {
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
		if k > 0 && len(out) == k {
			break
		}
	}
	return out
}
