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

// Package resolver selects the documented fix that best matches a user message.
package resolver

import (
	"context"
	"fmt"

	"github.com/your-org/helpdesk-assistant/internal/knowledge"
)

const (
	// StrategyKeyword scores records by keyword overlap
	StrategyKeyword = "keyword"
	// StrategySemantic scores records by embedding similarity
	StrategySemantic = "semantic"
)

// Match is the outcome of a resolution. Found == false is the NotFound result,
// which is a normal answer rather than an error.
type Match struct {
	Found    bool
	Record   knowledge.FixRecord
	Score    float64
	Keywords []string
	Strategy string
}

// Resolver finds the best fix record for an input message within one corpus snapshot
type Resolver interface {
	Name() string
	Resolve(ctx context.Context, input string, corpus *knowledge.Corpus) (Match, error)
}

// NotFound returns the empty result for a strategy
func NotFound(strategy string, kws []string) Match {
	return Match{Strategy: strategy, Keywords: kws}
}

// Options configures New
type Options struct {
	Strategy     string
	KeywordLimit int
	Semantic     SemanticConfig
}

// New builds the resolver for the configured strategy. The semantic strategy is
// chained with the keyword resolver so an embedding outage degrades to keyword matching.
func New(opts Options, keyword *KeywordResolver, embedder Embedder) (Resolver, error) {
	switch opts.Strategy {
	case "", StrategyKeyword:
		return keyword, nil
	case StrategySemantic:
		if embedder == nil {
			return nil, fmt.Errorf("semantic resolver requires an embedding client")
		}
		semantic, err := NewSemanticResolver(embedder, opts.Semantic, keyword.logger)
		if err != nil {
			return nil, err
		}
		return NewChain(semantic, keyword, keyword.logger), nil
	default:
		return nil, fmt.Errorf("unsupported resolver strategy: %s", opts.Strategy)
	}
}
