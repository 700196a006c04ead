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

package keywords

import (
	"context"
	"sort"
)

// vocabularyBoost is added to the frequency of terms the corpus knows about
const vocabularyBoost = 2.0

// StatisticalExtractor ranks non-stopword terms by how often they occur in the
// message, preferring terms that appear in the corpus vocabulary. Equal scores
// keep their first-occurrence order.
type StatisticalExtractor struct {
	vocabulary VocabularyFunc
}

// NewStatisticalExtractor creates the extractor; vocab may be nil
func NewStatisticalExtractor(vocab VocabularyFunc) *StatisticalExtractor {
	return &StatisticalExtractor{vocabulary: vocab}
}

// Name implements Extractor
func (e *StatisticalExtractor) Name() string {
	return KindStatistical
}

type scoredTerm struct {
	term  string
	score float64
}

// Extract implements Extractor
func (e *StatisticalExtractor) Extract(_ context.Context, text string) ([]string, error) {
	var vocab Vocabulary
	if e.vocabulary != nil {
		vocab = e.vocabulary()
	}

	index := make(map[string]*scoredTerm)
	var ordered []*scoredTerm

	for _, tok := range Tokenize(text) {
		if IsStopword(tok) {
			continue
		}
		term := Normalize(tok)
		if IsStopword(term) {
			continue
		}
		st, ok := index[term]
		if !ok {
			st = &scoredTerm{term: term}
			if vocab != nil && vocab.Contains(term) {
				st.score += vocabularyBoost
			}
			index[term] = st
			ordered = append(ordered, st)
		}
		st.score++
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].score > ordered[j].score
	})

	out := make([]string, len(ordered))
	for i, st := range ordered {
		out[i] = st.term
	}
	return out, nil
}
