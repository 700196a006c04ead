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

import "context"

// StopwordExtractor keeps every non-stopword token in input order
type StopwordExtractor struct{}

// NewStopwordExtractor creates the deterministic reference extractor
func NewStopwordExtractor() *StopwordExtractor {
	return &StopwordExtractor{}
}

// Name implements Extractor
func (e *StopwordExtractor) Name() string {
	return KindStopword
}

// Extract implements Extractor; it never fails
func (e *StopwordExtractor) Extract(_ context.Context, text string) ([]string, error) {
	return Terms(text), nil
}

// Terms tokenizes, normalizes and filters text, returning distinct terms in order
func Terms(text string) []string {
	tokens := Tokenize(text)
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))

	for _, tok := range tokens {
		if IsStopword(tok) {
			continue
		}
		term := Normalize(tok)
		if IsStopword(term) {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
