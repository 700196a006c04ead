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

// Package knowledge holds the fix-record corpus: loading it from a directory of
// JSON documents, publishing immutable snapshots and reloading them on change.
package knowledge

import (
	"strings"
	"time"

	"github.com/your-org/helpdesk-assistant/internal/keywords"
)

// FixRecord is one documented remedy
type FixRecord struct {
	Description string   `json:"description"`
	Fix         string   `json:"fix"`
	Keywords    []string `json:"error_keywords"`
	SourceID    string   `json:"source_id"`

	terms map[string]struct{}
}

// NewFixRecord builds a record and precomputes its matching terms.
// Keywords are lowercased and de-duplicated, keeping first-seen order.
func NewFixRecord(description, fix string, errorKeywords []string, sourceID string) FixRecord {
	seen := make(map[string]struct{}, len(errorKeywords))
	kws := make([]string, 0, len(errorKeywords))
	terms := make(map[string]struct{}, len(errorKeywords))

	for _, kw := range errorKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		kws = append(kws, kw)

		// multi-word keywords ("vpn client") contribute each normalized word
		for _, tok := range keywords.Tokenize(kw) {
			terms[keywords.Normalize(tok)] = struct{}{}
		}
	}

	return FixRecord{
		Description: strings.TrimSpace(description),
		Fix:         strings.TrimSpace(fix),
		Keywords:    kws,
		SourceID:    sourceID,
		terms:       terms,
	}
}

// Overlap returns the number of distinct query terms present in the record's keyword set
func (r FixRecord) Overlap(queryTerms []string) int {
	if len(r.terms) == 0 {
		return 0
	}
	count := 0
	seen := make(map[string]struct{}, len(queryTerms))
	for _, term := range queryTerms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		if _, ok := r.terms[term]; ok {
			count++
		}
	}
	return count
}

// Terms returns the normalized matching terms of the record
func (r FixRecord) Terms() []string {
	out := make([]string, 0, len(r.terms))
	for t := range r.terms {
		out = append(out, t)
	}
	return out
}

// Content is the text indexed for semantic matching
func (r FixRecord) Content() string {
	return r.Description + "\n\n" + r.Fix
}

// Corpus is an immutable, ordered snapshot of fix records
type Corpus struct {
	records    []FixRecord
	vocabulary map[string]int
	version    uint64
	loadedAt   time.Time
	dir        string
}

// NewCorpus creates a corpus snapshot from records in the given order
func NewCorpus(records []FixRecord, version uint64, dir string) *Corpus {
	recs := make([]FixRecord, len(records))
	copy(recs, records)

	vocab := make(map[string]int)
	for _, r := range recs {
		for t := range r.terms {
			vocab[t]++
		}
	}

	return &Corpus{
		records:    recs,
		vocabulary: vocab,
		version:    version,
		loadedAt:   time.Now(),
		dir:        dir,
	}
}

// Records returns a copy of the records in corpus order
func (c *Corpus) Records() []FixRecord {
	if c == nil {
		return nil
	}
	out := make([]FixRecord, len(c.records))
	copy(out, c.records)
	return out
}

// Len returns the number of records
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.records)
}

// At returns the record at position i
func (c *Corpus) At(i int) FixRecord {
	return c.records[i]
}

// Version identifies the snapshot; it increases on every successful reload
func (c *Corpus) Version() uint64 {
	if c == nil {
		return 0
	}
	return c.version
}

// LoadedAt returns when the snapshot was built
func (c *Corpus) LoadedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.loadedAt
}

// Dir returns the directory the snapshot was loaded from
func (c *Corpus) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Contains reports whether term is a keyword of at least one record
func (c *Corpus) Contains(term string) bool {
	if c == nil {
		return false
	}
	_, ok := c.vocabulary[term]
	return ok
}

// DocumentFrequency returns how many records list the term
func (c *Corpus) DocumentFrequency(term string) int {
	if c == nil {
		return 0
	}
	return c.vocabulary[term]
}
