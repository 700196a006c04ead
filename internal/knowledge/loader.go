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

package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// ErrInvalidDocument is returned for a document that cannot become a fix record
var ErrInvalidDocument = errors.New("invalid knowledge document")

// document mirrors the on-disk JSON layout
type document struct {
	Description   string   `json:"description"`
	Fix           string   `json:"fix"`
	ErrorKeywords []string `json:"error_keywords"`
}

// LoadReport summarizes a directory load
type LoadReport struct {
	Dir     string            `json:"dir"`
	Loaded  int               `json:"loaded"`
	Skipped map[string]string `json:"skipped,omitempty"`
}

// LoadDir reads every *.json file in dir (non-recursive) in filename order.
// Documents that fail to parse are skipped and reported; a missing directory is an error.
func LoadDir(dir string, version uint64, logger *zap.Logger) (*Corpus, LoadReport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	report := LoadReport{Dir: dir, Skipped: make(map[string]string)}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, report, fmt.Errorf("failed to access knowledge directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, report, fmt.Errorf("knowledge path is not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, report, fmt.Errorf("failed to list knowledge directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	records := make([]FixRecord, 0, len(names))
	for _, name := range names {
		record, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("Skipping knowledge document",
				zap.String("file", name),
				zap.Error(err))
			report.Skipped[name] = err.Error()
			continue
		}
		records = append(records, record)
	}

	report.Loaded = len(records)
	logger.Info("Knowledge base loaded",
		zap.String("dir", dir),
		zap.Int("records", len(records)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Uint64("version", version))

	return NewCorpus(records, version, dir), report, nil
}

// LoadFile parses a single fix record document; the source id is the filename
func LoadFile(path string) (FixRecord, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the configured docs directory
	if err != nil {
		return FixRecord{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return FixRecord{}, fmt.Errorf("%w: %s: %v", ErrInvalidDocument, filepath.Base(path), err)
	}

	if strings.TrimSpace(doc.Fix) == "" {
		return FixRecord{}, fmt.Errorf("%w: %s: fix is empty", ErrInvalidDocument, filepath.Base(path))
	}

	return NewFixRecord(doc.Description, doc.Fix, doc.ErrorKeywords, filepath.Base(path)), nil
}
