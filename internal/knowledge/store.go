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
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ReloadFunc is notified after every reload attempt
type ReloadFunc func(corpus *Corpus, report LoadReport, err error)

// Store publishes the current corpus snapshot. Readers never block; reloads
// build a new snapshot and swap it in, so a request always sees one whole corpus.
type Store struct {
	dir      string
	current  atomic.Pointer[Corpus]
	version  atomic.Uint64
	reloadMu sync.Mutex
	hooks    []ReloadFunc
	hooksMu  sync.RWMutex
	logger   *zap.Logger
}

// NewStore creates a store for dir holding an empty corpus until the first reload
func NewStore(dir string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{dir: dir, logger: logger}
	s.current.Store(NewCorpus(nil, 0, dir))
	return s
}

// Dir returns the knowledge directory
func (s *Store) Dir() string {
	return s.dir
}

// Current returns the active snapshot; never nil
func (s *Store) Current() *Corpus {
	return s.current.Load()
}

// OnReload registers a hook called after each reload attempt
func (s *Store) OnReload(fn ReloadFunc) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Reload loads the directory and swaps the snapshot. On failure the previous
// snapshot stays active and the error is returned.
func (s *Store) Reload(ctx context.Context) (*Corpus, LoadReport, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	if err := ctx.Err(); err != nil {
		return s.Current(), LoadReport{Dir: s.dir}, err
	}

	next := s.version.Load() + 1
	corpus, report, err := LoadDir(s.dir, next, s.logger)
	if err != nil {
		s.logger.Error("Knowledge base reload failed, keeping previous snapshot",
			zap.String("dir", s.dir),
			zap.Uint64("active_version", s.Current().Version()),
			zap.Error(err))
		s.notify(nil, report, err)
		return s.Current(), report, err
	}

	s.version.Store(next)
	s.current.Store(corpus)
	s.notify(corpus, report, nil)

	return corpus, report, nil
}

// Replace publishes the given records as a new snapshot
func (s *Store) Replace(records []FixRecord) *Corpus {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	next := s.version.Add(1)
	corpus := NewCorpus(records, next, s.dir)
	s.current.Store(corpus)
	s.notify(corpus, LoadReport{Dir: s.dir, Loaded: len(records)}, nil)
	return corpus
}

func (s *Store) notify(corpus *Corpus, report LoadReport, err error) {
	s.hooksMu.RLock()
	defer s.hooksMu.RUnlock()
	for _, fn := range s.hooks {
		fn(corpus, report, err)
	}
}
