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
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces bursts of file events (editors write several times per save)
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a Store when JSON documents in its directory change
type Watcher struct {
	store    *Store
	debounce time.Duration
	logger   *zap.Logger
}

// NewWatcher creates a watcher for the store's directory
func NewWatcher(store *Store, debounce time.Duration, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{store: store, debounce: debounce, logger: logger}
}

// Run blocks until ctx is cancelled, reloading the store after relevant changes
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.store.Dir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.store.Dir(), err)
	}

	w.logger.Info("Watching knowledge base for changes",
		zap.String("dir", w.store.Dir()),
		zap.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("Knowledge document changed",
				zap.String("file", event.Name),
				zap.String("op", event.Op.String()))
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))

		case <-timer.C:
			pending = false
			if _, _, err := w.store.Reload(ctx); err != nil {
				w.logger.Warn("Reload after change failed", zap.Error(err))
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !strings.EqualFold(filepath.Ext(event.Name), ".json") {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
