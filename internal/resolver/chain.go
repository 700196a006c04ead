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
	"errors"

	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/knowledge"
)

// Chain runs a primary resolver and falls back to a second one when the primary fails.
// A NotFound from the primary is final.
type Chain struct {
	primary  Resolver
	fallback Resolver
	logger   *zap.Logger
}

// NewChain creates a fallback chain
func NewChain(primary, fallback Resolver, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{primary: primary, fallback: fallback, logger: logger}
}

// Name reports the primary strategy
func (c *Chain) Name() string {
	return c.primary.Name()
}

// Resolve tries the primary resolver, then the fallback on error
func (c *Chain) Resolve(ctx context.Context, input string, corpus *knowledge.Corpus) (Match, error) {
	match, err := c.primary.Resolve(ctx, input, corpus)
	if err == nil {
		return match, nil
	}
	if errors.Is(err, context.Canceled) {
		return Match{}, err
	}

	c.logger.Warn("Resolver failed, falling back",
		zap.String("primary", c.primary.Name()),
		zap.String("fallback", c.fallback.Name()),
		zap.Error(err))

	match, fbErr := c.fallback.Resolve(ctx, input, corpus)
	if fbErr != nil {
		return Match{}, errors.Join(err, fbErr)
	}
	return match, nil
}
