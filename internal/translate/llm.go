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

package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/helpdesk-assistant/internal/resilience"
)

const (
	// DefaultTemperature keeps translations close to literal
	DefaultTemperature = 0.3
	// DefaultTimeout bounds one translation
	DefaultTimeout = resilience.DefaultUpstreamTimeout

	defaultMaxTokens = 1024
)

// Completer runs a single system+user prompt against a chat model
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, error)
}

// LLMConfig tunes the LLM translator
type LLMConfig struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// AlwaysTranslate skips language detection and sends every text to the model
	AlwaysTranslate bool
}

// LLMTranslator translates with a chat model
type LLMTranslator struct {
	client   Completer
	detector Detector
	config   LLMConfig
	logger   *zap.Logger
}

// NewLLMTranslator creates a translator; detector defaults to whatlanggo
func NewLLMTranslator(client Completer, detector Detector, config LLMConfig, logger *zap.Logger) *LLMTranslator {
	if detector == nil {
		detector = WhatlangDetector{}
	}
	if config.Temperature <= 0 {
		config.Temperature = DefaultTemperature
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = defaultMaxTokens
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMTranslator{client: client, detector: detector, config: config, logger: logger}
}

// Translate implements Translator
func (t *LLMTranslator) Translate(ctx context.Context, text, targetLang string) Result {
	if targetLang == "" {
		targetLang = DefaultTargetLanguage
	}

	lang, reliable := t.detector.Detect(text)
	result := Result{Text: text, Original: text, SourceLanguage: lang}

	if strings.TrimSpace(text) == "" {
		return result
	}
	if !t.config.AlwaysTranslate && reliable && lang == targetLang {
		return result
	}

	var answer string
	err := resilience.WithTimeout(ctx, t.config.Timeout, t.logger, func(ctx context.Context) error {
		var err error
		answer, err = t.client.Complete(ctx, systemPrompt(targetLang), text, t.config.Temperature, t.config.MaxTokens)
		return err
	})
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("empty translation")
	}
	if err != nil {
		t.logger.Warn("Translation failed, using original text",
			zap.String("source_language", lang),
			zap.String("target_language", targetLang),
			zap.Error(err))
		result.Err = fmt.Errorf("translation to %s failed: %w", targetLang, err)
		return result
	}

	result.Text = strings.TrimSpace(answer)
	result.Translated = result.Text != text

	t.logger.Debug("Text translated",
		zap.String("source_language", lang),
		zap.Bool("reliable_detection", reliable),
		zap.String("target_language", targetLang))

	return result
}

func systemPrompt(targetLang string) string {
	return fmt.Sprintf("Translate the following text to %s. Respond with the translation only.", LanguageName(targetLang))
}
