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
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/helpdesk-assistant/internal/cache"
)

type fixedDetector struct {
	lang     string
	reliable bool
}

func (d fixedDetector) Detect(string) (string, bool) { return d.lang, d.reliable }

type fakeCompleter struct {
	answer string
	err    error
	delay  time.Duration
	calls  atomic.Int32
	system atomic.Value
}

func (f *fakeCompleter) Complete(ctx context.Context, systemPrompt, _ string, temperature float32, _ int) (string, error) {
	f.calls.Add(1)
	f.system.Store(systemPrompt)
	if temperature != DefaultTemperature {
		return "", errors.New("unexpected temperature")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

func TestWhatlangDetector(t *testing.T) {
	d := WhatlangDetector{}

	lang, _ := d.Detect("Mein VPN-Verbindung bricht ständig ab und ich kann nicht mehr arbeiten, bitte helfen Sie mir")
	assert.Equal(t, "de", lang)

	lang, _ = d.Detect("My VPN connection keeps timing out every few minutes and I cannot work anymore")
	assert.Equal(t, "en", lang)

	lang, reliable := d.Detect("   ")
	assert.Equal(t, UnknownLanguage, lang)
	assert.False(t, reliable)
}

func TestLLMTranslator_Translates(t *testing.T) {
	client := &fakeCompleter{answer: "  My VPN connection keeps dropping \n"}
	tr := NewLLMTranslator(client, fixedDetector{"de", true}, LLMConfig{}, zaptest.NewLogger(t))

	result := tr.Translate(context.Background(), "Meine VPN-Verbindung bricht ab", "en")

	assert.True(t, result.Translated)
	assert.Equal(t, "My VPN connection keeps dropping", result.Text)
	assert.Equal(t, "Meine VPN-Verbindung bricht ab", result.Original)
	assert.Equal(t, "de", result.SourceLanguage)
	assert.NoError(t, result.Err)
	assert.Equal(t, "Translate the following text to English. Respond with the translation only.", client.system.Load())
}

func TestLLMTranslator_SkipsTargetLanguage(t *testing.T) {
	client := &fakeCompleter{answer: "unused"}
	tr := NewLLMTranslator(client, fixedDetector{"en", true}, LLMConfig{}, zaptest.NewLogger(t))

	result := tr.Translate(context.Background(), "My VPN is down", "")
	assert.False(t, result.Translated)
	assert.Equal(t, "My VPN is down", result.Text)
	assert.Equal(t, int32(0), client.calls.Load())

	// unreliable detection is not trusted
	tr = NewLLMTranslator(client, fixedDetector{"en", false}, LLMConfig{}, zaptest.NewLogger(t))
	tr.Translate(context.Background(), "vpn down", "en")
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestLLMTranslator_FallsBackOnError(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeCompleter
		config LLMConfig
	}{
		{"upstream error", &fakeCompleter{err: errors.New("503 service unavailable")}, LLMConfig{}},
		{"empty answer", &fakeCompleter{answer: "   "}, LLMConfig{}},
		{"timeout", &fakeCompleter{answer: "late", delay: time.Second}, LLMConfig{Timeout: 20 * time.Millisecond}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewLLMTranslator(tt.client, fixedDetector{"fr", true}, tt.config, zaptest.NewLogger(t))
			result := tr.Translate(context.Background(), "Mon imprimante est hors ligne", "en")

			assert.False(t, result.Translated)
			assert.Equal(t, "Mon imprimante est hors ligne", result.Text)
			assert.Error(t, result.Err)
		})
	}
}

func TestLLMTranslator_EmptyText(t *testing.T) {
	client := &fakeCompleter{answer: "x"}
	tr := NewLLMTranslator(client, nil, LLMConfig{AlwaysTranslate: true}, nil)

	result := tr.Translate(context.Background(), "", "en")
	assert.Equal(t, "", result.Text)
	assert.False(t, result.Translated)
	assert.Equal(t, int32(0), client.calls.Load())
}

func TestCachedTranslator(t *testing.T) {
	ctx := context.Background()
	client := &fakeCompleter{answer: "Printer offline"}
	inner := NewLLMTranslator(client, fixedDetector{"de", true}, LLMConfig{}, zaptest.NewLogger(t))
	tr := NewCachedTranslator(inner, cache.NewMemoryCache(10, time.Hour), 0, zaptest.NewLogger(t))

	first := tr.Translate(ctx, "Drucker offline", "en")
	second := tr.Translate(ctx, "Drucker offline", "en")

	assert.Equal(t, first.Text, second.Text)
	assert.True(t, second.Translated)
	assert.Equal(t, "de", second.SourceLanguage)
	assert.Equal(t, int32(1), client.calls.Load())

	// a different target language is a different entry
	tr.Translate(ctx, "Drucker offline", "fr")
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestCachedTranslator_DoesNotCacheFallback(t *testing.T) {
	ctx := context.Background()
	client := &fakeCompleter{err: errors.New("down")}
	inner := NewLLMTranslator(client, fixedDetector{"de", true}, LLMConfig{}, zaptest.NewLogger(t))
	tr := NewCachedTranslator(inner, cache.NewMemoryCache(10, time.Hour), time.Minute, nil)

	tr.Translate(ctx, "Drucker offline", "en")
	tr.Translate(ctx, "Drucker offline", "en")
	assert.Equal(t, int32(2), client.calls.Load())
}

func TestNoopTranslator(t *testing.T) {
	result := NoopTranslator{Detector: fixedDetector{"es", true}}.Translate(context.Background(), "hola", "en")
	assert.Equal(t, "hola", result.Text)
	assert.Equal(t, "es", result.SourceLanguage)
	assert.False(t, result.Translated)

	result = NoopTranslator{}.Translate(context.Background(), "hola", "en")
	assert.Equal(t, UnknownLanguage, result.SourceLanguage)
}

func TestLanguageName(t *testing.T) {
	assert.Equal(t, "English", LanguageName("en"))
	assert.Equal(t, "German", LanguageName("DE"))
	assert.Equal(t, "xx", LanguageName("xx"))
	require.True(t, strings.Contains(systemPrompt("fr"), "French"))
}
