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

// Package translate normalizes user messages to the knowledge base language.
// Translation is best effort: every failure yields the original text.
package translate

import (
	"context"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// DefaultTargetLanguage is the language fix records are written in
const DefaultTargetLanguage = "en"

// UnknownLanguage is reported when detection is not possible
const UnknownLanguage = "und"

// Result of a translation attempt. Text is always usable: on failure it is the original.
type Result struct {
	Text           string `json:"translated_text"`
	Original       string `json:"original_text"`
	SourceLanguage string `json:"input_language"`
	Translated     bool   `json:"translated"`
	// Err records why translation fell back to the original text
	Err error `json:"-"`
}

// Translator converts text into targetLang (ISO 639-1). Implementations never fail.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) Result
}

// Detector identifies the language of a text
type Detector interface {
	// Detect returns an ISO 639-1 code and whether the guess is reliable
	Detect(text string) (string, bool)
}

// WhatlangDetector detects languages with whatlanggo
type WhatlangDetector struct{}

// Detect implements Detector
func (WhatlangDetector) Detect(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return UnknownLanguage, false
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return UnknownLanguage, false
	}
	return code, info.IsReliable()
}

// NoopTranslator returns every text unchanged
type NoopTranslator struct {
	Detector Detector
}

// Translate implements Translator
func (n NoopTranslator) Translate(_ context.Context, text, _ string) Result {
	lang := UnknownLanguage
	if n.Detector != nil {
		lang, _ = n.Detector.Detect(text)
	}
	return Result{Text: text, Original: text, SourceLanguage: lang}
}

var languageNames = map[string]string{
	"en": "English",
	"de": "German",
	"fr": "French",
	"es": "Spanish",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"ru": "Russian",
	"ar": "Arabic",
	"ja": "Japanese",
	"zh": "Chinese",
	"pl": "Polish",
	"sv": "Swedish",
}

// LanguageName returns the English name of an ISO 639-1 code, or the code itself
func LanguageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}
