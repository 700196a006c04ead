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

package feedback

import (
	"regexp"
	"unicode/utf8"
)

const (
	redacted = "[REDACTED]"
	// MaxQueryLength is the longest query stored, in bytes
	MaxQueryLength = 4096
)

// Users paste credentials into support chats; these never reach the log.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{8,}`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]{8,}`),
	regexp.MustCompile(`(?i)\b(password|passwd|pwd|api[_-]?key|secret|token)\s*[:=]\s*\S+`),
	regexp.MustCompile(`\b[0-9a-fA-F]{32,}\b`),
}

// Sanitize redacts credentials and truncates overly long queries
func Sanitize(query string) string {
	for _, pattern := range sensitivePatterns {
		query = pattern.ReplaceAllStringFunc(query, redact)
	}
	if len(query) > MaxQueryLength {
		cut := MaxQueryLength
		for cut > 0 && !utf8.RuneStart(query[cut]) {
			cut--
		}
		query = query[:cut]
	}
	return query
}

// redact keeps the label of key=value and bearer matches so the log stays readable
var labelPattern = regexp.MustCompile(`(?i)^(bearer\s+|(password|passwd|pwd|api[_-]?key|secret|token)\s*[:=]\s*)`)

func redact(match string) string {
	if label := labelPattern.FindString(match); label != "" {
		return label + redacted
	}
	return redacted
}
