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

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLength drops single-character fragments such as the "t" of "can't"
const MinTokenLength = 2

// stopwords are removed before matching: articles, pronouns, auxiliary verbs,
// prepositions, conjunctions and conversational filler common in support chats.
var stopwords = toSet(
	// articles and determiners
	"a", "an", "the", "this", "that", "these", "those", "some", "any", "each", "every", "all",
	// pronouns
	"i", "me", "my", "mine", "myself", "we", "us", "our", "ours", "you", "your", "yours",
	"he", "him", "his", "she", "her", "hers", "it", "its", "itself", "they", "them", "their",
	"what", "which", "who", "whom", "whose", "where", "when", "why", "how",
	// auxiliary and modal verbs
	"am", "is", "are", "was", "were", "be", "been", "being", "have", "has", "had", "having",
	"do", "does", "did", "doing", "done", "will", "would", "shall", "should", "can", "could",
	"may", "might", "must", "cannot", "cant", "wont", "dont", "doesnt", "didnt", "isnt",
	"arent", "wasnt", "werent", "havent", "hasnt", "hadnt", "couldnt", "shouldnt", "wouldnt",
	// prepositions
	"in", "on", "at", "to", "for", "from", "of", "with", "without", "by", "about", "into",
	"onto", "over", "under", "after", "before", "out", "up", "down", "off", "through",
	"between", "during", "since", "until", "again",
	// conjunctions
	"and", "or", "but", "if", "so", "because", "while", "than", "then", "though", "although",
	// conversational filler
	"please", "help", "thanks", "thank", "hi", "hello", "hey", "just", "also", "very", "really",
	"still", "keep", "get", "got", "getting", "there", "here", "not", "no", "yes", "too",
	"now", "anymore", "always", "never", "sometimes", "try", "tried", "trying", "want", "need",
	"issue", "problem", "anyone", "someone", "something", "anything", "thing", "things",
)

// lemmas fold common inflections onto the canonical keyword used in fix records
var lemmas = map[string]string{
	"timing": "timeout", "timed": "timeout", "timeouts": "timeout", "timedout": "timeout",
	"crashing": "crash", "crashed": "crash", "crashes": "crash",
	"failing": "fail", "failed": "fail", "fails": "fail", "failure": "fail", "failures": "fail",
	"connecting": "connection", "connected": "connection", "connect": "connection",
	"connects": "connection", "connectivity": "connection", "connections": "connection",
	"disconnecting": "disconnect", "disconnected": "disconnect", "disconnects": "disconnect",
	"disconnection": "disconnect",
	"logon": "login", "signin": "login", "logins": "login",
	"passwords": "password", "passwd": "password",
	"freezing": "freeze", "frozen": "freeze", "froze": "freeze", "freezes": "freeze",
	"slowly": "slow", "slowness": "slow",
	"errors": "error", "erroring": "error",
	"installing": "install", "installed": "install", "installation": "install", "installs": "install",
	"updating": "update", "updated": "update", "updates": "update",
	"loading": "load", "loaded": "load", "loads": "load",
	"resetting": "reset", "resets": "reset",
	"locked": "lock", "locking": "lock", "lockout": "lock", "locks": "lock",
	"expired": "expire", "expiring": "expire", "expiry": "expire", "expiration": "expire",
	"authentication": "auth", "authenticating": "auth", "authenticated": "auth", "authenticate": "auth",
	"printing": "print", "printed": "print", "prints": "print",
	"keeps": "keep", "kept": "keep",
}

// Tokenize splits text into lowercase word tokens on any non letter/digit rune
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < MinTokenLength {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Normalize maps a lowercase token to its canonical form
func Normalize(token string) string {
	if lemma, ok := lemmas[token]; ok {
		return lemma
	}

	stem := token
	switch {
	case len(token) > 4 && strings.HasSuffix(token, "ies"):
		stem = token[:len(token)-3] + "y"
	case len(token) > 4 && (strings.HasSuffix(token, "sses") || strings.HasSuffix(token, "xes") ||
		strings.HasSuffix(token, "ches") || strings.HasSuffix(token, "shes")):
		stem = token[:len(token)-2]
	case len(token) > 3 && strings.HasSuffix(token, "s") && !hasAnySuffix(token, "ss", "us", "is", "os"):
		stem = token[:len(token)-1]
	}

	if lemma, ok := lemmas[stem]; ok {
		return lemma
	}
	return stem
}

// IsStopword reports whether token carries no matching signal
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
