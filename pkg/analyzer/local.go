// Copyright 2025 The Doclens Authors
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

package analyzer

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// readingWordsPerMinute is the assumed reading speed for the estimate.
const readingWordsPerMinute = 200

// stopwords are excluded from topic extraction.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "from": true,
	"has": true, "have": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true,
	"the": true, "this": true, "to": true, "was": true, "were": true,
	"which": true, "with": true, "will": true, "not": true, "can": true,
}

// LocalAnalyzer is a deterministic in-process Analyzer: frequency-based
// topics and a leading-sentences summary. It exists so doclens runs
// end-to-end without an external model; deployments that want richer
// output swap in another Analyzer implementation.
type LocalAnalyzer struct {
	// TopicCount is how many topics to report. Default 5.
	TopicCount int

	// SummarySentences is how many leading sentences form the summary.
	// Default 3.
	SummarySentences int
}

// NewLocalAnalyzer creates a LocalAnalyzer with default settings.
func NewLocalAnalyzer() *LocalAnalyzer {
	return &LocalAnalyzer{TopicCount: 5, SummarySentences: 3}
}

// Analyze produces a summary, topics, and counts for the text.
func (a *LocalAnalyzer) Analyze(ctx context.Context, text string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoText
	}

	words := strings.Fields(text)
	sentences := splitSentences(text)

	topicCount := a.TopicCount
	if topicCount <= 0 {
		topicCount = 5
	}
	summaryLen := a.SummarySentences
	if summaryLen <= 0 {
		summaryLen = 3
	}
	if summaryLen > len(sentences) {
		summaryLen = len(sentences)
	}

	readingTime := (len(words) + readingWordsPerMinute - 1) / readingWordsPerMinute

	return &Result{
		Summary:            strings.Join(sentences[:summaryLen], " "),
		Topics:             topTerms(words, topicCount),
		WordCount:          len(words),
		Sentences:          len(sentences),
		ReadingTimeMinutes: readingTime,
	}, nil
}

// splitSentences breaks text on terminal punctuation. Good enough for a
// summary extract; no abbreviation handling.
func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder

	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// topTerms returns the n most frequent non-stopword terms. Ties break
// alphabetically so the output is deterministic.
func topTerms(words []string, n int) []string {
	freq := make(map[string]int)
	for _, w := range words {
		term := normalizeTerm(w)
		if term == "" || len(term) < 3 || stopwords[term] {
			continue
		}
		freq[term]++
	}

	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

// normalizeTerm lowercases and strips surrounding punctuation.
func normalizeTerm(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}))
}
