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

// Package analyzer produces a structured summary of a document's text.
// This is the expensive, metered operation the admission guard protects.
package analyzer

import (
	"context"
	"errors"
)

// ErrNoText is returned when there is nothing to analyze.
var ErrNoText = errors.New("no text to analyze")

// Result is the analysis output.
type Result struct {
	// Summary is a short extract representing the document.
	Summary string `json:"summary"`

	// Topics are the most prominent terms, most frequent first.
	Topics []string `json:"topics"`

	// WordCount is the total number of words analyzed.
	WordCount int `json:"word_count"`

	// Sentences is the number of sentences detected.
	Sentences int `json:"sentences"`

	// ReadingTimeMinutes estimates reading time at 200 words per minute.
	ReadingTimeMinutes int `json:"reading_time_minutes"`
}

// Analyzer turns document text into a Result.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*Result, error)
}
