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
	"errors"
	"strings"
	"testing"
)

const sample = "Solar panels convert sunlight into electricity. " +
	"Solar capacity doubled last year. " +
	"Electricity storage remains the main challenge for solar adoption. " +
	"Batteries help store electricity overnight."

func TestAnalyzeProducesTopicsAndSummary(t *testing.T) {
	a := NewLocalAnalyzer()

	result, err := a.Analyze(context.Background(), sample)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if result.Sentences != 4 {
		t.Errorf("sentences = %d, want 4", result.Sentences)
	}
	if result.WordCount != len(strings.Fields(sample)) {
		t.Errorf("word count = %d, want %d", result.WordCount, len(strings.Fields(sample)))
	}
	if result.ReadingTimeMinutes < 1 {
		t.Error("reading time should round up to at least one minute")
	}

	// "solar" (3) and "electricity" (3) dominate the sample.
	if len(result.Topics) == 0 {
		t.Fatal("no topics extracted")
	}
	topics := strings.Join(result.Topics, " ")
	if !strings.Contains(topics, "solar") || !strings.Contains(topics, "electricity") {
		t.Errorf("topics = %v, want solar and electricity present", result.Topics)
	}

	// Summary is the leading sentences.
	if !strings.HasPrefix(result.Summary, "Solar panels convert") {
		t.Errorf("summary = %q, want it to start with the first sentence", result.Summary)
	}
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	a := NewLocalAnalyzer()

	first, err := a.Analyze(context.Background(), sample)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := a.Analyze(context.Background(), sample)
		if err != nil {
			t.Fatalf("Analyze: %v", err)
		}
		if strings.Join(again.Topics, ",") != strings.Join(first.Topics, ",") {
			t.Fatalf("run %d: topics %v != %v", i, again.Topics, first.Topics)
		}
		if again.Summary != first.Summary {
			t.Fatalf("run %d: summary changed", i)
		}
	}
}

func TestAnalyzeSkipsStopwords(t *testing.T) {
	a := NewLocalAnalyzer()

	result, err := a.Analyze(context.Background(), "the the the project project is is and and")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Topics) != 1 || result.Topics[0] != "project" {
		t.Errorf("topics = %v, want [project]", result.Topics)
	}
}

func TestAnalyzeEmptyText(t *testing.T) {
	a := NewLocalAnalyzer()

	if _, err := a.Analyze(context.Background(), "   \n "); !errors.Is(err, ErrNoText) {
		t.Fatalf("err = %v, want ErrNoText", err)
	}
}

func TestAnalyzeCanceledContext(t *testing.T) {
	a := NewLocalAnalyzer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Analyze(ctx, sample); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
