// Package scheme loads the mark scheme file that parameterizes scoring
// strategies: expected answers, option mark tables, keyword tables, and
// model answers for LLM grading, all keyed by task key (e.g. "1-1-2-1").
package scheme

import (
	"encoding/json"
	"fmt"
	"os"
)

// ExactEntry is the expected answer and mark for one task.
type ExactEntry struct {
	Answer string  `json:"answer"`
	Mark   float64 `json:"mark"`
}

// ChoiceEntry maps a multiple-choice option letter to the mark it carries.
// Options absent from the table are worth 0.
type ChoiceEntry map[string]float64

// KeywordEntry awards partial credit per keyword found in a free-text
// answer.
type KeywordEntry struct {
	Keywords map[string]float64 `json:"keywords"`
}

// LLMEntry describes how to grade one task's free-text answer against a
// model answer.
type LLMEntry struct {
	ModelAnswer string  `json:"model_answer"`
	Rubric      string  `json:"rubric,omitempty"`
	Mark        float64 `json:"mark"`
}

// Scheme is the full mark scheme for an exam. Each strategy reads only
// its own table; tables for unused strategies are simply ignored.
type Scheme struct {
	Exact   map[string]ExactEntry   `json:"exact,omitempty"`
	Choice  map[string]ChoiceEntry  `json:"choice,omitempty"`
	Keyword map[string]KeywordEntry `json:"keyword,omitempty"`
	LLM     map[string]LLMEntry     `json:"llm,omitempty"`
}

// Load reads and parses a mark scheme file.
func Load(path string) (*Scheme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mark scheme: %w", err)
	}
	return Parse(data)
}

// Parse decodes a mark scheme from JSON.
func Parse(data []byte) (*Scheme, error) {
	var s Scheme
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse mark scheme: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid mark scheme: %w", err)
	}
	return &s, nil
}

func (s *Scheme) validate() error {
	for key, e := range s.Exact {
		if e.Mark < 0 {
			return fmt.Errorf("exact entry %q has negative mark %v", key, e.Mark)
		}
	}
	for key, e := range s.Keyword {
		if len(e.Keywords) == 0 {
			return fmt.Errorf("keyword entry %q has no keywords", key)
		}
	}
	for key, e := range s.LLM {
		if e.ModelAnswer == "" {
			return fmt.Errorf("llm entry %q has no model answer", key)
		}
		if e.Mark <= 0 {
			return fmt.Errorf("llm entry %q needs a positive mark", key)
		}
	}
	return nil
}
