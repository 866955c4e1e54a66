package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pavelanni/automark/internal/model"
	"github.com/pavelanni/automark/internal/scheme"
)

// Keyword scans free-text answers for scheme-defined keywords and awards
// partial credit per keyword found. Matching is case-insensitive.
type Keyword struct {
	entries map[string]scheme.KeywordEntry
}

func (s *Keyword) Name() string { return NameKeyword }

func (s *Keyword) Evaluate(_ context.Context, in Input) (*model.MarkResult, error) {
	var total float64
	var found []string
	considered, answered := 0, false

	for t := range in.Tasks {
		key := model.TaskKey(in.SectionKey, t+1)
		entry, ok := s.entries[key]
		if !ok {
			continue
		}
		considered++

		a, ok := in.Answers.Get(key)
		if !ok || strings.TrimSpace(a.Answer) == "" {
			continue
		}
		answered = true

		text := strings.ToLower(a.Answer)
		for kw, mark := range entry.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				total += mark
				found = append(found, kw)
			}
		}
	}

	if considered == 0 || !answered {
		return nil, nil
	}

	feedback := "No expected keywords found"
	if len(found) > 0 {
		sort.Strings(found)
		feedback = fmt.Sprintf("Credit for: %s", strings.Join(found, ", "))
	}
	if total < 0 {
		total = 0
	}
	return &model.MarkResult{Mark: total, Feedback: feedback}, nil
}
