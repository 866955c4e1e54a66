package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/pavelanni/automark/internal/model"
	"github.com/pavelanni/automark/internal/scheme"
)

// Exact compares answers against reference strings from the mark scheme
// and awards each task's designated mark on a match. Comparison ignores
// leading and trailing whitespace but is otherwise literal.
type Exact struct {
	entries map[string]scheme.ExactEntry
}

func (s *Exact) Name() string { return NameExact }

func (s *Exact) Evaluate(_ context.Context, in Input) (*model.MarkResult, error) {
	var total float64
	considered, matched, answered := 0, 0, false

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
		if strings.TrimSpace(a.Answer) == strings.TrimSpace(entry.Answer) {
			total += entry.Mark
			matched++
		}
	}

	// Nothing in this section is covered by the scheme, or the candidate
	// saved nothing to compare: not our section to decide.
	if considered == 0 || !answered {
		return nil, nil
	}

	feedback := "Correct"
	if matched < considered {
		feedback = fmt.Sprintf("%d of %d answers correct", matched, considered)
	}
	return &model.MarkResult{Mark: total, Feedback: feedback}, nil
}
