package strategy

import (
	"context"
	"strings"

	"github.com/pavelanni/automark/internal/model"
	"github.com/pavelanni/automark/internal/scheme"
)

// TypeMultipleChoice is the task type prefix the exam service uses for
// multiple choice tasks ("MULTIPLE_CHOICE_SELECT_ONE" and friends).
const TypeMultipleChoice = "MULTIPLE_CHOICE"

// Choice awards marks for multiple-choice tasks from an option-to-mark
// table. The candidate's answer is a comma-separated list of option
// letters; options missing from the table count 0, so a wrong pick can
// carry a penalty only if the table says so. The section total is floored
// at zero before posting.
type Choice struct {
	entries map[string]scheme.ChoiceEntry
}

func (s *Choice) Name() string { return NameChoice }

func (s *Choice) Evaluate(_ context.Context, in Input) (*model.MarkResult, error) {
	var total float64
	hasChoiceTask, answered := false, false

	for t, task := range in.Tasks {
		if !strings.HasPrefix(task.Type, TypeMultipleChoice) {
			continue
		}
		hasChoiceTask = true

		key := model.TaskKey(in.SectionKey, t+1)
		table, ok := s.entries[key]
		if !ok {
			continue
		}
		a, ok := in.Answers.Get(key)
		if !ok || strings.TrimSpace(a.Answer) == "" {
			continue
		}
		answered = true

		seen := make(map[string]bool)
		for _, choice := range strings.Split(a.Answer, ",") {
			choice = strings.TrimSpace(choice)
			if choice == "" || seen[choice] {
				continue
			}
			seen[choice] = true
			total += table[choice]
		}
	}

	if !hasChoiceTask || !answered {
		return nil, nil
	}
	if total < 0 {
		total = 0
	}
	return &model.MarkResult{
		Mark:     total,
		Feedback: "Awarded designated marks for chosen option(s).",
	}, nil
}
