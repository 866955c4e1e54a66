package strategy

import (
	"context"
	"strings"

	"github.com/pavelanni/automark/internal/model"
)

// NoAnswer awards zero to any section where none of the tasks has a saved
// answer. Sections with even one saved answer are left alone.
type NoAnswer struct{}

func (NoAnswer) Name() string { return NameNoAnswer }

func (NoAnswer) Evaluate(_ context.Context, in Input) (*model.MarkResult, error) {
	for t := range in.Tasks {
		a, ok := in.Answers.Get(model.TaskKey(in.SectionKey, t+1))
		if ok && strings.TrimSpace(a.Answer) != "" {
			return nil, nil
		}
	}
	return &model.MarkResult{Mark: 0, Feedback: "No answer submitted"}, nil
}
