// Package strategy holds the scoring strategies an automarking run can be
// configured with. Each strategy decides marks for one section at a time
// and shares the same contract: return a result to record a mark, or nil
// to stay silent and leave the section for a human marker.
package strategy

import (
	"context"
	"fmt"

	"github.com/pavelanni/automark/internal/model"
	"github.com/pavelanni/automark/internal/scheme"
)

// Input is everything a strategy may consider for one section. The
// driver guarantees the section carries no existing mark by the time a
// strategy sees it.
type Input struct {
	Username   string
	SectionKey string
	MaxMark    float64
	Tasks      []model.Task
	Answers    model.AnswerLookup
}

// Strategy scores a single section. A nil result with a nil error means
// the strategy makes no decision for this section; an explicit zero mark
// is a decision and gets posted. Implementations must not mutate shared
// state, so they can be unit-tested in isolation.
type Strategy interface {
	Name() string
	Evaluate(ctx context.Context, in Input) (*model.MarkResult, error)
}

// Names of the built-in strategies, as accepted by --strategy.
const (
	NameNoAnswer = "no-answer"
	NameExact    = "exact"
	NameChoice   = "choice"
	NameKeyword  = "keyword"
	NameLLM      = "llm"
)

// New builds the named strategy from the mark scheme. The grader is only
// required for the llm strategy.
func New(name string, sch *scheme.Scheme, grader *Grader) (Strategy, error) {
	switch name {
	case NameNoAnswer:
		return NoAnswer{}, nil
	case NameExact:
		if sch == nil || len(sch.Exact) == 0 {
			return nil, fmt.Errorf("exact strategy needs an %q table in the mark scheme", "exact")
		}
		return &Exact{entries: sch.Exact}, nil
	case NameChoice:
		if sch == nil || len(sch.Choice) == 0 {
			return nil, fmt.Errorf("choice strategy needs a %q table in the mark scheme", "choice")
		}
		return &Choice{entries: sch.Choice}, nil
	case NameKeyword:
		if sch == nil || len(sch.Keyword) == 0 {
			return nil, fmt.Errorf("keyword strategy needs a %q table in the mark scheme", "keyword")
		}
		return &Keyword{entries: sch.Keyword}, nil
	case NameLLM:
		if sch == nil || len(sch.LLM) == 0 {
			return nil, fmt.Errorf("llm strategy needs an %q table in the mark scheme", "llm")
		}
		if grader == nil {
			return nil, fmt.Errorf("llm strategy needs a configured LLM endpoint")
		}
		return &LLM{entries: sch.LLM, grader: grader}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
