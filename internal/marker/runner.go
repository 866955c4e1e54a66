// Package marker drives a marking run: students outer, questions middle,
// sections inner, in the order the exam service returns them. The run is
// fully synchronous; one in-process writer is all the exam service ever
// sees from this tool.
package marker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/automark/internal/model"
	"github.com/pavelanni/automark/internal/strategy"
)

// API is the slice of the exam service client the runner needs.
type API interface {
	ListStudents(ctx context.Context) ([]model.Student, error)
	ListQuestions(ctx context.Context) ([]model.Question, error)
	StudentSectionData(ctx context.Context, username string, question int) (model.AnswerLookup, model.MarkLookup, error)
	PostMark(ctx context.Context, username, sectionKey string, mark float64, feedback string) error
}

// Actions recorded for each (student, section) pair.
const (
	ActionMarked     = "marked"
	ActionSkipped    = "skipped"     // an existing mark was left untouched
	ActionNoDecision = "no-decision" // the strategy stayed silent
	ActionError      = "error"
)

// Decision is one per-section outcome, as handed to the audit recorder.
type Decision struct {
	Username   string
	SectionKey string
	Action     string
	Mark       *float64
	Feedback   string
	Err        string
}

// Recorder persists decisions for post-run auditing. Recording failures
// are logged but never interrupt a run.
type Recorder interface {
	RecordDecision(d Decision) error
}

// Policy controls how the runner reacts to exam service errors.
type Policy string

const (
	// PolicyAbort stops the whole run on the first service error.
	PolicyAbort Policy = "abort"
	// PolicyContinue logs service errors and moves on to the next
	// student or section.
	PolicyContinue Policy = "continue"
)

// ValidPolicy reports whether name is a recognized --on-error value.
func ValidPolicy(name string) bool {
	return Policy(name) == PolicyAbort || Policy(name) == PolicyContinue
}

// Summary accumulates counters over a run.
type Summary struct {
	Students   int `json:"students"`
	Sections   int `json:"sections"`
	Marked     int `json:"marked"`
	Skipped    int `json:"skipped"`
	NoDecision int `json:"no_decision"`
	Failed     int `json:"failed"`
}

// Options configure a Runner beyond its two mandatory collaborators.
type Options struct {
	Policy   Policy
	DryRun   bool
	Recorder Recorder
}

// Runner walks the exam and applies one strategy to every unmarked
// section.
type Runner struct {
	api      API
	strategy strategy.Strategy
	opts     Options
}

// NewRunner creates a runner. A zero Options.Policy means PolicyAbort.
func NewRunner(api API, strat strategy.Strategy, opts Options) *Runner {
	if opts.Policy == "" {
		opts.Policy = PolicyAbort
	}
	return &Runner{api: api, strategy: strat, opts: opts}
}

// Run executes the marking pass. The returned Summary is valid even when
// err is non-nil and covers everything processed up to the failure.
// Cancelling ctx stops further iteration; marks already posted stay.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	students, err := r.api.ListStudents(ctx)
	if err != nil {
		return sum, fmt.Errorf("list students: %w", err)
	}
	questions, err := r.api.ListQuestions(ctx)
	if err != nil {
		return sum, fmt.Errorf("list questions: %w", err)
	}
	slog.Info("starting marking run",
		"strategy", r.strategy.Name(),
		"students", len(students),
		"questions", len(questions),
		"dry_run", r.opts.DryRun,
	)

	for _, student := range students {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Students++
		for _, question := range questions {
			if err := r.markQuestion(ctx, student.Username, question, &sum); err != nil {
				return sum, err
			}
		}
	}

	slog.Info("marking run finished",
		"students", sum.Students,
		"sections", sum.Sections,
		"marked", sum.Marked,
		"skipped", sum.Skipped,
		"no_decision", sum.NoDecision,
		"failed", sum.Failed,
	)
	return sum, nil
}

func (r *Runner) markQuestion(ctx context.Context, username string, question model.Question, sum *Summary) error {
	answers, marks, err := r.api.StudentSectionData(ctx, username, question.Number)
	if err != nil {
		sum.Failed++
		r.record(Decision{
			Username:   username,
			SectionKey: model.Key(question.Number),
			Action:     ActionError,
			Err:        err.Error(),
		})
		if r.opts.Policy == PolicyAbort {
			return fmt.Errorf("fetch data for %s question %d: %w", username, question.Number, err)
		}
		slog.Error("fetch failed, continuing",
			"student", username, "question", question.Number, "error", err)
		return nil
	}

	for _, part := range question.Parts {
		for _, section := range part.Sections {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := model.Key(question.Number, part.Number, section.Number)
			sum.Sections++
			if err := r.markSection(ctx, username, key, section, answers, marks, sum); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner) markSection(ctx context.Context, username, key string, section model.Section, answers model.AnswerLookup, marks model.MarkLookup, sum *Summary) error {
	// Existing marks are never overwritten; this guard is shared by all
	// strategies so none of them has to check again.
	if marks.Has(key) {
		sum.Skipped++
		slog.Debug("section already marked", "student", username, "section", key)
		r.record(Decision{Username: username, SectionKey: key, Action: ActionSkipped})
		return nil
	}

	result, err := r.strategy.Evaluate(ctx, strategy.Input{
		Username:   username,
		SectionKey: key,
		MaxMark:    section.MaxMark,
		Tasks:      section.Tasks,
		Answers:    answers,
	})
	if err != nil {
		// A misbehaving strategy must not take the run down: log with
		// enough context to investigate, skip the section.
		sum.Failed++
		slog.Error("scoring failed", "student", username, "section", key, "error", err)
		r.record(Decision{Username: username, SectionKey: key, Action: ActionError, Err: err.Error()})
		return nil
	}
	if result == nil {
		sum.NoDecision++
		slog.Debug("no decision", "student", username, "section", key)
		r.record(Decision{Username: username, SectionKey: key, Action: ActionNoDecision})
		return nil
	}

	mark := clamp(result.Mark, 0, section.MaxMark)
	if mark != result.Mark {
		slog.Warn("clamped out-of-range mark",
			"student", username, "section", key,
			"mark", result.Mark, "max_mark", section.MaxMark)
	}

	if r.opts.DryRun {
		sum.Marked++
		slog.Info("would save mark (dry run)",
			"student", username, "section", key, "mark", mark)
		r.record(Decision{Username: username, SectionKey: key, Action: ActionMarked, Mark: &mark, Feedback: result.Feedback})
		return nil
	}

	if err := r.api.PostMark(ctx, username, key, mark, result.Feedback); err != nil {
		sum.Failed++
		r.record(Decision{Username: username, SectionKey: key, Action: ActionError, Err: err.Error()})
		if r.opts.Policy == PolicyAbort {
			return fmt.Errorf("post mark for %s on %s: %w", username, key, err)
		}
		slog.Error("mark not saved, continuing",
			"student", username, "section", key, "error", err)
		return nil
	}

	sum.Marked++
	slog.Info("mark saved", "student", username, "section", key, "mark", mark)
	r.record(Decision{Username: username, SectionKey: key, Action: ActionMarked, Mark: &mark, Feedback: result.Feedback})
	return nil
}

func (r *Runner) record(d Decision) {
	if r.opts.Recorder == nil {
		return
	}
	if err := r.opts.Recorder.RecordDecision(d); err != nil {
		slog.Warn("audit record failed", "student", d.Username, "section", d.SectionKey, "error", err)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
