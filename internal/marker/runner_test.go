package marker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/automark/internal/model"
	"github.com/pavelanni/automark/internal/strategy"
)

type post struct {
	username string
	section  string
	mark     float64
	feedback string
}

// fakeAPI is a stateful exam service: posted marks become visible to
// subsequent fetches, like the real one.
type fakeAPI struct {
	students  []model.Student
	questions []model.Question
	answers   map[string][]model.Answer
	marks     map[string][]model.Mark
	fetchErr  map[string]error
	postErr   error
	posts     []post
}

func (f *fakeAPI) ListStudents(context.Context) ([]model.Student, error) {
	return f.students, nil
}

func (f *fakeAPI) ListQuestions(context.Context) ([]model.Question, error) {
	return f.questions, nil
}

func (f *fakeAPI) StudentSectionData(_ context.Context, username string, _ int) (model.AnswerLookup, model.MarkLookup, error) {
	if err := f.fetchErr[username]; err != nil {
		return nil, nil, err
	}
	return model.BuildAnswerLookup(f.answers[username]), model.BuildMarkLookup(f.marks[username]), nil
}

func (f *fakeAPI) PostMark(_ context.Context, username, sectionKey string, mark float64, feedback string) error {
	if f.postErr != nil {
		return f.postErr
	}
	f.posts = append(f.posts, post{username, sectionKey, mark, feedback})

	tokens := strings.Split(sectionKey, "-")
	q, _ := strconv.Atoi(tokens[0])
	p, _ := strconv.Atoi(tokens[1])
	s, _ := strconv.Atoi(tokens[2])
	if f.marks == nil {
		f.marks = make(map[string][]model.Mark)
	}
	f.marks[username] = append(f.marks[username], model.Mark{
		Question: q, Part: p, Section: s, Mark: mark, Feedback: feedback,
	})
	return nil
}

type stubStrategy struct {
	result *model.MarkResult
	err    error
}

func (s stubStrategy) Name() string { return "stub" }

func (s stubStrategy) Evaluate(context.Context, strategy.Input) (*model.MarkResult, error) {
	return s.result, s.err
}

type captureRecorder struct {
	decisions []Decision
}

func (r *captureRecorder) RecordDecision(d Decision) error {
	r.decisions = append(r.decisions, d)
	return nil
}

func twoSectionExam() *fakeAPI {
	return &fakeAPI{
		students: []model.Student{{Username: "alice"}},
		questions: []model.Question{{
			Number: 1,
			Parts: []model.Part{{
				Number: 1,
				Sections: []model.Section{
					{Number: 1, MaxMark: 5},
					{Number: 2, MaxMark: 10},
				},
			}},
		}},
	}
}

func TestRunMarksUnmarkedSections(t *testing.T) {
	api := twoSectionExam()
	api.marks = map[string][]model.Mark{
		"alice": {{Question: 1, Part: 1, Section: 2, Mark: 3, Feedback: "manual"}},
	}

	runner := NewRunner(api, strategy.NoAnswer{}, Options{})
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	// 1-1-2 already carries a mark: never overwritten.
	require.Len(t, api.posts, 1)
	assert.Equal(t, post{"alice", "1-1-1", 0, "No answer submitted"}, api.posts[0])
	assert.Equal(t, Summary{Students: 1, Sections: 2, Marked: 1, Skipped: 1}, sum)
}

func TestRunIsIdempotent(t *testing.T) {
	api := twoSectionExam()

	runner := NewRunner(api, strategy.NoAnswer{}, Options{})
	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, api.posts, 2)

	// Second run sees the marks the first run posted.
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, api.posts, 2, "no additional posts on a fully marked exam")
	assert.Equal(t, Summary{Students: 1, Sections: 2, Skipped: 2}, sum)
}

func TestRunClampsMarks(t *testing.T) {
	api := twoSectionExam()

	runner := NewRunner(api, stubStrategy{result: &model.MarkResult{Mark: 99, Feedback: "generous"}}, Options{})
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, api.posts, 2)
	assert.Equal(t, 5.0, api.posts[0].mark)
	assert.Equal(t, 10.0, api.posts[1].mark)
}

func TestDryRunPostsNothing(t *testing.T) {
	api := twoSectionExam()
	rec := &captureRecorder{}

	runner := NewRunner(api, strategy.NoAnswer{}, Options{DryRun: true, Recorder: rec})
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, api.posts)
	assert.Equal(t, 2, sum.Marked)
	require.Len(t, rec.decisions, 2)
	assert.Equal(t, ActionMarked, rec.decisions[0].Action)
}

func TestNoDecisionMeansNoPost(t *testing.T) {
	api := twoSectionExam()

	runner := NewRunner(api, stubStrategy{}, Options{})
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, api.posts)
	assert.Equal(t, 2, sum.NoDecision)
}

func TestFetchErrorAborts(t *testing.T) {
	api := twoSectionExam()
	api.students = append(api.students, model.Student{Username: "bob"})
	api.fetchErr = map[string]error{"alice": errors.New("boom")}

	runner := NewRunner(api, strategy.NoAnswer{}, Options{Policy: PolicyAbort})
	_, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, api.posts, "run stops before reaching bob")
}

func TestFetchErrorContinues(t *testing.T) {
	api := twoSectionExam()
	api.students = append(api.students, model.Student{Username: "bob"})
	api.fetchErr = map[string]error{"alice": errors.New("boom")}

	runner := NewRunner(api, strategy.NoAnswer{}, Options{Policy: PolicyContinue})
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, api.posts, 2)
	assert.Equal(t, "bob", api.posts[0].username)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 2, sum.Marked)
}

func TestPostErrorContinues(t *testing.T) {
	api := twoSectionExam()
	api.postErr = errors.New("rejected")

	runner := NewRunner(api, strategy.NoAnswer{}, Options{Policy: PolicyContinue})
	sum, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)

	runner = NewRunner(api, strategy.NoAnswer{}, Options{Policy: PolicyAbort})
	_, err = runner.Run(context.Background())
	assert.Error(t, err)
}

func TestScoringErrorNeverAborts(t *testing.T) {
	api := twoSectionExam()
	rec := &captureRecorder{}

	runner := NewRunner(api, stubStrategy{err: errors.New("panic-ish")}, Options{Recorder: rec})
	sum, err := runner.Run(context.Background())
	require.NoError(t, err, "a broken strategy must not take the run down")

	assert.Empty(t, api.posts)
	assert.Equal(t, 2, sum.Failed)
	require.Len(t, rec.decisions, 2)
	assert.Equal(t, ActionError, rec.decisions[0].Action)
	assert.NotEmpty(t, rec.decisions[0].Err)
}

func TestCancelledContextStopsRun(t *testing.T) {
	api := twoSectionExam()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := NewRunner(api, strategy.NoAnswer{}, Options{})
	_, err := runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, api.posts)
}

func TestValidPolicy(t *testing.T) {
	assert.True(t, ValidPolicy("abort"))
	assert.True(t, ValidPolicy("continue"))
	assert.False(t, ValidPolicy("retry"))
}
