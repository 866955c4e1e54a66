package model

import (
	"strconv"
	"strings"
)

// Student is one exam candidate as reported by the exam service.
type Student struct {
	Username string `json:"username"`
}

// Question is one exam question with its tree of parts and sections.
type Question struct {
	Number int    `json:"number"`
	Parts  []Part `json:"parts"`
}

// Part groups the sections of a question (question 1 part a, b, ...).
type Part struct {
	Number   int       `json:"number"`
	Sections []Section `json:"sections"`
}

// Section is the smallest gradable unit of a question.
type Section struct {
	Number  int     `json:"number"`
	MaxMark float64 `json:"maximum_mark"`
	Tasks   []Task  `json:"tasks"`
}

// Task describes what is expected of the candidate within a section.
// The driver treats tasks as opaque; only strategies interpret them.
type Task struct {
	Type         string            `json:"type"`
	Instructions string            `json:"instructions,omitempty"`
	Choices      map[string]string `json:"choices,omitempty"`
}

// Answer is a candidate's saved response to a single task.
type Answer struct {
	Question int    `json:"question"`
	Part     int    `json:"part"`
	Section  int    `json:"section"`
	Task     int    `json:"task"`
	Answer   string `json:"answer"`
}

// Mark is a recorded mark for a section, with optional feedback.
type Mark struct {
	Question int     `json:"question"`
	Part     int     `json:"part"`
	Section  int     `json:"section"`
	Mark     float64 `json:"mark"`
	Feedback string  `json:"feedback"`
}

// MarkResult is a strategy's decision for one section. A nil *MarkResult
// means "no decision": nothing is posted. That is distinct from an
// explicit zero mark, which is posted like any other value.
type MarkResult struct {
	Mark     float64 `json:"mark"`
	Feedback string  `json:"feedback"`
}

// Key joins identifier tokens with "-", e.g. Key(1, 1, 2) == "1-1-2".
// Section keys are question-part-section; task keys append the 1-based
// task index.
func Key(tokens ...int) string {
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = strconv.Itoa(tok)
	}
	return strings.Join(parts, "-")
}

// TaskKey extends a section key with a 1-based task index.
func TaskKey(sectionKey string, task int) string {
	return sectionKey + "-" + strconv.Itoa(task)
}

// SectionKey returns the key for the section an answer belongs to.
func (a Answer) SectionKey() string {
	return Key(a.Question, a.Part, a.Section)
}

// TaskKey returns the full task key for an answer.
func (a Answer) TaskKey() string {
	return TaskKey(a.SectionKey(), a.Task)
}

// SectionKey returns the key for the section a mark belongs to.
func (m Mark) SectionKey() string {
	return Key(m.Question, m.Part, m.Section)
}

// AnswerLookup indexes answers by task key.
type AnswerLookup map[string]Answer

// MarkLookup indexes marks by section key.
type MarkLookup map[string]Mark

// BuildAnswerLookup indexes a list of answers by task key.
func BuildAnswerLookup(answers []Answer) AnswerLookup {
	lookup := make(AnswerLookup, len(answers))
	for _, a := range answers {
		lookup[a.TaskKey()] = a
	}
	return lookup
}

// BuildMarkLookup indexes a list of marks by section key.
func BuildMarkLookup(marks []Mark) MarkLookup {
	lookup := make(MarkLookup, len(marks))
	for _, m := range marks {
		lookup[m.SectionKey()] = m
	}
	return lookup
}

// Get returns the answer for a task key, or false if the candidate never
// saved one.
func (l AnswerLookup) Get(taskKey string) (Answer, bool) {
	a, ok := l[taskKey]
	return a, ok
}

// Has reports whether a mark exists for a section key.
func (l MarkLookup) Has(sectionKey string) bool {
	_, ok := l[sectionKey]
	return ok
}
