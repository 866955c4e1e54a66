package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/automark/internal/model"
)

// Config carries everything the client needs to talk to an exam service.
// Credentials are passed in explicitly so the client can be constructed
// against a test server without any ambient environment.
type Config struct {
	RootURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Error is returned for any failed exchange with the exam service:
// transport failure, non-2xx status, or a payload that does not decode.
type Error struct {
	Method string
	URL    string
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s", e.Method, e.URL)
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Client talks to the exam service. It keeps no state between calls.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a client for the exam service rooted at cfg.RootURL.
func New(cfg Config) (*Client, error) {
	cfg.RootURL = strings.TrimRight(cfg.RootURL, "/")
	if cfg.RootURL == "" {
		return nil, fmt.Errorf("exam root URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// ListStudents fetches all candidates for the exam.
func (c *Client) ListStudents(ctx context.Context) ([]model.Student, error) {
	var students []model.Student
	if err := c.get(ctx, "/students", &students); err != nil {
		return nil, err
	}
	return students, nil
}

// ListQuestions fetches the exam's question tree.
func (c *Client) ListQuestions(ctx context.Context) ([]model.Question, error) {
	var questions []model.Question
	if err := c.get(ctx, "/questions", &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// StudentAnswers fetches a candidate's saved answers for one question.
func (c *Client) StudentAnswers(ctx context.Context, username string, question int) ([]model.Answer, error) {
	var answers []model.Answer
	path := "/students/" + username + "/questions/" + strconv.Itoa(question) + "/answers"
	if err := c.get(ctx, path, &answers); err != nil {
		return nil, err
	}
	return answers, nil
}

// StudentMarks fetches the marks already recorded for a candidate on one
// question.
func (c *Client) StudentMarks(ctx context.Context, username string, question int) ([]model.Mark, error) {
	var marks []model.Mark
	path := "/students/" + username + "/questions/" + strconv.Itoa(question) + "/marks"
	if err := c.get(ctx, path, &marks); err != nil {
		return nil, err
	}
	return marks, nil
}

// StudentSectionData fetches a candidate's answers and existing marks for
// one question and returns them as lookup tables. Two requests on the
// wire, one logical read for the caller.
func (c *Client) StudentSectionData(ctx context.Context, username string, question int) (model.AnswerLookup, model.MarkLookup, error) {
	answers, err := c.StudentAnswers(ctx, username, question)
	if err != nil {
		return nil, nil, err
	}
	marks, err := c.StudentMarks(ctx, username, question)
	if err != nil {
		return nil, nil, err
	}
	return model.BuildAnswerLookup(answers), model.BuildMarkLookup(marks), nil
}

// PostMark records a mark with feedback for a candidate's section.
// Re-posting the same mark is safe; the server treats it as an upsert.
func (c *Client) PostMark(ctx context.Context, username, sectionKey string, mark float64, feedback string) error {
	path := "/students/" + username + "/sections/" + sectionKey + "/mark"
	payload := model.MarkResult{Mark: mark, Feedback: feedback}
	return c.post(ctx, path, payload)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	url := c.cfg.RootURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Method: http.MethodGet, URL: url, Err: err}
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	url := c.cfg.RootURL + path
	body, err := json.Marshal(payload)
	if err != nil {
		return &Error{Method: http.MethodPost, URL: url, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &Error{Method: http.MethodPost, URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Method: req.Method, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Method: req.Method,
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Detail: errorDetail(resp.Body),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{
			Method: req.Method,
			URL:    req.URL.String(),
			Status: resp.StatusCode,
			Err:    fmt.Errorf("decode response: %w", err),
		}
	}
	return nil
}

// errorDetail extracts the service's {"detail": "..."} message from an
// error body, falling back to the raw text.
func errorDetail(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return strings.TrimSpace(string(body))
}
