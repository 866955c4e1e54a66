package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/automark/internal/model"
	"github.com/pavelanni/automark/internal/scheme"
)

// Grader wraps an OpenAI-compatible endpoint used to judge free-text
// answers against a model answer. It is the only piece of the scoring
// layer that performs I/O.
type Grader struct {
	api   *openai.Client
	model string
}

// NewGrader creates a grader for an OpenAI-compatible API.
func NewGrader(baseURL, apiKey, modelName string) *Grader {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Grader{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// gradeResponse is the JSON object the grading prompt asks the model for.
type gradeResponse struct {
	Mark     float64 `json:"mark"`
	Feedback string  `json:"feedback"`
}

// GradeAnswer asks the model to mark one answer against the scheme entry.
// The returned mark is clamped to [0, entry.Mark].
func (g *Grader) GradeAnswer(ctx context.Context, entry scheme.LLMEntry, answer string) (gradeResponse, error) {
	resp, err := g.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: buildGradingPrompt(entry)},
			{Role: openai.ChatMessageRoleUser, Content: answer},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return gradeResponse{}, fmt.Errorf("LLM grading call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return gradeResponse{}, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM grading response", "raw", raw)

	var result gradeResponse
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return gradeResponse{}, fmt.Errorf("parse grading response: %w (raw: %s)", err, raw)
	}
	if result.Mark < 0 {
		result.Mark = 0
	}
	if result.Mark > entry.Mark {
		result.Mark = entry.Mark
	}
	return result, nil
}

func buildGradingPrompt(entry scheme.LLMEntry) string {
	var sb strings.Builder
	sb.WriteString("You are an exam marker. Mark the student's answer in the next message.\n\n")
	sb.WriteString("MODEL ANSWER (not shown to the student):\n" + entry.ModelAnswer + "\n\n")
	if entry.Rubric != "" {
		sb.WriteString("MARKING RUBRIC:\n" + entry.Rubric + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("MAX MARK: %v\n\n", entry.Mark))
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Award full marks for any answer semantically equivalent to the model answer.\n")
	sb.WriteString("- Award partial marks for partially correct answers according to the rubric.\n")
	sb.WriteString("- Keep feedback to one or two short sentences addressed to the student.\n")
	sb.WriteString("\nRespond ONLY with a JSON object:\n")
	sb.WriteString(`{"mark": <number 0 to max mark>, "feedback": "<brief feedback>"}`)
	sb.WriteString("\n")
	return sb.String()
}

// LLM grades free-text tasks through a Grader, one call per answered task
// with a scheme entry. It stays silent for sections the scheme does not
// cover or where nothing was answered.
type LLM struct {
	entries map[string]scheme.LLMEntry
	grader  *Grader
}

func (s *LLM) Name() string { return NameLLM }

func (s *LLM) Evaluate(ctx context.Context, in Input) (*model.MarkResult, error) {
	var total float64
	var feedback []string
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

		graded, err := s.grader.GradeAnswer(ctx, entry, a.Answer)
		if err != nil {
			return nil, fmt.Errorf("grade task %s: %w", key, err)
		}
		total += graded.Mark
		if graded.Feedback != "" {
			feedback = append(feedback, "- "+graded.Feedback)
		}
	}

	if considered == 0 || !answered {
		return nil, nil
	}
	return &model.MarkResult{
		Mark:     total,
		Feedback: strings.Join(feedback, "\n"),
	}, nil
}
