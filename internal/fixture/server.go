// Package fixture implements a local stand-in for the exam service. It
// serves students, questions, answers, and marks from a JSON fixture file
// and accepts mark POSTs into memory, so strategies and full runs can be
// exercised without touching a real exam.
package fixture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/automark/internal/model"
)

// Fixture is the on-disk shape of a stub exam: answers and pre-existing
// marks are keyed by username.
type Fixture struct {
	Students  []model.Student           `json:"students"`
	Questions []model.Question          `json:"questions"`
	Answers   map[string][]model.Answer `json:"answers"`
	Marks     map[string][]model.Mark   `json:"marks,omitempty"`
}

// Load reads a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// Server holds the stub exam's state. POSTed marks land in memory and are
// visible to subsequent mark GETs, so a re-run against the same server
// sees its own marks.
type Server struct {
	fixture  *Fixture
	sections map[string]model.Section

	mu    sync.Mutex
	marks map[string]map[string]model.Mark // username -> section key -> mark
}

// NewServer creates a stub exam server from a fixture.
func NewServer(f *Fixture) *Server {
	s := &Server{
		fixture:  f,
		sections: make(map[string]model.Section),
		marks:    make(map[string]map[string]model.Mark),
	}
	for _, q := range f.Questions {
		for _, p := range q.Parts {
			for _, sec := range p.Sections {
				s.sections[model.Key(q.Number, p.Number, sec.Number)] = sec
			}
		}
	}
	for _, student := range f.Students {
		s.marks[student.Username] = make(map[string]model.Mark)
		for _, m := range f.Marks[student.Username] {
			s.marks[student.Username][m.SectionKey()] = m
		}
	}
	return s
}

// Routes registers the exam service's HTTP surface.
func (s *Server) Routes(r chi.Router) {
	r.Get("/students", s.handleStudents)
	r.Get("/questions", s.handleQuestions)
	r.Get("/students/{username}/questions/{question}/answers", s.handleAnswers)
	r.Get("/students/{username}/questions/{question}/marks", s.handleMarks)
	r.Post("/students/{username}/sections/{section}/mark", s.handlePostMark)
}

func (s *Server) handleStudents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.fixture.Students)
}

func (s *Server) handleQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.fixture.Questions)
}

func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request) {
	username, question, ok := s.studentQuestion(w, r)
	if !ok {
		return
	}
	answers := []model.Answer{}
	for _, a := range s.fixture.Answers[username] {
		if a.Question == question {
			answers = append(answers, a)
		}
	}
	writeJSON(w, http.StatusOK, answers)
}

func (s *Server) handleMarks(w http.ResponseWriter, r *http.Request) {
	username, question, ok := s.studentQuestion(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	marks := []model.Mark{}
	for _, m := range s.marks[username] {
		if m.Question == question {
			marks = append(marks, m)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, marks)
}

func (s *Server) handlePostMark(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !s.hasStudent(username) {
		writeDetail(w, http.StatusNotFound, "unknown student "+username)
		return
	}
	key := chi.URLParam(r, "section")
	question, part, section, err := splitSectionKey(key)
	if err != nil {
		writeDetail(w, http.StatusNotFound, err.Error())
		return
	}
	sec, ok := s.sections[key]
	if !ok {
		writeDetail(w, http.StatusNotFound, "unknown section "+key)
		return
	}

	var payload model.MarkResult
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid mark payload")
		return
	}
	if payload.Mark < 0 || payload.Mark > sec.MaxMark {
		writeDetail(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("mark %v out of range for section %s (max %v)", payload.Mark, key, sec.MaxMark))
		return
	}

	s.mu.Lock()
	s.marks[username][key] = model.Mark{
		Question: question,
		Part:     part,
		Section:  section,
		Mark:     payload.Mark,
		Feedback: payload.Feedback,
	}
	s.mu.Unlock()

	slog.Info("fixture mark recorded", "student", username, "section", key, "mark", payload.Mark)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) studentQuestion(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	username := chi.URLParam(r, "username")
	if !s.hasStudent(username) {
		writeDetail(w, http.StatusNotFound, "unknown student "+username)
		return "", 0, false
	}
	question, err := strconv.Atoi(chi.URLParam(r, "question"))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "invalid question number")
		return "", 0, false
	}
	return username, question, true
}

func (s *Server) hasStudent(username string) bool {
	for _, st := range s.fixture.Students {
		if st.Username == username {
			return true
		}
	}
	return false
}

func splitSectionKey(key string) (question, part, section int, err error) {
	tokens := strings.Split(key, "-")
	if len(tokens) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid section key %q", key)
	}
	nums := make([]int, 3)
	for i, tok := range tokens {
		n, err := strconv.Atoi(tok)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid section key %q", key)
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
