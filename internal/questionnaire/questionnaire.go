// Package questionnaire tracks answer state for one generated questionnaire.
package questionnaire

import (
	"fmt"

	"github.com/tegelkonst/cotizador/internal/domain"
)

// Form is a two-state machine: closed (no answers held) or open (one answer
// entry per question). Opening seeds defaults; submit hands the answers to
// the caller and closed discards them.
type Form struct {
	Questions []domain.Question `json:"questions"`
	Answers   domain.Answers    `json:"answers,omitempty"`
	Opened    bool              `json:"opened"`
}

// New creates a closed form over the given questions.
func New(questions []domain.Question) *Form {
	return &Form{Questions: questions}
}

// Open transitions closed->open, seeding one answer per question: the
// explicit default when present, otherwise a type-appropriate zero value.
// Reopening an open form reseeds from scratch.
func (f *Form) Open() {
	answers := make(domain.Answers, len(f.Questions))
	for _, q := range f.Questions {
		answers[q.ID] = seedValue(q)
	}
	f.Answers = answers
	f.Opened = true
}

func seedValue(q domain.Question) any {
	if q.DefaultValue != nil {
		return q.DefaultValue
	}
	switch q.Type {
	case domain.QuestionTypeText:
		return ""
	case domain.QuestionTypeYesNo:
		return false
	case domain.QuestionTypeCounter:
		if q.Min != nil {
			return *q.Min
		}
		return float64(0)
	case domain.QuestionTypeDropdown:
		if len(q.Options) > 0 {
			return q.Options[0]
		}
		// A dropdown without options has no valid default.
		return nil
	default:
		return nil
	}
}

// SetAnswer updates exactly one key of the answers mapping, leaving the rest
// untouched. No validation beyond the question existing is performed.
func (f *Form) SetAnswer(questionID string, value any) error {
	if !f.Opened {
		return fmt.Errorf("questionnaire not open: %w", domain.ErrConflict)
	}
	if _, ok := f.Answers[questionID]; !ok {
		return fmt.Errorf("question %q: %w", questionID, domain.ErrNotFound)
	}
	f.Answers[questionID] = value
	return nil
}

// Submit hands the full answer set to the caller atomically and closes the
// form. Empty answers are accepted; there is no required-field validation.
func (f *Form) Submit() (domain.Answers, error) {
	if !f.Opened {
		return nil, fmt.Errorf("questionnaire not open: %w", domain.ErrConflict)
	}
	answers := f.Answers
	f.Answers = nil
	f.Opened = false
	return answers, nil
}

// Cancel transitions open->closed, discarding the held answers.
func (f *Form) Cancel() {
	f.Answers = nil
	f.Opened = false
}
