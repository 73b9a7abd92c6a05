// Package session holds the per-session state of the quotation flow and the
// transitions between its three steps.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tegelkonst/cotizador/internal/domain"
	"github.com/tegelkonst/cotizador/internal/editor"
	"github.com/tegelkonst/cotizador/internal/questionnaire"
)

// Step identifies the current position in the linear flow. There is no
// backward transition except a full reset.
type Step int

const (
	StepPrompt        Step = 1
	StepQuestionnaire Step = 2
	StepQuotation     Step = 3
)

// Session is the aggregate of everything one quotation flow accumulates:
// the prompt, the generated questionnaire, the AI response and the
// quotation under edit. One error slot and one busy flag are shared across
// all steps.
type Session struct {
	ID     string `json:"id"`
	Step   Step   `json:"step"`
	Prompt string `json:"prompt"`

	Questions []domain.Question        `json:"questions,omitempty"`
	Form      *questionnaire.Form      `json:"form,omitempty"`
	Response  *domain.ContractResponse `json:"response,omitempty"`
	Editor    *editor.Editor           `json:"editor,omitempty"`

	LastError string `json:"lastError,omitempty"`
	Busy      bool   `json:"busy"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// New creates a fresh session at the prompt step.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Step:      StepPrompt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanMutate reports whether the session accepts a new operation. A pending
// error pre-empts everything until dismissed; a busy session rejects
// concurrent requests.
func (s *Session) CanMutate() error {
	if s.LastError != "" {
		return fmt.Errorf("dismiss the pending error first: %w", domain.ErrErrorPending)
	}
	if s.Busy {
		return fmt.Errorf("an operation is already in flight: %w", domain.ErrBusy)
	}
	return nil
}

// BeginQuestionnaire stores the generated questions, opens a seeded form
// and advances to the questionnaire step.
func (s *Session) BeginQuestionnaire(prompt string, questions []domain.Question) error {
	if s.Step != StepPrompt {
		return fmt.Errorf("questionnaire can only start from the prompt step: %w", domain.ErrConflict)
	}
	s.Prompt = prompt
	s.Questions = questions
	s.Form = questionnaire.New(questions)
	s.Form.Open()
	s.Step = StepQuestionnaire
	s.touch()
	return nil
}

// CancelQuestionnaire abandons the questionnaire and returns to the prompt
// step, keeping the prompt text for re-editing.
func (s *Session) CancelQuestionnaire() error {
	if s.Step != StepQuestionnaire {
		return fmt.Errorf("no questionnaire in progress: %w", domain.ErrConflict)
	}
	if s.Form != nil {
		s.Form.Cancel()
	}
	s.Questions = nil
	s.Form = nil
	s.Step = StepPrompt
	s.touch()
	return nil
}

// LoadQuotation stores the AI response, loads its contract into the editor
// and advances to the quotation step.
func (s *Session) LoadQuotation(resp *domain.ContractResponse) error {
	if s.Step != StepQuestionnaire {
		return fmt.Errorf("quotation can only follow the questionnaire step: %w", domain.ErrConflict)
	}
	ed, err := editor.Load(&resp.Contract)
	if err != nil {
		return err
	}
	s.Response = resp
	s.Editor = ed
	s.Step = StepQuotation
	s.touch()
	return nil
}

// Reset clears every piece of accumulated state back to the prompt step.
func (s *Session) Reset() {
	s.Step = StepPrompt
	s.Prompt = ""
	s.Questions = nil
	s.Form = nil
	s.Response = nil
	s.Editor = nil
	s.LastError = ""
	s.Busy = false
	s.touch()
}

// SetError writes the shared error slot. Further operations are rejected
// until ClearError is called.
func (s *Session) SetError(msg string) {
	s.LastError = msg
	s.touch()
}

// ClearError dismisses the pending error without retrying anything.
func (s *Session) ClearError() {
	s.LastError = ""
	s.touch()
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}
