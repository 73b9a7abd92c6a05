// Package gateway turns free-text job descriptions into questionnaires and
// quotations by prompting the AI backend and validating what comes back.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/tegelkonst/cotizador/internal/domain"
	"github.com/tegelkonst/cotizador/internal/llm"
	"github.com/tegelkonst/cotizador/internal/validator"
)

// Gateway owns the prompt templates, the response schemas and the schema
// validator used to gate every AI payload before it enters the application.
type Gateway struct {
	client    llm.Client
	validator *validator.Validator

	questionsPrompt *PromptTemplate
	contractPrompt  *PromptTemplate
	questionsSchema []byte
	contractSchema  []byte

	now func() time.Time
}

// New loads the embedded prompts and schemas and wires the client.
func New(client llm.Client, v *validator.Validator) (*Gateway, error) {
	questionsPrompt, err := LoadPrompt("questions", PromptVersionV1)
	if err != nil {
		return nil, err
	}
	contractPrompt, err := LoadPrompt("contract", PromptVersionV1)
	if err != nil {
		return nil, err
	}
	questionsSchema, err := loadSchema("question_list.json")
	if err != nil {
		return nil, err
	}
	contractSchema, err := loadSchema("contract_response.json")
	if err != nil {
		return nil, err
	}
	return &Gateway{
		client:          client,
		validator:       v,
		questionsPrompt: questionsPrompt,
		contractPrompt:  contractPrompt,
		questionsSchema: questionsSchema,
		contractSchema:  contractSchema,
		now:             time.Now,
	}, nil
}

// GenerateQuestions asks the AI backend for the follow-up questionnaire that
// gathers the details needed to price the described job.
func (g *Gateway) GenerateQuestions(ctx context.Context, prompt string) ([]domain.Question, error) {
	rendered := g.questionsPrompt.Render(map[string]string{
		"PROMPT": prompt,
	})

	resp, err := g.client.Complete(ctx, llm.Request{
		Prompt:         rendered,
		ResponseSchema: json.RawMessage(g.questionsSchema),
	})
	if err != nil {
		return nil, fmt.Errorf("generate questions: %w", err)
	}

	if result := g.validator.ValidateQuestionList([]byte(resp.Content)); !result.Valid {
		return nil, fmt.Errorf("generate questions: %s: %w", summarize(result), domain.ErrMalformedResponse)
	}

	var questions []domain.Question
	if err := json.Unmarshal([]byte(resp.Content), &questions); err != nil {
		return nil, fmt.Errorf("generate questions: parse payload: %w", domain.ErrMalformedResponse)
	}
	return questions, nil
}

// GenerateContract asks the AI backend for a structured quotation plus a
// price explanation, given the original prompt and the questionnaire answers.
func (g *Gateway) GenerateContract(ctx context.Context, prompt string, answers domain.Answers) (*domain.ContractResponse, error) {
	rendered := g.contractPrompt.Render(map[string]string{
		"PROMPT":       prompt,
		"ANSWERS":      formatAnswers(answers),
		"CURRENT_DATE": FormatSpanishDate(g.now()),
	})

	resp, err := g.client.Complete(ctx, llm.Request{
		Prompt:         rendered,
		ResponseSchema: json.RawMessage(g.contractSchema),
	})
	if err != nil {
		return nil, fmt.Errorf("generate contract: %w", err)
	}

	if result := g.validator.ValidateContractResponse([]byte(resp.Content)); !result.Valid {
		return nil, fmt.Errorf("generate contract: %s: %w", summarize(result), domain.ErrMalformedResponse)
	}

	var contract domain.ContractResponse
	if err := json.Unmarshal([]byte(resp.Content), &contract); err != nil {
		return nil, fmt.Errorf("generate contract: parse payload: %w", domain.ErrMalformedResponse)
	}
	return &contract, nil
}

// formatAnswers renders the answer mapping as "key: value" lines in a stable
// order so prompts are reproducible.
func formatAnswers(answers domain.Answers) string {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, answers[k]))
	}
	return strings.Join(lines, "\n")
}

func summarize(result validator.ValidationResult) string {
	if len(result.Errors) == 0 {
		return "schema validation failed"
	}
	first := result.Errors[0]
	return fmt.Sprintf("schema validation failed at %s: %s", first.Path, first.Message)
}

var spanishMonths = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// FormatSpanishDate renders t as a Colombian long-form date in the
// America/Bogota timezone, e.g. "2 de septiembre de 2025".
func FormatSpanishDate(t time.Time) string {
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		loc = time.FixedZone("COT", -5*60*60)
	}
	local := t.In(loc)
	return fmt.Sprintf("%d de %s de %d", local.Day(), spanishMonths[local.Month()-1], local.Year())
}
