package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/tegelkonst/cotizador/internal/domain"
	"github.com/tegelkonst/cotizador/internal/editor"
	"github.com/tegelkonst/cotizador/internal/export"
	"github.com/tegelkonst/cotizador/internal/gateway"
	"github.com/tegelkonst/cotizador/internal/money"
	"github.com/tegelkonst/cotizador/internal/repository"
	"github.com/tegelkonst/cotizador/internal/session"
)

// User-facing messages written into the session error slot when an AI call
// fails. One pair per call site so the banner tells the user which step broke.
const (
	msgQuestionsMalformed = "No se pudieron generar las preguntas. Inténtalo de nuevo."
	msgQuestionsNetwork   = "Error al conectar con la IA para generar preguntas. Por favor, verifica tu conexión o inténtalo más tarde."
	msgContractMalformed  = "No se pudo generar la cotización. Inténtalo de nuevo."
	msgContractNetwork    = "Error al conectar con la IA para generar la cotización. Por favor, verifica tu conexión o inténtalo más tarde."
)

// Handler holds dependencies for HTTP handlers. A nil gateway means no API
// key was configured; AI endpoints answer 503 instead of crashing.
type Handler struct {
	repo    repository.Repository
	gateway *gateway.Gateway
}

// NewHandler creates a new Handler.
func NewHandler(repo repository.Repository, gw *gateway.Gateway) *Handler {
	return &Handler{repo: repo, gateway: gw}
}

// RegisterRoutes registers all API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Sessions
	mux.HandleFunc("GET /sessions", h.ListSessions)
	mux.HandleFunc("POST /sessions", h.CreateSession)
	mux.HandleFunc("GET /sessions/{sessionId}", h.GetSession)
	mux.HandleFunc("DELETE /sessions/{sessionId}", h.DeleteSession)
	mux.HandleFunc("POST /sessions/{sessionId}/reset", h.ResetSession)
	mux.HandleFunc("POST /sessions/{sessionId}/prompt", h.SubmitPrompt)
	mux.HandleFunc("DELETE /sessions/{sessionId}/error", h.DismissError)

	// Questionnaire
	mux.HandleFunc("PUT /sessions/{sessionId}/answers/{questionId}", h.SetAnswer)
	mux.HandleFunc("POST /sessions/{sessionId}/answers:submit", h.SubmitAnswers)
	mux.HandleFunc("POST /sessions/{sessionId}/questionnaire:cancel", h.CancelQuestionnaire)

	// Quotation editing
	mux.HandleFunc("POST /sessions/{sessionId}/services", h.AddService)
	mux.HandleFunc("POST /sessions/{sessionId}/services/{itemId}/edit", h.EditField)
	mux.HandleFunc("POST /sessions/{sessionId}/edit:value", h.UpdateEditValue)
	mux.HandleFunc("POST /sessions/{sessionId}/edit:commit", h.CommitEdit)
	mux.HandleFunc("POST /sessions/{sessionId}/edit:cancel", h.CancelEdit)
	mux.HandleFunc("POST /sessions/{sessionId}/services/{itemId}/delete", h.RequestDelete)
	mux.HandleFunc("POST /sessions/{sessionId}/delete:confirm", h.ConfirmDelete)
	mux.HandleFunc("POST /sessions/{sessionId}/delete:cancel", h.CancelDelete)
	mux.HandleFunc("POST /sessions/{sessionId}/description/edit", h.EditDescription)
	mux.HandleFunc("POST /sessions/{sessionId}/description:value", h.UpdateDescriptionText)
	mux.HandleFunc("POST /sessions/{sessionId}/description:commit", h.CommitDescription)
	mux.HandleFunc("POST /sessions/{sessionId}/description:cancel", h.CancelDescription)

	// Outputs
	mux.HandleFunc("GET /sessions/{sessionId}/export/pdf", h.ExportPDF)
	mux.HandleFunc("GET /sessions/{sessionId}/explanation", h.GetExplanation)
}

// Error response helpers

type errorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err, message string) {
	writeJSON(w, status, errorResponse{Error: err, Message: message})
}

// writeDomainError maps sentinel errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, domain.ErrErrorPending):
		writeError(w, http.StatusConflict, "error_pending", err.Error())
	case errors.Is(err, domain.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "Unexpected error")
	}
}

// Session views

type serviceView struct {
	domain.ServiceItem
	UnitPriceDisplay string `json:"unitPriceDisplay"`
	SubtotalDisplay  string `json:"subtotalDisplay"`
}

type quotationView struct {
	ClientName      string        `json:"clientName"`
	QuoteNumber     string        `json:"quoteNumber"`
	Description     string        `json:"description"`
	Services        []serviceView `json:"services"`
	SubtotalAmount  float64       `json:"subtotalAmount"`
	TotalAmount     float64       `json:"totalAmount"`
	SubtotalDisplay string        `json:"subtotalDisplay"`
	TotalDisplay    string        `json:"totalDisplay"`
	Notes           string        `json:"notes,omitempty"`
}

type sessionView struct {
	ID        string            `json:"id"`
	Step      session.Step      `json:"step"`
	Prompt    string            `json:"prompt"`
	Questions []domain.Question `json:"questions,omitempty"`
	Answers   domain.Answers    `json:"answers,omitempty"`
	Quotation *quotationView    `json:"quotation,omitempty"`
	LastError string            `json:"lastError,omitempty"`
	Busy      bool              `json:"busy"`
}

func newSessionView(s *session.Session) sessionView {
	v := sessionView{
		ID:        s.ID,
		Step:      s.Step,
		Prompt:    s.Prompt,
		Questions: s.Questions,
		LastError: s.LastError,
		Busy:      s.Busy,
	}
	if s.Form != nil && s.Form.Opened {
		v.Answers = s.Form.Answers
	}
	if s.Editor != nil {
		v.Quotation = newQuotationView(s.Editor.Contract)
	}
	return v
}

func newQuotationView(c *domain.ContractData) *quotationView {
	services := make([]serviceView, 0, len(c.Services))
	for _, svc := range c.Services {
		services = append(services, serviceView{
			ServiceItem:      svc,
			UnitPriceDisplay: money.FormatCOP(svc.UnitPrice),
			SubtotalDisplay:  money.FormatCOP(svc.Subtotal),
		})
	}
	return &quotationView{
		ClientName:      c.ClientName,
		QuoteNumber:     c.QuoteNumber,
		Description:     c.Description,
		Services:        services,
		SubtotalAmount:  c.SubtotalAmount,
		TotalAmount:     c.TotalAmount,
		SubtotalDisplay: money.FormatCOP(c.SubtotalAmount),
		TotalDisplay:    money.FormatCOP(c.TotalAmount),
		Notes:           c.Notes,
	}
}

// loadSession fetches the session from the path or writes the error itself.
func (h *Handler) loadSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("sessionId")
	s, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Session not found")
		} else {
			writeError(w, http.StatusInternalServerError, "internal_error", "Failed to load session")
		}
		return nil, false
	}
	return s, true
}

// saveAndRespond persists the session and writes its view. Persistence uses a
// context that survives client disconnect so an abandoned request cannot
// strand the busy flag in the database.
func (h *Handler) saveAndRespond(w http.ResponseWriter, r *http.Request, s *session.Session, status int) {
	if err := h.repo.UpdateSession(context.WithoutCancel(r.Context()), s); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to persist session")
		return
	}
	writeJSON(w, status, newSessionView(s))
}

// Sessions

type listSessionsResponse struct {
	Sessions []sessionView `json:"sessions"`
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.repo.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list sessions")
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, newSessionView(s))
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: views})
}

type createSessionRequest struct {
	Prompt string `json:"prompt"`
}

// CreateSession starts a new flow: it generates the questionnaire for the
// prompt and hands back the session already at the questionnaire step.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "AI backend is not configured")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "prompt is required")
		return
	}

	s := session.New()
	s.Busy = true
	if err := h.repo.CreateSession(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create session")
		return
	}
	h.generateQuestionnaire(w, r, s, req.Prompt, http.StatusCreated)
}

// SubmitPrompt runs question generation for an existing session sitting at
// the prompt step, so a cancelled or reset flow restarts in place instead of
// needing a fresh session.
func (h *Handler) SubmitPrompt(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "AI backend is not configured")
		return
	}
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if err := s.CanMutate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.Step != session.StepPrompt {
		writeError(w, http.StatusConflict, "conflict", "A questionnaire or quotation is already in progress")
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "prompt is required")
		return
	}

	s.Busy = true
	if err := h.repo.UpdateSession(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to persist session")
		return
	}
	h.generateQuestionnaire(w, r, s, req.Prompt, http.StatusOK)
}

// generateQuestionnaire asks the AI backend for the questionnaire and
// advances the session, or parks the failure in the error slot with the
// prompt preserved for a retry.
func (h *Handler) generateQuestionnaire(w http.ResponseWriter, r *http.Request, s *session.Session, prompt string, okStatus int) {
	questions, err := h.gateway.GenerateQuestions(r.Context(), prompt)
	s.Busy = false
	if err != nil {
		log.Printf("session %s: generate questions: %v", s.ID, err)
		s.Prompt = prompt
		s.SetError(aiErrorMessage(err, msgQuestionsMalformed, msgQuestionsNetwork))
		h.saveAndRespond(w, r, s, http.StatusBadGateway)
		return
	}

	if err := s.BeginQuestionnaire(prompt, questions); err != nil {
		writeDomainError(w, err)
		return
	}
	h.saveAndRespond(w, r, s, okStatus)
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(s))
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	if err := h.repo.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetSession clears every slot back to the prompt step. Reset is the only
// operation allowed while an error is pending.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	s.Reset()
	h.saveAndRespond(w, r, s, http.StatusOK)
}

// DismissError clears the shared error slot without retrying anything.
func (h *Handler) DismissError(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	s.ClearError()
	h.saveAndRespond(w, r, s, http.StatusOK)
}

// Questionnaire

type setAnswerRequest struct {
	Value any `json:"value"`
}

func (h *Handler) SetAnswer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if err := s.CanMutate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.Form == nil {
		writeError(w, http.StatusConflict, "conflict", "No questionnaire in progress")
		return
	}

	var req setAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	if err := s.Form.SetAnswer(r.PathValue("questionId"), req.Value); err != nil {
		writeDomainError(w, err)
		return
	}
	h.saveAndRespond(w, r, s, http.StatusOK)
}

// SubmitAnswers closes the questionnaire and asks the AI backend for the
// quotation, advancing to the quotation step on success.
func (h *Handler) SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	if h.gateway == nil {
		writeError(w, http.StatusServiceUnavailable, "not_configured", "AI backend is not configured")
		return
	}
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if err := s.CanMutate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.Form == nil || !s.Form.Opened {
		writeError(w, http.StatusConflict, "conflict", "No questionnaire in progress")
		return
	}

	// Expose the busy flag to concurrent requests for the LLM call duration.
	s.Busy = true
	if err := h.repo.UpdateSession(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to persist session")
		return
	}

	// The form stays open until the contract arrives, so a failed call leaves
	// the answers in place and the submit can be retried after dismissal.
	resp, err := h.gateway.GenerateContract(r.Context(), s.Prompt, s.Form.Answers)
	s.Busy = false
	if err != nil {
		log.Printf("session %s: generate contract: %v", s.ID, err)
		s.SetError(aiErrorMessage(err, msgContractMalformed, msgContractNetwork))
		h.saveAndRespond(w, r, s, http.StatusBadGateway)
		return
	}

	if _, err := s.Form.Submit(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.LoadQuotation(resp); err != nil {
		writeDomainError(w, err)
		return
	}
	h.saveAndRespond(w, r, s, http.StatusOK)
}

func (h *Handler) CancelQuestionnaire(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if err := s.CanMutate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.CancelQuestionnaire(); err != nil {
		writeDomainError(w, err)
		return
	}
	h.saveAndRespond(w, r, s, http.StatusOK)
}

// Quotation editing

// editorOp loads the session, verifies it is at the quotation step and runs
// fn against its editor.
func (h *Handler) editorOp(w http.ResponseWriter, r *http.Request, fn func(*editor.Editor) error) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if err := s.CanMutate(); err != nil {
		writeDomainError(w, err)
		return
	}
	if s.Step != session.StepQuotation || s.Editor == nil {
		writeError(w, http.StatusConflict, "conflict", "No quotation loaded")
		return
	}
	if err := fn(s.Editor); err != nil {
		writeDomainError(w, err)
		return
	}
	h.saveAndRespond(w, r, s, http.StatusOK)
}

func (h *Handler) AddService(w http.ResponseWriter, r *http.Request) {
	h.editorOp(w, r, func(ed *editor.Editor) error {
		ed.AddService()
		return nil
	})
}

type editFieldRequest struct {
	Field    string `json:"field"`
	RawValue string `json:"rawValue"`
}

func (h *Handler) EditField(w http.ResponseWriter, r *http.Request) {
	var req editFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	itemID := r.PathValue("itemId")
	h.editorOp(w, r, func(ed *editor.Editor) error {
		return ed.EditField(itemID, req.Field, req.RawValue)
	})
}

type editValueRequest struct {
	RawValue string `json:"rawValue"`
}

// UpdateEditValue replaces the raw value of the pending field edit, mirroring
// a keystroke in the editing cell.
func (h *Handler) UpdateEditValue(w http.ResponseWriter, r *http.Request) {
	var req editValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	h.editorOp(w, r, func(ed *editor.Editor) error {
		return ed.SetRawValue(req.RawValue)
	})
}

func (h *Handler) CommitEdit(w http.ResponseWriter, r *http.Request) {
	h.editorOp(w, r, func(ed *editor.Editor) error {
		return ed.CommitEdit()
	})
}

func (h *Handler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	h.editorOp(w, r, func(ed *editor.Editor) error {
		ed.CancelEdit()
		return nil
	})
}

func (h *Handler) RequestDelete(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("itemId")
	h.editorOp(w, r, func(ed *editor.Editor) error {
		return ed.RequestDelete(itemID)
	})
}

func (h *Handler) ConfirmDelete(w http.ResponseWriter, r *http.Request) {
	h.editorOp(w, r, func(ed *editor.Editor) error {
		return ed.ConfirmDelete()
	})
}

func (h *Handler) CancelDelete(w http.ResponseWriter, r *http.Request) {
	h.editorOp(w, r, func(ed *editor.Editor) error {
		ed.CancelDelete()
		return nil
	})
}

type editDescriptionRequest struct {
	Text string `json:"text"`
}

func (h *Handler) EditDescription(w http.ResponseWriter, r *http.Request) {
	var req editDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	h.editorOp(w, r, func(ed *editor.Editor) error {
		return ed.EditDescription(req.Text)
	})
}

// UpdateDescriptionText replaces the text of the pending description edit.
func (h *Handler) UpdateDescriptionText(w http.ResponseWriter, r *http.Request) {
	var req editDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "Invalid JSON body")
		return
	}
	h.editorOp(w, r, func(ed *editor.Editor) error {
		return ed.SetDescriptionText(req.Text)
	})
}

func (h *Handler) CommitDescription(w http.ResponseWriter, r *http.Request) {
	h.editorOp(w, r, func(ed *editor.Editor) error {
		return ed.CommitDescription()
	})
}

func (h *Handler) CancelDescription(w http.ResponseWriter, r *http.Request) {
	h.editorOp(w, r, func(ed *editor.Editor) error {
		ed.CancelDescription()
		return nil
	})
}

// Outputs

func (h *Handler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if s.Step != session.StepQuotation || s.Editor == nil {
		writeError(w, http.StatusConflict, "conflict", "No quotation loaded")
		return
	}

	data, err := export.RenderPDF(s.Editor.Contract, time.Now())
	if err != nil {
		log.Printf("session %s: render PDF: %v", s.ID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to render PDF")
		return
	}

	filename := fmt.Sprintf("cotizacion-%s.pdf", s.Editor.Contract.QuoteNumber)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type explanationResponse struct {
	PriceExplanation string `json:"priceExplanation"`
}

func (h *Handler) GetExplanation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	if s.Response == nil {
		writeError(w, http.StatusNotFound, "not_found", "No quotation generated yet")
		return
	}
	writeJSON(w, http.StatusOK, explanationResponse{PriceExplanation: s.Response.PriceExplanation})
}

func aiErrorMessage(err error, malformed, network string) string {
	if errors.Is(err, domain.ErrMalformedResponse) {
		return malformed
	}
	return network
}
