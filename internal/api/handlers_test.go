package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tegelkonst/cotizador/internal/domain"
	"github.com/tegelkonst/cotizador/internal/gateway"
	"github.com/tegelkonst/cotizador/internal/llm"
	"github.com/tegelkonst/cotizador/internal/repository/mock"
	"github.com/tegelkonst/cotizador/internal/session"
	"github.com/tegelkonst/cotizador/internal/validator"
)

const questionsJSON = `[
	{"id": "area", "type": "counter", "label": "¿Cuántos metros cuadrados?", "unit": "m²", "min": 1},
	{"id": "material", "type": "dropdown", "label": "¿Qué material?", "options": ["cerámica", "porcelanato"]}
]`

const contractJSON = `{
	"contract": {
		"clientName": "Juan Pérez",
		"quoteNumber": "COT-2025-001",
		"description": "Remodelación de baño principal.",
		"services": [
			{"item": "Mano de obra - Demolición", "unit": "global", "quantity": 1, "unitPrice": 250000, "subtotal": 250000, "reason": "Preparación esencial."}
		],
		"subtotalAmount": 250000,
		"ivaPercentage": 0,
		"ivaAmount": 0,
		"totalAmount": 250000,
		"notes": "Los precios pueden variar."
	},
	"priceExplanation": "El cálculo se basa en la mano de obra por demolición."
}`

func setupHandler(t *testing.T, client *llm.MockClient) (http.Handler, *mock.Repository) {
	t.Helper()
	repo := mock.New()

	var gw *gateway.Gateway
	if client != nil {
		v, err := validator.New()
		if err != nil {
			t.Fatalf("validator.New: %v", err)
		}
		gw, err = gateway.New(client, v)
		if err != nil {
			t.Fatalf("gateway.New: %v", err)
		}
	}

	handler := NewHandler(repo, gw)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return mux, repo
}

func doJSON(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body == "" {
		reader = bytes.NewBufferString("{}")
	} else {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var view sessionView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode session view: %v", err)
	}
	return view
}

// seedQuotationSession puts a session at the quotation step directly in the
// repository, bypassing the AI round trip.
func seedQuotationSession(t *testing.T, repo *mock.Repository) *session.Session {
	t.Helper()
	s := session.New()
	questions := []domain.Question{
		{ID: "area", Type: domain.QuestionTypeCounter, Label: "¿Cuántos metros cuadrados?"},
	}
	if err := s.BeginQuestionnaire("Remodelar el baño", questions); err != nil {
		t.Fatalf("BeginQuestionnaire: %v", err)
	}
	var resp domain.ContractResponse
	if err := json.Unmarshal([]byte(contractJSON), &resp); err != nil {
		t.Fatalf("Unmarshal contract: %v", err)
	}
	if err := s.LoadQuotation(&resp); err != nil {
		t.Fatalf("LoadQuotation: %v", err)
	}
	if err := repo.CreateSession(context.Background(), s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func TestCreateSession(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid prompt",
			body:       `{"prompt": "Enchapar una cocina de 12 m²"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "empty prompt",
			body:       `{"prompt": ""}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid json",
			body:       `{invalid}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _ := setupHandler(t, llm.NewMockClient(questionsJSON))
			w := doJSON(t, mux, "POST", "/sessions", tt.body)

			if w.Code != tt.wantStatus {
				t.Errorf("CreateSession() status = %d, want %d, body = %s", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantStatus == http.StatusCreated {
				view := decodeView(t, w)
				if view.Step != session.StepQuestionnaire {
					t.Errorf("step = %d, want %d", view.Step, session.StepQuestionnaire)
				}
				if len(view.Questions) != 2 {
					t.Errorf("expected 2 questions, got %d", len(view.Questions))
				}
				if view.Answers["material"] != "cerámica" {
					t.Errorf("answers should be seeded, material = %v", view.Answers["material"])
				}
			}
		})
	}
}

func TestCreateSessionWithoutGateway(t *testing.T) {
	mux, _ := setupHandler(t, nil)

	w := doJSON(t, mux, "POST", "/sessions", `{"prompt": "algo"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}

func TestCreateSessionAIFailure(t *testing.T) {
	mux, _ := setupHandler(t, &llm.MockClient{Error: llm.ErrRetryExhausted})

	w := doJSON(t, mux, "POST", "/sessions", `{"prompt": "algo"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	view := decodeView(t, w)
	if view.LastError == "" {
		t.Error("session should carry the error message")
	}
	if view.Step != session.StepPrompt {
		t.Errorf("failed generation should stay at step 1, got %d", view.Step)
	}
}

func TestQuestionnaireFlow(t *testing.T) {
	mock := llm.NewMockClient(questionsJSON)
	mux, _ := setupHandler(t, mock)

	w := doJSON(t, mux, "POST", "/sessions", `{"prompt": "Enchapar la cocina"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("CreateSession status = %d, body = %s", w.Code, w.Body.String())
	}
	id := decodeView(t, w).ID

	// Set one answer
	w = doJSON(t, mux, "PUT", "/sessions/"+id+"/answers/area", `{"value": 25}`)
	if w.Code != http.StatusOK {
		t.Fatalf("SetAnswer status = %d, body = %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)
	if view.Answers["area"] != float64(25) {
		t.Errorf("area = %v, want 25", view.Answers["area"])
	}

	// Unknown question
	w = doJSON(t, mux, "PUT", "/sessions/"+id+"/answers/nope", `{"value": 1}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("SetAnswer unknown question status = %d, want 404", w.Code)
	}

	// Submit: the mock now returns the contract payload
	mock.Response = contractJSON
	w = doJSON(t, mux, "POST", "/sessions/"+id+"/answers:submit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("SubmitAnswers status = %d, body = %s", w.Code, w.Body.String())
	}
	view = decodeView(t, w)
	if view.Step != session.StepQuotation {
		t.Errorf("step = %d, want %d", view.Step, session.StepQuotation)
	}
	if view.Quotation == nil {
		t.Fatal("view should carry the quotation")
	}
	if view.Quotation.TotalDisplay != "$ 250.000" {
		t.Errorf("totalDisplay = %q, want %q", view.Quotation.TotalDisplay, "$ 250.000")
	}
	if view.Quotation.Services[0].ID == "" {
		t.Error("services should carry minted ids")
	}

	// The submitted answers reach the prompt
	if !strings.Contains(mock.LastRequest.Prompt, "area: 25") {
		t.Error("contract prompt should carry the submitted answers")
	}
}

func TestFailedSubmitCanBeRetried(t *testing.T) {
	mock := llm.NewMockClient(questionsJSON)
	mux, _ := setupHandler(t, mock)

	w := doJSON(t, mux, "POST", "/sessions", `{"prompt": "Enchapar la cocina"}`)
	id := decodeView(t, w).ID
	doJSON(t, mux, "PUT", "/sessions/"+id+"/answers/area", `{"value": 25}`)

	// First submit fails on a malformed oracle payload
	mock.Response = `{"sin": "contrato"}`
	w = doJSON(t, mux, "POST", "/sessions/"+id+"/answers:submit", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("SubmitAnswers status = %d, want 502", w.Code)
	}
	view := decodeView(t, w)
	if view.Step != session.StepQuestionnaire {
		t.Errorf("failed submit should keep the questionnaire, step = %d", view.Step)
	}
	if view.Answers["area"] != float64(25) {
		t.Errorf("answers should survive the failure, area = %v", view.Answers["area"])
	}

	// Dismiss the error and submit again
	w = doJSON(t, mux, "DELETE", "/sessions/"+id+"/error", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DismissError status = %d", w.Code)
	}
	mock.Response = contractJSON
	w = doJSON(t, mux, "POST", "/sessions/"+id+"/answers:submit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("retried SubmitAnswers status = %d, body = %s", w.Code, w.Body.String())
	}
	view = decodeView(t, w)
	if view.Step != session.StepQuotation {
		t.Errorf("step = %d, want %d", view.Step, session.StepQuotation)
	}
	if !strings.Contains(mock.LastRequest.Prompt, "area: 25") {
		t.Error("the retried submit should carry the preserved answers")
	}
}

func TestSubmitPromptRestartsFlow(t *testing.T) {
	mock := llm.NewMockClient(questionsJSON)
	mux, _ := setupHandler(t, mock)

	w := doJSON(t, mux, "POST", "/sessions", `{"prompt": "Enchapar la cocina"}`)
	id := decodeView(t, w).ID

	// Abandon the questionnaire, then drive the same session forward again
	w = doJSON(t, mux, "POST", "/sessions/"+id+"/questionnaire:cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("CancelQuestionnaire status = %d", w.Code)
	}
	w = doJSON(t, mux, "POST", "/sessions/"+id+"/prompt", `{"prompt": "Enchapar el baño"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("SubmitPrompt status = %d, body = %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)
	if view.Step != session.StepQuestionnaire {
		t.Errorf("step = %d, want %d", view.Step, session.StepQuestionnaire)
	}
	if view.Prompt != "Enchapar el baño" {
		t.Errorf("prompt = %q, want the new prompt", view.Prompt)
	}
	if len(view.Questions) != 2 {
		t.Errorf("expected 2 questions, got %d", len(view.Questions))
	}

	// A session already past the prompt step refuses a second prompt
	w = doJSON(t, mux, "POST", "/sessions/"+id+"/prompt", `{"prompt": "Otra cosa"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("SubmitPrompt past step 1 status = %d, want 409", w.Code)
	}
}

func TestCancelQuestionnaire(t *testing.T) {
	mux, _ := setupHandler(t, llm.NewMockClient(questionsJSON))

	w := doJSON(t, mux, "POST", "/sessions", `{"prompt": "Enchapar la cocina"}`)
	id := decodeView(t, w).ID

	w = doJSON(t, mux, "POST", "/sessions/"+id+"/questionnaire:cancel", "")
	if w.Code != http.StatusOK {
		t.Fatalf("CancelQuestionnaire status = %d, body = %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)
	if view.Step != session.StepPrompt {
		t.Errorf("step = %d, want %d", view.Step, session.StepPrompt)
	}
	if view.Prompt != "Enchapar la cocina" {
		t.Errorf("prompt should be kept, got %q", view.Prompt)
	}
}

func TestEditorOperations(t *testing.T) {
	mux, repo := setupHandler(t, nil)
	s := seedQuotationSession(t, repo)
	itemID := s.Editor.Contract.Services[0].ID

	// Updating a value with no edit pending is refused
	w := doJSON(t, mux, "POST", "/sessions/"+s.ID+"/edit:value", `{"rawValue": "9"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("UpdateEditValue without edit status = %d, want 409", w.Code)
	}

	// Edit quantity, retype the value, commit
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/services/"+itemID+"/edit", `{"field": "quantity", "rawValue": "2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("EditField status = %d, body = %s", w.Code, w.Body.String())
	}
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/edit:value", `{"rawValue": "3"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("UpdateEditValue status = %d, body = %s", w.Code, w.Body.String())
	}
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/edit:commit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("CommitEdit status = %d, body = %s", w.Code, w.Body.String())
	}
	view := decodeView(t, w)
	if view.Quotation.Services[0].Quantity != 3 {
		t.Errorf("quantity = %v, want 3", view.Quotation.Services[0].Quantity)
	}
	if view.Quotation.SubtotalDisplay != "$ 750.000" {
		t.Errorf("subtotalDisplay = %q, want %q", view.Quotation.SubtotalDisplay, "$ 750.000")
	}

	// Non-numeric input is rejected
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/services/"+itemID+"/edit", `{"field": "unitPrice", "rawValue": "abc"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("EditField status = %d", w.Code)
	}
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/edit:commit", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("CommitEdit with bad input status = %d, want 400", w.Code)
	}
	doJSON(t, mux, "POST", "/sessions/"+s.ID+"/edit:cancel", "")

	// Add a service
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/services", "")
	if w.Code != http.StatusOK {
		t.Fatalf("AddService status = %d", w.Code)
	}
	view = decodeView(t, w)
	if len(view.Quotation.Services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(view.Quotation.Services))
	}
	if view.Quotation.Services[1].Item != "Nuevo servicio" {
		t.Errorf("placeholder item = %q", view.Quotation.Services[1].Item)
	}

	// Two-phase delete of the new service
	newID := view.Quotation.Services[1].ID
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/services/"+newID+"/delete", "")
	if w.Code != http.StatusOK {
		t.Fatalf("RequestDelete status = %d", w.Code)
	}
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/delete:confirm", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ConfirmDelete status = %d", w.Code)
	}
	view = decodeView(t, w)
	if len(view.Quotation.Services) != 1 {
		t.Errorf("expected 1 service after delete, got %d", len(view.Quotation.Services))
	}

	// Description edit: open, retype, commit
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/description/edit", `{"text": "Borrador"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("EditDescription status = %d", w.Code)
	}
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/description:value", `{"text": "Texto nuevo"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("UpdateDescriptionText status = %d", w.Code)
	}
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/description:commit", "")
	if w.Code != http.StatusOK {
		t.Fatalf("CommitDescription status = %d", w.Code)
	}
	view = decodeView(t, w)
	if view.Quotation.Description != "Texto nuevo" {
		t.Errorf("description = %q", view.Quotation.Description)
	}
}

func TestEditorOpsRequireQuotationStep(t *testing.T) {
	mux, repo := setupHandler(t, nil)
	s := session.New()
	repo.CreateSession(context.Background(), s)

	w := doJSON(t, mux, "POST", "/sessions/"+s.ID+"/services", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestErrorSlotBlocksMutations(t *testing.T) {
	mux, repo := setupHandler(t, nil)
	s := seedQuotationSession(t, repo)
	s.SetError("fallo anterior")

	w := doJSON(t, mux, "POST", "/sessions/"+s.ID+"/services", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body = %s", w.Code, w.Body.String())
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error != "error_pending" {
		t.Errorf("error = %q, want error_pending", resp.Error)
	}

	// Dismissing the error unblocks the session
	w = doJSON(t, mux, "DELETE", "/sessions/"+s.ID+"/error", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DismissError status = %d", w.Code)
	}
	w = doJSON(t, mux, "POST", "/sessions/"+s.ID+"/services", "")
	if w.Code != http.StatusOK {
		t.Errorf("status after dismissal = %d, want 200", w.Code)
	}
}

func TestBusySessionRejectsOperations(t *testing.T) {
	mux, repo := setupHandler(t, nil)
	s := seedQuotationSession(t, repo)
	s.Busy = true

	w := doJSON(t, mux, "POST", "/sessions/"+s.ID+"/services", "")
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestResetSession(t *testing.T) {
	mux, repo := setupHandler(t, nil)
	s := seedQuotationSession(t, repo)
	s.SetError("fallo")

	w := doJSON(t, mux, "POST", "/sessions/"+s.ID+"/reset", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ResetSession status = %d", w.Code)
	}
	view := decodeView(t, w)
	if view.Step != session.StepPrompt {
		t.Errorf("step = %d, want %d", view.Step, session.StepPrompt)
	}
	if view.Prompt != "" || view.Questions != nil || view.Quotation != nil || view.LastError != "" {
		t.Errorf("reset should clear every slot: %+v", view)
	}
}

func TestExportPDF(t *testing.T) {
	mux, repo := setupHandler(t, nil)
	s := seedQuotationSession(t, repo)

	req := httptest.NewRequest("GET", "/sessions/"+s.ID+"/export/pdf", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("ExportPDF status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "cotizacion-COT-2025-001.pdf") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if body := w.Body.Bytes(); len(body) < 5 || string(body[:5]) != "%PDF-" {
		t.Error("body should be a PDF document")
	}
}

func TestExportPDFWithoutQuotation(t *testing.T) {
	mux, repo := setupHandler(t, nil)
	s := session.New()
	repo.CreateSession(context.Background(), s)

	req := httptest.NewRequest("GET", "/sessions/"+s.ID+"/export/pdf", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestGetExplanation(t *testing.T) {
	mux, repo := setupHandler(t, nil)
	s := seedQuotationSession(t, repo)

	req := httptest.NewRequest("GET", "/sessions/"+s.ID+"/explanation", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GetExplanation status = %d", w.Code)
	}
	var resp explanationResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(resp.PriceExplanation, "demolición") {
		t.Errorf("priceExplanation = %q", resp.PriceExplanation)
	}
}

func TestDeleteSession(t *testing.T) {
	mux, repo := setupHandler(t, nil)
	s := session.New()
	repo.CreateSession(context.Background(), s)

	w := doJSON(t, mux, "DELETE", "/sessions/"+s.ID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("DeleteSession status = %d, want 204", w.Code)
	}

	req := httptest.NewRequest("GET", "/sessions/"+s.ID, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GetSession after delete status = %d, want 404", rec.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	mux, _ := setupHandler(t, nil)

	req := httptest.NewRequest("GET", "/sessions/nonexistent", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
