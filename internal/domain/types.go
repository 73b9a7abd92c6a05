package domain

// QuestionType represents the control type of a generated question.
type QuestionType string

const (
	QuestionTypeText     QuestionType = "text"
	QuestionTypeYesNo    QuestionType = "yesNo"
	QuestionTypeCounter  QuestionType = "counter"
	QuestionTypeDropdown QuestionType = "dropdown"
)

// Question is one entry of the AI-generated questionnaire. Which optional
// fields are meaningful depends on Type: Placeholder for text, Options for
// dropdown, Unit/Min/Max for counter.
type Question struct {
	ID           string       `json:"id"`
	Type         QuestionType `json:"type"`
	Label        string       `json:"label"`
	Placeholder  string       `json:"placeholder,omitempty"`
	Options      []string     `json:"options,omitempty"`
	Unit         string       `json:"unit,omitempty"`
	Min          *float64     `json:"min,omitempty"`
	Max          *float64     `json:"max,omitempty"`
	DefaultValue any          `json:"defaultValue,omitempty"`
}

// Answers maps question id to its answered value: string, bool, float64,
// []string or nil.
type Answers map[string]any

// ServiceItem is one billable line of a quotation. Subtotal is derived; it
// always equals Quantity*UnitPrice after a mutation and is never edited
// directly.
type ServiceItem struct {
	ID        string  `json:"id"`
	Item      string  `json:"item"`
	Unit      string  `json:"unit"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	Subtotal  float64 `json:"subtotal"`
	Reason    string  `json:"reason"`
}

// ContractData is the structured quotation. SubtotalAmount equals the sum of
// the services' subtotals; TotalAmount equals SubtotalAmount+IvaAmount. The
// editable view keeps IvaAmount at zero, so total and subtotal match there.
type ContractData struct {
	ClientName     string        `json:"clientName"`
	QuoteNumber    string        `json:"quoteNumber"`
	Description    string        `json:"description"`
	Services       []ServiceItem `json:"services"`
	SubtotalAmount float64       `json:"subtotalAmount"`
	IvaPercentage  float64       `json:"ivaPercentage"`
	IvaAmount      float64       `json:"ivaAmount"`
	TotalAmount    float64       `json:"totalAmount"`
	Notes          string        `json:"notes"`
}

// ContractResponse is the full model output for a quotation request.
// PriceExplanation is opaque prose and is never parsed further.
type ContractResponse struct {
	Contract         ContractData `json:"contract"`
	PriceExplanation string       `json:"priceExplanation"`
}
