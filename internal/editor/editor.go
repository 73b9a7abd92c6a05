// Package editor maintains the authoritative editable copy of a quotation
// and keeps its derived totals consistent across every mutation.
package editor

import (
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/tegelkonst/cotizador/internal/domain"
)

// Editable fields of a service line.
const (
	FieldItem      = "item"
	FieldQuantity  = "quantity"
	FieldUnitPrice = "unitPrice"
)

// editCursor scopes an in-progress edit to exactly one (item, field) pair.
type editCursor struct {
	ItemID   string `json:"itemId"`
	Field    string `json:"field"`
	RawValue string `json:"rawValue"`
}

type deleteRequest struct {
	ItemID string `json:"itemId"`
}

type descriptionEdit struct {
	Text string `json:"text"`
}

// Editor holds one quotation under edit. At most one field edit, one delete
// confirmation and one description edit may be pending at a time.
type Editor struct {
	Contract *domain.ContractData `json:"contract"`

	Cursor      *editCursor      `json:"cursor,omitempty"`
	PendingDel  *deleteRequest   `json:"pendingDelete,omitempty"`
	DescriptEd  *descriptionEdit `json:"descriptionEdit,omitempty"`
}

// Load clones the contract into a fresh editor, minting a unique id for any
// service line that lacks one. This is the only point where external data is
// assigned ids.
func Load(contract *domain.ContractData) (*Editor, error) {
	if contract == nil {
		return nil, fmt.Errorf("contract is nil: %w", domain.ErrInvalidInput)
	}
	clone := *contract
	clone.Services = make([]domain.ServiceItem, len(contract.Services))
	copy(clone.Services, contract.Services)
	for i := range clone.Services {
		if clone.Services[i].ID == "" {
			clone.Services[i].ID = uuid.NewString()
		}
	}
	ed := &Editor{Contract: &clone}
	ed.recalculate()
	return ed, nil
}

// placeholderService is the deterministic line inserted by AddService and by
// ConfirmDelete when the list would otherwise empty.
func placeholderService() domain.ServiceItem {
	return domain.ServiceItem{
		ID:        uuid.NewString(),
		Item:      "Nuevo servicio",
		Quantity:  1,
		Unit:      "unidad",
		UnitPrice: 0,
		Subtotal:  0,
	}
}

// EditField begins editing one field of one service line. Only a single
// field across the whole quotation may be in edit state at a time.
func (e *Editor) EditField(itemID, field, rawValue string) error {
	switch field {
	case FieldItem, FieldQuantity, FieldUnitPrice:
	default:
		return fmt.Errorf("unknown field %q: %w", field, domain.ErrInvalidInput)
	}
	if e.Cursor != nil {
		return fmt.Errorf("edit already in progress: %w", domain.ErrConflict)
	}
	if e.findService(itemID) < 0 {
		return fmt.Errorf("service %q: %w", itemID, domain.ErrNotFound)
	}
	e.Cursor = &editCursor{ItemID: itemID, Field: field, RawValue: rawValue}
	return nil
}

// SetRawValue replaces the pending edit's raw value without committing it.
func (e *Editor) SetRawValue(rawValue string) error {
	if e.Cursor == nil {
		return fmt.Errorf("no edit in progress: %w", domain.ErrConflict)
	}
	e.Cursor.RawValue = rawValue
	return nil
}

// CommitEdit parses the pending raw value, writes it into the matching
// service, recomputes that line's subtotal and the quotation totals, then
// clears the edit state. Negative numbers are accepted; NaN and infinities
// are rejected.
func (e *Editor) CommitEdit() error {
	if e.Cursor == nil {
		return fmt.Errorf("no edit in progress: %w", domain.ErrConflict)
	}
	idx := e.findService(e.Cursor.ItemID)
	if idx < 0 {
		itemID := e.Cursor.ItemID
		e.Cursor = nil
		return fmt.Errorf("service %q: %w", itemID, domain.ErrNotFound)
	}
	svc := &e.Contract.Services[idx]
	switch e.Cursor.Field {
	case FieldItem:
		svc.Item = e.Cursor.RawValue
	case FieldQuantity, FieldUnitPrice:
		v, err := strconv.ParseFloat(e.Cursor.RawValue, 64)
		if err != nil {
			return fmt.Errorf("parse %q: %w", e.Cursor.RawValue, domain.ErrInvalidInput)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite value %q: %w", e.Cursor.RawValue, domain.ErrInvalidInput)
		}
		if e.Cursor.Field == FieldQuantity {
			svc.Quantity = v
		} else {
			svc.UnitPrice = v
		}
	}
	e.Cursor = nil
	e.recalculate()
	return nil
}

// CancelEdit discards the pending raw value and leaves the quotation unchanged.
func (e *Editor) CancelEdit() {
	e.Cursor = nil
}

// AddService appends a placeholder line and recomputes totals. It returns the
// new line's id so the caller can focus it.
func (e *Editor) AddService() string {
	svc := placeholderService()
	e.Contract.Services = append(e.Contract.Services, svc)
	e.recalculate()
	return svc.ID
}

// RequestDelete marks one line for deletion pending explicit confirmation.
func (e *Editor) RequestDelete(itemID string) error {
	if e.PendingDel != nil {
		return fmt.Errorf("delete already pending: %w", domain.ErrConflict)
	}
	if e.findService(itemID) < 0 {
		return fmt.Errorf("service %q: %w", itemID, domain.ErrNotFound)
	}
	e.PendingDel = &deleteRequest{ItemID: itemID}
	return nil
}

// ConfirmDelete removes the marked line and recomputes totals. If removal
// would leave the list empty, one placeholder line is reinserted so the
// quotation always has at least one service.
func (e *Editor) ConfirmDelete() error {
	if e.PendingDel == nil {
		return fmt.Errorf("no delete pending: %w", domain.ErrConflict)
	}
	idx := e.findService(e.PendingDel.ItemID)
	e.PendingDel = nil
	if idx < 0 {
		return fmt.Errorf("service no longer present: %w", domain.ErrNotFound)
	}
	e.Contract.Services = append(e.Contract.Services[:idx], e.Contract.Services[idx+1:]...)
	if len(e.Contract.Services) == 0 {
		e.Contract.Services = append(e.Contract.Services, placeholderService())
	}
	e.recalculate()
	return nil
}

// CancelDelete abandons the pending deletion.
func (e *Editor) CancelDelete() {
	e.PendingDel = nil
}

// EditDescription begins a single-field edit of the free-text description.
func (e *Editor) EditDescription(text string) error {
	if e.DescriptEd != nil {
		return fmt.Errorf("description edit already in progress: %w", domain.ErrConflict)
	}
	e.DescriptEd = &descriptionEdit{Text: text}
	return nil
}

// SetDescriptionText replaces the pending description text.
func (e *Editor) SetDescriptionText(text string) error {
	if e.DescriptEd == nil {
		return fmt.Errorf("no description edit in progress: %w", domain.ErrConflict)
	}
	e.DescriptEd.Text = text
	return nil
}

// CommitDescription writes the pending text into the contract. No totals are
// recomputed; description changes have no monetary effect.
func (e *Editor) CommitDescription() error {
	if e.DescriptEd == nil {
		return fmt.Errorf("no description edit in progress: %w", domain.ErrConflict)
	}
	e.Contract.Description = e.DescriptEd.Text
	e.DescriptEd = nil
	return nil
}

// CancelDescription discards the pending text.
func (e *Editor) CancelDescription() {
	e.DescriptEd = nil
}

func (e *Editor) findService(itemID string) int {
	for i, svc := range e.Contract.Services {
		if svc.ID == itemID {
			return i
		}
	}
	return -1
}

// recalculate enforces the derived-total invariant after every mutation:
// each line's subtotal is quantity*unitPrice, subtotalAmount is the sum over
// all lines, and totalAmount equals subtotalAmount. IVA is not applied in
// the editable view even though the model carries the fields.
func (e *Editor) recalculate() {
	var subtotal float64
	for i := range e.Contract.Services {
		svc := &e.Contract.Services[i]
		svc.Subtotal = svc.Quantity * svc.UnitPrice
		subtotal += svc.Subtotal
	}
	e.Contract.SubtotalAmount = subtotal
	e.Contract.TotalAmount = subtotal
}
