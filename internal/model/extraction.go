// Package model contains the struct definitions shared across packages.
package model

import (
	"time"
)

// Status describes the extraction lifecycle.
type Status string

const (
	StatusSubmitting Status = "SUBMITTING"
	StatusExtracting Status = "EXTRACTING"
	StatusExtracted  Status = "EXTRACTED"
	StatusInvalid    Status = "INVALID"
	StatusFailed     Status = "FAILED"
)

// allowedFrom maps a target status to the statuses it may be entered from.
// FAILED is listed as a source so a later queue attempt can still commit.
var allowedFrom = map[Status][]Status{
	StatusExtracting: {StatusSubmitting},
	StatusExtracted:  {StatusSubmitting, StatusExtracting, StatusFailed},
	StatusInvalid:    {StatusSubmitting, StatusExtracting, StatusFailed},
	StatusFailed:     {StatusSubmitting, StatusExtracting, StatusFailed},
}

// AllowedFrom returns the source statuses that may move to target.
func AllowedFrom(target Status) []Status {
	src := allowedFrom[target]
	out := make([]Status, len(src))
	copy(out, src)
	return out
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, s := range allowedFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// Terminal reports whether no pipeline step leaves s.
func (s Status) Terminal() bool {
	return s == StatusExtracted || s == StatusInvalid || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSubmitting, StatusExtracting, StatusExtracted, StatusInvalid, StatusFailed:
		return true
	}
	return false
}

// ReceiptItem is one line of a receipt. Items are only merged by the model
// when both name and cost match.
type ReceiptItem struct {
	Name     string  `json:"name"`
	Quantity int     `json:"qty"`
	Cost     float64 `json:"cost"`
}

// ReceiptData is the validated output of one successful extraction.
type ReceiptData struct {
	Date       string        `json:"date"`
	Currency   string        `json:"currency"`
	VendorName string        `json:"vendorName"`
	Items      []ReceiptItem `json:"items"`
	Tax        float64       `json:"tax"`
	Total      float64       `json:"total"`
}

// Extraction is one uploaded receipt and its current state. Extracted fields
// are nil unless Status is EXTRACTED; FailureReason is nil unless Status is
// INVALID or FAILED.
type Extraction struct {
	ID            string        `json:"id"`
	UserID        string        `json:"userId"`
	Filename      string        `json:"filename"`
	ObjectKey     string        `json:"-"`
	ImageURL      string        `json:"imageUrl"`
	Status        Status        `json:"status"`
	Date          *string       `json:"date"`
	Currency      *string       `json:"currency"`
	VendorName    *string       `json:"vendorName"`
	Items         []ReceiptItem `json:"items"`
	Tax           *float64      `json:"tax"`
	Total         *float64      `json:"total"`
	FailureReason *string       `json:"failureReason"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Apply moves e to status and sets or clears the fields that status owns.
// data is only read for EXTRACTED, reason only for INVALID and FAILED.
func (e *Extraction) Apply(status Status, data *ReceiptData, reason string) {
	e.Status = status
	e.Date, e.Currency, e.VendorName, e.Tax, e.Total = nil, nil, nil, nil, nil
	e.Items = nil
	e.FailureReason = nil
	switch status {
	case StatusExtracted:
		if data == nil {
			return
		}
		date, currency, vendor := data.Date, data.Currency, data.VendorName
		tax, total := data.Tax, data.Total
		e.Date, e.Currency, e.VendorName = &date, &currency, &vendor
		e.Tax, e.Total = &tax, &total
		e.Items = append([]ReceiptItem(nil), data.Items...)
	case StatusInvalid, StatusFailed:
		msg := reason
		e.FailureReason = &msg
	}
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (e *Extraction) Clone() *Extraction {
	if e == nil {
		return nil
	}
	out := *e
	out.Date = clonePtr(e.Date)
	out.Currency = clonePtr(e.Currency)
	out.VendorName = clonePtr(e.VendorName)
	out.Tax = clonePtr(e.Tax)
	out.Total = clonePtr(e.Total)
	out.FailureReason = clonePtr(e.FailureReason)
	if e.Items != nil {
		out.Items = append([]ReceiptItem(nil), e.Items...)
	}
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
