/*
dto.go - Request/response shapes for the HTTP API

PURPOSE:
  JSON-facing structs, separate from domain types. Amounts travel as
  strings and are parsed with decimal to keep floats out of money paths;
  instants travel as RFC 3339.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rukun/jimpitan-engine/schedule"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateResidentRequest struct {
	Name  string `json:"name"`
	House string `json:"house,omitempty"`
}

type AdjustCreditRequest struct {
	CreditBalance string `json:"creditBalance"`
}

type CreateTimelineRequest struct {
	Type             string `json:"type"`
	Duration         int    `json:"duration"`
	StartDate        string `json:"startDate"` // RFC 3339
	TotalAmount      string `json:"totalAmount"`
	Holidays         []int  `json:"holidays,omitempty"`
	PreservePayments bool   `json:"preservePayments,omitempty"`
}

func (r CreateTimelineRequest) Definition() (schedule.Definition, error) {
	start, err := time.Parse(time.RFC3339, r.StartDate)
	if err != nil {
		return schedule.Definition{}, err
	}
	total, err := decimal.NewFromString(r.TotalAmount)
	if err != nil {
		return schedule.Definition{}, err
	}
	return schedule.Definition{
		Unit:        schedule.ScheduleUnit(r.Type),
		Duration:    r.Duration,
		StartDate:   start,
		TotalAmount: total,
		Holidays:    r.Holidays,
	}, nil
}

type HolidaysRequest struct {
	Holidays []int `json:"holidays"`
}

type SimulationRequest struct {
	Date string `json:"date"` // RFC 3339
}

type SettleRequest struct {
	ResidentID string `json:"residentId"`
	Amount     string `json:"amount"`
	Method     string `json:"method,omitempty"`
}

type AllocateRequest struct {
	Amount string `json:"amount"`
	Method string `json:"method,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RefreshEnvelope wraps a cache-gated read with its refresh outcome.
type RefreshEnvelope struct {
	Outcome string `json:"outcome"`
	Data    any    `json:"data,omitempty"`
}

type CountResponse struct {
	Count int `json:"count"`
}
