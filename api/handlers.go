/*
handlers.go - HTTP handlers for the dues engine

PURPOSE:
  Exposes the dues service via REST. Handles JSON serialization and
  maps the error taxonomy onto HTTP status codes; all domain logic stays
  in the dues package.

ENDPOINTS:
  Residents:
    GET    /api/residents                     List residents
    POST   /api/residents                     Create resident
    GET    /api/residents/{id}                Resident profile
    GET    /api/residents/{id}/ledger         Cache-gated ledger view
    POST   /api/residents/{id}/allocate       Auto-allocate a tendered amount
    PUT    /api/residents/{id}/credit         Admin credit override

  Ledger:
    GET    /api/ledger/aggregate              Cache-gated aggregate view

  Timelines:
    POST   /api/timelines                     Create/replace active timeline
    GET    /api/timelines/active              Active timeline
    PUT    /api/timelines/{id}                Rebuild from new definition
    PUT    /api/timelines/{id}/holidays       Re-split with a new holiday set
    POST   /api/timelines/{id}/simulation     Set simulated clock
    DELETE /api/timelines/{id}/simulation     Back to wall clock
    POST   /api/timelines/{id}/settle/{periodKey}  Settle one period
    POST   /api/timelines/{id}/reset          Delete all payment records

  Admin:
    POST   /api/admin/recompute               Bulk status recompute

ERROR MAPPING:
  400 invalid input, 404 missing document/period, 503 store unavailable,
  500 everything else. Throttled and in-progress refreshes are not
  errors; they come back as the envelope outcome.

SEE ALSO:
  - dto.go: Request/response shapes
  - router.go: Route wiring and middleware
*/
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/rukun/jimpitan-engine/dues"
	"github.com/rukun/jimpitan-engine/ledger"
)

// =============================================================================
// HANDLER
// =============================================================================

// Handler holds the service dependency for all HTTP handlers.
type Handler struct {
	Service *dues.Service
}

func NewHandler(service *dues.Service) *Handler {
	return &Handler{Service: service}
}

// =============================================================================
// RESIDENT HANDLERS
// =============================================================================

func (h *Handler) ListResidents(w http.ResponseWriter, r *http.Request) {
	residents, err := h.Service.ListResidents(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list residents", err)
		return
	}
	writeJSON(w, http.StatusOK, residents)
}

func (h *Handler) CreateResident(w http.ResponseWriter, r *http.Request) {
	var req CreateResidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	resident, err := h.Service.CreateResident(r.Context(), req.Name, req.House)
	if err != nil {
		writeDomainError(w, "Failed to create resident", err)
		return
	}
	writeJSON(w, http.StatusCreated, resident)
}

func (h *Handler) GetResident(w http.ResponseWriter, r *http.Request) {
	resident, err := h.Service.GetResident(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Failed to get resident", err)
		return
	}
	writeJSON(w, http.StatusOK, resident)
}

func (h *Handler) AdjustCredit(w http.ResponseWriter, r *http.Request) {
	var req AdjustCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	balance, err := decimal.NewFromString(req.CreditBalance)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid creditBalance", err)
		return
	}
	if err := h.Service.AdjustCredit(r.Context(), chi.URLParam(r, "id"), balance); err != nil {
		writeDomainError(w, "Failed to adjust credit", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	view, outcome, err := h.Service.RefreshLedger(r.Context(), chi.URLParam(r, "id"), force)
	if err != nil {
		writeDomainError(w, "Failed to load ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshEnvelope{Outcome: outcome.String(), Data: view})
}

func (h *Handler) GetAggregateLedger(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	view, outcome, err := h.Service.RefreshAggregate(r.Context(), force)
	if err != nil {
		writeDomainError(w, "Failed to load aggregate ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshEnvelope{Outcome: outcome.String(), Data: view})
}

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	result, err := h.Service.AutoAllocate(r.Context(), chi.URLParam(r, "id"), amount, ledger.Method(req.Method))
	if err != nil {
		writeDomainError(w, "Allocation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// TIMELINE HANDLERS
// =============================================================================

func (h *Handler) CreateTimeline(w http.ResponseWriter, r *http.Request) {
	var req CreateTimelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	def, err := req.Definition()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid timeline definition", err)
		return
	}
	t, err := h.Service.CreateTimeline(r.Context(), def, req.PreservePayments)
	if err != nil {
		writeDomainError(w, "Failed to create timeline", err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) GetActiveTimeline(w http.ResponseWriter, r *http.Request) {
	t, err := h.Service.ActiveTimeline(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to load active timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) UpdateTimeline(w http.ResponseWriter, r *http.Request) {
	var req CreateTimelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	def, err := req.Definition()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid timeline definition", err)
		return
	}
	t, err := h.Service.UpdateTimeline(r.Context(), chi.URLParam(r, "id"), def)
	if err != nil {
		writeDomainError(w, "Failed to update timeline", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) SetHolidays(w http.ResponseWriter, r *http.Request) {
	var req HolidaysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	t, err := h.Service.SetHolidays(r.Context(), chi.URLParam(r, "id"), req.Holidays)
	if err != nil {
		writeDomainError(w, "Failed to set holidays", err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) SetSimulation(w http.ResponseWriter, r *http.Request) {
	var req SimulationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	at, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use RFC 3339)", err)
		return
	}
	if err := h.Service.SetSimulationDate(r.Context(), chi.URLParam(r, "id"), at); err != nil {
		writeDomainError(w, "Failed to set simulation date", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearSimulation(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.ClearSimulationDate(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, "Failed to clear simulation date", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SettlePeriod(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	result, err := h.Service.SettlePeriod(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "periodKey"),
		req.ResidentID, amount, ledger.Method(req.Method))
	if err != nil {
		writeDomainError(w, "Settlement failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ResetPayments(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.ResetPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Reset failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) RecomputeStatuses(w http.ResponseWriter, r *http.Request) {
	n, err := h.Service.RecomputeStatuses(r.Context())
	if err != nil {
		writeDomainError(w, "Recompute failed", err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the dues error taxonomy to HTTP status codes.
func writeDomainError(w http.ResponseWriter, msg string, err error) {
	switch {
	case dues.IsClientError(err):
		writeError(w, http.StatusBadRequest, msg, err)
	case dues.IsNotFound(err):
		writeError(w, http.StatusNotFound, msg, err)
	case dues.IsUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, msg, err)
	default:
		writeError(w, http.StatusInternalServerError, msg, err)
	}
}
