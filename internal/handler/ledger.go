package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kompite/arena/internal/ledger"
)

// LedgerHandler serves the audit surface: chain verification, settlement
// lookups and the treasury summary.
type LedgerHandler struct {
	engine *ledger.Engine
}

// NewLedgerHandler creates the ledger audit handler.
func NewLedgerHandler(engine *ledger.Engine) *LedgerHandler {
	return &LedgerHandler{engine: engine}
}

// Verify walks every account chain and settlement entry and reports
// violations.
func (h *LedgerHandler) Verify(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.VerifyLedger(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusConflict
	}
	RespondJSON(w, status, report)
}

// GetSettlement returns one settlement entry by its ledger id.
func (h *LedgerHandler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	entry, err := h.engine.GetSettlement(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}

// Treasury returns the accumulated rake and its drift against committed
// settlements.
func (h *LedgerHandler) Treasury(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.Treasury(r.Context())
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, summary)
}
