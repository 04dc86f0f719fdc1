package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/auth"
	"github.com/kompite/arena/internal/domain"
	"github.com/kompite/arena/internal/ledger"
)

// AccountHandler serves account registration and wallet reads. Token custody
// and payment rails live upstream; this surface only moves ledger balances.
type AccountHandler struct {
	engine *ledger.Engine
	jwt    *auth.JWTManager
}

// NewAccountHandler creates the account handler.
func NewAccountHandler(engine *ledger.Engine, jwt *auth.JWTManager) *AccountHandler {
	return &AccountHandler{engine: engine, jwt: jwt}
}

type registerRequest struct {
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	Device         string          `json:"device,omitempty"`
}

// Register creates a sealed ledger account and issues its session token.
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	id := uuid.New()
	account, err := h.engine.CreateAccount(r.Context(), id, req.OpeningBalance)
	if err != nil {
		RespondError(w, err)
		return
	}
	token, err := h.jwt.GenerateToken(id, req.Device)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]any{
		"account": account,
		"token":   token,
	})
}

func playerID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.SubjectFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, domain.ErrValidation("invalid account subject")
	}
	return id, nil
}

// GetMe returns the caller's account snapshot.
func (h *AccountHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	account, err := h.engine.GetAccount(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, account)
}

// GetTransactions returns the caller's chain entries, oldest first.
func (h *AccountHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	entries, err := h.engine.Transactions(r.Context(), id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{"transactions": entries})
}

type moveFundsRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Deposit credits the caller's available balance.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, domain.TxDeposit)
}

// Withdraw debits the caller's available balance.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, domain.TxWithdrawal)
}

func (h *AccountHandler) moveFunds(w http.ResponseWriter, r *http.Request, kind domain.TransactionType) {
	id, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req moveFundsRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	var entry *domain.Transaction
	if kind == domain.TxDeposit {
		entry, err = h.engine.Credit(r.Context(), id, req.Amount, kind, "wallet deposit")
	} else {
		entry, err = h.engine.Debit(r.Context(), id, req.Amount, kind, "wallet withdrawal")
	}
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, entry)
}
