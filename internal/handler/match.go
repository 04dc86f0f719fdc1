package handler

import (
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kompite/arena/internal/auth"
	"github.com/kompite/arena/internal/domain"
	"github.com/kompite/arena/internal/match"
	"github.com/kompite/arena/internal/physics"
)

// MatchHandler serves the match lifecycle: queueing, readiness, game intents
// and shot submission.
type MatchHandler struct {
	manager    *match.Manager
	botMatches bool
}

// NewMatchHandler creates the match handler. botMatches gates practice
// matches against the house bot.
func NewMatchHandler(manager *match.Manager, botMatches bool) *MatchHandler {
	return &MatchHandler{manager: manager, botMatches: botMatches}
}

// ClientIP resolves the caller's address, preferring the first hop in
// X-Forwarded-For when a proxy set it.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func deviceID(r *http.Request) string {
	if d := r.Header.Get("X-Device-ID"); d != "" {
		return d
	}
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		return claims.Device
	}
	return ""
}

func matchID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, domain.ErrValidation("invalid match id")
	}
	return id, nil
}

type queueRequest struct {
	GameType match.GameType  `json:"game_type"`
	Bet      decimal.Decimal `json:"bet_amount"`
	VsBot    bool            `json:"vs_bot,omitempty"`
}

// JoinQueue enters matchmaking; a room comes back as soon as a pair forms.
func (h *MatchHandler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	accountID, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req queueRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	var room *match.Room
	if req.VsBot {
		if !h.botMatches {
			RespondError(w, domain.ErrValidation("bot matches are disabled"))
			return
		}
		room, err = h.manager.JoinBotMatch(r.Context(), accountID, req.GameType, req.Bet, ClientIP(r), deviceID(r))
	} else {
		room, err = h.manager.JoinQueue(r.Context(), accountID, req.GameType, req.Bet, ClientIP(r), deviceID(r))
	}
	if err != nil {
		RespondError(w, err)
		return
	}
	if room == nil {
		RespondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	h.respondRoom(w, room.ID)
}

// LeaveQueue withdraws the caller's matchmaking ticket. Leaving a queue the
// caller is not in succeeds as a no-op.
func (h *MatchHandler) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	accountID, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req queueRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if err := h.manager.LeaveQueue(accountID, req.GameType, req.Bet); err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// respondRoom serves a point-in-time copy so encoding never races the match.
func (h *MatchHandler) respondRoom(w http.ResponseWriter, id uuid.UUID) {
	snap, err := h.manager.RoomSnapshot(id)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, snap)
}

// GetRoom returns a room snapshot.
func (h *MatchHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id, err := matchID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	h.respondRoom(w, id)
}

// Ready confirms the caller's readiness; the last confirmation locks escrow
// and starts the game.
func (h *MatchHandler) Ready(w http.ResponseWriter, r *http.Request) {
	accountID, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := matchID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	if err := h.manager.Ready(r.Context(), id, accountID); err != nil {
		RespondError(w, err)
		return
	}
	h.respondRoom(w, id)
}

type confirmRequest struct {
	TransactionHash string `json:"transaction_hash,omitempty"`
}

// ConfirmEscrow acknowledges the caller's escrow hold; the last human
// confirmation starts the game.
func (h *MatchHandler) ConfirmEscrow(w http.ResponseWriter, r *http.Request) {
	accountID, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := matchID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req confirmRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if err := h.manager.ConfirmEscrow(r.Context(), id, accountID, req.TransactionHash); err != nil {
		RespondError(w, err)
		return
	}
	h.respondRoom(w, id)
}

type rollRequest struct {
	ClientSeed string `json:"client_seed,omitempty"`
}

// RollDice rolls for the caller in a board game room.
func (h *MatchHandler) RollDice(w http.ResponseWriter, r *http.Request) {
	accountID, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := matchID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req rollRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	out, err := h.manager.RollDice(r.Context(), id, accountID, req.ClientSeed)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}

type moveRequest struct {
	PieceID int `json:"piece_id"`
}

// MovePiece executes the caller's chosen move for the pending roll.
func (h *MatchHandler) MovePiece(w http.ResponseWriter, r *http.Request) {
	accountID, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := matchID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req moveRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	out, err := h.manager.MovePiece(r.Context(), id, accountID, req.PieceID)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, out)
}

type shotRequest struct {
	Shot  physics.Shot        `json:"shot"`
	Claim physics.ClientClaim `json:"claim"`
}

// SubmitShot reruns the caller's shot through the shadow simulation and
// scores the authoritative result.
func (h *MatchHandler) SubmitShot(w http.ResponseWriter, r *http.Request) {
	accountID, err := playerID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	id, err := matchID(r)
	if err != nil {
		RespondError(w, err)
		return
	}
	var req shotRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	result, err := h.manager.SubmitShot(r.Context(), id, accountID, req.Shot, req.Claim)
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, result)
}
