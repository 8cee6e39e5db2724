package api

import (
	"net/http"

	"github.com/swapmeet/swapmeet/internal/exchange"
)

// KarmaHandler exposes karma balances.
type KarmaHandler struct {
	Ledger exchange.KarmaLedger
}

type karmaResponse struct {
	UserID string `json:"userId"`
	Points int64  `json:"points"`
}

// Get handles GET /api/karma/{userId}.
func (h *KarmaHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	points, err := h.Ledger.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, karmaResponse{UserID: userID, Points: points})
}
