package api

import (
	"net/http"

	"github.com/swapmeet/swapmeet/internal/exchange"
	"github.com/swapmeet/swapmeet/internal/model"
)

// KarmaSettlementHeader is set to "failed" when an offer was accepted but
// karma could not be credited yet.
const KarmaSettlementHeader = "X-Karma-Settlement"

// OffersHandler handles offer endpoints.
type OffersHandler struct {
	Coordinator *exchange.Coordinator
}

type offerList struct {
	Offers []model.Offer `json:"offers"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

// Create handles POST /api/offers. offeredById defaults to the caller and
// may not name anyone else.
func (h *OffersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in model.OfferInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	caller := GetClaims(r.Context()).UserID
	if in.OfferedBy == "" {
		in.OfferedBy = caller
	}
	if in.OfferedBy != caller {
		writeError(w, r, model.Authorizationf("offers can only be made on your own behalf"))
		return
	}

	offer, err := h.Coordinator.MakeOffer(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, offer)
}

// ListByItem handles GET /api/offers/item/{itemId}.
func (h *OffersHandler) ListByItem(w http.ResponseWriter, r *http.Request) {
	offers, err := h.Coordinator.ListOffersForItem(r.Context(), r.PathValue("itemId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, offerList{Offers: offers})
}

// ListByUser handles GET /api/offers/user/{userId}.
func (h *OffersHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	offers, err := h.Coordinator.ListOffersForUser(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, offerList{Offers: offers})
}

// SetStatus handles PUT /api/offers/{id} with body {"status": ...}.
func (h *OffersHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Coordinator.SetOfferStatus(r.Context(), r.PathValue("id"), GetClaims(r.Context()).UserID, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.SettleErr != nil {
		w.Header().Set(KarmaSettlementHeader, "failed")
	}
	jsonResponse(w, http.StatusOK, res.Offer)
}

// Delete handles DELETE /api/offers/{id}.
func (h *OffersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Coordinator.DeleteOffer(r.Context(), r.PathValue("id"), GetClaims(r.Context()).UserID); err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "offer deleted"})
}
