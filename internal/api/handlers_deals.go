package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"leadbridge/internal/models"
)

func (h *Handler) dealsOfLead(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	deals, err := h.leads.DealsOfLead(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(deals, toDealDTO))
}

func (h *Handler) createDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req createDealRequest
	if !h.decode(w, r, &req) {
		return
	}
	deal, err := h.leads.CreateDeal(r.Context(), actorFromContext(r.Context()), id, req.newDeal())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDealDTO(deal))
}

func (h *Handler) listDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.leads.ListDeals(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(deals, toDealDTO))
}

func (h *Handler) getDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	deal, err := h.leads.GetDeal(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDealDTO(deal))
}

func (h *Handler) updateDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req dealPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	deal, err := h.leads.UpdateDeal(r.Context(), actorFromContext(r.Context()), id, req.patch())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDealDTO(deal))
}

func (h *Handler) markCommissionReady(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	deal, err := h.leads.MarkCommissionReady(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDealDTO(deal))
}

func (h *Handler) markCommissionPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	leg := models.Leg(chi.URLParam(r, "leg"))
	deal, err := h.leads.MarkCommissionPaid(r.Context(), actorFromContext(r.Context()), id, leg)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDealDTO(deal))
}
