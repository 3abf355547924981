package api

import (
	"net/http"
	"time"

	"leadbridge/internal/leads"
	"leadbridge/internal/models"
)

func (h *Handler) listLeads(w http.ResponseWriter, r *http.Request) {
	out, err := h.leads.ListLeads(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(out, toLeadDTO))
}

func (h *Handler) createLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if !h.decode(w, r, &req) {
		return
	}
	lead, err := h.leads.CreateLead(r.Context(), actorFromContext(r.Context()), leads.NewLead{
		Identity:    req.identity(),
		Description: req.Description,
		ReferrerID:  req.ReferrerID,
		AdvisorID:   req.AdvisorID,
		Personal:    req.Personal,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeadDTO(lead))
}

func (h *Handler) getLead(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	lead, err := h.leads.GetLead(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(lead))
}

func (h *Handler) updateLeadIdentity(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req identityRequest
	if !h.decode(w, r, &req) {
		return
	}
	lead, err := h.leads.UpdateLeadIdentity(r.Context(), actorFromContext(r.Context()), id, req.identity())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(lead))
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	notes, err := h.leads.ListNotes(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(notes, toNoteDTO))
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req noteRequest
	if !h.decode(w, r, &req) {
		return
	}
	note, err := h.leads.AddNote(r.Context(), actorFromContext(r.Context()), id, req.Text, req.Private)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteDTO(note))
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	events, err := h.leads.History(r.Context(), actorFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(events, toEventDTO))
}

func (h *Handler) scheduleMeeting(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req meetingRequest
	if !h.decode(w, r, &req) {
		return
	}
	lead, err := h.leads.ScheduleMeeting(r.Context(), actorFromContext(r.Context()), id, leads.Meeting{At: req.At, Note: req.Note})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(lead))
}

func (h *Handler) completeMeeting(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req completeMeetingRequest
	if !h.decode(w, r, &req) {
		return
	}
	lead, err := h.leads.CompleteMeeting(r.Context(), actorFromContext(r.Context()), id, models.CommunicationStatus(req.Next), req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(lead))
}

func (h *Handler) cancelMeeting(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req cancelMeetingRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	lead, err := h.leads.CancelMeeting(r.Context(), actorFromContext(r.Context()), id, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(lead))
}

func (h *Handler) scheduleCallback(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req callbackRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := time.ParseInLocation(time.DateOnly, req.Date, h.now().Location())
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", "date must be YYYY-MM-DD")
		return
	}
	lead, err := h.leads.ScheduleCallback(r.Context(), actorFromContext(r.Context()), id, date, req.Note)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeadDTO(lead))
}
