package api

import (
	"net/http"
	"time"

	"leadbridge/internal/stats"
)

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	window := stats.ParseWindow(q.Get("preset"), q.Get("from"), q.Get("to"), h.now())
	rep, err := h.stats.Report(r.Context(), actorFromContext(r.Context()), window)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// processCallbacks runs the callback round on demand, for cron style
// deployments. An optional date query parameter sets the reference day.
func (h *Handler) processCallbacks(w http.ResponseWriter, r *http.Request) {
	asOf := h.now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := time.ParseInLocation(time.DateOnly, raw, asOf.Location())
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_input", "date must be YYYY-MM-DD")
			return
		}
		asOf = d
	}
	n, err := h.leads.ProcessDueCallbacks(r.Context(), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": n})
}
