package api

import (
	"net/http"
	"strconv"
	"time"

	"blackwolf/core"
	"blackwolf/storage"

	"github.com/gorilla/mux"
)

// listThreats returns the tenant's events, filtered by query parameters.
func (a *API) listThreats(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	q := r.URL.Query()

	filter := storage.EventFilter{
		ThreatType: q.Get("threat_type"),
		Status:     core.ThreatStatus(q.Get("status")),
		SearchIP:   q.Get("ip"),
		SortBy:     q.Get("sort_by"),
		SortDesc:   q.Get("sort_desc") == "true",
	}
	filter.MinSeverity, _ = strconv.Atoi(q.Get("min_severity"))
	filter.MaxSeverity, _ = strconv.Atoi(q.Get("max_severity"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}

	events, err := a.events.ListEvents(r.Context(), tenant.ID, filter)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// getThreat returns one event.
func (a *API) getThreat(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	event, err := a.events.GetEvent(r.Context(), mux.Vars(r)["id"], tenant.ID)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// updateThreatStatus changes an event's lifecycle status.
func (a *API) updateThreatStatus(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	var body struct {
		Status core.ThreatStatus `json:"status"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err, a.logger)
		return
	}

	id := mux.Vars(r)["id"]
	if err := a.events.UpdateEventStatus(r.Context(), id, tenant.ID, body.Status); err != nil {
		writeError(w, err, a.logger)
		return
	}
	event, err := a.events.GetEvent(r.Context(), id, tenant.ID)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// getEnrichment returns reputation data for an IP, via the cache-aside
// enricher so a cold lookup populates the cache.
func (a *API) getEnrichment(w http.ResponseWriter, r *http.Request) {
	record, err := a.enricher.EnrichIP(r.Context(), mux.Vars(r)["ip"])
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
