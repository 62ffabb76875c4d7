package api

import (
	"net/http"

	"blackwolf/incident"

	"github.com/gorilla/mux"
)

func (a *API) listIncidents(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	incidents, err := a.incidents.ListIncidents(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (a *API) getIncident(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	detail, err := a.incidents.GetDetail(r.Context(), mux.Vars(r)["id"], tenant.ID)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (a *API) createIncident(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	var req incident.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, a.logger)
		return
	}

	inc, err := a.incidents.CreateIncident(r.Context(), tenant.ID, req)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (a *API) updateIncident(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	var req incident.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, a.logger)
		return
	}

	inc, err := a.incidents.UpdateIncident(r.Context(), mux.Vars(r)["id"], tenant.ID, req)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) addTimelineEntry(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	var body struct {
		Action      string `json:"action"`
		Description string `json:"description"`
		PerformedBy string `json:"performed_by"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err, a.logger)
		return
	}

	entry, err := a.incidents.AddTimeline(r.Context(), mux.Vars(r)["id"], tenant.ID,
		body.Action, body.Description, body.PerformedBy)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
