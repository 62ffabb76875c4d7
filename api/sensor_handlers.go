package api

import "net/http"

func (a *API) listSensors(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	sensors, err := a.tenants.ListSensors(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, sensors)
}
