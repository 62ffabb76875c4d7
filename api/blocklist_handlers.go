package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (a *API) listBlockedIPs(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	blocks, err := a.blocklist.ListBlockedIPs(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}

// unblockIP removes a block early. Sensors drop the corresponding command on
// their next upload.
func (a *API) unblockIP(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	if err := a.blocklist.Unblock(r.Context(), mux.Vars(r)["ip"], tenant.ID); err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
