package api

import (
	"net/http"

	"blackwolf/ingest"
)

// handleUpload accepts one sensor batch. Authentication happens inside the
// pipeline against the api_key and company_id carried in the body.
func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	var upload ingest.Upload
	if err := decodeJSON(r, &upload); err != nil {
		writeError(w, err, a.logger)
		return
	}

	result, err := a.pipeline.ProcessUpload(r.Context(), &upload)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
