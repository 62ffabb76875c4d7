package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"blackwolf/core"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type alertConfigRequest struct {
	AlertType   core.AlertType `json:"alert_type"`
	Destination string         `json:"destination"`
	MinSeverity int            `json:"min_severity"`
	Active      bool           `json:"active"`
}

func (req *alertConfigRequest) validate() error {
	if !req.AlertType.IsValid() {
		return fmt.Errorf("%w: unknown alert type %q", core.ErrInvalidRequest, req.AlertType)
	}
	if req.Destination == "" {
		return fmt.Errorf("%w: destination is required", core.ErrInvalidRequest)
	}
	if req.MinSeverity < 1 || req.MinSeverity > 10 {
		return fmt.Errorf("%w: min_severity must be between 1 and 10", core.ErrInvalidRequest)
	}
	return nil
}

func (a *API) listAlertConfigs(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	configs, err := a.alerts.ListConfigs(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (a *API) getAlertConfig(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	cfg, err := a.alerts.GetConfig(r.Context(), mux.Vars(r)["id"], tenant.ID)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) createAlertConfig(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	var req alertConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, a.logger)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err, a.logger)
		return
	}

	cfg := &core.AlertConfig{
		ID:          uuid.New().String(),
		TenantID:    tenant.ID,
		AlertType:   req.AlertType,
		Destination: req.Destination,
		MinSeverity: req.MinSeverity,
		Active:      req.Active,
		CreatedAt:   time.Now().UTC(),
	}
	if err := a.alerts.CreateConfig(r.Context(), cfg); err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (a *API) updateAlertConfig(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	var req alertConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, a.logger)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err, a.logger)
		return
	}

	cfg, err := a.alerts.GetConfig(r.Context(), mux.Vars(r)["id"], tenant.ID)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	cfg.AlertType = req.AlertType
	cfg.Destination = req.Destination
	cfg.MinSeverity = req.MinSeverity
	cfg.Active = req.Active

	if err := a.alerts.UpdateConfig(r.Context(), cfg); err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) deleteAlertConfig(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	if err := a.alerts.DeleteConfig(r.Context(), mux.Vars(r)["id"], tenant.ID); err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) listAlertHistory(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	history, err := a.alerts.ListHistory(r.Context(), tenant.ID, limit)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
