package api

import (
	"fmt"
	"net/http"
	"time"

	"blackwolf/core"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ruleRequest is the create/update payload for a correlation rule.
type ruleRequest struct {
	Name              string                `json:"name"`
	RuleType          core.RuleType         `json:"rule_type"`
	ThresholdCount    int                   `json:"threshold_count"`
	TimeWindowMinutes int                   `json:"time_window_minutes"`
	ThreatType        string                `json:"threat_type"`
	MinSeverity       int                   `json:"min_severity"`
	CreatesIncident   bool                  `json:"creates_incident"`
	IncidentSeverity  core.IncidentSeverity `json:"incident_severity"`
	Active            bool                  `json:"active"`
}

func (req *ruleRequest) validate() error {
	if req.Name == "" {
		return fmt.Errorf("%w: rule name is required", core.ErrInvalidRequest)
	}
	if req.RuleType == "" {
		return fmt.Errorf("%w: rule_type is required", core.ErrInvalidRequest)
	}
	if req.ThresholdCount < 1 {
		return fmt.Errorf("%w: threshold_count must be at least 1", core.ErrInvalidRequest)
	}
	if req.TimeWindowMinutes < 1 {
		return fmt.Errorf("%w: time_window_minutes must be at least 1", core.ErrInvalidRequest)
	}
	if req.CreatesIncident && req.IncidentSeverity != "" && !req.IncidentSeverity.IsValid() {
		return fmt.Errorf("%w: unknown incident severity %q", core.ErrInvalidRequest, req.IncidentSeverity)
	}
	return nil
}

func (req *ruleRequest) toRule(id string, createdAt time.Time) *core.CorrelationRule {
	return &core.CorrelationRule{
		ID:                id,
		Name:              req.Name,
		RuleType:          req.RuleType,
		ThresholdCount:    req.ThresholdCount,
		TimeWindowMinutes: req.TimeWindowMinutes,
		ThreatType:        req.ThreatType,
		MinSeverity:       req.MinSeverity,
		CreatesIncident:   req.CreatesIncident,
		IncidentSeverity:  req.IncidentSeverity,
		Active:            req.Active,
		CreatedAt:         createdAt,
	}
}

// Rules are global: every authenticated tenant sees the same set. Rule
// writes drop the engine's cached snapshot.

func (a *API) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := a.rules.GetRules(r.Context())
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (a *API) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := a.rules.GetRule(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, a.logger)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, a.logger)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err, a.logger)
		return
	}

	rule := req.toRule(uuid.New().String(), time.Now().UTC())
	if err := a.rules.CreateRule(r.Context(), rule); err != nil {
		writeError(w, err, a.logger)
		return
	}
	a.engine.InvalidateRules()
	writeJSON(w, http.StatusCreated, rule)
}

func (a *API) updateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, a.logger)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err, a.logger)
		return
	}

	id := mux.Vars(r)["id"]
	existing, err := a.rules.GetRule(r.Context(), id)
	if err != nil {
		writeError(w, err, a.logger)
		return
	}

	rule := req.toRule(id, existing.CreatedAt)
	if err := a.rules.UpdateRule(r.Context(), id, rule); err != nil {
		writeError(w, err, a.logger)
		return
	}
	a.engine.InvalidateRules()
	writeJSON(w, http.StatusOK, rule)
}

func (a *API) deleteRule(w http.ResponseWriter, r *http.Request) {
	if err := a.rules.DeleteRule(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err, a.logger)
		return
	}
	a.engine.InvalidateRules()
	writeJSON(w, http.StatusNoContent, nil)
}
