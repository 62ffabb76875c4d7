package correlate

import (
	"context"
	"time"

	"blackwolf/core"
	"blackwolf/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// RuleSource supplies the active rule set.
type RuleSource interface {
	GetActiveRules(ctx context.Context) ([]core.CorrelationRule, error)
}

// IncidentCreator escalates a matched rule into an incident.
type IncidentCreator interface {
	CreateFromThreat(ctx context.Context, rule *core.CorrelationRule, event *core.ThreatEvent) (*core.Incident, error)
}

// IncidentAlerter fans a new incident out to the tenant's alert channels.
type IncidentAlerter interface {
	FireForIncident(ctx context.Context, incident *core.Incident)
}

// Match is one rule that fired for an event, with the incident it created if
// the rule escalates.
type Match struct {
	Rule     core.CorrelationRule
	Incident *core.Incident
}

const rulesCacheKey = "active"

// Engine evaluates every active rule against each ingested event. The rule
// set is snapshotted through a short-TTL cache, so rule edits take effect
// within the TTL without a per-event table scan.
type Engine struct {
	rules      RuleSource
	events     EventCounter
	incidents  IncidentCreator
	alerter    IncidentAlerter
	evaluators map[core.RuleType]Evaluator
	cache      *expirable.LRU[string, []core.CorrelationRule]
	logger     *zap.SugaredLogger
}

// NewEngine creates a correlation engine. cacheTTL bounds how stale the rule
// snapshot may be; zero disables caching.
func NewEngine(rules RuleSource, events EventCounter, incidents IncidentCreator, alerter IncidentAlerter, cacheTTL time.Duration, logger *zap.SugaredLogger) *Engine {
	e := &Engine{
		rules:     rules,
		events:    events,
		incidents: incidents,
		alerter:   alerter,
		evaluators: map[core.RuleType]Evaluator{
			core.RuleSeverityThreshold: severityThresholdEvaluator{},
			core.RuleSameIPSameType:    sameIPSameTypeEvaluator{events: events},
			core.RuleSameTypeThreshold: sameTypeThresholdEvaluator{events: events},
			core.RuleSameIPMultiType:   sameIPMultiTypeEvaluator{events: events},
		},
		logger: logger,
	}
	if cacheTTL > 0 {
		e.cache = expirable.NewLRU[string, []core.CorrelationRule](1, nil, cacheTTL)
	}
	return e
}

func (e *Engine) activeRules(ctx context.Context) ([]core.CorrelationRule, error) {
	if e.cache != nil {
		if rules, ok := e.cache.Get(rulesCacheKey); ok {
			return rules, nil
		}
	}
	rules, err := e.rules.GetActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Add(rulesCacheKey, rules)
	}
	return rules, nil
}

// Evaluate runs every active rule against one event. A failing rule is
// logged and skipped; it never suppresses the other rules or the upload.
// Each escalating rule that fires creates its own incident, even when
// several fire for the same event.
func (e *Engine) Evaluate(ctx context.Context, event *core.ThreatEvent) ([]Match, error) {
	rules, err := e.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0)
	for i := range rules {
		rule := &rules[i]
		evaluator, ok := e.evaluators[rule.RuleType]
		if !ok {
			evaluator = noopEvaluator{}
		}

		matched, err := evaluator.Evaluate(ctx, rule, event)
		if err != nil {
			e.logger.Errorw("Rule evaluation failed, skipping rule",
				"rule_id", rule.ID, "rule_type", rule.RuleType, "event_id", event.ID, "error", err)
			continue
		}
		if !matched {
			continue
		}

		metrics.CorrelationMatches.WithLabelValues(string(rule.RuleType)).Inc()
		e.logger.Infow("Correlation rule matched",
			"rule_id", rule.ID, "rule_name", rule.Name, "tenant_id", event.TenantID, "event_id", event.ID)

		m := Match{Rule: *rule}
		if rule.CreatesIncident {
			incident, err := e.incidents.CreateFromThreat(ctx, rule, event)
			if err != nil {
				e.logger.Errorw("Failed to create incident for matched rule",
					"rule_id", rule.ID, "event_id", event.ID, "error", err)
			} else {
				m.Incident = incident
				if e.alerter != nil {
					e.alerter.FireForIncident(ctx, incident)
				}
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// InvalidateRules drops the cached snapshot so the next evaluation reloads.
// Called by the rule admin handlers after a write.
func (e *Engine) InvalidateRules() {
	if e.cache != nil {
		e.cache.Remove(rulesCacheKey)
	}
}
