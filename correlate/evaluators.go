// Package correlate evaluates declarative correlation rules against the
// threat event stream. Rules are global across tenants; counting is always
// scoped to the triggering event's tenant inside the rule's trailing window.
package correlate

import (
	"context"
	"time"

	"blackwolf/core"
)

// Evaluator decides whether one rule matches the triggering event. Window
// counts include the event itself, which is persisted before evaluation, so
// a threshold of N matches on the Nth event and again on every event after.
type Evaluator interface {
	Evaluate(ctx context.Context, rule *core.CorrelationRule, event *core.ThreatEvent) (bool, error)
}

// EventCounter is the slice of the event store the evaluators need.
type EventCounter interface {
	CountBySrcIPAndType(ctx context.Context, tenantID, srcIP, threatType string, since time.Time) (int, error)
	CountByType(ctx context.Context, tenantID, threatType string, since time.Time) (int, error)
	CountDistinctTypesBySrcIP(ctx context.Context, tenantID, srcIP string, since time.Time) (int, error)
}

// severityThresholdEvaluator matches when the single triggering event meets
// the rule's severity floor. Stateless; no window query, no type filter.
type severityThresholdEvaluator struct{}

func (severityThresholdEvaluator) Evaluate(_ context.Context, rule *core.CorrelationRule, event *core.ThreatEvent) (bool, error) {
	return event.Severity >= rule.MinSeverity, nil
}

// sameIPSameTypeEvaluator matches when the window holds at least
// ThresholdCount events sharing the triggering event's source IP and type.
type sameIPSameTypeEvaluator struct {
	events EventCounter
}

func (e sameIPSameTypeEvaluator) Evaluate(ctx context.Context, rule *core.CorrelationRule, event *core.ThreatEvent) (bool, error) {
	if !typeMatches(rule, event) {
		return false, nil
	}
	count, err := e.events.CountBySrcIPAndType(ctx, event.TenantID, event.SrcIP, event.ThreatType, windowStart(rule, event))
	if err != nil {
		return false, err
	}
	return count >= rule.ThresholdCount, nil
}

// sameTypeThresholdEvaluator matches on a volume of one threat type across
// the tenant, regardless of source.
type sameTypeThresholdEvaluator struct {
	events EventCounter
}

func (e sameTypeThresholdEvaluator) Evaluate(ctx context.Context, rule *core.CorrelationRule, event *core.ThreatEvent) (bool, error) {
	if !typeMatches(rule, event) {
		return false, nil
	}
	count, err := e.events.CountByType(ctx, event.TenantID, event.ThreatType, windowStart(rule, event))
	if err != nil {
		return false, err
	}
	return count >= rule.ThresholdCount, nil
}

// sameIPMultiTypeEvaluator matches when one source IP shows at least
// ThresholdCount distinct threat types inside the window. Pure window count;
// the triggering event's own severity and type do not gate it.
type sameIPMultiTypeEvaluator struct {
	events EventCounter
}

func (e sameIPMultiTypeEvaluator) Evaluate(ctx context.Context, rule *core.CorrelationRule, event *core.ThreatEvent) (bool, error) {
	count, err := e.events.CountDistinctTypesBySrcIP(ctx, event.TenantID, event.SrcIP, windowStart(rule, event))
	if err != nil {
		return false, err
	}
	return count >= rule.ThresholdCount, nil
}

// noopEvaluator backs rule types this build does not know. Unknown tags never
// match and never error, so a rule created by a newer control plane degrades
// to inert instead of breaking ingestion.
type noopEvaluator struct{}

func (noopEvaluator) Evaluate(context.Context, *core.CorrelationRule, *core.ThreatEvent) (bool, error) {
	return false, nil
}

// typeMatches applies the optional threat type restriction carried by the
// type-bound window rules. The window rules are count thresholds only; a
// rule's MinSeverity never gates them.
func typeMatches(rule *core.CorrelationRule, event *core.ThreatEvent) bool {
	return rule.ThreatType == "" || rule.ThreatType == event.ThreatType
}

func windowStart(rule *core.CorrelationRule, event *core.ThreatEvent) time.Time {
	return event.Timestamp.Add(-rule.Window())
}
