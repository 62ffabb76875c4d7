package correlate

import (
	"context"
	"errors"
	"testing"
	"time"

	"blackwolf/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRuleSource struct {
	rules []core.CorrelationRule
	calls int
}

func (f *fakeRuleSource) GetActiveRules(context.Context) ([]core.CorrelationRule, error) {
	f.calls++
	return f.rules, nil
}

// fakeCounter returns canned counts and can fail specific queries.
type fakeCounter struct {
	srcIPTypeCount int
	typeCount      int
	distinctCount  int
	srcIPTypeErr   error
}

func (f *fakeCounter) CountBySrcIPAndType(context.Context, string, string, string, time.Time) (int, error) {
	return f.srcIPTypeCount, f.srcIPTypeErr
}

func (f *fakeCounter) CountByType(context.Context, string, string, time.Time) (int, error) {
	return f.typeCount, nil
}

func (f *fakeCounter) CountDistinctTypesBySrcIP(context.Context, string, string, time.Time) (int, error) {
	return f.distinctCount, nil
}

type fakeIncidents struct {
	created []string // rule names
}

func (f *fakeIncidents) CreateFromThreat(_ context.Context, rule *core.CorrelationRule, event *core.ThreatEvent) (*core.Incident, error) {
	f.created = append(f.created, rule.Name)
	return &core.Incident{ID: "inc-" + rule.ID, TenantID: event.TenantID, Title: rule.Name}, nil
}

type fakeAlerter struct {
	fired []string
}

func (f *fakeAlerter) FireForIncident(_ context.Context, inc *core.Incident) {
	f.fired = append(f.fired, inc.ID)
}

func testEvent(severity int) *core.ThreatEvent {
	return &core.ThreatEvent{
		ID:         "evt-1",
		TenantID:   "tenant-a",
		ThreatType: "brute_force",
		Severity:   severity,
		SrcIP:      "1.2.3.4",
		Timestamp:  time.Now().UTC(),
	}
}

func windowRule(ruleType core.RuleType, threshold int) core.CorrelationRule {
	return core.CorrelationRule{
		ID:                "rule-" + string(ruleType),
		Name:              string(ruleType),
		RuleType:          ruleType,
		ThresholdCount:    threshold,
		TimeWindowMinutes: 10,
		Active:            true,
	}
}

func TestEngine_SameIPSameType_FiresAtAndOverThreshold(t *testing.T) {
	counter := &fakeCounter{}
	rules := &fakeRuleSource{rules: []core.CorrelationRule{windowRule(core.RuleSameIPSameType, 3)}}
	engine := NewEngine(rules, counter, &fakeIncidents{}, nil, 0, zap.NewNop().Sugar())

	counter.srcIPTypeCount = 2
	matches, err := engine.Evaluate(context.Background(), testEvent(5))
	require.NoError(t, err)
	assert.Empty(t, matches)

	// Third event reaches the threshold.
	counter.srcIPTypeCount = 3
	matches, err = engine.Evaluate(context.Background(), testEvent(5))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	// Fourth event is over the threshold and fires again.
	counter.srcIPTypeCount = 4
	matches, err = engine.Evaluate(context.Background(), testEvent(5))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestEngine_SeverityThreshold_SingleEvent(t *testing.T) {
	rule := windowRule(core.RuleSeverityThreshold, 1)
	rule.MinSeverity = 8
	rules := &fakeRuleSource{rules: []core.CorrelationRule{rule}}
	engine := NewEngine(rules, &fakeCounter{}, &fakeIncidents{}, nil, 0, zap.NewNop().Sugar())

	matches, err := engine.Evaluate(context.Background(), testEvent(7))
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = engine.Evaluate(context.Background(), testEvent(8))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestEngine_SeverityThreshold_IgnoresRuleThreatType(t *testing.T) {
	// severity_threshold is stateless: only the severity floor matters, even
	// when the rule carries a threat type.
	rule := windowRule(core.RuleSeverityThreshold, 1)
	rule.MinSeverity = 3
	rule.ThreatType = "port_scan"
	rules := &fakeRuleSource{rules: []core.CorrelationRule{rule}}
	engine := NewEngine(rules, &fakeCounter{}, &fakeIncidents{}, nil, 0, zap.NewNop().Sugar())

	matches, err := engine.Evaluate(context.Background(), testEvent(9))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestEngine_WindowRules_MinSeverityDoesNotGate(t *testing.T) {
	// The window rules are pure count thresholds; a low-severity trigger
	// still fires them once the window count is met.
	sameIP := windowRule(core.RuleSameIPSameType, 3)
	sameIP.MinSeverity = 8
	multiType := windowRule(core.RuleSameIPMultiType, 3)
	multiType.MinSeverity = 8
	rules := &fakeRuleSource{rules: []core.CorrelationRule{sameIP, multiType}}
	counter := &fakeCounter{srcIPTypeCount: 3, distinctCount: 3}
	engine := NewEngine(rules, counter, &fakeIncidents{}, nil, 0, zap.NewNop().Sugar())

	matches, err := engine.Evaluate(context.Background(), testEvent(5))
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestEngine_RuleThreatTypeRestriction(t *testing.T) {
	rule := windowRule(core.RuleSameIPSameType, 1)
	rule.ThreatType = "port_scan"
	rules := &fakeRuleSource{rules: []core.CorrelationRule{rule}}
	engine := NewEngine(rules, &fakeCounter{srcIPTypeCount: 5}, &fakeIncidents{}, nil, 0, zap.NewNop().Sugar())

	// Event type brute_force does not satisfy a port_scan-bound rule.
	matches, err := engine.Evaluate(context.Background(), testEvent(5))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestEngine_SameIPMultiType(t *testing.T) {
	rules := &fakeRuleSource{rules: []core.CorrelationRule{windowRule(core.RuleSameIPMultiType, 3)}}
	counter := &fakeCounter{distinctCount: 3}
	engine := NewEngine(rules, counter, &fakeIncidents{}, nil, 0, zap.NewNop().Sugar())

	matches, err := engine.Evaluate(context.Background(), testEvent(5))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestEngine_UnknownRuleTypeIsInert(t *testing.T) {
	rules := &fakeRuleSource{rules: []core.CorrelationRule{windowRule(core.RuleType("geo_velocity"), 1)}}
	engine := NewEngine(rules, &fakeCounter{srcIPTypeCount: 100}, &fakeIncidents{}, nil, 0, zap.NewNop().Sugar())

	matches, err := engine.Evaluate(context.Background(), testEvent(10))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestEngine_FailingRuleDoesNotSuppressOthers(t *testing.T) {
	broken := windowRule(core.RuleSameIPSameType, 1)
	working := windowRule(core.RuleSameTypeThreshold, 1)
	rules := &fakeRuleSource{rules: []core.CorrelationRule{broken, working}}
	counter := &fakeCounter{typeCount: 5, srcIPTypeErr: errors.New("query timeout")}
	engine := NewEngine(rules, counter, &fakeIncidents{}, nil, 0, zap.NewNop().Sugar())

	matches, err := engine.Evaluate(context.Background(), testEvent(5))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, core.RuleSameTypeThreshold, matches[0].Rule.RuleType)
}

func TestEngine_EachEscalatingRuleCreatesItsOwnIncident(t *testing.T) {
	r1 := windowRule(core.RuleSameIPSameType, 1)
	r1.CreatesIncident = true
	r2 := windowRule(core.RuleSameTypeThreshold, 1)
	r2.CreatesIncident = true
	rules := &fakeRuleSource{rules: []core.CorrelationRule{r1, r2}}
	incidents := &fakeIncidents{}
	alerter := &fakeAlerter{}
	counter := &fakeCounter{srcIPTypeCount: 1, typeCount: 1}
	engine := NewEngine(rules, counter, incidents, alerter, 0, zap.NewNop().Sugar())

	matches, err := engine.Evaluate(context.Background(), testEvent(5))
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Len(t, incidents.created, 2)
	assert.Len(t, alerter.fired, 2)
	require.NotNil(t, matches[0].Incident)
	require.NotNil(t, matches[1].Incident)
}

func TestEngine_RuleCacheAndInvalidation(t *testing.T) {
	rules := &fakeRuleSource{rules: []core.CorrelationRule{windowRule(core.RuleSeverityThreshold, 1)}}
	engine := NewEngine(rules, &fakeCounter{}, &fakeIncidents{}, nil, time.Minute, zap.NewNop().Sugar())

	for i := 0; i < 5; i++ {
		_, err := engine.Evaluate(context.Background(), testEvent(5))
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rules.calls)

	engine.InvalidateRules()
	_, err := engine.Evaluate(context.Background(), testEvent(5))
	require.NoError(t, err)
	assert.Equal(t, 2, rules.calls)
}
