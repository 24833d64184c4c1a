package compliance

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingJudge returns a fixed verdict and counts invocations.
type countingJudge struct {
	verdict Verdict
	err     error
	slow    bool
	calls   atomic.Int64
}

func (j *countingJudge) Evaluate(ctx context.Context, _ Request) (Verdict, error) {
	j.calls.Add(1)
	if j.slow {
		<-ctx.Done()
		return Verdict{}, ctx.Err()
	}
	if j.err != nil {
		return Verdict{}, j.err
	}
	return j.verdict, nil
}

func panel(judges ...*countingJudge) []Judge {
	out := make([]Judge, len(judges))
	for i, j := range judges {
		out[i] = j
	}
	return out
}

func cleanRequest() Request {
	return Request{
		Guidance:  "Workplace pensions usually offer a default fund; your provider can explain your options, and a regulated financial adviser can give a personal recommendation.",
		Situation: "Customer asked how workplace pension contributions work.",
		Reasoning: "General education about contributions.",
	}
}

func TestValidator_RuleViolationShortCircuits(t *testing.T) {
	j1 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.9}}
	j2 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.9}}
	j3 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.9}}

	v, err := NewValidator(panel(j1, j2, j3), nil)
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), Request{
		Guidance:  "Honestly, you should transfer everything to one pot.",
		Situation: "Customer asked about consolidation.",
	})
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Equal(t, 1.0, res.Confidence)
	assert.False(t, res.RequiresHumanReview)
	assert.Equal(t, SourceRuleBased, res.Source)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "prohibited_phrase", res.Issues[0].Category)

	// The judge panel must not have been consulted.
	assert.Zero(t, j1.calls.Load())
	assert.Zero(t, j2.calls.Load())
	assert.Zero(t, j3.calls.Load())
}

// Three judges voting {pass(0.9), pass(0.85), fail(0.4)}: the pass
// threshold is ceil(2*3/3) = 2, so the verdict passes with aggregate
// confidence mean(0.9, 0.85) = 0.875.
func TestValidator_ConsensusMajorityPass(t *testing.T) {
	j1 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.9}}
	j2 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.85}}
	j3 := &countingJudge{verdict: Verdict{Passed: false, Confidence: 0.4}}

	v, err := NewValidator(panel(j1, j2, j3), nil, WithMode(ModeTraining))
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), cleanRequest())
	require.NoError(t, err)

	assert.True(t, res.Passed)
	assert.InDelta(t, 0.875, res.Confidence, 1e-9)
	assert.False(t, res.RequiresHumanReview)
	assert.Equal(t, SourceJudgeConsensus, res.Source)
}

// Three judges voting {pass(0.5), fail(0.55), fail(0.6)} in production
// mode: 2/3 fail, but the failing majority's aggregate confidence
// mean(0.55, 0.6) = 0.575 sits below the 0.9 threshold, so the result
// escalates to human review instead of standing as a fail.
func TestValidator_LowConfidenceEscalates(t *testing.T) {
	j1 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.5}}
	j2 := &countingJudge{verdict: Verdict{Passed: false, Confidence: 0.55}}
	j3 := &countingJudge{verdict: Verdict{Passed: false, Confidence: 0.6}}

	v, err := NewValidator(panel(j1, j2, j3), nil, WithMode(ModeProduction))
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), cleanRequest())
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.True(t, res.RequiresHumanReview)
	assert.InDelta(t, 0.575, res.Confidence, 1e-9)
	assert.Equal(t, SourceJudgeConsensus, res.Source)
}

func TestValidator_ConfidentMinorityPassFails(t *testing.T) {
	j1 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.9}}
	j2 := &countingJudge{verdict: Verdict{Passed: false, Confidence: 0.95,
		Issues: []Issue{{Category: "tone", Severity: SeverityMinor, Description: "overly directive"}}}}
	j3 := &countingJudge{verdict: Verdict{Passed: false, Confidence: 0.9,
		Issues: []Issue{{Category: "tone", Severity: SeverityMinor, Description: "overly directive"}}}}

	v, err := NewValidator(panel(j1, j2, j3), nil, WithMode(ModeTraining))
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), cleanRequest())
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.False(t, res.RequiresHumanReview)
	assert.InDelta(t, 0.925, res.Confidence, 1e-9)
	// Identical issues from two judges collapse to one.
	assert.Len(t, res.Issues, 1)
}

// An erroring judge abstains: the threshold is computed over the two
// responders, ceil(2*2/3) = 2, and both pass.
func TestValidator_AbstentionReducesPanel(t *testing.T) {
	j1 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.9}}
	j2 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.8}}
	j3 := &countingJudge{err: errors.New("judge unavailable")}

	v, err := NewValidator(panel(j1, j2, j3), nil, WithMode(ModeTraining))
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), cleanRequest())
	require.NoError(t, err)

	assert.True(t, res.Passed)
	assert.InDelta(t, 0.85, res.Confidence, 1e-9)
}

func TestValidator_TimedOutJudgeAbstains(t *testing.T) {
	j1 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.95}}
	j2 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.95}}
	j3 := &countingJudge{slow: true}

	v, err := NewValidator(panel(j1, j2, j3), nil,
		WithMode(ModeTraining),
		WithJudgeTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	res, err := v.Validate(context.Background(), cleanRequest())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, res.Passed)
}

func TestValidator_TooFewRespondersEscalates(t *testing.T) {
	j1 := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.95}}
	j2 := &countingJudge{err: errors.New("unavailable")}
	j3 := &countingJudge{err: errors.New("unavailable")}

	v, err := NewValidator(panel(j1, j2, j3), nil)
	require.NoError(t, err)

	res, err := v.Validate(context.Background(), cleanRequest())
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.True(t, res.RequiresHumanReview)
	assert.Equal(t, SourceJudgeConsensus, res.Source)
}

func TestValidator_EmptyGuidance(t *testing.T) {
	j := &countingJudge{verdict: Verdict{Passed: true, Confidence: 0.9}}
	v, err := NewValidator(panel(j, j), nil)
	require.NoError(t, err)

	_, err = v.Validate(context.Background(), Request{Guidance: "  "})
	assert.Error(t, err)
}

func TestNewValidator_RequiresTwoJudges(t *testing.T) {
	j := &countingJudge{}
	_, err := NewValidator(panel(j), nil)
	assert.Error(t, err)
}

func TestParseVerdict(t *testing.T) {
	v, err := parseVerdict("```json\n{\"passed\": true, \"confidence\": 0.8, \"reasoning\": \"fine\"}\n```")
	require.NoError(t, err)
	assert.True(t, v.Passed)
	assert.InDelta(t, 0.8, v.Confidence, 1e-9)

	_, err = parseVerdict("{\"passed\": true, \"confidence\": 1.5}")
	assert.Error(t, err)

	_, err = parseVerdict("not json at all")
	assert.Error(t, err)
}
