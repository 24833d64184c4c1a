// Package compliance gates every generated response behind a two-stage
// validator: deterministic rule checks, then multi-judge consensus.
package compliance

import "errors"

// Source identifies which stage decided a validation result.
type Source string

const (
	// SourceRuleBased marks a deterministic stage-1 decision.
	SourceRuleBased Source = "RULE_BASED"

	// SourceJudgeConsensus marks a stage-2 consensus decision.
	SourceJudgeConsensus Source = "JUDGE_CONSENSUS"
)

// Mode selects the confidence threshold below which a consensus verdict
// escalates to human review.
type Mode string

const (
	// ModeTraining tolerates lower-confidence verdicts during
	// simulated-interaction exploration.
	ModeTraining Mode = "training"

	// ModeProduction demands high confidence before any automated
	// verdict stands.
	ModeProduction Mode = "production"
)

// Default confidence thresholds per mode.
const (
	DefaultTrainingThreshold   = 0.6
	DefaultProductionThreshold = 0.9
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityMajor    Severity = "major"
	SeverityMinor    Severity = "minor"
)

// Issue is a specific problem found in the guidance text.
type Issue struct {
	Category    string   `json:"category"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Result is the validator's verdict on one piece of guidance. It is
// ephemeral and never persisted.
//
// A RequiresHumanReview result is a distinct terminal state: downstream
// components must surface it to a review queue, never coerce it into a
// plain pass or fail.
type Result struct {
	// Passed is the overall verdict.
	Passed bool `json:"passed"`

	// Confidence in [0, 1]. Deterministic rule decisions carry 1.0.
	Confidence float64 `json:"confidence"`

	// Issues found by whichever stage decided, de-duplicated.
	Issues []Issue `json:"issues,omitempty"`

	// RequiresHumanReview signals the validator could not decide with
	// sufficient confidence.
	RequiresHumanReview bool `json:"requires_human_review"`

	// Reasoning is a free-text explanation of the verdict.
	Reasoning string `json:"reasoning"`

	// Source names the deciding stage.
	Source Source `json:"source"`
}

// ErrInsufficientJudges is wrapped into the reasoning when fewer than
// two judges respond; the result escalates rather than erroring, so
// this sentinel appears in logs only.
var ErrInsufficientJudges = errors.New("fewer than two judges responded")
