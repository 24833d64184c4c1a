package compliance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/veridianlabs/guidanced/internal/telemetry"
)

var tracer = otel.Tracer("guidanced/compliance")

const (
	// DefaultJudgeTimeout bounds each judge evaluation. A judge that
	// misses the deadline abstains.
	DefaultJudgeTimeout = 10 * time.Second

	// minResponders is the floor below which consensus is meaningless
	// and the whole validation escalates.
	minResponders = 2
)

// Validator runs the two-stage validation protocol.
type Validator struct {
	checks       []ruleCheck
	judges       []Judge
	mode         Mode
	thresholds   map[Mode]float64
	judgeTimeout time.Duration
	logger       *zap.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithMode selects the operating mode. Default is production.
func WithMode(mode Mode) Option {
	return func(v *Validator) {
		v.mode = mode
	}
}

// WithThreshold overrides the confidence threshold for a mode.
func WithThreshold(mode Mode, threshold float64) Option {
	return func(v *Validator) {
		if threshold >= 0 && threshold <= 1 {
			v.thresholds[mode] = threshold
		}
	}
}

// WithJudgeTimeout sets the per-judge evaluation deadline.
func WithJudgeTimeout(d time.Duration) Option {
	return func(v *Validator) {
		if d > 0 {
			v.judgeTimeout = d
		}
	}
}

// NewValidator creates a validator over the given judge panel.
func NewValidator(judges []Judge, logger *zap.Logger, opts ...Option) (*Validator, error) {
	if len(judges) < minResponders {
		return nil, fmt.Errorf("at least %d judges are required, got %d", minResponders, len(judges))
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	v := &Validator{
		checks: defaultRuleChecks(),
		judges: judges,
		mode:   ModeProduction,
		thresholds: map[Mode]float64{
			ModeTraining:   DefaultTrainingThreshold,
			ModeProduction: DefaultProductionThreshold,
		},
		judgeTimeout: DefaultJudgeTimeout,
		logger:       logger.Named("compliance"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate gates one piece of guidance. Stage 1 runs the deterministic
// rule battery; any violation is an unambiguous rejection and stage 2
// is not invoked. Stage 2 fans out to the judge panel and applies the
// two-thirds consensus rule.
//
// The returned Result is always well-formed; Validate itself errors
// only on programming-contract violations, never on judge availability.
func (v *Validator) Validate(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "compliance.validate")
	defer span.End()

	if strings.TrimSpace(req.Guidance) == "" {
		return nil, fmt.Errorf("guidance cannot be empty")
	}

	if result := v.runRuleChecks(req); result != nil {
		span.SetAttributes(attribute.String("decided_by", string(SourceRuleBased)))
		telemetry.ValidationResults.WithLabelValues("fail", "rule_based").Inc()
		return result, nil
	}

	result := v.runConsensus(ctx, req)
	span.SetAttributes(
		attribute.String("decided_by", string(SourceJudgeConsensus)),
		attribute.Bool("passed", result.Passed),
		attribute.Bool("requires_review", result.RequiresHumanReview),
	)
	telemetry.ValidationResults.WithLabelValues(outcomeLabel(result), "judge_consensus").Inc()
	return result, nil
}

// runRuleChecks returns a terminal rejection on the first violated hard
// constraint, nil when all checks pass. Deterministic rejections carry
// confidence 1.0 and never escalate: the rule is unambiguous.
func (v *Validator) runRuleChecks(req Request) *Result {
	for _, check := range v.checks {
		if issue := check(req); issue != nil {
			v.logger.Info("rule check violation",
				zap.String("category", issue.Category),
				zap.String("severity", string(issue.Severity)))
			return &Result{
				Passed:              false,
				Confidence:          1.0,
				Issues:              []Issue{*issue},
				RequiresHumanReview: false,
				Reasoning:           "deterministic rule violation: " + issue.Description,
				Source:              SourceRuleBased,
			}
		}
	}
	return nil
}

// runConsensus fans the request out to every judge concurrently and
// aggregates the responding verdicts. Abstentions (timeouts, errors)
// reduce the panel size; below minResponders the validation escalates.
func (v *Validator) runConsensus(ctx context.Context, req Request) *Result {
	verdicts := make([]Verdict, 0, len(v.judges))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	wg.Add(len(v.judges))
	for i, judge := range v.judges {
		go func(idx int, j Judge) {
			defer wg.Done()
			judgeCtx, cancel := context.WithTimeout(ctx, v.judgeTimeout)
			defer cancel()

			verdict, err := j.Evaluate(judgeCtx, req)
			if err != nil {
				v.logger.Warn("judge abstained",
					zap.Int("judge", idx),
					zap.Error(err))
				telemetry.JudgeAbstentions.Inc()
				return
			}
			mu.Lock()
			verdicts = append(verdicts, verdict)
			mu.Unlock()
		}(i, judge)
	}
	wg.Wait()

	return v.aggregate(verdicts)
}

// aggregate applies the consensus arithmetic to the responding
// verdicts. Pure and deterministic: insensitive to arrival order.
func (v *Validator) aggregate(verdicts []Verdict) *Result {
	n := len(verdicts)
	if n < minResponders {
		v.logger.Warn("escalating validation",
			zap.Int("responders", n),
			zap.Error(ErrInsufficientJudges))
		return &Result{
			Passed:              false,
			Confidence:          0,
			RequiresHumanReview: true,
			Reasoning:           fmt.Sprintf("only %d of %d judges responded; consensus needs at least %d", n, len(v.judges), minResponders),
			Source:              SourceJudgeConsensus,
		}
	}

	passes := 0
	for _, verdict := range verdicts {
		if verdict.Passed {
			passes++
		}
	}

	// Pass iff at least ceil(2n/3) responders pass.
	required := (2*n + 2) / 3
	consensusPass := passes >= required

	// Aggregate confidence is the mean over judges agreeing with the
	// consensus verdict.
	var sum float64
	agreeing := 0
	for _, verdict := range verdicts {
		if verdict.Passed == consensusPass {
			sum += verdict.Confidence
			agreeing++
		}
	}
	confidence := sum / float64(agreeing)

	issues := unionIssues(verdicts)
	threshold := v.thresholds[v.mode]

	if confidence < threshold {
		return &Result{
			Passed:              false,
			Confidence:          confidence,
			Issues:              issues,
			RequiresHumanReview: true,
			Reasoning: fmt.Sprintf("consensus verdict (%d/%d pass, required %d) carried confidence %.3f below the %s-mode threshold %.2f",
				passes, n, required, confidence, v.mode, threshold),
			Source: SourceJudgeConsensus,
		}
	}

	return &Result{
		Passed:              consensusPass,
		Confidence:          confidence,
		Issues:              issues,
		RequiresHumanReview: false,
		Reasoning: fmt.Sprintf("%d of %d judges passed the guidance (required %d), aggregate confidence %.3f",
			passes, n, required, confidence),
		Source: SourceJudgeConsensus,
	}
}

// unionIssues merges issue lists from all verdicts, de-duplicated.
func unionIssues(verdicts []Verdict) []Issue {
	seen := make(map[string]struct{})
	var out []Issue
	for _, verdict := range verdicts {
		for _, issue := range verdict.Issues {
			key := issue.Category + "|" + string(issue.Severity) + "|" + issue.Description
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, issue)
		}
	}
	return out
}

func outcomeLabel(r *Result) string {
	switch {
	case r.RequiresHumanReview:
		return "review"
	case r.Passed:
		return "pass"
	default:
		return "fail"
	}
}
