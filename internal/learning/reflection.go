package learning

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/veridianlabs/guidanced/internal/casebase"
	"github.com/veridianlabs/guidanced/internal/rulesbase"
	"github.com/veridianlabs/guidanced/internal/telemetry"
)

// Reflection stage names, used for logging and termination metrics.
const (
	stageReflect  = "reflect"
	stageValidate = "validate"
	stageRefine   = "refine"
	stageJudge    = "judge"
)

// judgeRedundancyLimit is how many existing rules the judge stage sees
// when deciding whether a candidate is redundant.
const judgeRedundancyLimit = 5

const reflectPrompt = `A pension guidance interaction failed. Distill one reusable principle that would have prevented the failure.

SITUATION:
%s

GUIDANCE GIVEN:
%s

OUTCOME: satisfaction %.1f/10, comprehension %.1f/10, goal alignment %.1f/10, compliant: %t

Respond with ONLY a JSON object:
{"principle": "one general, actionable sentence", "domain": "one lowercase topic tag such as transfers, tax, withdrawals"}`

const refinePrompt = `Rewrite this guidance principle as a single imperative sentence, starting with a verb, specific enough to act on and general enough to apply beyond one customer.

PRINCIPLE:
%s

Respond with only the rewritten sentence.`

const judgePrompt = `Decide whether this new guidance principle is worth storing.

CANDIDATE:
%s

EXISTING RULES:
%s

A principle is worth storing when it is actionable and not already covered by an existing rule. If it restates an existing rule without improving it, it is redundant. If it clearly improves on one existing rule, name that rule's id as superseded.

Respond with ONLY a JSON object:
{"useful": true or false, "supersedes": "rule id or empty string", "reason": "one sentence"}`

// reflect runs the four-stage failure flow. It returns the new rule's
// ID, or "" when any stage terminates the flow. Termination is a clean
// outcome: the error return is reserved for contract violations and
// storage failures.
func (p *Pipeline) reflect(ctx context.Context, interactionID, situation, guidance string, outcome casebase.Outcome) (string, error) {
	logger := p.logger.With(zap.String("interaction_id", interactionID))

	// REFLECT: draft a candidate principle from the failure.
	candidate, domain, ok := p.stageReflect(ctx, logger, situation, guidance, outcome)
	if !ok {
		return "", nil
	}

	// VALIDATE: a principle that conflicts with the compliance
	// knowledge base is rejected, not refined.
	consistent, ok := p.stageValidate(ctx, logger, candidate)
	if !ok || !consistent {
		return "", nil
	}

	// REFINE: normalize the phrasing.
	refined, ok := p.stageRefine(ctx, logger, candidate)
	if !ok {
		return "", nil
	}

	// JUDGE: net-usefulness and redundancy against existing rules.
	useful, supersedes, ok := p.stageJudge(ctx, logger, refined, domain)
	if !ok || !useful {
		return "", nil
	}

	rule, err := rulesbase.NewRule(refined, domain, []string{interactionID})
	if err != nil {
		return "", fmt.Errorf("building rule: %w", err)
	}
	if err := p.rules.Add(ctx, rule); err != nil {
		return "", fmt.Errorf("storing rule: %w", err)
	}

	if supersedes != "" {
		if err := p.rules.Supersede(ctx, supersedes, rule.ID); err != nil {
			logger.Warn("superseding rule failed",
				zap.String("old", supersedes),
				zap.String("new", rule.ID),
				zap.Error(err))
		}
	}

	telemetry.RulesLearned.Inc()
	logger.Info("rule learned",
		zap.String("rule_id", rule.ID),
		zap.String("domain", domain),
		zap.Float64("confidence", rule.Confidence))
	return rule.ID, nil
}

func (p *Pipeline) terminate(logger *zap.Logger, stage, reason string) {
	telemetry.ReflectionTerminations.WithLabelValues(stage).Inc()
	logger.Info("reflection terminated",
		zap.String("stage", stage),
		zap.String("reason", reason))
}

func (p *Pipeline) stageReflect(ctx context.Context, logger *zap.Logger, situation, guidance string, outcome casebase.Outcome) (principle, domain string, ok bool) {
	raw, err := p.llm.Complete(ctx, fmt.Sprintf(reflectPrompt,
		situation, guidance,
		outcome.Satisfaction, outcome.Comprehension, outcome.GoalAlignment, outcome.Compliant))
	if err != nil {
		p.terminate(logger, stageReflect, "generation unavailable: "+err.Error())
		return "", "", false
	}

	var draft struct {
		Principle string `json:"principle"`
		Domain    string `json:"domain"`
	}
	if err := decodeJSON(raw, &draft); err != nil {
		p.terminate(logger, stageReflect, "unparseable draft")
		return "", "", false
	}
	if strings.TrimSpace(draft.Principle) == "" || strings.TrimSpace(draft.Domain) == "" {
		p.terminate(logger, stageReflect, "empty principle or domain")
		return "", "", false
	}
	return strings.TrimSpace(draft.Principle), strings.ToLower(strings.TrimSpace(draft.Domain)), true
}

func (p *Pipeline) stageValidate(ctx context.Context, logger *zap.Logger, principle string) (consistent, ok bool) {
	res, err := p.checker.CheckConsistency(ctx, principle)
	if err != nil {
		p.terminate(logger, stageValidate, "knowledge checker unavailable: "+err.Error())
		return false, false
	}
	if !res.Consistent {
		p.terminate(logger, stageValidate, res.Reason)
		return false, true
	}
	return true, true
}

func (p *Pipeline) stageRefine(ctx context.Context, logger *zap.Logger, principle string) (string, bool) {
	raw, err := p.llm.Complete(ctx, fmt.Sprintf(refinePrompt, principle))
	if err != nil {
		p.terminate(logger, stageRefine, "generation unavailable: "+err.Error())
		return "", false
	}
	refined := strings.TrimSpace(raw)
	if refined == "" {
		p.terminate(logger, stageRefine, "empty refinement")
		return "", false
	}
	return refined, true
}

func (p *Pipeline) stageJudge(ctx context.Context, logger *zap.Logger, principle, domain string) (useful bool, supersedes string, ok bool) {
	existing, err := p.rules.Retrieve(ctx, principle, domain, judgeRedundancyLimit)
	if err != nil {
		logger.Warn("existing-rule lookup failed, judging without context", zap.Error(err))
		existing = nil
	}

	var sb strings.Builder
	if len(existing) == 0 {
		sb.WriteString("(none)")
	}
	for _, scored := range existing {
		fmt.Fprintf(&sb, "- [%s] %s (confidence %.2f)\n",
			scored.Rule.ID, scored.Rule.Principle, scored.Rule.Confidence)
	}

	raw, err := p.llm.Complete(ctx, fmt.Sprintf(judgePrompt, principle, sb.String()))
	if err != nil {
		p.terminate(logger, stageJudge, "generation unavailable: "+err.Error())
		return false, "", false
	}

	var verdict struct {
		Useful     bool   `json:"useful"`
		Supersedes string `json:"supersedes"`
		Reason     string `json:"reason"`
	}
	if err := decodeJSON(raw, &verdict); err != nil {
		p.terminate(logger, stageJudge, "unparseable verdict")
		return false, "", false
	}
	if !verdict.Useful {
		p.terminate(logger, stageJudge, verdict.Reason)
		return false, "", true
	}
	return true, strings.TrimSpace(verdict.Supersedes), true
}
