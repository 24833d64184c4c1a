// Package learning turns completed interactions into durable knowledge:
// successful outcomes become cases, failures are reflected on and may
// become confidence-scored guidance rules.
package learning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/veridianlabs/guidanced/internal/casebase"
	"github.com/veridianlabs/guidanced/internal/knowledge"
	"github.com/veridianlabs/guidanced/internal/llm"
	"github.com/veridianlabs/guidanced/internal/rulesbase"
	"github.com/veridianlabs/guidanced/internal/telemetry"
)

// DefaultSuccessThreshold is the minimum mean outcome quality for an
// interaction to count as a success worth storing as a case.
const DefaultSuccessThreshold = 7.0

// ErrEmptyInteraction indicates a RecordOutcome call with no
// interaction ID.
var ErrEmptyInteraction = errors.New("interaction ID cannot be empty")

// Report summarizes what an outcome event changed.
type Report struct {
	// CaseAdded is true when the success path stored a new case.
	CaseAdded bool `json:"case_added"`

	// RuleAdded is true when the reflection path stored a new rule.
	RuleAdded bool `json:"rule_added"`

	// RuleID is the new rule's ID when RuleAdded is true.
	RuleID string `json:"rule_id,omitempty"`

	// RulesReinforced counts the applied rules whose confidence was
	// adjusted for this outcome.
	RulesReinforced int `json:"rules_reinforced,omitempty"`
}

// Pipeline processes outcome events. One pipeline instance serializes
// its own writes; retrieval reads proceed concurrently against the
// underlying bases.
type Pipeline struct {
	cases   *casebase.Base
	rules   *rulesbase.Base
	llm     llm.Client
	checker knowledge.Checker
	logger  *zap.Logger

	successThreshold float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSuccessThreshold overrides the quality bar for case extraction.
func WithSuccessThreshold(threshold float64) Option {
	return func(p *Pipeline) {
		if threshold >= 0 && threshold <= 10 {
			p.successThreshold = threshold
		}
	}
}

// NewPipeline creates a learning pipeline over the two knowledge bases.
func NewPipeline(cases *casebase.Base, rules *rulesbase.Base, client llm.Client, checker knowledge.Checker, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	if cases == nil {
		return nil, fmt.Errorf("case base cannot be nil")
	}
	if rules == nil {
		return nil, fmt.Errorf("rules base cannot be nil")
	}
	if client == nil {
		return nil, fmt.Errorf("llm client cannot be nil")
	}
	if checker == nil {
		return nil, fmt.Errorf("knowledge checker cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		cases:            cases,
		rules:            rules,
		llm:              client,
		checker:          checker,
		logger:           logger.Named("learning"),
		successThreshold: DefaultSuccessThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// RecordOutcome routes a completed interaction into the success or
// failure flow. Early termination of either flow is a first-class
// outcome, not an error: the report simply shows nothing was added.
//
// appliedRules names the rules that shaped the delivered guidance; each
// has its confidence adjusted toward the outcome before the flow runs.
func (p *Pipeline) RecordOutcome(ctx context.Context, interactionID, situation, guidance string, outcome casebase.Outcome, appliedRules []string) (Report, error) {
	if strings.TrimSpace(interactionID) == "" {
		return Report{}, ErrEmptyInteraction
	}
	if !outcome.Valid() {
		return Report{}, fmt.Errorf("outcome scores must be on the 0-10 scale")
	}

	success := outcome.Compliant && outcome.Quality() >= p.successThreshold
	reinforced := p.reinforceRules(ctx, interactionID, appliedRules, success)

	if success {
		added, err := p.extractCase(ctx, interactionID, situation, guidance, outcome)
		if err != nil {
			return Report{}, err
		}
		return Report{CaseAdded: added, RulesReinforced: reinforced}, nil
	}

	ruleID, err := p.reflect(ctx, interactionID, situation, guidance, outcome)
	if err != nil {
		return Report{}, err
	}
	return Report{RuleAdded: ruleID != "", RuleID: ruleID, RulesReinforced: reinforced}, nil
}

// reinforceRules feeds the outcome back into the confidence of each
// applied rule. A rule that has since disappeared is logged and
// skipped; attribution failures never abort outcome processing.
func (p *Pipeline) reinforceRules(ctx context.Context, interactionID string, ruleIDs []string, success bool) int {
	reinforced := 0
	for _, id := range ruleIDs {
		if strings.TrimSpace(id) == "" {
			continue
		}
		confidence, err := p.rules.UpdateConfidence(ctx, id, success)
		if err != nil {
			p.logger.Warn("rule confidence update skipped",
				zap.String("interaction_id", interactionID),
				zap.String("rule_id", id),
				zap.Error(err))
			continue
		}
		reinforced++
		p.logger.Debug("rule confidence updated",
			zap.String("rule_id", id),
			zap.Bool("success", success),
			zap.Float64("confidence", confidence))
	}
	return reinforced
}

// extractCase runs the success flow: classify, summarize, store. A
// duplicate interaction is rejected idempotently and reported as
// not-added; an unavailable model degrades the same way.
func (p *Pipeline) extractCase(ctx context.Context, interactionID, situation, guidance string, outcome casebase.Outcome) (bool, error) {
	taskType := p.classifyTask(ctx, situation)

	summary, err := p.summarize(ctx, situation)
	if err != nil {
		p.logger.Warn("case extraction degraded, summarization unavailable",
			zap.String("interaction_id", interactionID),
			zap.Error(err))
		return false, nil
	}

	c, err := casebase.NewCase(interactionID, taskType, summary, guidance, outcome)
	if err != nil {
		return false, fmt.Errorf("building case: %w", err)
	}

	if err := p.cases.Add(ctx, c); err != nil {
		if errors.Is(err, casebase.ErrDuplicateInteraction) {
			p.logger.Debug("case already extracted",
				zap.String("interaction_id", interactionID))
			return false, nil
		}
		return false, fmt.Errorf("storing case: %w", err)
	}

	telemetry.CasesExtracted.Inc()
	p.logger.Info("case extracted",
		zap.String("interaction_id", interactionID),
		zap.String("task_type", string(taskType)),
		zap.Float64("quality", outcome.Quality()))
	return true, nil
}

const classifyPrompt = `Classify the customer situation into exactly one task category.

Categories: transfer, consolidation, withdrawal, contributions, retirement_age, general

SITUATION:
%s

Respond with only the category token.`

// classifyTask maps a situation onto the task enumeration. An
// unavailable model or an off-enum answer falls back to general.
func (p *Pipeline) classifyTask(ctx context.Context, situation string) casebase.TaskType {
	raw, err := p.llm.Complete(ctx, fmt.Sprintf(classifyPrompt, situation))
	if err != nil {
		p.logger.Warn("task classification unavailable", zap.Error(err))
		return casebase.TaskGeneral
	}

	candidate := casebase.TaskType(strings.ToLower(strings.TrimSpace(raw)))
	if !casebase.ValidTaskType(candidate) {
		p.logger.Warn("task classification off enum", zap.String("raw", raw))
		return casebase.TaskGeneral
	}
	return candidate
}

const summarizePrompt = `Summarize this customer situation in two or three sentences, keeping the facts needed to match it against similar future situations. Do not include the customer's name or any identifying detail.

SITUATION:
%s`

func (p *Pipeline) summarize(ctx context.Context, situation string) (string, error) {
	raw, err := p.llm.Complete(ctx, fmt.Sprintf(summarizePrompt, situation))
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(raw)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}

// stripFences removes a markdown code fence around a model response.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func decodeJSON(content string, v any) error {
	return json.Unmarshal([]byte(stripFences(content)), v)
}
