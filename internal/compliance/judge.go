package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/veridianlabs/guidanced/internal/llm"
)

// Verdict is one judge's evaluation of a piece of guidance.
type Verdict struct {
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Issues     []Issue `json:"issues,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Judge evaluates guidance independently of the other judges. An error
// or a deadline is treated as an abstention by the consensus, never as
// a vote.
type Judge interface {
	Evaluate(ctx context.Context, req Request) (Verdict, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, req Request) (Verdict, error)

func (f JudgeFunc) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	return f(ctx, req)
}

const judgePromptTemplate = `You are a compliance reviewer for a UK pension guidance service. The service may only provide educational guidance, never personalized financial advice.

Review this guidance for compliance:

CUSTOMER SITUATION:
%s

GUIDANCE GIVEN:
%s

AGENT REASONING:
%s

Evaluate whether the guidance stays within the guidance boundary: no personal recommendations, appropriate risk warnings, signposting to regulated advice where needed.

Respond with ONLY a JSON object:
{"passed": true or false, "confidence": 0.0 to 1.0, "issues": [{"category": "...", "severity": "critical|major|minor", "description": "..."}], "reasoning": "one or two sentences"}`

// LLMJudge asks a completion model for an independent compliance
// verdict.
type LLMJudge struct {
	client llm.Client
}

// NewLLMJudge creates a judge over the given completion client.
func NewLLMJudge(client llm.Client) (*LLMJudge, error) {
	if client == nil {
		return nil, fmt.Errorf("llm client cannot be nil")
	}
	return &LLMJudge{client: client}, nil
}

// Evaluate runs one judge evaluation.
func (j *LLMJudge) Evaluate(ctx context.Context, req Request) (Verdict, error) {
	prompt := fmt.Sprintf(judgePromptTemplate, req.Situation, req.Guidance, req.Reasoning)

	raw, err := j.client.Complete(ctx, prompt)
	if err != nil {
		return Verdict{}, fmt.Errorf("judge completion: %w", err)
	}

	verdict, err := parseVerdict(raw)
	if err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

// parseVerdict decodes a judge response, tolerating markdown fences
// around the JSON.
func parseVerdict(content string) (Verdict, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var v Verdict
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return Verdict{}, fmt.Errorf("parsing judge verdict: %w", err)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return Verdict{}, fmt.Errorf("judge confidence %v outside [0, 1]", v.Confidence)
	}
	return v, nil
}
