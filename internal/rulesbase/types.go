// Package rulesbase stores distilled guidance rules with confidence
// scores that evolve as outcomes confirm or contradict them.
package rulesbase

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidRule indicates a rule that fails validation.
	ErrInvalidRule = errors.New("invalid rule")

	// ErrRuleNotFound indicates the rule ID is unknown.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrEmptyPrinciple indicates a rule with no principle text.
	ErrEmptyPrinciple = errors.New("rule principle cannot be empty")

	// ErrEmptyDomain indicates a rule with no domain tag.
	ErrEmptyDomain = errors.New("rule domain cannot be empty")

	// ErrInvalidConfidence indicates a confidence outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be in [0, 1]")
)

// DefaultInitialConfidence is assigned to rules produced by the
// learning pipeline before any outcome has confirmed them.
const DefaultInitialConfidence = 0.6

// Rule is a generalized guidance principle distilled from failed
// interactions. Confidence reflects how often applying the rule has
// coincided with good outcomes.
type Rule struct {
	// ID is a UUID assigned at creation.
	ID string `json:"id"`

	// Principle is the rule statement, phrased as actionable guidance.
	Principle string `json:"principle"`

	// Domain is a lowercase topic tag such as "transfers" or "tax".
	Domain string `json:"domain"`

	// Confidence in [0, 1]. Updated asymptotically on outcomes.
	Confidence float64 `json:"confidence"`

	// Evidence lists interaction IDs the rule was distilled from.
	Evidence []string `json:"evidence,omitempty"`

	// SupersededBy holds the ID of a refined replacement rule, if any.
	// Superseded rules are kept for audit but excluded from retrieval.
	SupersededBy string `json:"superseded_by,omitempty"`

	// Embedding of the principle. Indexed by the store, not serialized
	// into the payload.
	Embedding []float32 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRule creates a rule with a generated UUID and the default initial
// confidence.
func NewRule(principle, domain string, evidence []string) (*Rule, error) {
	r := &Rule{
		ID:         uuid.New().String(),
		Principle:  principle,
		Domain:     strings.ToLower(strings.TrimSpace(domain)),
		Confidence: DefaultInitialConfidence,
		Evidence:   evidence,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks rule invariants.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Principle) == "" {
		return ErrEmptyPrinciple
	}
	if r.Domain == "" {
		return ErrEmptyDomain
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return ErrInvalidConfidence
	}
	return nil
}

// Superseded reports whether a refined replacement exists.
func (r *Rule) Superseded() bool {
	return r.SupersededBy != ""
}

// ScoredRule pairs a rule with its retrieval score
// (similarity × confidence).
type ScoredRule struct {
	Rule  *Rule
	Score float64
}
