// Package casebase stores successful interaction exemplars and retrieves
// them by semantic similarity.
package casebase

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for case base operations.
var (
	// ErrInvalidCase is returned when a case violates the storage
	// contract, most importantly a non-compliant outcome.
	ErrInvalidCase = errors.New("invalid case")

	// ErrDuplicateInteraction is returned when a case for the same
	// interaction has already been stored.
	ErrDuplicateInteraction = errors.New("case already recorded for interaction")

	ErrEmptySituation = errors.New("case situation cannot be empty")
	ErrEmptyGuidance  = errors.New("case guidance cannot be empty")
	ErrInvalidTask    = errors.New("unknown task type")
)

// TaskType is the fixed enumeration of guidance task categories.
type TaskType string

const (
	TaskTransfer      TaskType = "transfer"
	TaskConsolidation TaskType = "consolidation"
	TaskWithdrawal    TaskType = "withdrawal"
	TaskContributions TaskType = "contributions"
	TaskRetirementAge TaskType = "retirement_age"
	TaskGeneral       TaskType = "general"
)

// ValidTaskType reports whether t is a known task category.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskTransfer, TaskConsolidation, TaskWithdrawal,
		TaskContributions, TaskRetirementAge, TaskGeneral:
		return true
	}
	return false
}

// Outcome records how an interaction went. The three quality scores are
// on a 0-10 scale; Compliant reflects the validator's verdict.
type Outcome struct {
	Satisfaction  float64 `json:"satisfaction"`
	Comprehension float64 `json:"comprehension"`
	GoalAlignment float64 `json:"goal_alignment"`
	Compliant     bool    `json:"compliant"`
}

// Quality is the mean of the three quality scores.
func (o Outcome) Quality() float64 {
	return (o.Satisfaction + o.Comprehension + o.GoalAlignment) / 3.0
}

// Valid reports whether every score is on the 0-10 scale.
func (o Outcome) Valid() bool {
	for _, v := range []float64{o.Satisfaction, o.Comprehension, o.GoalAlignment} {
		if v < 0.0 || v > 10.0 {
			return false
		}
	}
	return true
}

// Case is an immutable record of a successful interaction, stored as a
// ground-truth exemplar for future retrieval.
type Case struct {
	// ID is the unique case identifier (UUID).
	ID string `json:"id"`

	// InteractionID identifies the source interaction. At most one case
	// is stored per interaction (idempotency guard).
	InteractionID string `json:"interaction_id"`

	// TaskType is the guidance task category.
	TaskType TaskType `json:"task_type"`

	// Situation is the natural-language summary of the customer's
	// situation; its embedding indexes the case.
	Situation string `json:"situation"`

	// Guidance is the guidance text that was delivered.
	Guidance string `json:"guidance"`

	// Outcome is the recorded interaction outcome.
	Outcome Outcome `json:"outcome"`

	// UsageCount tracks how often this case has been retrieved.
	UsageCount int `json:"usage_count"`

	// Embedding of the situation summary. Indexed by the store, not
	// serialized into the payload.
	Embedding []float32 `json:"-"`

	// CreatedAt is when the case was extracted.
	CreatedAt time.Time `json:"created_at"`
}

// NewCase creates a case with a generated UUID.
func NewCase(interactionID string, taskType TaskType, situation, guidance string, outcome Outcome) (*Case, error) {
	if situation == "" {
		return nil, ErrEmptySituation
	}
	if guidance == "" {
		return nil, ErrEmptyGuidance
	}
	if !ValidTaskType(taskType) {
		return nil, ErrInvalidTask
	}

	return &Case{
		ID:            uuid.New().String(),
		InteractionID: interactionID,
		TaskType:      taskType,
		Situation:     situation,
		Guidance:      guidance,
		Outcome:       outcome,
		CreatedAt:     time.Now(),
	}, nil
}
