// Package memstream implements the observation/reflection/plan memory
// stream with composite recency + importance + relevance retrieval.
package memstream

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for memory stream operations.
var (
	ErrNilNode           = errors.New("node cannot be nil")
	ErrEmptyDescription  = errors.New("node description cannot be empty")
	ErrInvalidType       = errors.New("node type must be observation, reflection or plan")
	ErrInvalidImportance = errors.New("importance must be between 0.0 and 1.0")
	ErrMissingCitations  = errors.New("reflection must cite at least one earlier node")
	ErrCitationNotFound  = errors.New("cited node does not exist")
	ErrCitationOrder     = errors.New("reflection may only cite nodes created earlier")
)

// NodeType classifies a memory node.
type NodeType string

const (
	// NodeObservation is a directly perceived event.
	NodeObservation NodeType = "observation"

	// NodeReflection is a higher-level inference synthesized from
	// earlier nodes, which it must cite.
	NodeReflection NodeType = "reflection"

	// NodePlan is an intended future action.
	NodePlan NodeType = "plan"
)

func validNodeType(t NodeType) bool {
	return t == NodeObservation || t == NodeReflection || t == NodePlan
}

// Node is an atomic unit of experience in the memory stream.
//
// Nodes are logically append-only: LastAccessed is the only field mutated
// after creation, touched by every retrieval that returns the node.
type Node struct {
	// ID is the unique node identifier (UUID), assigned on Add.
	ID string `json:"id"`

	// Description is the free-text content of the memory.
	Description string `json:"description"`

	// Type classifies the node.
	Type NodeType `json:"type"`

	// CreatedAt is when the node was created.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessed is updated every time the node is retrieved.
	LastAccessed time.Time `json:"last_accessed"`

	// Importance is the poignancy of the memory in [0, 1].
	Importance float64 `json:"importance"`

	// Embedding is the vector of the description. Not serialized into
	// the payload; the store indexes it separately.
	Embedding []float32 `json:"-"`

	// Citations lists the IDs of nodes that justify a reflection,
	// ordered as cited. Empty for observations and plans.
	Citations []string `json:"citations,omitempty"`
}

// NewNode creates a node with a generated UUID and creation timestamps.
func NewNode(description string, nodeType NodeType, importance float64) (*Node, error) {
	if description == "" {
		return nil, ErrEmptyDescription
	}
	if !validNodeType(nodeType) {
		return nil, ErrInvalidType
	}
	if importance < 0.0 || importance > 1.0 {
		return nil, ErrInvalidImportance
	}

	now := time.Now()
	return &Node{
		ID:           uuid.New().String(),
		Description:  description,
		Type:         nodeType,
		CreatedAt:    now,
		LastAccessed: now,
		Importance:   importance,
	}, nil
}

// Validate checks node field invariants. Citation ordering is checked at
// Add time since it needs store access.
func (n *Node) Validate() error {
	if n == nil {
		return ErrNilNode
	}
	if n.Description == "" {
		return ErrEmptyDescription
	}
	if !validNodeType(n.Type) {
		return ErrInvalidType
	}
	if n.Importance < 0.0 || n.Importance > 1.0 {
		return ErrInvalidImportance
	}
	if n.Type == NodeReflection && len(n.Citations) == 0 {
		return ErrMissingCitations
	}
	return nil
}

// ScoredNode pairs a retrieved node with its composite retrieval score.
type ScoredNode struct {
	Node  Node
	Score float64
}
