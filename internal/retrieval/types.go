// Package retrieval assembles the context for a conversation turn by
// fanning a query out to the memory stream, case base and rules base.
package retrieval

import (
	"context"

	"github.com/veridianlabs/guidanced/internal/casebase"
	"github.com/veridianlabs/guidanced/internal/memstream"
	"github.com/veridianlabs/guidanced/internal/rulesbase"
)

// Context is the assembled retrieval result for one query. It is
// ephemeral: built per turn and discarded after generation.
type Context struct {
	// Query is the text the context was retrieved for.
	Query string

	// Memories are scored memory nodes, best first.
	Memories []memstream.ScoredNode

	// Cases are successful exemplars, most similar first.
	Cases []casebase.Case

	// Rules are guidance rules ranked by similarity × confidence.
	Rules []rulesbase.ScoredRule

	// Degraded lists sources that failed or timed out and were
	// substituted with an empty result.
	Degraded []string
}

// Empty reports whether no source contributed anything.
func (c *Context) Empty() bool {
	return len(c.Memories) == 0 && len(c.Cases) == 0 && len(c.Rules) == 0
}

// MemorySource retrieves scored memory nodes for a query.
type MemorySource interface {
	Retrieve(ctx context.Context, query string, k int) ([]memstream.ScoredNode, error)
}

// CaseSource retrieves successful exemplars for a query.
type CaseSource interface {
	Retrieve(ctx context.Context, query string, taskType casebase.TaskType, k int) ([]casebase.Case, error)
	MarkUsed(ctx context.Context, id string) error
}

// RuleSource retrieves confidence-ranked guidance rules for a query.
type RuleSource interface {
	Retrieve(ctx context.Context, query, domain string, k int) ([]rulesbase.ScoredRule, error)
}
