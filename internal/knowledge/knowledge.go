// Package knowledge provides the compliance knowledge collaborator the
// learning pipeline consults before a candidate principle becomes a
// stored rule.
package knowledge

import (
	"context"
	"strings"
)

// ConsistencyResult is the verdict on a candidate principle.
type ConsistencyResult struct {
	// Consistent is true when the principle does not conflict with the
	// guidance boundary.
	Consistent bool

	// Reason explains a negative verdict.
	Reason string
}

// Checker validates candidate principles against the compliance
// knowledge base. A negative verdict is a rejection, not an error;
// errors are reserved for the checker itself being unavailable.
type Checker interface {
	CheckConsistency(ctx context.Context, principle string) (ConsistencyResult, error)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, principle string) (ConsistencyResult, error)

func (f CheckerFunc) CheckConsistency(ctx context.Context, principle string) (ConsistencyResult, error) {
	return f(ctx, principle)
}

// StaticChecker rejects principles that would push generated guidance
// across the advice boundary. It is the in-process default; deployments
// with a richer knowledge service inject their own Checker.
type StaticChecker struct {
	inconsistent []string
}

// NewStaticChecker creates a checker with the built-in phrase battery.
func NewStaticChecker() *StaticChecker {
	return &StaticChecker{
		inconsistent: []string{
			"recommend transferring",
			"you should transfer",
			"best pension provider",
			"guaranteed returns",
			"tell the customer which",
			"choose a specific fund",
			"skip the risk warning",
			"do not mention regulated advice",
		},
	}
}

// CheckConsistency reports whether the principle is compatible with the
// guidance boundary.
func (c *StaticChecker) CheckConsistency(_ context.Context, principle string) (ConsistencyResult, error) {
	lower := strings.ToLower(principle)
	for _, phrase := range c.inconsistent {
		if strings.Contains(lower, phrase) {
			return ConsistencyResult{
				Consistent: false,
				Reason:     "principle would direct guidance toward regulated advice: " + phrase,
			}, nil
		}
	}
	return ConsistencyResult{Consistent: true}, nil
}
