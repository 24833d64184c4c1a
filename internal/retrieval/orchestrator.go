package retrieval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/veridianlabs/guidanced/internal/casebase"
	"github.com/veridianlabs/guidanced/internal/telemetry"
)

var tracer = otel.Tracer("guidanced/retrieval")

const (
	// DefaultLimit is the per-source result cap.
	DefaultLimit = 5

	// DefaultSourceTimeout bounds each source retrieval. A slow source
	// degrades to empty rather than stalling the turn.
	DefaultSourceTimeout = 2 * time.Second
)

// Source names used in logs, metrics and Context.Degraded.
const (
	SourceMemories = "memstream"
	SourceCases    = "casebase"
	SourceRules    = "rulesbase"
)

// Orchestrator issues the three retrievals concurrently and assembles a
// Context. A failed or timed-out source contributes an empty slice;
// retrieval degradation narrows the context but never blocks the turn.
type Orchestrator struct {
	memories MemorySource
	cases    CaseSource
	rules    RuleSource
	logger   *zap.Logger

	limit         int
	sourceTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimit sets the per-source result cap.
func WithLimit(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.limit = k
		}
	}
}

// WithSourceTimeout sets the per-source retrieval deadline.
func WithSourceTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.sourceTimeout = d
		}
	}
}

// NewOrchestrator creates an orchestrator over the three sources.
func NewOrchestrator(memories MemorySource, cases CaseSource, rules RuleSource, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if memories == nil || cases == nil || rules == nil {
		return nil, fmt.Errorf("all three retrieval sources are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		memories:      memories,
		cases:         cases,
		rules:         rules,
		logger:        logger.Named("retrieval"),
		limit:         DefaultLimit,
		sourceTimeout: DefaultSourceTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RetrieveContext fans the query out to all three sources and waits for
// all of them. taskType and domain are optional filters for the case
// and rule sources respectively. Empty stores yield an empty Context,
// not an error.
func (o *Orchestrator) RetrieveContext(ctx context.Context, query string, taskType casebase.TaskType, domain string) (*Context, error) {
	ctx, span := tracer.Start(ctx, "retrieval.retrieve_context",
		trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("query.task_type", string(taskType)),
		attribute.String("query.domain", domain),
		attribute.Int("limit", o.limit),
	)
	defer span.End()

	start := time.Now()
	result := &Context{Query: query}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		degraded []string
	)

	fail := func(source string, err error) {
		o.logger.Warn("retrieval source degraded",
			zap.String("source", source),
			zap.Error(err))
		telemetry.RetrievalSourceFailures.WithLabelValues(source).Inc()
		mu.Lock()
		degraded = append(degraded, source)
		mu.Unlock()
	}

	wg.Add(3)

	go func() {
		defer wg.Done()
		srcCtx, cancel := context.WithTimeout(ctx, o.sourceTimeout)
		defer cancel()
		nodes, err := o.memories.Retrieve(srcCtx, query, o.limit)
		if err != nil {
			fail(SourceMemories, err)
			return
		}
		result.Memories = nodes
	}()

	go func() {
		defer wg.Done()
		srcCtx, cancel := context.WithTimeout(ctx, o.sourceTimeout)
		defer cancel()
		cases, err := o.cases.Retrieve(srcCtx, query, taskType, o.limit)
		if err != nil {
			fail(SourceCases, err)
			return
		}
		result.Cases = cases
	}()

	go func() {
		defer wg.Done()
		srcCtx, cancel := context.WithTimeout(ctx, o.sourceTimeout)
		defer cancel()
		rules, err := o.rules.Retrieve(srcCtx, query, domain, o.limit)
		if err != nil {
			fail(SourceRules, err)
			return
		}
		result.Rules = rules
	}()

	wg.Wait()
	result.Degraded = degraded

	o.touchCases(ctx, result.Cases)

	telemetry.RetrievalDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("results.memories", len(result.Memories)),
		attribute.Int("results.cases", len(result.Cases)),
		attribute.Int("results.rules", len(result.Rules)),
		attribute.Int("results.degraded", len(degraded)),
	)

	o.logger.Debug("context assembled",
		zap.Int("memories", len(result.Memories)),
		zap.Int("cases", len(result.Cases)),
		zap.Int("rules", len(result.Rules)),
		zap.Strings("degraded", degraded),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// touchCases records usage on returned cases. Accounting failures are
// logged, not propagated; usage counts are advisory.
func (o *Orchestrator) touchCases(ctx context.Context, cases []casebase.Case) {
	for _, c := range cases {
		if err := o.cases.MarkUsed(ctx, c.ID); err != nil {
			o.logger.Warn("case usage accounting failed",
				zap.String("id", c.ID), zap.Error(err))
		}
	}
}
