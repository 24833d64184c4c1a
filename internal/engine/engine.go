// Package engine assembles the memory and learning components into the
// three operations the conversation-turn driver calls: context
// retrieval, compliance validation, and outcome recording.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/veridianlabs/guidanced/internal/casebase"
	"github.com/veridianlabs/guidanced/internal/compliance"
	"github.com/veridianlabs/guidanced/internal/config"
	"github.com/veridianlabs/guidanced/internal/embeddings"
	"github.com/veridianlabs/guidanced/internal/knowledge"
	"github.com/veridianlabs/guidanced/internal/learning"
	"github.com/veridianlabs/guidanced/internal/llm"
	"github.com/veridianlabs/guidanced/internal/memstream"
	"github.com/veridianlabs/guidanced/internal/retrieval"
	"github.com/veridianlabs/guidanced/internal/rulesbase"
	"github.com/veridianlabs/guidanced/internal/scoring"
	"github.com/veridianlabs/guidanced/internal/vectorstore"
)

// Collection names, one vector store per knowledge base.
const (
	collectionMemories = "guidanced_memories"
	collectionCases    = "guidanced_cases"
	collectionRules    = "guidanced_rules"
)

// Engine owns the assembled components and their stores.
type Engine struct {
	stream       *memstream.Stream
	cases        *casebase.Base
	rules        *rulesbase.Base
	orchestrator *retrieval.Orchestrator
	validator    *compliance.Validator
	pipeline     *learning.Pipeline
	logger       *zap.Logger

	stores []vectorstore.Store
}

// Options carries injectable collaborators. Zero-value fields are built
// from configuration; tests inject fakes.
type Options struct {
	Embedder embeddings.Provider
	LLM      llm.Client
	Judges   []compliance.Judge
	Checker  knowledge.Checker
}

// New assembles an engine from configuration.
func New(cfg *config.Config, logger *zap.Logger, opts Options) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	embedder := opts.Embedder
	if embedder == nil {
		var err error
		embedder, err = embeddings.NewProvider(embeddings.Config{
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
			APIKey:  cfg.Embeddings.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("building embedding provider: %w", err)
		}
	}

	client := opts.LLM
	if client == nil {
		var err error
		client, err = llm.NewAnthropicClient(llm.Config{
			APIKey:    cfg.LLM.APIKey,
			Model:     cfg.LLM.Model,
			BaseURL:   cfg.LLM.BaseURL,
			Timeout:   int(cfg.LLM.Timeout.Seconds()),
			MaxTokens: cfg.LLM.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("building llm client: %w", err)
		}
	}

	checker := opts.Checker
	if checker == nil {
		checker = knowledge.NewStaticChecker()
	}

	judges := opts.Judges
	if len(judges) == 0 {
		for i := 0; i < cfg.Compliance.Judges; i++ {
			judge, err := compliance.NewLLMJudge(client)
			if err != nil {
				return nil, fmt.Errorf("building judge: %w", err)
			}
			judges = append(judges, judge)
		}
	}

	storeCfg := vectorstore.Config{
		Backend: vectorstore.Backend(cfg.Store.Backend),
		Chromem: vectorstore.ChromemConfig{
			Path:       cfg.Store.Path,
			Compress:   cfg.Store.Compress,
			VectorSize: embedder.Dimension(),
		},
	}

	e := &Engine{logger: logger.Named("engine")}

	memStore, err := e.openStore(storeCfg, collectionMemories, logger)
	if err != nil {
		return nil, err
	}
	caseStore, err := e.openStore(storeCfg, collectionCases, logger)
	if err != nil {
		return nil, err
	}
	ruleStore, err := e.openStore(storeCfg, collectionRules, logger)
	if err != nil {
		return nil, err
	}

	e.stream, err = memstream.NewStream(memStore, embedder, logger,
		memstream.WithWeights(scoring.Weights{
			Recency:    cfg.Scoring.RecencyWeight,
			Importance: cfg.Scoring.ImportanceWeight,
			Relevance:  cfg.Scoring.RelevanceWeight,
		}),
		memstream.WithDecayRate(cfg.Scoring.DecayRate))
	if err != nil {
		return nil, fmt.Errorf("building memory stream: %w", err)
	}

	e.cases, err = casebase.NewBase(caseStore, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("building case base: %w", err)
	}

	e.rules, err = rulesbase.NewBase(ruleStore, embedder, logger,
		rulesbase.WithLearningRate(cfg.Learning.LearningRate))
	if err != nil {
		return nil, fmt.Errorf("building rules base: %w", err)
	}

	e.orchestrator, err = retrieval.NewOrchestrator(e.stream, e.cases, e.rules, logger,
		retrieval.WithLimit(cfg.Retrieval.Limit),
		retrieval.WithSourceTimeout(cfg.Retrieval.SourceTimeout))
	if err != nil {
		return nil, fmt.Errorf("building orchestrator: %w", err)
	}

	e.validator, err = compliance.NewValidator(judges, logger,
		compliance.WithMode(compliance.Mode(cfg.Compliance.Mode)),
		compliance.WithThreshold(compliance.ModeTraining, cfg.Compliance.TrainingThreshold),
		compliance.WithThreshold(compliance.ModeProduction, cfg.Compliance.ProductionThreshold),
		compliance.WithJudgeTimeout(cfg.Compliance.JudgeTimeout))
	if err != nil {
		return nil, fmt.Errorf("building validator: %w", err)
	}

	e.pipeline, err = learning.NewPipeline(e.cases, e.rules, client, checker, logger,
		learning.WithSuccessThreshold(cfg.Learning.SuccessThreshold))
	if err != nil {
		return nil, fmt.Errorf("building learning pipeline: %w", err)
	}

	return e, nil
}

func (e *Engine) openStore(cfg vectorstore.Config, collection string, logger *zap.Logger) (vectorstore.Store, error) {
	store, err := vectorstore.New(cfg, collection, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", collection, err)
	}
	e.stores = append(e.stores, store)
	return store, nil
}

// RetrieveContext assembles the context for one query.
func (e *Engine) RetrieveContext(ctx context.Context, query string, taskType casebase.TaskType, domain string) (*retrieval.Context, error) {
	return e.orchestrator.RetrieveContext(ctx, query, taskType, domain)
}

// Validate gates a piece of generated guidance.
func (e *Engine) Validate(ctx context.Context, guidance, situation, reasoning string) (*compliance.Result, error) {
	return e.validator.Validate(ctx, compliance.Request{
		Guidance:  guidance,
		Situation: situation,
		Reasoning: reasoning,
	})
}

// RecordOutcome feeds a completed interaction into the learning
// pipeline. appliedRules names the rules the turn driver surfaced for
// the interaction; their confidence moves with the outcome.
func (e *Engine) RecordOutcome(ctx context.Context, interactionID, situation, guidance string, outcome casebase.Outcome, appliedRules []string) (learning.Report, error) {
	return e.pipeline.RecordOutcome(ctx, interactionID, situation, guidance, outcome, appliedRules)
}

// AddMemory appends a node to the memory stream, for callers recording
// perceptions or reflections directly.
func (e *Engine) AddMemory(ctx context.Context, node *memstream.Node) error {
	return e.stream.Add(ctx, node)
}

// Close releases every store the engine opened.
func (e *Engine) Close() error {
	var firstErr error
	for _, store := range e.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
