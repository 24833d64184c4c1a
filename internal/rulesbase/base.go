package rulesbase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/veridianlabs/guidanced/internal/embeddings"
	"github.com/veridianlabs/guidanced/internal/vectorstore"
)

const (
	// DefaultRetrieveLimit is the default k for Retrieve.
	DefaultRetrieveLimit = 5

	// DefaultLearningRate is the step size for confidence updates.
	DefaultLearningRate = 0.1

	// overfetchFactor widens the candidate pool before re-ranking.
	// Pure similarity order and similarity×confidence order can
	// disagree, so the top k by final score may sit outside the top k
	// by similarity alone.
	overfetchFactor = 2
)

// Base stores guidance rules and retrieves them by
// similarity × confidence, so a highly relevant but unproven rule
// ranks below a slightly less relevant rule with a strong track
// record.
type Base struct {
	store    vectorstore.Store
	embedder embeddings.Provider
	logger   *zap.Logger
	eta      float64

	// locks serializes read-modify-write confidence updates per rule.
	// Updates to different rules proceed concurrently.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Base.
type Option func(*Base)

// WithLearningRate overrides the confidence update step size.
func WithLearningRate(eta float64) Option {
	return func(b *Base) {
		if eta > 0 && eta < 1 {
			b.eta = eta
		}
	}
}

// NewBase creates a rules base over the given store and embedder.
func NewBase(store vectorstore.Store, embedder embeddings.Provider, logger *zap.Logger, opts ...Option) (*Base, error) {
	if store == nil {
		return nil, fmt.Errorf("vector store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Base{
		store:    store,
		embedder: embedder,
		logger:   logger.Named("rulesbase"),
		eta:      DefaultLearningRate,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Add stores a rule, embedding its principle if no embedding is set.
func (b *Base) Add(ctx context.Context, r *Rule) error {
	if r == nil {
		return fmt.Errorf("%w: rule cannot be nil", ErrInvalidRule)
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if len(r.Embedding) == 0 {
		vec, err := b.embedder.EmbedQuery(ctx, r.Principle)
		if err != nil {
			return fmt.Errorf("embedding principle: %w", err)
		}
		r.Embedding = vec
	}

	if err := b.store.Upsert(ctx, b.ruleToDocument(r)); err != nil {
		return fmt.Errorf("storing rule: %w", err)
	}

	b.logger.Info("rule added",
		zap.String("id", r.ID),
		zap.String("domain", r.Domain),
		zap.Float64("confidence", r.Confidence))

	return nil
}

// Retrieve returns up to k active rules relevant to the query, ordered
// by similarity × confidence descending. A non-empty domain restricts
// results to that domain tag. It fetches a wider candidate pool by
// similarity first, then re-ranks, so confident rules can overtake
// marginally more similar unproven ones.
func (b *Base) Retrieve(ctx context.Context, query, domain string, k int) ([]ScoredRule, error) {
	if k <= 0 {
		k = DefaultRetrieveLimit
	}

	vec, err := b.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	filters := map[string]string{"active": "true"}
	if domain != "" {
		filters["domain"] = strings.ToLower(strings.TrimSpace(domain))
	}

	matches, err := b.store.Search(ctx, vec, k*overfetchFactor, filters)
	if err != nil {
		return nil, fmt.Errorf("searching rules: %w", err)
	}

	scored := make([]ScoredRule, 0, len(matches))
	for _, m := range matches {
		r, err := documentToRule(&m.Document)
		if err != nil {
			b.logger.Warn("skipping undecodable rule",
				zap.String("id", m.ID), zap.Error(err))
			continue
		}
		scored = append(scored, ScoredRule{
			Rule:  r,
			Score: float64(m.Similarity) * r.Confidence,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Rule.CreatedAt.Before(scored[j].Rule.CreatedAt)
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Get retrieves a rule by ID.
func (b *Base) Get(ctx context.Context, id string) (*Rule, error) {
	doc, err := b.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
		}
		return nil, fmt.Errorf("getting rule: %w", err)
	}
	return documentToRule(doc)
}

// UpdateConfidence applies an asymptotic confidence update and returns
// the new value. Success moves confidence toward 1, failure toward 0;
// neither bound is ever reached from the interior, so a rule always
// retains some capacity to recover.
//
// The read-modify-write is serialized per rule: concurrent updates to
// the same rule apply in sequence, never lost.
func (b *Base) UpdateConfidence(ctx context.Context, id string, success bool) (float64, error) {
	lock := b.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	r, err := b.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	old := r.Confidence
	if success {
		r.Confidence = old + b.eta*(1-old)
	} else {
		r.Confidence = old - b.eta*old
	}
	if r.Confidence < 0 {
		r.Confidence = 0
	} else if r.Confidence > 1 {
		r.Confidence = 1
	}
	r.UpdatedAt = time.Now()

	if err := b.store.Upsert(ctx, b.ruleToDocument(r)); err != nil {
		return 0, fmt.Errorf("storing updated rule: %w", err)
	}

	b.logger.Debug("rule confidence updated",
		zap.String("id", id),
		zap.Bool("success", success),
		zap.Float64("old", old),
		zap.Float64("new", r.Confidence))

	return r.Confidence, nil
}

// Supersede marks oldID as replaced by newID. The superseded rule is
// kept for audit but excluded from retrieval. The replacement must
// already exist.
func (b *Base) Supersede(ctx context.Context, oldID, newID string) error {
	if _, err := b.Get(ctx, newID); err != nil {
		return fmt.Errorf("replacement rule: %w", err)
	}

	lock := b.lockFor(oldID)
	lock.Lock()
	defer lock.Unlock()

	old, err := b.Get(ctx, oldID)
	if err != nil {
		return err
	}
	old.SupersededBy = newID
	old.UpdatedAt = time.Now()

	if err := b.store.Upsert(ctx, b.ruleToDocument(old)); err != nil {
		return fmt.Errorf("storing superseded rule: %w", err)
	}

	b.logger.Info("rule superseded",
		zap.String("old", oldID), zap.String("new", newID))
	return nil
}

// Count returns the number of stored rules, superseded included.
func (b *Base) Count(ctx context.Context) (int, error) {
	return b.store.Count(ctx)
}

// Close releases the underlying store.
func (b *Base) Close() error {
	return b.store.Close()
}

func (b *Base) lockFor(id string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[id]
	if !ok {
		l = &sync.Mutex{}
		b.locks[id] = l
	}
	return l
}

func (b *Base) ruleToDocument(r *Rule) vectorstore.Document {
	payload, _ := json.Marshal(r)
	active := "true"
	if r.Superseded() {
		active = "false"
	}
	return vectorstore.Document{
		ID:        r.ID,
		Embedding: r.Embedding,
		Payload:   payload,
		Fields: map[string]string{
			"domain": r.Domain,
			"active": active,
		},
	}
}

func documentToRule(doc *vectorstore.Document) (*Rule, error) {
	var r Rule
	if err := json.Unmarshal(doc.Payload, &r); err != nil {
		return nil, fmt.Errorf("decoding rule payload: %w", err)
	}
	r.Embedding = doc.Embedding
	return &r, nil
}
