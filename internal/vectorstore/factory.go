package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Backend identifies a vector store implementation.
type Backend string

const (
	// BackendMemory selects the brute-force in-process store.
	BackendMemory Backend = "memory"

	// BackendChromem selects the embedded chromem-go store.
	BackendChromem Backend = "chromem"
)

// Config selects and configures a vector store backend.
type Config struct {
	// Backend is the implementation to use: "memory" or "chromem".
	Backend Backend `koanf:"backend"`

	// Chromem configures the chromem backend; ignored for memory.
	Chromem ChromemConfig `koanf:"chromem"`
}

// New creates a Store for the configured backend. The collection name
// overrides any collection set in the chromem sub-config, so the engine
// can derive one store per knowledge base from a single Config.
func New(cfg Config, collection string, logger *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendChromem:
		chromemCfg := cfg.Chromem
		if collection != "" {
			chromemCfg.Collection = collection
		}
		return NewChromemStore(chromemCfg, logger)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, cfg.Backend)
	}
}
