package adapter

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/config"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/errors"
	"github.com/cys813/crypto-trading-multi-agents-sub007/pkg/logger"
)

// Factory constructs an adapter for one source. The returned adapter is
// Uninitialized; the caller drives its lifecycle.
type Factory func(cfg config.SourceConfig, rel config.ReliabilityConfig) (SourceAdapter, error)

// Registry maps adapter type keys to constructors. It is an explicit
// instance passed to the composition root; tests create isolated
// registries instead of sharing process-wide state.
type Registry struct {
	factories map[string]Factory
	rel       config.ReliabilityConfig
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRegistry creates an empty registry. The reliability settings are
// handed to every factory at Create time.
func NewRegistry(rel config.ReliabilityConfig) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		rel:       rel,
		logger:    logger.Get().With(zap.String("component", "adapter_registry")),
	}
}

// Register associates a type key with a constructor. Re-registering a key
// overwrites the previous constructor.
func (r *Registry) Register(typeKey string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[typeKey]; exists {
		r.logger.Warn("adapter type re-registered", zap.String("type", typeKey))
	}
	r.factories[typeKey] = factory
	r.logger.Info("adapter type registered", zap.String("type", typeKey))
}

// Create builds a new Uninitialized adapter for the source configuration.
// An unregistered adapter type yields a classified configuration error.
func (r *Registry) Create(cfg config.SourceConfig) (SourceAdapter, error) {
	r.mu.RLock()
	factory, exists := r.factories[cfg.AdapterType]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.KindConfig,
			fmt.Sprintf("unsupported adapter type %q for source %s", cfg.AdapterType, cfg.Name))
	}

	a, err := factory(cfg, r.rel)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindConfig,
			fmt.Sprintf("failed to construct %s adapter for source %s", cfg.AdapterType, cfg.Name))
	}
	return a, nil
}

// Has checks whether a type key is registered
func (r *Registry) Has(typeKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[typeKey]
	return exists
}

// ListTypes returns the registered type keys in sorted order
func (r *Registry) ListTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for key := range r.factories {
		types = append(types, key)
	}
	sort.Strings(types)
	return types
}
