package engine

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// OpenFunc opens an engine rooted at dir.
type OpenFunc func(dir string, logger *zap.Logger) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]OpenFunc)
)

// Register makes an engine implementation available under kind. It panics if
// kind is registered twice.
func Register(kind string, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[kind]; dup {
		panic("engine: Register called twice for " + kind)
	}
	registry[kind] = open
}

// Open opens the engine registered under kind.
func Open(kind, dir string, logger *zap.Logger) (Engine, error) {
	registryMu.RLock()
	open, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine: unknown engine %q (registered: %v)", kind, Kinds())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return open(dir, logger)
}

// Kinds returns the registered engine kinds, sorted.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
