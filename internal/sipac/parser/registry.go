package parser

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var ErrParserNotFound = errors.New("parser not found")

// Registry is a closed set of parsers, it is filled once at startup and only read
// afterwards.
type Registry struct {
	mutex   sync.RWMutex
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: map[string]Parser{}}
}

// Register adds a parser under a key, it panics on an empty key, a nil parser or a key
// that is already taken.
func (r *Registry) Register(key string, p Parser) {
	if key == "" {
		panic("parser: register with empty key")
	}
	if p == nil {
		panic(fmt.Sprintf("parser: register %q with nil parser", key))
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.parsers[key]; exists {
		panic(fmt.Sprintf("parser: %q registered twice", key))
	}
	r.parsers[key] = p
}

func (r *Registry) Resolve(key string) (Parser, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, ok := r.parsers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParserNotFound, key)
	}
	return p, nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	keys := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
