package graph

import (
	"context"
	"sync"
)

type configKey struct{}

type interruptScopeKey struct{}

// interruptScope hands out resume values to one node activation, in call order.
type interruptScope struct {
	mu      sync.Mutex
	node    string
	resumes []any
	next    int
}

func withInterruptScope(ctx context.Context, scope *interruptScope) context.Context {
	return context.WithValue(ctx, interruptScopeKey{}, scope)
}

func scopeFromContext(ctx context.Context) *interruptScope {
	scope, _ := ctx.Value(interruptScopeKey{}).(*interruptScope)
	return scope
}

// ResumeValue returns the resume value for the next interrupt point of the
// running node and advances to the following one. It reports false when the
// caller has not supplied a value yet.
func ResumeValue(ctx context.Context) (any, bool) {
	scope := scopeFromContext(ctx)
	if scope == nil {
		return nil, false
	}
	scope.mu.Lock()
	defer scope.mu.Unlock()
	if scope.next >= len(scope.resumes) {
		return nil, false
	}
	v := scope.resumes[scope.next]
	scope.next++
	return v, true
}

// WithConfig adds the invocation config to the context.
func WithConfig(ctx context.Context, config *Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfig returns the invocation config of the running graph, or nil.
func GetConfig(ctx context.Context) *Config {
	config, _ := ctx.Value(configKey{}).(*Config)
	return config
}
