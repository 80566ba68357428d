package clog

import (
	"context"
	"maps"
	"sync"
)

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

type attributes struct {
	mu     sync.RWMutex
	values map[string]any
}

type attributesKey struct{}

// ContextWithSlog returns a context carrying a mutable attribute set that
// AttributesHandler appends to every record logged with that context.
func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, attributesKey{}, &attributes{values: make(map[string]any)})
}

func fromContext(ctx context.Context) *attributes {
	a, _ := ctx.Value(attributesKey{}).(*attributes)
	return a
}

func AddAttribute(ctx context.Context, key string, value any) {
	a := fromContext(ctx)
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[key] = value
}

func AddAttributes(ctx context.Context, values map[string]any) {
	a := fromContext(ctx)
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	mergeMaps(a.values, values)
}

func GetAttribute[T any](ctx context.Context, key string) T {
	var zero T
	a := fromContext(ctx)
	if a == nil {
		return zero
	}
	a.mu.RLock()
	v, ok := a.values[key]
	a.mu.RUnlock()
	if !ok {
		return zero
	}
	typed, ok := v.(T)
	if !ok {
		return zero
	}
	return typed
}

func GetAttributes(ctx context.Context) map[string]any {
	a := fromContext(ctx)
	if a == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.values)
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		vMap, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if dstMap, ok := dst[k].(map[string]any); ok {
			mergeMaps(dstMap, vMap)
		} else {
			dst[k] = vMap
		}
	}
}
