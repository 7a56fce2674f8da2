package loader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"tidb-hierarchy/internal/recursive"
	"tidb-hierarchy/internal/relation"
)

// BatchState holds request-scoped sibling origins and the batched dictionaries
// computed for them.
type BatchState struct {
	mu           sync.Mutex
	origins      map[string][]relation.Record
	dictionaries map[string]map[string][]recursive.Row
	cacheHits    int32
	cacheMisses  int32
}

type batchStateKey struct{}

// NewBatchingContext injects a request-scoped batch state.
func NewBatchingContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, batchStateKey{}, &BatchState{
		origins:      make(map[string][]relation.Record),
		dictionaries: make(map[string]map[string][]recursive.Row),
	})
}

// GetBatchState retrieves the batch state from context.
func GetBatchState(ctx context.Context) (*BatchState, bool) {
	if ctx == nil {
		return nil, false
	}

	state, ok := ctx.Value(batchStateKey{}).(*BatchState)
	return state, ok
}

// SeedOrigins records the sibling origins listed under parentKey so that the
// first ancestors lookup for one of them loads all of them.
func SeedOrigins(ctx context.Context, parentKey string, origins []relation.Record) {
	state, ok := GetBatchState(ctx)
	if !ok || parentKey == "" || len(origins) == 0 {
		return
	}
	state.setOrigins(parentKey, origins)
}

func (s *BatchState) setOrigins(parentKey string, origins []relation.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.origins[parentKey] = origins
}

func (s *BatchState) getOrigins(parentKey string) []relation.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.origins[parentKey]
}

func (s *BatchState) getDictionary(relKey string) map[string][]recursive.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dictionaries[relKey]
}

func (s *BatchState) setDictionary(relKey string, dictionary map[string][]recursive.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dictionaries[relKey] = dictionary
}

// IncrementCacheHit increments the cache hit counter.
func (s *BatchState) IncrementCacheHit() {
	atomic.AddInt32(&s.cacheHits, 1)
}

// IncrementCacheMiss increments the cache miss counter.
func (s *BatchState) IncrementCacheMiss() {
	atomic.AddInt32(&s.cacheMisses, 1)
}

// GetCacheHits returns the current cache hit count.
func (s *BatchState) GetCacheHits() int32 {
	return atomic.LoadInt32(&s.cacheHits)
}

// GetCacheMisses returns the current cache miss count.
func (s *BatchState) GetCacheMisses() int32 {
	return atomic.LoadInt32(&s.cacheMisses)
}

// BatchedAncestors resolves origin's ancestors through the siblings seeded
// under parentKey. The boolean is false when no batch applies and the caller
// should fall back to Ancestors.
func (l *Loader) BatchedAncestors(ctx context.Context, def relation.Definition, parentKey string, origin relation.Record) ([]recursive.Row, bool, error) {
	state, ok := GetBatchState(ctx)
	if !ok || parentKey == "" {
		return nil, false, nil
	}

	siblings := state.getOrigins(parentKey)
	if len(siblings) == 0 {
		return nil, false, nil
	}

	key := recursive.KeyString(origin[def.KeyColumn])
	relKey := relationKey(def, parentKey)
	if cached := state.getDictionary(relKey); cached != nil {
		state.IncrementCacheHit()
		l.metricsFor(ctx).RecordBatchCacheHit(ctx)
		return rowsOrEmpty(cached[key]), true, nil
	}
	state.IncrementCacheMiss()
	l.metricsFor(ctx).RecordBatchCacheMiss(ctx)

	ctx, span := startSpan(ctx, "hierarchy.ancestors.batched")
	dictionary, err := l.eagerDictionary(ctx, def, siblings)
	finishSpan(span, err)
	if err != nil {
		l.recordError(ctx, err)
		return nil, true, err
	}
	state.setDictionary(relKey, dictionary)

	return rowsOrEmpty(dictionary[key]), true, nil
}

func relationKey(def relation.Definition, parentKey string) string {
	return fmt.Sprintf("%s|%s|%s|%t|%d|%s", def.Table, def.KeyColumn, def.EdgeTable, def.AndSelf, def.MaxDepth, parentKey)
}

func rowsOrEmpty(rows []recursive.Row) []recursive.Row {
	if rows == nil {
		return []recursive.Row{}
	}
	return rows
}
