package activation

import (
	"context"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/theapemachine/recall/pkg/errors"
	"github.com/theapemachine/recall/pkg/memory"
)

// Cache key prefixes for primed nodes.
const (
	PrefixNode       = "node:"
	PrefixProcedural = "proc_node:"
	PrefixExpanded   = "expanded:"
)

// PrefetchStats counts prefetched nodes and how many of them were used.
type PrefetchStats struct {
	Total  int `json:"total_prefetches"`
	Useful int `json:"useful_prefetches"`
}

// TurnStats is the same bookkeeping for the current conversational turn.
type TurnStats struct {
	Total  int `json:"total"`
	Useful int `json:"useful"`
}

type primed struct {
	semantic   *memory.Node
	procedural *memory.Node
}

/*
fetchSeeds looks every seed up in both graphs concurrently. Results come back
in seed order so cache insertion order does not depend on scheduling.
*/
func (engine *Engine) fetchSeeds(ctx context.Context, seeds []string, procedural bool) []primed {
	out := make([]primed, len(seeds))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(4)

	for i, id := range seeds {
		group.Go(func() error {
			out[i].semantic = engine.lookup(gctx, engine.memory.SemanticNode, id)

			if procedural {
				out[i].procedural = engine.lookup(gctx, engine.memory.ProceduralNode, id)
			}

			return nil
		})
	}

	_ = group.Wait()

	return out
}

func (engine *Engine) lookup(
	ctx context.Context,
	get func(context.Context, string) (*memory.Node, error),
	id string,
) *memory.Node {
	node, err := get(ctx, id)

	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			log.Warn("prefetch lookup failed", "node", id, "error", err)
		}

		return nil
	}

	return node
}

func (engine *Engine) store(key string, node *memory.Node) {
	if evicted := engine.cache.Set(key, node); evicted > 0 {
		engine.metrics.RecordEviction(evicted)
		log.Debug("prefetch cache evicted entries", "count", evicted)
	}
}

/*
CognitivePriming loads the seed nodes from both graphs into the prefetch
cache, falling back to the configured seeds when none are given. It then
starts a background semantic expansion over the configured expansion seeds;
Wait joins it. Priming runs alongside retrieval and never touches activation
state.
*/
func (engine *Engine) CognitivePriming(ctx context.Context, seeds []string) int {
	if len(seeds) == 0 {
		seeds = engine.cfg.PrimingSeeds
	}

	count := 0
	var ids []string

	for i, found := range engine.fetchSeeds(ctx, seeds, true) {
		id := seeds[i]

		if found.semantic != nil {
			engine.store(PrefixNode+id, found.semantic)
			count++
		}

		if found.procedural != nil {
			engine.store(PrefixProcedural+id, found.procedural)
			count++
		}

		if found.semantic != nil || found.procedural != nil {
			ids = append(ids, id)
		}
	}

	engine.mu.Lock()
	for _, id := range ids {
		engine.prefetched[id] = struct{}{}
	}
	engine.turn.Total = count
	engine.totals.Total += count
	engine.mu.Unlock()

	engine.metrics.RecordPrefetch(count)

	log.Info("cognitive priming done", "seeds", len(seeds), "prefetched", count)

	engine.background.Add(1)

	go func() {
		defer engine.background.Done()
		engine.expand(context.WithoutCancel(ctx))
	}()

	return count
}

// PrimeAsync runs CognitivePriming in the background.
func (engine *Engine) PrimeAsync(ctx context.Context, seeds []string) {
	engine.background.Add(1)

	go func() {
		defer engine.background.Done()
		engine.CognitivePriming(ctx, seeds)
	}()
}

// expand caches the configured expansion seeds found in the semantic graph.
func (engine *Engine) expand(ctx context.Context) {
	seeds := engine.cfg.ExpansionSeeds
	expanded := 0

	for i, found := range engine.fetchSeeds(ctx, seeds, false) {
		if found.semantic == nil {
			continue
		}

		engine.store(PrefixExpanded+seeds[i], found.semantic)
		expanded++
	}

	log.Debug("semantic expansion done", "expanded", expanded)
}

// Wait blocks until all background priming and expansion has finished.
func (engine *Engine) Wait() {
	engine.background.Wait()
}

// CachedNode returns a primed node under any of the cache prefixes.
func (engine *Engine) CachedNode(id string) (*memory.Node, bool) {
	for _, prefix := range []string{PrefixNode, PrefixProcedural, PrefixExpanded} {
		if node, ok := engine.cache.Get(prefix + id); ok {
			return node, true
		}
	}

	return nil, false
}

/*
MarkUsefulPrefetch counts how many of the ids primed this turn a retrieval
actually used, and returns that count.
*/
func (engine *Engine) MarkUsefulPrefetch(used []string) int {
	engine.mu.Lock()

	hits := 0
	seen := make(map[string]bool, len(used))

	for _, id := range used {
		if seen[id] {
			continue
		}

		seen[id] = true

		if _, ok := engine.prefetched[id]; ok {
			hits++
		}
	}

	engine.turn.Useful += hits
	engine.totals.Useful += hits
	primedCount := len(engine.prefetched)
	engine.mu.Unlock()

	if hits > 0 {
		engine.metrics.RecordHits(hits)
		log.Debug("prefetch hits", "hits", hits, "primed", primedCount)
	}

	return hits
}

// PrefetchStats returns the cumulative prefetch statistics.
func (engine *Engine) PrefetchStats() PrefetchStats {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	return engine.totals
}

// TurnStats returns this turn's statistics and starts a new turn.
func (engine *Engine) TurnStats() TurnStats {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	stats := engine.turn
	engine.turn = TurnStats{}
	engine.prefetched = make(map[string]struct{})

	return stats
}
