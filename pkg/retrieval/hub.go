package retrieval

import (
	"context"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/theapemachine/recall/pkg/activation"
	"github.com/theapemachine/recall/pkg/config"
	"github.com/theapemachine/recall/pkg/memory"
	"github.com/theapemachine/recall/pkg/metrics"
)

/*
Hub hands out one Pipeline per user, each with its own activation engine over
that user's Manager. All engines report to the same metrics.
*/
type Hub struct {
	cfg      config.Config
	registry *memory.Registry
	metrics  *metrics.ActivationMetrics
	opts     []Option

	mu        sync.Mutex
	pipelines map[string]*Pipeline
	building  singleflight.Group
}

func NewHub(cfg config.Config, registry *memory.Registry, m *metrics.ActivationMetrics, opts ...Option) *Hub {
	if m == nil {
		m = metrics.NewActivationMetrics()
	}

	return &Hub{
		cfg:       cfg,
		registry:  registry,
		metrics:   m,
		opts:      opts,
		pipelines: make(map[string]*Pipeline),
	}
}

func (hub *Hub) Metrics() *metrics.ActivationMetrics {
	return hub.metrics
}

/*
Pipeline returns the user's pipeline, creating it on first use. A new
engine starts priming its cache in the background when caching is enabled.
The build runs outside the hub lock and is shared by concurrent first calls
for the same user.
*/
func (hub *Hub) Pipeline(ctx context.Context, userID string) (*Pipeline, error) {
	if pipeline, ok := hub.lookup(userID); ok {
		return pipeline, nil
	}

	built, err, _ := hub.building.Do(userID, func() (any, error) {
		if pipeline, ok := hub.lookup(userID); ok {
			return pipeline, nil
		}

		manager, err := hub.registry.Get(ctx, userID)

		if err != nil {
			return nil, err
		}

		engine := activation.New(manager, hub.cfg.Activation, activation.WithMetrics(hub.metrics))

		if hub.cfg.Activation.CacheSize > 0 {
			engine.PrimeAsync(context.WithoutCancel(ctx), nil)
		}

		pipeline := NewPipeline(manager, engine, hub.cfg.Retrieval, hub.opts...)

		hub.mu.Lock()
		hub.pipelines[userID] = pipeline
		hub.mu.Unlock()

		log.Info("pipeline created", "user", userID)

		return pipeline, nil
	})

	if err != nil {
		return nil, err
	}

	return built.(*Pipeline), nil
}

func (hub *Hub) lookup(userID string) (*Pipeline, bool) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	pipeline, ok := hub.pipelines[userID]

	return pipeline, ok
}

func (hub *Hub) Users() []string {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	users := make([]string, 0, len(hub.pipelines))

	for id := range hub.pipelines {
		users = append(users, id)
	}

	slices.Sort(users)

	return users
}

// Close waits for background priming and closes every manager.
func (hub *Hub) Close(ctx context.Context) error {
	hub.mu.Lock()

	for id, pipeline := range hub.pipelines {
		pipeline.engine.Wait()
		delete(hub.pipelines, id)
	}

	hub.mu.Unlock()

	return hub.registry.Close(ctx)
}
