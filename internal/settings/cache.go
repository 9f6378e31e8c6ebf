package settings

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/DoyleJ11/glitch-battleship/internal/engine"
)

const DefaultOverrideTTL = 5 * time.Second

// OverrideCache fronts a Store so rooms can consult the override before every
// command without a round trip. Concurrent misses share one fetch; a failed
// fetch keeps serving the last known value until the next TTL window.
type OverrideCache struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	phase   engine.Phase
	fetched time.Time
}

func NewOverrideCache(store Store, ttl time.Duration, log *zap.Logger) *OverrideCache {
	if ttl <= 0 {
		ttl = DefaultOverrideTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OverrideCache{store: store, ttl: ttl, log: log, now: time.Now}
}

// Phase returns the override, or 0 when turn-count derivation applies.
func (c *OverrideCache) Phase(ctx context.Context) engine.Phase {
	c.mu.RLock()
	phase, fresh := c.phase, !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return phase
	}

	v, _, _ := c.group.Do(glitchKey, func() (any, error) {
		p, ok, err := c.store.GlitchOverride(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.fetched = c.now()
		if err != nil {
			c.log.Warn("glitch override refresh failed, serving cached value", zap.Error(err))
			return c.phase, nil
		}
		if !ok {
			p = 0
		}
		c.phase = p
		return p, nil
	})
	return v.(engine.Phase)
}

// Current is Phase plus whether an override is in effect.
func (c *OverrideCache) Current(ctx context.Context) (engine.Phase, bool) {
	p := c.Phase(ctx)
	return p, p.Valid()
}

func (c *OverrideCache) Set(ctx context.Context, phase engine.Phase) error {
	if err := c.store.SetGlitchOverride(ctx, phase); err != nil {
		return err
	}
	c.remember(phase)
	c.log.Info("glitch override set", zap.Int("phase", int(phase)), zap.String("name", phase.String()))
	return nil
}

func (c *OverrideCache) Clear(ctx context.Context) error {
	if err := c.store.ClearGlitchOverride(ctx); err != nil {
		return err
	}
	c.remember(0)
	c.log.Info("glitch override cleared")
	return nil
}

func (c *OverrideCache) remember(phase engine.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase = phase
	c.fetched = c.now()
}
