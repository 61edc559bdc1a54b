package billing

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/rowanhall/tutorbill/internal/store"
)

// PremiumPlanName is the single plan this service bills against.
const PremiumPlanName = "premium"

// PlanConfig is the immutable pricing snapshot for the premium plan.
type PlanConfig struct {
	ProductID              string
	FirstChildPriceID      string
	AdditionalChildPriceID string
	FirstChildCents        int64
	AdditionalChildCents   int64
}

// MonthlyAmountCents is the full-period price for a family with the given
// number of premium children.
func (cfg *PlanConfig) MonthlyAmountCents(children int) int64 {
	if children <= 0 {
		return 0
	}
	return cfg.FirstChildCents + int64(children-1)*cfg.AdditionalChildCents
}

// PlanCache loads the premium plan row once and memoizes the result. It is
// constructed at startup and injected into every collaborator; there is no
// shared mutable plan state outside it. Invalidate forces a reload after plan
// rows change.
type PlanCache struct {
	plans  *store.PlanStore
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
	cfg    *PlanConfig
}

func NewPlanCache(plans *store.PlanStore, logger *slog.Logger) *PlanCache {
	return &PlanCache{plans: plans, logger: logger}
}

// Config returns the premium plan pricing, or nil when the plan is absent or
// incompletely configured. Callers must treat a nil config as a hard
// precondition failure (ErrNoPlanConfigured).
func (c *PlanCache) Config() (*PlanConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.cfg, nil
	}

	p, err := c.plans.GetActiveByName(PremiumPlanName)
	if err != nil {
		return nil, fmt.Errorf("load plan config: %w", err)
	}
	c.loaded = true
	if p == nil || p.PriceIDFirstChild == "" || p.PriceIDAdditionalChild == "" {
		c.cfg = nil
		c.logger.Error("premium plan missing or incompletely configured", "plan", PremiumPlanName)
		return nil, nil
	}
	c.cfg = &PlanConfig{
		ProductID:              p.ProductID,
		FirstChildPriceID:      p.PriceIDFirstChild,
		AdditionalChildPriceID: p.PriceIDAdditionalChild,
		FirstChildCents:        p.PriceFirstChildCents,
		AdditionalChildCents:   p.PriceAdditionalChildCents,
	}
	return c.cfg, nil
}

// Invalidate drops the memoized config so the next Config call reloads it.
func (c *PlanCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.cfg = nil
}
