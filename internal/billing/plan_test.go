package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowanhall/tutorbill/internal/model"
)

func TestMonthlyAmountCents(t *testing.T) {
	cfg := &PlanConfig{FirstChildCents: 1500, AdditionalChildCents: 500}

	assert.Equal(t, int64(0), cfg.MonthlyAmountCents(0))
	assert.Equal(t, int64(0), cfg.MonthlyAmountCents(-3))
	assert.Equal(t, int64(1500), cfg.MonthlyAmountCents(1))
	assert.Equal(t, int64(2000), cfg.MonthlyAmountCents(2))
	assert.Equal(t, int64(3000), cfg.MonthlyAmountCents(4))
}

func TestPlanCacheMemoizesAndInvalidates(t *testing.T) {
	env := newTestEnv(t)

	cfg, err := env.plans.Config()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, testFirstPriceID, cfg.FirstChildPriceID)
	assert.Equal(t, testFirstCents, cfg.FirstChildCents)

	// Memoized: same pointer on the second read.
	again, err := env.plans.Config()
	require.NoError(t, err)
	assert.Same(t, cfg, again)

	env.plans.Invalidate()
	reloaded, err := env.plans.Config()
	require.NoError(t, err)
	require.NotNil(t, reloaded)
	assert.NotSame(t, cfg, reloaded)
}

func TestPlanCacheMissingPlan(t *testing.T) {
	env := setupEnv(t, false)

	cfg, err := env.plans.Config()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestPlanCacheIncompletePlan(t *testing.T) {
	env := setupEnv(t, false)

	// A plan row without price ids counts as unconfigured.
	require.NoError(t, env.planStore.Upsert(&model.Plan{Name: PremiumPlanName, IsActive: true}))

	cfg, err := env.plans.Config()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}
