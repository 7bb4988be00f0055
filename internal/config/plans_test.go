package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePlans(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPlanCatalogFromFile(t *testing.T) {
	path := writePlans(t, `
plans:
  - id: 1
    name: starter
    price_id: price_starter
    metered_price_id: price_starter_usage
  - id: 2
    name: pro
    price_id: price_pro
`)

	holder, err := NewPlanCatalogHolderFromFile(path)
	require.NoError(t, err)

	catalog := holder.Get()
	require.Len(t, catalog.Plans, 2)

	plan, ok := catalog.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "price_starter", plan.PriceID)
	assert.Equal(t, "price_starter_usage", plan.MeteredPriceID)

	plan, ok = catalog.ByPriceID("price_pro")
	require.True(t, ok)
	assert.Equal(t, int64(2), plan.ID)

	_, ok = catalog.Lookup(99)
	assert.False(t, ok)
	_, ok = catalog.ByPriceID("")
	assert.False(t, ok)
}

func TestPlanCatalogRejectsDuplicateIDs(t *testing.T) {
	path := writePlans(t, `
plans:
  - id: 1
    price_id: price_a
  - id: 1
    price_id: price_b
`)

	_, err := NewPlanCatalogHolderFromFile(path)
	assert.Error(t, err)
}

func TestPlanCatalogRequiresPriceID(t *testing.T) {
	path := writePlans(t, `
plans:
  - id: 3
    name: broken
`)

	_, err := NewPlanCatalogHolderFromFile(path)
	assert.Error(t, err)
}
