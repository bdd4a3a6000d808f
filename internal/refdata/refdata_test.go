package refdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmart/retailgen/internal/config"
	"github.com/openmart/retailgen/internal/rng"
)

func testSizes() config.Reference {
	return config.Reference{Stores: 10, DCs: 2, Customers: 100, Products: 80, TruckDCRatio: 0.7}
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(testSizes(), rng.New(42))
	require.NoError(t, err)
	b, err := Build(testSizes(), rng.New(42))
	require.NoError(t, err)

	assert.Equal(t, a.Stores, b.Stores)
	assert.Equal(t, a.Customers, b.Customers)
	assert.Equal(t, a.Products, b.Products)
	assert.Equal(t, a.Trucks, b.Trucks)
}

func TestBuild_PricingInvariantHolds(t *testing.T) {
	ref, err := Build(testSizes(), rng.New(7))
	require.NoError(t, err)
	for _, p := range ref.Products {
		require.True(t, p.PricingValid(), "product %d: cost=%s sale=%s msrp=%s", p.ID, p.Cost, p.SalePrice, p.MSRP)
	}
}

func TestBuild_CustomersHaveTwoHomeStores(t *testing.T) {
	ref, err := Build(testSizes(), rng.New(7))
	require.NoError(t, err)
	for _, c := range ref.Customers {
		require.Len(t, c.HomeStores, 2)
		require.NotNil(t, ref.StoreByID(c.HomeStores[0]))
		require.NotNil(t, ref.StoreByID(c.HomeStores[1]))
	}
}

func TestBuild_EmptyCatalogAllowed(t *testing.T) {
	sizes := testSizes()
	sizes.Products = 0
	ref, err := Build(sizes, rng.New(1))
	require.NoError(t, err)
	assert.Empty(t, ref.Products)
}

func TestBuild_TrucksResolveHomeDC(t *testing.T) {
	ref, err := Build(testSizes(), rng.New(9))
	require.NoError(t, err)
	var bound int
	for _, tr := range ref.Trucks {
		if tr.HomeDC != nil {
			bound++
			require.NotNil(t, ref.DCByID(*tr.HomeDC))
		}
	}
	assert.Greater(t, bound, 0, "ratio 0.7 should bind some trucks")
}
