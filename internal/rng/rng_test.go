package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_Deterministic(t *testing.T) {
	a := New(42).Stream("journey", "store-7", "2024-03-01")
	b := New(42).Stream("journey", "store-7", "2024-03-01")

	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float(), b.Float(), "draw %d diverged", i)
	}
}

func TestStream_IndependentOfSiblingDraws(t *testing.T) {
	// Drawing from one stream must not perturb a sibling stream. This is
	// the property that makes worker scheduling irrelevant to output.
	src := New(42)
	noisy := src.Stream("a")
	for i := 0; i < 1000; i++ {
		noisy.Float()
	}
	after := src.Stream("b").Float()

	fresh := New(42).Stream("b").Float()
	assert.Equal(t, fresh, after)
}

func TestStream_DifferentLabelsDiverge(t *testing.T) {
	src := New(42)
	a := src.Stream("a").Float()
	b := src.Stream("b").Float()
	assert.NotEqual(t, a, b)
}

func TestStream_DifferentSeedsDiverge(t *testing.T) {
	a := New(1).Stream("x").Float()
	b := New(2).Stream("x").Float()
	assert.NotEqual(t, a, b)
}

func TestPoisson_ZeroMean(t *testing.T) {
	st := New(1).Stream("p")
	assert.Equal(t, 0, st.Poisson(0))
	assert.Equal(t, 0, st.Poisson(-3))
}

func TestPoisson_MeanRoughlyRespected(t *testing.T) {
	st := New(42).Stream("p")
	const n = 5000
	var sum int
	for i := 0; i < n; i++ {
		sum += st.Poisson(6.0)
	}
	avg := float64(sum) / n
	assert.InDelta(t, 6.0, avg, 0.25, "sample mean should be near 6")
}

func TestPoisson_LargeMeanNonNegative(t *testing.T) {
	st := New(42).Stream("p")
	for i := 0; i < 1000; i++ {
		n := st.Poisson(120)
		require.GreaterOrEqual(t, n, 0)
	}
}

func TestIntBetween_Bounds(t *testing.T) {
	st := New(42).Stream("i")
	for i := 0; i < 1000; i++ {
		n := st.IntBetween(3, 9)
		require.GreaterOrEqual(t, n, 3)
		require.LessOrEqual(t, n, 9)
	}
	assert.Equal(t, 5, st.IntBetween(5, 5), "degenerate range returns lo")
}

func TestWeightedIndex(t *testing.T) {
	st := New(42).Stream("w")

	// Zero weight entries are never picked.
	counts := make([]int, 3)
	for i := 0; i < 2000; i++ {
		counts[st.WeightedIndex([]float64{1, 0, 3})]++
	}
	assert.Zero(t, counts[1])
	assert.Greater(t, counts[2], counts[0], "weight 3 should dominate weight 1")

	// Degenerate weights fall back to index 0.
	assert.Equal(t, 0, st.WeightedIndex([]float64{0, 0}))
}

func TestUniform_Bounds(t *testing.T) {
	st := New(42).Stream("u")
	for i := 0; i < 1000; i++ {
		v := st.Uniform(0.5, 2.5)
		require.GreaterOrEqual(t, v, 0.5)
		require.Less(t, v, 2.5)
	}
}
