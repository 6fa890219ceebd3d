package price

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlign(t *testing.T) {
	tests := []struct {
		name  string
		price float64
		tick  float64
		dir   Direction
		want  float64
	}{
		{"down off grid", 100.37, 0.05, Down, 100.35},
		{"up off grid", 100.37, 0.05, Up, 100.40},
		{"nearest rounds up", 100.38, 0.05, Nearest, 100.40},
		{"on grid down unchanged", 95.0, 0.5, Down, 95.0},
		{"on grid up unchanged", 105.0, 0.5, Up, 105.0},
		{"float noise below grid line", 0.30000000000000004, 0.1, Down, 0.3},
		{"float noise above grid line", 0.29999999999999993, 0.1, Up, 0.3},
		{"whole tick", 1234.4, 1, Down, 1234},
		{"negative price floors away from zero", -1.25, 0.5, Down, -1.5},
		{"tiny tick", 0.000123456, 0.00001, Up, 0.00013},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Align(tt.price, tt.tick, tt.dir)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestAlignRejectsNonPositiveTick(t *testing.T) {
	for _, tick := range []float64{0, -0.1} {
		_, err := Align(100, tick, Down)
		require.ErrorIs(t, err, ErrInvalidTick)
	}
}

func TestAlignProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ticks := []float64{1e-6, 0.0001, 0.01, 0.05, 0.1, 0.5, 1, 25}

	for i := 0; i < 2000; i++ {
		tick := ticks[rng.Intn(len(ticks))]
		p := (rng.Float64()*2 - 1) * 1e5
		for _, dir := range []Direction{Down, Up} {
			once, err := Align(p, tick, dir)
			require.NoError(t, err)
			twice, err := Align(once, tick, dir)
			require.NoError(t, err)

			eps := math.Max(1e-9, tick*5e-7)
			assert.LessOrEqual(t, math.Abs(twice-once), tick+eps, "idempotent within one tick: p=%v tick=%v", p, tick)

			q := once / tick
			assert.InDelta(t, math.Round(q), q, 1e-6+math.Abs(q)*1e-9, "multiple of tick: p=%v tick=%v", p, tick)

			if dir == Down {
				assert.LessOrEqual(t, once, p+eps)
				assert.LessOrEqual(t, p-once, tick+eps)
			} else {
				assert.GreaterOrEqual(t, once, p-eps)
				assert.LessOrEqual(t, once-p, tick+eps)
			}
		}
	}
}

func TestComputeSize(t *testing.T) {
	size, err := ComputeSize(10, 8, 2000)
	require.NoError(t, err)
	assert.InDelta(t, 0.04, size, 1e-12)

	_, err = ComputeSize(10, 8, 0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestNonFiniteInputsReturnErrors(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Align(v, 0.1, Nearest)
		assert.ErrorIs(t, err, ErrNotFinite, "price %v", v)

		_, err = Align(100, v, Down)
		assert.ErrorIs(t, err, ErrInvalidTick, "tick %v", v)

		_, err = ComputeSize(100, 5, v)
		assert.ErrorIs(t, err, ErrNotFinite, "price %v", v)

		_, err = FloorQuantity(v, 0.001, 0)
		assert.ErrorIs(t, err, ErrNotFinite, "qty %v", v)
	}
}

func TestFloorQuantity(t *testing.T) {
	tests := []struct {
		name   string
		qty    float64
		step   float64
		minQty float64
		want   float64
	}{
		{"floors to lot step", 0.008165331634944354, 0.001, 0.001, 0.008},
		{"float noise just under a step", 0.0089999999, 0.001, 0.001, 0.009},
		{"whole contracts", 12.7, 1, 1, 12},
		{"no step leaves quantity", 1.2345, 0, 0, 1.2345},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FloorQuantity(tt.qty, tt.step, tt.minQty)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	_, err := FloorQuantity(0.0004, 0.001, 0.001)
	assert.ErrorIs(t, err, ErrBelowMinQty)
	_, err = FloorQuantity(0.0025, 0.001, 0.005)
	assert.ErrorIs(t, err, ErrBelowMinQty)
}
