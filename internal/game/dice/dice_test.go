package dice_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/combatfx/internal/game/dice"
)

func TestParse_Forms(t *testing.T) {
	cases := map[string]dice.Expression{
		"d4":    {Raw: "d4", Count: 1, Sides: 4},
		"2d6":   {Raw: "2d6", Count: 2, Sides: 6},
		"1d8+2": {Raw: "1d8+2", Count: 1, Sides: 8, Modifier: 2},
		"3D4-1": {Raw: "3D4-1", Count: 3, Sides: 4, Modifier: -1},
	}
	for in, want := range cases {
		got, err := dice.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "d", "0d6", "2d1", "2x6", "d6+", "abc"} {
		_, err := dice.Parse(in)
		assert.Error(t, err, in)
	}
}

func TestExpression_Roll_WithinBounds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		e := dice.Expression{
			Raw:      "x",
			Count:    rapid.IntRange(1, 10).Draw(rt, "count"),
			Sides:    rapid.IntRange(2, 20).Draw(rt, "sides"),
			Modifier: rapid.IntRange(-5, 5).Draw(rt, "mod"),
		}
		src := dice.NewSeededSource(rapid.Uint64().Draw(rt, "seed"))
		rolled, total := e.Roll(src)
		assert.Len(rt, rolled, e.Count)
		assert.GreaterOrEqual(rt, total, e.Min())
		assert.LessOrEqual(rt, total, e.Max())
	})
}

func TestSeededSource_Deterministic(t *testing.T) {
	a, b := dice.NewSeededSource(42), dice.NewSeededSource(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Float64(), b.Float64())
		require.Equal(t, a.Intn(10), b.Intn(10))
	}
}

func TestCryptoSource_Ranges(t *testing.T) {
	src := dice.NewCryptoSource()
	for i := 0; i < 200; i++ {
		f := src.Float64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
		n := src.Intn(6)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 6)
	}
	assert.Panics(t, func() { src.Intn(0) })
}

func TestRoller_Chance_Extremes(t *testing.T) {
	r := dice.NewLoggedRoller(dice.NewSeededSource(1), nil)
	for i := 0; i < 50; i++ {
		assert.False(t, r.Chance(0, "never"))
		assert.False(t, r.Chance(-1, "never"))
		assert.True(t, r.Chance(1, "always"))
		assert.True(t, r.Chance(3, "always"))
	}
}

func TestRoller_Chance_Frequency(t *testing.T) {
	r := dice.NewLoggedRoller(dice.NewSeededSource(7), nil)
	hits := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		if r.Chance(0.25, "quarter") {
			hits++
		}
	}
	assert.InDelta(t, 0.25, float64(hits)/trials, 0.02)
}

func TestRoller_LogsAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	r := dice.NewLoggedRoller(dice.NewSeededSource(3), zap.New(core))
	r.Chance(0.5, "inflict")
	e, err := dice.Parse("2d6")
	require.NoError(t, err)
	total := r.Roll(e)
	assert.GreaterOrEqual(t, total, 2)

	require.Equal(t, 1, logs.FilterMessage("chance roll").Len())
	entry := logs.FilterMessage("chance roll").All()[0]
	assert.Equal(t, "inflict", entry.ContextMap()["check"])
	require.Equal(t, 1, logs.FilterMessage("dice roll").Len())
}
