package passive_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/combatfx/internal/game/combatant"
	"github.com/cory-johannsen/combatfx/internal/game/dice"
	"github.com/cory-johannsen/combatfx/internal/game/effect"
	"github.com/cory-johannsen/combatfx/internal/game/passive"
	"github.com/cory-johannsen/combatfx/internal/scripting"
)

func TestRegister_CapabilityPrecedence(t *testing.T) {
	reg := passive.NewRegistry(passive.WithLogger(zaptest.NewLogger(t)))
	cases := []struct {
		def  passive.Definition
		want effect.HookKind
	}{
		{passive.Definition{ID: "a", OnTurnEnd: "regen", Tick: "charge", Apply: "burn_aura", Trigger: "turn_end"}, effect.HookTurnEnd},
		{passive.Definition{ID: "b", Tick: "charge", Apply: "regen", Trigger: "turn_end"}, effect.HookGenericTick},
		{passive.Definition{ID: "c", Apply: "regen", Trigger: "turn_end"}, effect.HookFallbackApply},
		{passive.Definition{ID: "d", Apply: "regen", Trigger: "on_hit"}, effect.HookNone},
		{passive.Definition{ID: "e"}, effect.HookNone},
	}
	for _, tc := range cases {
		a, err := reg.Register(tc.def)
		require.NoError(t, err)
		assert.Equal(t, tc.want, a.Hook(), tc.def.ID)
	}

	found := reg.Discover()
	assert.Len(t, found, 3)
	for _, id := range []string{"d", "e"} {
		_, ok := found[id]
		assert.False(t, ok, "%s has no turn-end capability", id)
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, reg.IDs())
}

func TestRegister_EmptyID(t *testing.T) {
	_, err := passive.NewRegistry().Register(passive.Definition{OnTurnEnd: "regen"})
	assert.Error(t, err)
}

func TestRegister_UnresolvedHookIsLoggedAndFiltered(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	reg := passive.NewRegistry(passive.WithLogger(zap.New(core)))

	a, err := reg.Register(passive.Definition{ID: "typo", OnTurnEnd: "regenn"})
	require.NoError(t, err)
	assert.Equal(t, effect.HookNone, a.Hook())
	b, err := reg.Register(passive.Definition{ID: "scripted", OnTurnEnd: "lua:thorns"})
	require.NoError(t, err)
	assert.Equal(t, effect.HookNone, b.Hook(), "scripting disabled")

	assert.Empty(t, reg.Discover())
	assert.Equal(t, 2, logs.FilterMessage("passive hook unresolved").Len())
}

func TestBuiltin_Regen(t *testing.T) {
	reg := passive.NewRegistry()
	a, err := reg.Register(passive.Definition{ID: "regen", OnTurnEnd: "regen", Params: map[string]int{"amount": 2, "percent": 10}})
	require.NoError(t, err)
	c := combatant.New(combatant.Config{ID: "c", MaxHP: 50, HP: 20})

	require.NoError(t, a.Invoke(t.Context(), c))
	assert.Equal(t, 27, c.HP())
	assert.Equal(t, "regen", a.HookName())
}

func TestBuiltin_BurnAura(t *testing.T) {
	reg := passive.NewRegistry()
	a, err := reg.Register(passive.Definition{ID: "curse", Tick: "burn_aura"})
	require.NoError(t, err)
	c := combatant.New(combatant.Config{ID: "c", MaxHP: 50})

	require.NoError(t, a.Invoke(t.Context(), c))
	assert.Equal(t, 49, c.HP(), "damage defaults to 1")
}

func TestBuiltin_ChargeIsPerEntityAndCapped(t *testing.T) {
	reg := passive.NewRegistry()
	a, err := reg.Register(passive.Definition{ID: "storm", OnTurnEnd: "charge", Params: map[string]int{"max": 3}})
	require.NoError(t, err)
	x := combatant.New(combatant.Config{ID: "x", MaxHP: 10})
	y := combatant.New(combatant.Config{ID: "y", MaxHP: 10})

	for i := 0; i < 5; i++ {
		require.NoError(t, a.Invoke(t.Context(), x))
	}
	require.NoError(t, a.Invoke(t.Context(), y))

	assert.Equal(t, 3.0, x.CurrentStat(passive.StatCharge))
	assert.Equal(t, 1.0, y.CurrentStat(passive.StatCharge))
	assert.Zero(t, x.BaseStat(passive.StatCharge), "charge is a runtime effect only")
	assert.Equal(t, []string{"storm.charge"}, x.Effects(), "each turn replaces the same installation")
	assert.Equal(t, 3, reg.State().Get("x", "storm.charge"))

	assert.Equal(t, 1, x.RemoveEffectBySource("storm"))
	assert.Zero(t, x.CurrentStat(passive.StatCharge))

	reg.State().Clear("x")
	assert.Zero(t, reg.State().Get("x", "storm.charge"))
	assert.Equal(t, 1, reg.State().Get("y", "storm.charge"))
}

func newScripts(t *testing.T, src string) *scripting.Manager {
	t.Helper()
	mgr := scripting.NewManager(dice.NewLoggedRoller(dice.NewSeededSource(1), nil), zaptest.NewLogger(t), 0)
	t.Cleanup(mgr.Close)
	require.NoError(t, mgr.LoadString("test", src))
	return mgr
}

func TestLuaHook_HealAndDamage(t *testing.T) {
	scripts := newScripts(t, `
		function vampiric(uid, hp, max_hp, params)
			if hp < max_hp / 2 then
				return { heal = params.heal }
			end
			return { damage = params.tax }
		end
		function nothing() end
	`)
	reg := passive.NewRegistry(passive.WithScripts(scripts))
	a, err := reg.Register(passive.Definition{
		ID: "vamp", OnTurnEnd: "lua:vampiric", Params: map[string]int{"heal": 10, "tax": 3},
	})
	require.NoError(t, err)
	require.Equal(t, effect.HookTurnEnd, a.Hook())

	low := combatant.New(combatant.Config{ID: "low", MaxHP: 100, HP: 20})
	require.NoError(t, a.Invoke(t.Context(), low))
	assert.Equal(t, 30, low.HP())

	high := combatant.New(combatant.Config{ID: "high", MaxHP: 100})
	require.NoError(t, a.Invoke(t.Context(), high))
	assert.Equal(t, 97, high.HP())

	quiet, err := reg.Register(passive.Definition{ID: "quiet", Tick: "lua:nothing"})
	require.NoError(t, err)
	require.NoError(t, quiet.Invoke(t.Context(), high))
	assert.Equal(t, 97, high.HP())
}

func TestLuaHook_ErrorSurfaces(t *testing.T) {
	scripts := newScripts(t, `function angry() error("no") end`)
	reg := passive.NewRegistry(passive.WithScripts(scripts))
	a, err := reg.Register(passive.Definition{ID: "angry", OnTurnEnd: "lua:angry"})
	require.NoError(t, err)
	assert.Error(t, a.Invoke(t.Context(), combatant.New(combatant.Config{ID: "c", MaxHP: 10})))
}

func TestLuaHook_MissingFunctionUnresolved(t *testing.T) {
	scripts := newScripts(t, `function present() end`)
	reg := passive.NewRegistry(passive.WithScripts(scripts))
	a, err := reg.Register(passive.Definition{ID: "gone", OnTurnEnd: "lua:absent"})
	require.NoError(t, err)
	assert.Equal(t, effect.HookNone, a.Hook())
}

func TestManagerTick_ResolvesRegisteredPassives(t *testing.T) {
	reg := passive.NewRegistry()
	_, err := reg.Register(passive.Definition{ID: "regen", OnTurnEnd: "regen", MaxStacks: 2, Params: map[string]int{"amount": 5}})
	require.NoError(t, err)
	c := combatant.New(combatant.Config{ID: "c", MaxHP: 100, HP: 50, Passives: []string{"regen", "regen", "regen", "unknown"}})
	m := effect.NewManager(c, effect.WithPassives(reg))

	report := m.Tick(t.Context(), nil)

	assert.Equal(t, 2, report.PassivesInvoked)
	assert.Equal(t, 60, c.HP())
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "regen.yaml"), []byte(`
id: troll_blood
name: Troll Blood
trigger: turn_end
max_stacks: 3
on_turn_end: regen
params:
  amount: 4
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yml"), []byte("ignored: true"), 0o644))

	reg, err := passive.LoadDirectory(dir)
	require.NoError(t, err)
	a, ok := reg.Get("troll_blood")
	require.True(t, ok)
	assert.Equal(t, "Troll Blood", a.Name())
	assert.Equal(t, 3, a.MaxStacks())
	assert.Equal(t, 4, a.Param("amount", 0))
	assert.Equal(t, 7, a.Param("missing", 7))
}

func TestLoadDirectory_UnknownFieldRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.yaml"), []byte("id: x\non_tick: regen\n"), 0o644))
	_, err := passive.LoadDirectory(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "x.yaml")
}

func TestStateStore_AddProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := passive.NewStateStore()
		deltas := rapid.SliceOf(rapid.IntRange(-10, 10)).Draw(rt, "deltas")
		want := 0
		for _, d := range deltas {
			want += d
			assert.Equal(rt, want, s.Add("e", "k", d))
		}
		if len(deltas) > 0 {
			assert.Equal(rt, map[string]int{"k": want}, s.Snapshot("e"))
		}
		assert.Empty(rt, s.Snapshot("other"))
	})
}
