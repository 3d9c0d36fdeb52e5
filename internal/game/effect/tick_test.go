package effect_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/combatfx/internal/config"
	"github.com/cory-johannsen/combatfx/internal/eventbus"
	"github.com/cory-johannsen/combatfx/internal/game/combatant"
	"github.com/cory-johannsen/combatfx/internal/game/effect"
)

func TestTick_HealsBeforeDamage(t *testing.T) {
	target := newTarget("t", 10)
	m := effect.NewManager(target)
	m.AddHOT(effect.NewHOT("Mend", "mend", 5, 3, nil))
	m.AddDOT(effect.NewDOT("Poison", "poison", 12, 3, nil), 0)

	report := m.Tick(t.Context(), nil)

	assert.Equal(t, 3, target.HP())
	assert.False(t, report.Died)
	assert.Equal(t, 1, report.HOTsTicked)
	assert.Equal(t, 1, report.DOTsTicked)
}

func TestTick_ExpiresAndPublishes(t *testing.T) {
	bus := eventbus.New(zaptest.NewLogger(t))
	rec := record(bus)
	target := newTarget("t", 100)
	m := effect.NewManager(target, effect.WithBus(bus))
	m.AddDOT(effect.NewDOT("Poison", "poison", 2, 2, nil), 0)
	m.AddHOT(effect.NewHOT("Mend", "mend", 1, 1, nil))

	first := m.Tick(t.Context(), nil)
	assert.Equal(t, 1, first.Expired)
	assert.Empty(t, m.HOTs())
	assert.Len(t, m.DOTs(), 1)

	second := m.Tick(t.Context(), nil)
	assert.Equal(t, 1, second.Expired)
	assert.Empty(t, m.DOTs())
	assert.Zero(t, target.Statuses().Len(effect.TypeDOT))
	assert.Zero(t, target.Statuses().Len(effect.TypeHOT))
	assert.Equal(t, 96, target.HP())

	expired := rec.named(effect.EventEffectExpired)
	require.Len(t, expired, 2)
	assert.Equal(t, "Mend", expired[0].args[0])
	assert.Equal(t, map[string]any{
		"effect_type":       "dot",
		"effect_id":         "poison",
		"expired_naturally": true,
	}, expired[1].payload())

	ticks := rec.named(effect.EventDOTTick)
	require.Len(t, ticks, 2)
	assert.Equal(t, 2, ticks[0].args[2])
	assert.Equal(t, 1, ticks[0].payload()["remaining_turns"])
	assert.Len(t, rec.named(effect.EventHOTTick), 1)
}

func TestTick_StopsAfterFatalSequentialDOT(t *testing.T) {
	bus := eventbus.New(zaptest.NewLogger(t))
	rec := record(bus)
	target := newTarget("t", 10)
	m := effect.NewManager(target, effect.WithBus(bus))
	for i := 0; i < 3; i++ {
		m.AddDOT(effect.NewDOT("Poison", "poison", 10, 3, nil), 0)
	}
	rage := effect.NewStatModifier(target, "Rage", "rage", 2, map[string]float64{"atk": 1}, nil)
	m.AddModifier(rage)

	report := m.Tick(t.Context(), nil)

	assert.True(t, report.Died)
	assert.Equal(t, 1, report.DOTsTicked)
	assert.Zero(t, report.ModifiersTicked)
	dots := m.DOTs()
	require.Len(t, dots, 3)
	assert.Equal(t, 2, dots[0].TurnsRemaining)
	assert.Equal(t, 3, dots[1].TurnsRemaining)
	assert.Equal(t, 3, dots[2].TurnsRemaining)
	assert.Equal(t, 2, rage.TurnsRemaining)

	kills := rec.named(effect.EventDOTKill)
	require.Len(t, kills, 1)
	assert.Equal(t, 10, kills[0].payload()["final_damage"])
}

func TestTick_DeadEntityDoesNothing(t *testing.T) {
	target := newTarget("t", 5)
	m := effect.NewManager(target)
	dot := effect.NewDOT("Poison", "poison", 5, 3, nil)
	m.AddDOT(dot, 0)
	target.ApplyDamage(5, nil)

	report := m.Tick(t.Context(), nil)

	assert.Equal(t, effect.TickReport{}, report)
	assert.Equal(t, 3, dot.TurnsRemaining)
}

func TestTick_BatchedDOTsAllTickOnce(t *testing.T) {
	target := newTarget("t", 100)
	m := effect.NewManager(target)
	for i := 0; i < 25; i++ {
		m.AddDOT(effect.NewDOT("Bleed", "bleed", 1, 3, nil), 0)
	}

	report := m.Tick(t.Context(), nil)

	assert.Equal(t, 25, report.DOTsTicked)
	assert.Equal(t, 75, target.HP())
	for _, d := range m.DOTs() {
		assert.Equal(t, 2, d.TurnsRemaining)
	}
}

func TestTick_BatchedStopsAfterFatalBatch(t *testing.T) {
	bus := eventbus.New(zaptest.NewLogger(t))
	rec := record(bus)
	target := newTarget("t", 15)
	cfg := config.DefaultEngineConfig()
	cfg.DOTParallelThreshold = 5
	cfg.DOTBatchSize = 10
	m := effect.NewManager(target, effect.WithBus(bus), effect.WithEngineConfig(cfg))
	for i := 0; i < 25; i++ {
		m.AddDOT(effect.NewDOT("Bleed", "bleed", 1, 3, nil), 0)
	}

	report := m.Tick(t.Context(), nil)

	assert.True(t, report.Died)
	assert.Equal(t, 20, report.DOTsTicked)
	untouched := 0
	for _, d := range m.DOTs() {
		if d.TurnsRemaining == 3 {
			untouched++
		}
	}
	assert.Equal(t, 5, untouched)
	assert.Len(t, rec.named(effect.EventDOTKill), 1, "exactly one application is fatal")
}

func TestTick_ModifierExpiryRestoresStat(t *testing.T) {
	bus := eventbus.New(zaptest.NewLogger(t))
	rec := record(bus)
	target := newTarget("t", 100)
	target.SetBaseStat("atk", 40)
	m := effect.NewManager(target, effect.WithBus(bus))
	m.AddModifier(effect.NewStatModifier(target, "Rage", "rage", 2, map[string]float64{"atk": 10}, nil))
	m.AddModifier(effect.NewStatModifier(target, "Blessing", "blessing", -1, map[string]float64{"defense": 5}, nil))

	m.Tick(t.Context(), nil)
	assert.Equal(t, 50.0, target.CurrentStat("atk"))
	report := m.Tick(t.Context(), nil)

	assert.Equal(t, 2, report.ModifiersTicked)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 40.0, target.CurrentStat("atk"))
	assert.Equal(t, 5.0, target.CurrentStat("defense"), "permanent modifiers never expire")
	require.Len(t, m.Modifiers(), 1)
	assert.Equal(t, []string{"blessing"}, target.Statuses().Snapshot(effect.TypeModifier))

	expired := rec.named(effect.EventEffectExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, "stat_modifier", expired[0].payload()["effect_type"])
}

func TestTick_OnDeathRunsWithOther(t *testing.T) {
	victim := newTarget("victim", 4)
	killer := newTarget("killer", 50)
	vm := effect.NewManager(victim)
	km := effect.NewManager(killer)

	dot := effect.NewDOT("Leech", "leech", 4, 1, killer)
	dot.OnDeath = func(other *effect.Manager) {
		other.Entity().ApplyHealing(20, nil)
	}
	vm.AddDOT(dot, 0)

	report := vm.Tick(t.Context(), km)

	assert.True(t, report.Died)
	assert.Equal(t, 70, killer.HP(), "hook fires even though the killing stack expired")
	assert.Empty(t, vm.DOTs())
}

func TestTick_OnDeathSkippedWithoutOther(t *testing.T) {
	victim := newTarget("victim", 4)
	vm := effect.NewManager(victim)
	fired := false
	dot := effect.NewDOT("Leech", "leech", 4, 2, nil)
	dot.OnDeath = func(*effect.Manager) { fired = true }
	vm.AddDOT(dot, 0)

	assert.True(t, vm.Tick(t.Context(), nil).Died)
	assert.False(t, fired)
}

func TestTick_PanickingEffectExpiresAndIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	target := &unhealable{Combatant: newTarget("t", 100)}
	m := effect.NewManager(target, effect.WithLogger(zap.New(core)))
	m.AddHOT(effect.NewHOT("Mend", "mend", 1, 3, nil))
	m.AddDOT(effect.NewDOT("Poison", "poison", 1, 3, nil), 0)

	report := m.Tick(t.Context(), nil)

	assert.Equal(t, 1, report.Expired)
	assert.Empty(t, m.HOTs())
	assert.Len(t, m.DOTs(), 1)
	assert.Equal(t, 99, target.HP())
	assert.Equal(t, 1, logs.FilterMessage("effect tick panicked").Len())
}

// unhealable panics whenever it is healed.
type unhealable struct{ *combatant.Combatant }

func (*unhealable) ApplyHealing(int, effect.Entity) int { panic("cannot heal") }

func TestTick_PassivesRespectStackCapAndHook(t *testing.T) {
	target := newTarget("t", 100)
	target.AddPassive("regen")
	target.AddPassive("regen")
	target.AddPassive("regen")
	target.AddPassive("aura")
	target.AddPassive("aura")
	target.AddPassive("inert")
	target.AddPassive("missing")

	regen := &countingPassive{id: "regen", maxStacks: 2, hook: effect.HookTurnEnd}
	aura := &countingPassive{id: "aura", maxStacks: 0, hook: effect.HookGenericTick}
	inert := &countingPassive{id: "inert", maxStacks: 5, hook: effect.HookNone}
	m := effect.NewManager(target, effect.WithPassives(staticRegistry{
		"regen": regen, "aura": aura, "inert": inert,
	}))

	report := m.Tick(t.Context(), nil)

	assert.Equal(t, 3, report.PassivesInvoked)
	assert.EqualValues(t, 2, regen.calls.Load())
	assert.EqualValues(t, 1, aura.calls.Load(), "max_stacks <= 0 means one stack")
	assert.Zero(t, inert.calls.Load())
}

func TestTick_PassiveFailuresAreIsolated(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	target := newTarget("t", 100)
	target.AddPassive("broken")
	target.AddPassive("angry")
	target.AddPassive("fine")
	fine := &countingPassive{id: "fine", maxStacks: 1, hook: effect.HookTurnEnd}
	m := effect.NewManager(target, effect.WithLogger(zap.New(core)), effect.WithPassives(staticRegistry{
		"broken": &countingPassive{id: "broken", hook: effect.HookTurnEnd, fn: func(effect.Entity) error { return errors.New("nope") }},
		"angry":  &countingPassive{id: "angry", hook: effect.HookTurnEnd, fn: func(effect.Entity) error { panic("rage") }},
		"fine":   fine,
	}))

	report := m.Tick(t.Context(), nil)

	assert.Equal(t, 3, report.PassivesInvoked)
	assert.EqualValues(t, 1, fine.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("passive hook failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("passive hook panicked").Len())
}

func TestTick_PassivesBatched(t *testing.T) {
	target := newTarget("t", 100)
	regen := &countingPassive{id: "regen", maxStacks: 40, hook: effect.HookTurnEnd}
	for i := 0; i < 40; i++ {
		target.AddPassive("regen")
	}
	m := effect.NewManager(target, effect.WithPassives(staticRegistry{"regen": regen}))

	report := m.Tick(t.Context(), nil)

	assert.Equal(t, 40, report.PassivesInvoked)
	assert.EqualValues(t, 40, regen.calls.Load())
}

func TestTick_HandlerMayAddEffectsDuringTick(t *testing.T) {
	bus := eventbus.New(zaptest.NewLogger(t))
	target := newTarget("t", 100)
	m := effect.NewManager(target, effect.WithBus(bus))
	bus.Subscribe(effect.EventDOTTick, func(args ...any) {
		if len(m.HOTs()) == 0 {
			m.AddHOT(effect.NewHOT("Mend", "mend", 1, 2, nil))
		}
	})
	m.AddDOT(effect.NewDOT("Poison", "poison", 1, 3, nil), 0)

	report := m.Tick(t.Context(), nil)

	assert.Zero(t, report.HOTsTicked, "effects added mid-tick resolve next turn")
	assert.Len(t, m.HOTs(), 1)
}

func TestTick_DOTAddedDuringHOTPhaseWaitsForNextTurn(t *testing.T) {
	bus := eventbus.New(zaptest.NewLogger(t))
	target := newTarget("t", 50)
	m := effect.NewManager(target, effect.WithBus(bus))
	bus.Subscribe(effect.EventHOTTick, func(args ...any) {
		if len(m.DOTs()) == 0 {
			m.AddDOT(effect.NewDOT("Poison", "poison", 4, 3, nil), 0)
		}
	})
	m.AddHOT(effect.NewHOT("Mend", "mend", 1, 3, nil))

	first := m.Tick(t.Context(), nil)
	assert.Equal(t, 1, first.HOTsTicked)
	assert.Zero(t, first.DOTsTicked)
	assert.Equal(t, 51, target.HP())
	require.Len(t, m.DOTs(), 1)

	second := m.Tick(t.Context(), nil)
	assert.Equal(t, 1, second.DOTsTicked)
	assert.Equal(t, 48, target.HP())
}
