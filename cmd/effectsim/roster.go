package main

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/combatfx/internal/battle"
	"github.com/cory-johannsen/combatfx/internal/config"
	"github.com/cory-johannsen/combatfx/internal/eventbus"
	"github.com/cory-johannsen/combatfx/internal/game/combatant"
	"github.com/cory-johannsen/combatfx/internal/game/damagetype"
	"github.com/cory-johannsen/combatfx/internal/game/dice"
	"github.com/cory-johannsen/combatfx/internal/game/diminish"
	"github.com/cory-johannsen/combatfx/internal/game/effect"
	"github.com/cory-johannsen/combatfx/internal/game/passive"
)

type rosterDeps struct {
	bus         *eventbus.Bus
	calc        *diminish.Calculator
	passives    *passive.Registry
	damageTypes *damagetype.Registry
	roller      *dice.Roller
	engine      config.EngineConfig
	logger      *zap.Logger
}

type recruit struct {
	cfg        combatant.Config
	damageType string
	buffs      []*buff
}

type buff struct {
	name   string
	id     string
	turns  int
	deltas map[string]float64
}

// demoSides stages a two-on-two skirmish. Unknown damage types fall back to none.
func demoSides(d rosterDeps) []battle.Side {
	wardens := []recruit{
		{
			cfg: combatant.Config{
				ID: "warden-knight", Name: "Knight", MaxHP: 140,
				EffectHitRate: 0.6, EffectResistance: 0.4,
				Stats:    map[string]float64{"atk": 9, "defense": 30},
				Passives: []string{"troll_blood", "troll_blood", "troll_blood", "battle_cry"},
			},
			damageType: "fire",
			buffs:      []*buff{{name: "Oath", id: "oath", turns: -1, deltas: map[string]float64{"atk": 120}}},
		},
		{
			cfg: combatant.Config{
				ID: "warden-mystic", Name: "Mystic", MaxHP: 90,
				EffectHitRate: 1.4, EffectResistance: 0.7,
				Stats:    map[string]float64{"atk": 6},
				Passives: []string{"storm_charge", "second_wind"},
			},
			damageType: "poison",
		},
	}
	raiders := []recruit{
		{
			cfg: combatant.Config{
				ID: "raider-berserker", Name: "Berserker", MaxHP: 160,
				EffectHitRate: 0.3, EffectResistance: 0.1,
				Stats:    map[string]float64{"atk": 14},
				Passives: []string{"ember_heart"},
			},
			damageType: "physical",
			buffs:      []*buff{{name: "Frenzy", id: "frenzy", turns: 4, deltas: map[string]float64{"atk": 300}}},
		},
		{
			cfg: combatant.Config{
				ID: "raider-alchemist", Name: "Alchemist", MaxHP: 80,
				EffectHitRate: 2.2, EffectResistance: 0.5,
				Stats:    map[string]float64{"atk": 5},
				Passives: []string{"second_wind"},
			},
			damageType: "poison",
		},
	}
	return []battle.Side{
		{Name: "wardens", Members: enlist(d, wardens)},
		{Name: "raiders", Members: enlist(d, raiders)},
	}
}

func enlist(d rosterDeps, recruits []recruit) []*effect.Manager {
	out := make([]*effect.Manager, 0, len(recruits))
	for _, r := range recruits {
		cfg := r.cfg
		if dt, ok := d.damageTypes.Get(r.damageType); ok {
			cfg.DamageType = dt
		} else if r.damageType != "" {
			d.logger.Debug("unknown damage type", zap.String("damage_type", r.damageType))
		}
		c := combatant.New(cfg)
		m := effect.NewManager(c,
			effect.WithBus(d.bus),
			effect.WithCalculator(d.calc),
			effect.WithPassives(d.passives),
			effect.WithRoller(d.roller),
			effect.WithEngineConfig(d.engine),
			effect.WithLogger(d.logger),
		)
		for _, b := range r.buffs {
			m.AddModifier(effect.NewStatModifier(c, b.name, b.id, b.turns, b.deltas, nil))
		}
		out = append(out, m)
	}
	return out
}
