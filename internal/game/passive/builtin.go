package passive

import (
	"context"

	"github.com/cory-johannsen/combatfx/internal/game/effect"
)

// StatCharge is the runtime stat the charge builtin maintains.
const StatCharge = "charge"

// HookFunc is a resolved passive hook.
type HookFunc func(ctx context.Context, target effect.Entity, a *Ability) error

// builtins are the Go hooks content may name directly.
var builtins = map[string]HookFunc{
	// regen heals amount (default 1) plus percent of max hp.
	"regen": func(_ context.Context, target effect.Entity, a *Ability) error {
		heal := a.Param("amount", 1) + target.MaxHP()*a.Param("percent", 0)/100
		target.ApplyHealing(heal, target)
		return nil
	},
	// burn_aura burns its bearer for damage (default 1) each turn.
	"burn_aura": func(_ context.Context, target effect.Entity, a *Ability) error {
		target.ApplyDamage(a.Param("damage", 1), target)
		return nil
	},
	// charge builds one charge per turn up to max (default 5) and exposes
	// the count as a runtime "charge" stat sourced by the passive id, so
	// cleanup takes it off with the rest of the battle's effects.
	"charge": func(_ context.Context, target effect.Entity, a *Ability) error {
		limit := a.Param("max", 5)
		key := a.ID() + "." + StatCharge
		n := a.state.Add(target.ID(), key, 1)
		if n > limit {
			n = limit
			a.state.Set(target.ID(), key, n)
		}
		target.AddEffect(effect.StatEffect{
			Name:   key,
			Source: a.ID(),
			Deltas: map[string]float64{StatCharge: float64(n)},
		})
		return nil
	},
}

// Builtins returns the names of the Go hooks.
func Builtins() []string {
	out := make([]string, 0, len(builtins))
	for name := range builtins {
		out = append(out, name)
	}
	return out
}
