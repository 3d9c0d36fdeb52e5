package effect_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cory-johannsen/combatfx/internal/eventbus"
	"github.com/cory-johannsen/combatfx/internal/game/combatant"
	"github.com/cory-johannsen/combatfx/internal/game/effect"
)

// scriptedRoller returns results in order, then def, and records every chance asked.
type scriptedRoller struct {
	mu      sync.Mutex
	results []bool
	def     bool
	chances []float64
}

func (r *scriptedRoller) Chance(p float64, _ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chances = append(r.chances, p)
	if len(r.results) > 0 {
		v := r.results[0]
		r.results = r.results[1:]
		return v
	}
	return r.def
}

// burnType manufactures "burn" DOTs dealing half the hit.
type burnType struct {
	maxStacks int
	turns     int
	decline   bool
}

func (b burnType) CreateDOT(damage int, source effect.Entity) *effect.DamageOverTime {
	if b.decline {
		return nil
	}
	turns := b.turns
	if turns == 0 {
		turns = 3
	}
	d := effect.NewDOT("Burn", "burn", max(1, damage/2), turns, source)
	d.MaxStacks = b.maxStacks
	return d
}

type event struct {
	name string
	args []any
}

// recorder captures every engine event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func record(bus *eventbus.Bus) *recorder {
	r := &recorder{}
	for _, name := range []string{
		effect.EventEffectApplied, effect.EventEffectExpired,
		effect.EventDOTTick, effect.EventHOTTick, effect.EventDOTKill,
	} {
		bus.Subscribe(name, func(args ...any) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, event{name: name, args: args})
		})
	}
	return r
}

func (r *recorder) named(name string) []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

// payload returns the trailing map argument of e.
func (e event) payload() map[string]any {
	return e.args[len(e.args)-1].(map[string]any)
}

func newTarget(id string, hp int) *combatant.Combatant {
	return combatant.New(combatant.Config{ID: id, Name: id, MaxHP: 100, HP: hp})
}

// countingPassive counts its invocations.
type countingPassive struct {
	id        string
	maxStacks int
	hook      effect.HookKind
	calls     atomic.Int64
	fn        func(target effect.Entity) error
}

func (p *countingPassive) ID() string            { return p.id }
func (p *countingPassive) MaxStacks() int        { return p.maxStacks }
func (p *countingPassive) Hook() effect.HookKind { return p.hook }
func (p *countingPassive) Invoke(_ context.Context, target effect.Entity) error {
	p.calls.Add(1)
	if p.fn != nil {
		return p.fn(target)
	}
	return nil
}

type staticRegistry map[string]effect.Passive

func (r staticRegistry) Discover() map[string]effect.Passive { return r }
