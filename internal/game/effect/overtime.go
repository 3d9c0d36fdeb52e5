package effect

import (
	"context"

	"github.com/google/uuid"

	"github.com/cory-johannsen/combatfx/internal/eventbus"
)

// DamageOverTime deals Damage to its target once per turn until
// TurnsRemaining reaches zero. Several DOTs may share an ID; each is a
// separate stack that ticks and expires on its own.
type DamageOverTime struct {
	Name string
	// ID identifies the DOT kind; stacks share it.
	ID string
	// InstanceID identifies this stack.
	InstanceID     string
	Damage         int
	TurnsRemaining int
	// Source is the entity credited with the damage. Shared, not owned.
	Source Entity
	// MaxStacks is the stack cap applied when the DOT is inflicted by a hit; 0 = uncapped.
	MaxStacks int

	// OnAction, when set, runs before the target acts; returning false cancels the action.
	OnAction func(target Entity) bool
	// OnDeath, when set, runs if the target dies during a tick; killer is the
	// manager supplied to that tick.
	OnDeath func(killer *Manager)
}

// NewDOT creates a DOT stack with a fresh InstanceID.
//
// Precondition: turns >= 1; damage >= 0.
func NewDOT(name, id string, damage, turns int, source Entity) *DamageOverTime {
	return &DamageOverTime{
		Name:           name,
		ID:             id,
		InstanceID:     uuid.New().String(),
		Damage:         damage,
		TurnsRemaining: turns,
		Source:         source,
	}
}

// Tick applies one turn of damage to target and publishes dot_tick (and
// dot_kill when this tick took target from alive to dead).
//
// Postcondition: TurnsRemaining is decremented; returns true while turns remain.
func (d *DamageOverTime) Tick(ctx context.Context, target Entity, bus *eventbus.Bus) bool {
	if d.TurnsRemaining <= 0 {
		return false
	}
	dealt, killed := target.ApplyDamage(d.Damage, d.Source)
	d.TurnsRemaining--

	if bus != nil {
		bus.Emit(EventDOTTick, d.Source, target, dealt, d.Name, map[string]any{
			"dot_id":          d.ID,
			"remaining_turns": d.TurnsRemaining,
			"original_damage": d.Damage,
		})
		if killed {
			bus.Emit(EventDOTKill, d.Source, target, dealt, d.Name, map[string]any{
				"dot_id":       d.ID,
				"dot_name":     d.Name,
				"final_damage": dealt,
			})
		}
	}
	return d.TurnsRemaining > 0
}

// HealingOverTime restores Healing to its target once per turn until
// TurnsRemaining reaches zero. HOTs are never stack-capped.
type HealingOverTime struct {
	Name           string
	ID             string
	InstanceID     string
	Healing        int
	TurnsRemaining int
	// Source is the healer. Shared, not owned.
	Source Entity

	OnAction func(target Entity) bool
}

// NewHOT creates a HOT stack with a fresh InstanceID.
//
// Precondition: turns >= 1; healing >= 0.
func NewHOT(name, id string, healing, turns int, source Entity) *HealingOverTime {
	return &HealingOverTime{
		Name:           name,
		ID:             id,
		InstanceID:     uuid.New().String(),
		Healing:        healing,
		TurnsRemaining: turns,
		Source:         source,
	}
}

// Tick applies one turn of healing to target and publishes hot_tick.
//
// Postcondition: TurnsRemaining is decremented; returns true while turns remain.
func (h *HealingOverTime) Tick(ctx context.Context, target Entity, bus *eventbus.Bus) bool {
	if h.TurnsRemaining <= 0 {
		return false
	}
	healed := target.ApplyHealing(h.Healing, h.Source)
	h.TurnsRemaining--

	if bus != nil {
		bus.Emit(EventHOTTick, h.Source, target, healed, h.Name, map[string]any{
			"hot_id":           h.ID,
			"remaining_turns":  h.TurnsRemaining,
			"original_healing": h.Healing,
		})
	}
	return h.TurnsRemaining > 0
}
