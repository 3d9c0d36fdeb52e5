// Package effect implements per-combatant effect resolution: damage and heal
// over time, timed stat modifiers and passive abilities, their stacking and
// expiry rules, and the once-per-turn tick that resolves them all.
package effect

import (
	"context"
	"sync"
)

// EffectType names a kind of timed effect in events and status lists.
type EffectType string

const (
	TypeDOT      EffectType = "dot"
	TypeHOT      EffectType = "hot"
	TypeModifier EffectType = "stat_modifier"
)

// StatEffect is one aggregated additive modifier installed on an entity's
// runtime stat layer.
type StatEffect struct {
	// Name uniquely identifies the installation; RemoveEffectByName uses it.
	Name string
	// Source groups installations for RemoveEffectBySource.
	Source string
	// Deltas maps stat name to the additive change.
	Deltas map[string]float64
}

// Entity is a combatant as seen by the engine. Implementations own their
// state; the engine never mutates it except through these methods and the
// status lists returned by Statuses.
//
// ApplyDamage and ApplyHealing MUST be safe for concurrent use: batched ticks
// and other entities' effects may call them simultaneously.
type Entity interface {
	ID() string
	Name() string
	HP() int
	MaxHP() int
	EffectHitRate() float64
	EffectResistance() float64

	// ApplyDamage removes up to amount hp and returns the amount actually
	// removed. killed is true only for the application that took hp from
	// above zero to zero. attacker may be nil.
	ApplyDamage(amount int, attacker Entity) (dealt int, killed bool)
	// ApplyHealing restores up to amount hp and returns the amount actually restored.
	// healer may be nil.
	ApplyHealing(amount int, healer Entity) int

	// BaseStat returns a stat's permanent value, unaffected by runtime effects.
	BaseStat(name string) float64
	SetBaseStat(name string, value float64)
	ModifyBaseStat(name string, delta float64)
	// CurrentStat returns the base value plus every installed runtime delta.
	CurrentStat(name string) float64

	AddEffect(e StatEffect)
	RemoveEffectByName(name string) bool
	RemoveEffectBySource(source string) int

	// Statuses returns the display lists mirroring the entity's effect collections.
	Statuses() *StatusLists
	// DamageType returns the plugin that manufactures this entity's DOTs; nil for none.
	DamageType() DamageType
	// PassiveIDs returns the entity's passive ids; repeats are extra stacks.
	PassiveIDs() []string
}

// DamageType is a damage plugin able to manufacture a DOT from a hit.
type DamageType interface {
	// CreateDOT returns a new DOT for a hit of damage by source, or nil to decline.
	CreateDOT(damage int, source Entity) *DamageOverTime
}

// HookKind is the capability a passive exposes for turn-end resolution. It is
// resolved once when the passive is registered.
type HookKind int

const (
	// HookNone passives are ignored at turn end.
	HookNone HookKind = iota
	// HookTurnEnd passives define an on_turn_end hook.
	HookTurnEnd
	// HookGenericTick passives define a generic per-turn tick.
	HookGenericTick
	// HookFallbackApply passives trigger at turn end and only define apply.
	HookFallbackApply
)

// String returns the hook's content name.
func (k HookKind) String() string {
	switch k {
	case HookTurnEnd:
		return "on_turn_end"
	case HookGenericTick:
		return "tick"
	case HookFallbackApply:
		return "apply"
	default:
		return "none"
	}
}

// Passive is one passive ability definition.
type Passive interface {
	ID() string
	// MaxStacks caps how many stacks resolve per turn; values <= 0 mean one.
	MaxStacks() int
	Hook() HookKind
	// Invoke runs the passive's turn-end hook once for target.
	Invoke(ctx context.Context, target Entity) error
}

// PassiveRegistry resolves passive ids to definitions.
type PassiveRegistry interface {
	Discover() map[string]Passive
}

// StatusLists mirrors an entity's effect collections as id lists for display
// and serialisation. It is safe for concurrent use.
type StatusLists struct {
	mu   sync.Mutex
	dots []string
	hots []string
	mods []string
}

func (s *StatusLists) list(kind EffectType) *[]string {
	switch kind {
	case TypeDOT:
		return &s.dots
	case TypeHOT:
		return &s.hots
	case TypeModifier:
		return &s.mods
	default:
		return nil
	}
}

// Add appends id to the kind list.
func (s *StatusLists) Add(kind EffectType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(kind); l != nil {
		*l = append(*l, id)
	}
}

// RemoveOne removes the first occurrence of id from the kind list and
// reports whether one was found.
func (s *StatusLists) RemoveOne(kind EffectType, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.list(kind)
	if l == nil {
		return false
	}
	for i, v := range *l {
		if v == id {
			*l = append((*l)[:i], (*l)[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns a copy of the kind list.
func (s *StatusLists) Snapshot(kind EffectType) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.list(kind)
	if l == nil {
		return nil
	}
	out := make([]string, len(*l))
	copy(out, *l)
	return out
}

// Len returns the length of the kind list.
func (s *StatusLists) Len(kind EffectType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.list(kind); l != nil {
		return len(*l)
	}
	return 0
}

// Clear empties all three lists.
func (s *StatusLists) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dots = nil
	s.hots = nil
	s.mods = nil
}
