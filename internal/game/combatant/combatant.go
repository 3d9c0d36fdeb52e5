// Package combatant provides the reference effect.Entity: a combatant with
// hit points, a base stat layer, a runtime effect layer and status lists.
package combatant

import (
	"sort"
	"sync"

	"github.com/cory-johannsen/combatfx/internal/game/effect"
)

// Well-known stat names read by the engine.
const (
	StatMaxHP            = "max_hp"
	StatEffectHitRate    = "effect_hit_rate"
	StatEffectResistance = "effect_resistance"
)

// Config describes a new combatant.
type Config struct {
	ID   string
	Name string
	// MaxHP seeds the max_hp base stat.
	MaxHP int
	// HP is the starting hp; 0 starts at full health.
	HP               int
	EffectHitRate    float64
	EffectResistance float64
	// Stats are additional base stats.
	Stats      map[string]float64
	DamageType effect.DamageType
	// Passives are passive ids; repeats are extra stacks.
	Passives []string
}

// Combatant is safe for concurrent use.
type Combatant struct {
	id         string
	name       string
	damageType effect.DamageType
	statuses   effect.StatusLists

	mu       sync.RWMutex
	hp       int
	base     map[string]float64
	effects  []effect.StatEffect
	passives []string
}

// New creates a combatant from cfg.
//
// Precondition: cfg.ID is unique within a battle; cfg.MaxHP >= 1.
// Postcondition: HP() == cfg.HP when 0 < cfg.HP <= cfg.MaxHP, otherwise MaxHP().
func New(cfg Config) *Combatant {
	c := &Combatant{
		id:         cfg.ID,
		name:       cfg.Name,
		damageType: cfg.DamageType,
		base:       make(map[string]float64, len(cfg.Stats)+3),
		passives:   append([]string(nil), cfg.Passives...),
	}
	for k, v := range cfg.Stats {
		c.base[k] = v
	}
	c.base[StatMaxHP] = float64(cfg.MaxHP)
	c.base[StatEffectHitRate] = cfg.EffectHitRate
	c.base[StatEffectResistance] = cfg.EffectResistance

	c.hp = c.maxHPLocked()
	if cfg.HP > 0 && cfg.HP < c.hp {
		c.hp = cfg.HP
	}
	return c
}

func (c *Combatant) ID() string   { return c.id }
func (c *Combatant) Name() string { return c.name }

// HP returns the current hit points, never negative.
func (c *Combatant) HP() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hp
}

// MaxHP returns the current max_hp stat, at least 1.
func (c *Combatant) MaxHP() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.maxHPLocked()
}

func (c *Combatant) maxHPLocked() int {
	n := int(c.currentLocked(StatMaxHP))
	if n < 1 {
		return 1
	}
	return n
}

// Alive reports whether HP() > 0.
func (c *Combatant) Alive() bool { return c.HP() > 0 }

func (c *Combatant) EffectHitRate() float64    { return c.CurrentStat(StatEffectHitRate) }
func (c *Combatant) EffectResistance() float64 { return c.CurrentStat(StatEffectResistance) }

// ApplyDamage removes up to amount hp, flooring at zero.
//
// Postcondition: dealt is in [0, amount]; killed is true for exactly one call
// per death.
func (c *Combatant) ApplyDamage(amount int, _ effect.Entity) (dealt int, killed bool) {
	if amount <= 0 {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dealt = min(amount, c.hp)
	c.hp -= dealt
	return dealt, dealt > 0 && c.hp == 0
}

// ApplyHealing restores up to amount hp, capped at MaxHP. The dead cannot be healed.
//
// Postcondition: returns the hp actually restored, in [0, amount].
func (c *Combatant) ApplyHealing(amount int, _ effect.Entity) int {
	if amount <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hp <= 0 {
		return 0
	}
	healed := min(amount, c.maxHPLocked()-c.hp)
	if healed < 0 {
		healed = 0
	}
	c.hp += healed
	return healed
}

// BaseStat returns the permanent value of name; unknown stats are 0.
func (c *Combatant) BaseStat(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.base[name]
}

func (c *Combatant) SetBaseStat(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base[name] = value
	c.clampHPLocked()
}

func (c *Combatant) ModifyBaseStat(name string, delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.base[name] += delta
	c.clampHPLocked()
}

// CurrentStat returns the base value of name plus every installed runtime delta.
func (c *Combatant) CurrentStat(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentLocked(name)
}

func (c *Combatant) currentLocked(name string) float64 {
	v := c.base[name]
	for _, e := range c.effects {
		v += e.Deltas[name]
	}
	return v
}

// AddEffect installs e on the runtime layer. An installation with the same
// name replaces the earlier one.
func (c *Combatant) AddEffect(e effect.StatEffect) {
	deltas := make(map[string]float64, len(e.Deltas))
	for k, v := range e.Deltas {
		deltas[k] = v
	}
	e.Deltas = deltas

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.effects {
		if c.effects[i].Name == e.Name {
			c.effects[i] = e
			c.clampHPLocked()
			return
		}
	}
	c.effects = append(c.effects, e)
	c.clampHPLocked()
}

// RemoveEffectByName removes the installation named name.
func (c *Combatant) RemoveEffectByName(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.effects {
		if c.effects[i].Name == name {
			c.effects = append(c.effects[:i], c.effects[i+1:]...)
			c.clampHPLocked()
			return true
		}
	}
	return false
}

// RemoveEffectBySource removes every installation from source and returns how many went.
func (c *Combatant) RemoveEffectBySource(source string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.effects[:0]
	removed := 0
	for _, e := range c.effects {
		if e.Source == source {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	c.effects = kept
	c.clampHPLocked()
	return removed
}

// Effects returns the names of the installed runtime effects, sorted.
func (c *Combatant) Effects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.effects))
	for _, e := range c.effects {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}

// clampHPLocked keeps hp within a shrunken max_hp.
func (c *Combatant) clampHPLocked() {
	if m := c.maxHPLocked(); c.hp > m {
		c.hp = m
	}
}

func (c *Combatant) Statuses() *effect.StatusLists { return &c.statuses }

func (c *Combatant) DamageType() effect.DamageType { return c.damageType }

// PassiveIDs returns a copy of the passive ids.
func (c *Combatant) PassiveIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.passives...)
}

// AddPassive grants one more stack of passive id.
func (c *Combatant) AddPassive(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.passives = append(c.passives, id)
}

var _ effect.Entity = (*Combatant)(nil)
