package effect

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/combatfx/internal/config"
	"github.com/cory-johannsen/combatfx/internal/eventbus"
	"github.com/cory-johannsen/combatfx/internal/game/dice"
	"github.com/cory-johannsen/combatfx/internal/game/diminish"
	"github.com/cory-johannsen/combatfx/internal/observability"
)

const (
	// firstStackFloor is the inflict chance of the first DOT stack when
	// resistance meets or exceeds hit rate.
	firstStackFloor = 0.01
	// maxInflictAttempts bounds the stacks one hit can inflict, so an
	// extreme hit rate against an uncapped DOT still terminates.
	maxInflictAttempts = 100
)

// ChanceRoller decides probabilistic outcomes.
type ChanceRoller interface {
	// Chance reports whether an event with probability p happened.
	Chance(p float64, label string) bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithBus publishes the manager's events on bus.
func WithBus(bus *eventbus.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithCalculator sets the diminishing returns table used by modifiers.
func WithCalculator(calc *diminish.Calculator) Option {
	return func(m *Manager) { m.calc = calc }
}

// WithPassives resolves the entity's passive ids through reg.
func WithPassives(reg PassiveRegistry) Option {
	return func(m *Manager) {
		if reg != nil {
			m.passives = reg.Discover()
		}
	}
}

// WithRoller sets the randomness used by MaybeInflictDOT.
func WithRoller(r ChanceRoller) Option {
	return func(m *Manager) { m.roller = r }
}

// WithEngineConfig sets the adaptive dispatch thresholds.
func WithEngineConfig(cfg config.EngineConfig) Option {
	return func(m *Manager) { m.cfg = cfg }
}

// WithLogger sets the manager's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// Manager owns the active DOTs, HOTs and stat modifiers of exactly one
// entity and keeps the entity's status lists in lock-step with them.
//
// Manager is safe for concurrent use, but Tick must not run concurrently
// with itself. No lock is held while effect ticks, hooks or event handlers
// run, so handlers may add effects to any manager, including this one;
// effects added during a tick are resolved from the next tick on.
type Manager struct {
	entity   Entity
	bus      *eventbus.Bus
	calc     *diminish.Calculator
	passives map[string]Passive
	roller   ChanceRoller
	cfg      config.EngineConfig
	logger   *zap.Logger

	mu   sync.Mutex
	dots []*DamageOverTime
	hots []*HealingOverTime
	mods []*StatModifier
}

// NewManager creates a Manager for entity.
//
// Precondition: entity must not be nil.
// Postcondition: Returns a Manager with empty collections. Defaults: no bus,
// the built-in diminishing returns table, no passives, a crypto-backed roller
// and the standard dispatch thresholds.
func NewManager(entity Entity, opts ...Option) *Manager {
	m := &Manager{
		entity: entity,
		cfg:    config.DefaultEngineConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = observability.OrNop(m.logger).With(zap.String("entity", entity.ID()))
	if m.calc == nil {
		m.calc = diminish.NewDefaultCalculator()
	}
	if m.roller == nil {
		m.roller = dice.NewLoggedRoller(dice.NewCryptoSource(), m.logger)
	}
	return m
}

// Entity returns the managed entity.
func (m *Manager) Entity() Entity { return m.entity }

// Bus returns the bus the manager publishes on; may be nil.
func (m *Manager) Bus() *eventbus.Bus { return m.bus }

func (m *Manager) alive() bool { return m.entity.HP() > 0 }

func (m *Manager) publish(event string, args ...any) {
	if m.bus != nil {
		m.bus.Emit(event, args...)
	}
}

// AddDOT attaches dot. A dead entity rejects every DOT. When maxStacks > 0
// and that many stacks of dot.ID are already active the DOT is rejected and
// the existing stacks are left untouched.
//
// Postcondition: returns true iff dot was appended and effect_applied published.
func (m *Manager) AddDOT(dot *DamageOverTime, maxStacks int) bool {
	if dot == nil || !m.alive() {
		return false
	}
	m.mu.Lock()
	if maxStacks > 0 && countDOTs(m.dots, dot.ID) >= maxStacks {
		m.mu.Unlock()
		m.logger.Debug("dot rejected at stack cap",
			zap.String("dot", dot.ID),
			zap.Int("max_stacks", maxStacks),
		)
		return false
	}
	m.dots = append(m.dots, dot)
	m.entity.Statuses().Add(TypeDOT, dot.ID)
	stacks := countDOTs(m.dots, dot.ID)
	m.mu.Unlock()

	m.publish(EventEffectApplied, dot.Name, m.entity, map[string]any{
		"effect_type":    string(TypeDOT),
		"effect_id":      dot.ID,
		"damage":         dot.Damage,
		"turns":          dot.TurnsRemaining,
		"current_stacks": stacks,
	})
	return true
}

// AddHOT attaches hot. A dead entity rejects every HOT; otherwise HOTs are
// never capped.
//
// Postcondition: returns true iff hot was appended and effect_applied published.
func (m *Manager) AddHOT(hot *HealingOverTime) bool {
	if hot == nil || !m.alive() {
		return false
	}
	m.mu.Lock()
	m.hots = append(m.hots, hot)
	m.entity.Statuses().Add(TypeHOT, hot.ID)
	stacks := countHOTs(m.hots, hot.ID)
	m.mu.Unlock()

	m.publish(EventEffectApplied, hot.Name, m.entity, map[string]any{
		"effect_type":    string(TypeHOT),
		"effect_id":      hot.ID,
		"healing":        hot.Healing,
		"turns":          hot.TurnsRemaining,
		"current_stacks": stacks,
	})
	return true
}

// AddModifier attaches mod, applying it first if it has not been applied.
// Modifiers are accepted on dead entities so death-triggered effects work.
//
// Precondition: mod targets this manager's entity.
func (m *Manager) AddModifier(mod *StatModifier) {
	if mod == nil {
		return
	}
	if mod.EffectName() == "" {
		mod.Apply(m.calc)
	}
	m.mu.Lock()
	m.mods = append(m.mods, mod)
	m.entity.Statuses().Add(TypeModifier, mod.ID)
	m.mu.Unlock()

	m.publish(EventEffectApplied, mod.Name, m.entity, map[string]any{
		"effect_type": string(TypeModifier),
		"effect_id":   mod.ID,
		"turns":       mod.TurnsRemaining,
		"deltas":      mod.Deltas,
		"multipliers": mod.Multipliers,
	})
}

// MaybeInflictDOT rolls for DOT stacks from a hit of damage by attacker.
// Each roll succeeds with the attacker's remaining hit rate minus this
// entity's resistance (capped at 1); every success manufactures a DOT via
// the attacker's damage type and spends 1.0 of hit rate. The first roll
// always has at least a 1% chance. turns > 0 overrides the DOT's duration.
// Rolling stops at the first miss, at the first stack AddDOT rejects, or
// after maxInflictAttempts stacks.
//
// Postcondition: returns the number of stacks attached.
func (m *Manager) MaybeInflictDOT(attacker Entity, damage, turns int) int {
	if attacker == nil {
		return 0
	}
	dt := attacker.DamageType()
	if dt == nil {
		return 0
	}
	remaining := attacker.EffectHitRate()
	resistance := m.entity.EffectResistance()
	applied := 0

	for attempt := 0; attempt < maxInflictAttempts; attempt++ {
		effective := remaining - resistance
		var chance float64
		if effective <= 0 {
			if attempt > 0 {
				break
			}
			chance = firstStackFloor
		} else {
			chance = math.Min(effective, 1.0)
		}
		if !m.roller.Chance(chance, fmt.Sprintf("inflict dot attempt %d", attempt+1)) {
			break
		}
		dot := dt.CreateDOT(damage, attacker)
		if dot == nil {
			break
		}
		if turns > 0 {
			dot.TurnsRemaining = turns
		}
		if !m.AddDOT(dot, dot.MaxStacks) {
			// dead or at the stack cap; later stacks would be rejected too
			break
		}
		applied++
		remaining -= 1.0
	}
	return applied
}

// OnAction runs the OnAction hooks of every DOT then HOT and reports
// whether the entity may act. The first hook returning false cancels the
// action and no later hook runs.
func (m *Manager) OnAction() bool {
	m.mu.Lock()
	var hooks []func(Entity) bool
	for _, d := range m.dots {
		if d.OnAction != nil {
			hooks = append(hooks, d.OnAction)
		}
	}
	for _, h := range m.hots {
		if h.OnAction != nil {
			hooks = append(hooks, h.OnAction)
		}
	}
	m.mu.Unlock()

	for _, hook := range hooks {
		if !m.safeHook("on_action", func() bool { return hook(m.entity) }) {
			return false
		}
	}
	return true
}

// Cleanup removes every installed modifier from the entity, tolerating
// individual failures, then removes the runtime stat effects installed by the
// entity's passives and empties all collections and status lists. It is
// meant to run once per entity when a battle ends; running it again is harmless.
//
// Postcondition: all three collections and all three status lists are empty;
// no runtime effect sourced by one of the entity's passive ids remains.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mod := range m.mods {
		m.safeRemove(mod)
	}
	for _, id := range m.entity.PassiveIDs() {
		m.entity.RemoveEffectBySource(id)
	}
	m.dots = nil
	m.hots = nil
	m.mods = nil
	m.entity.Statuses().Clear()
}

func (m *Manager) safeRemove(mod *StatModifier) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("modifier removal failed",
				zap.String("modifier", mod.ID),
				zap.Any("panic", r),
			)
		}
	}()
	mod.Remove()
}

// safeHook runs fn, treating a panic as a false result.
func (m *Manager) safeHook(hook string, fn func() bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			m.logger.Warn("effect hook panicked",
				zap.String("hook", hook),
				zap.Any("panic", r),
			)
		}
	}()
	return fn()
}

// DOTs returns a snapshot of the active DOTs in attachment order.
func (m *Manager) DOTs() []*DamageOverTime {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*DamageOverTime(nil), m.dots...)
}

// HOTs returns a snapshot of the active HOTs in attachment order.
func (m *Manager) HOTs() []*HealingOverTime {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*HealingOverTime(nil), m.hots...)
}

// Modifiers returns a snapshot of the active modifiers in attachment order.
func (m *Manager) Modifiers() []*StatModifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*StatModifier(nil), m.mods...)
}

// DOTStacks returns the number of active stacks of DOT id.
func (m *Manager) DOTStacks(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return countDOTs(m.dots, id)
}

func countDOTs(dots []*DamageOverTime, id string) int {
	n := 0
	for _, d := range dots {
		if d.ID == id {
			n++
		}
	}
	return n
}

func countHOTs(hots []*HealingOverTime, id string) int {
	n := 0
	for _, h := range hots {
		if h.ID == id {
			n++
		}
	}
	return n
}
