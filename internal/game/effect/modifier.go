package effect

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cory-johannsen/combatfx/internal/game/diminish"
)

// StatModifier is a timed set of stat changes installed on its target as a
// single aggregated runtime effect.
type StatModifier struct {
	Name       string
	ID         string
	InstanceID string
	// TurnsRemaining counts down once per tick; -1 marks a permanent modifier.
	TurnsRemaining int
	// Permanent modifiers never count down while TurnsRemaining <= 0.
	Permanent bool
	// Deltas are additive changes per stat.
	Deltas map[string]float64
	// Multipliers are converted to additive changes of base*(m-1) when applied.
	Multipliers map[string]float64
	// BypassDiminishing installs the changes without diminishing returns.
	BypassDiminishing bool

	target Entity

	mu        sync.Mutex
	installed string
	applied   map[string]float64
}

// NewStatModifier creates a modifier for target. turns of -1 makes it permanent.
//
// Precondition: target must not be nil.
func NewStatModifier(target Entity, name, id string, turns int, deltas, multipliers map[string]float64) *StatModifier {
	return &StatModifier{
		Name:           name,
		ID:             id,
		InstanceID:     uuid.New().String(),
		TurnsRemaining: turns,
		Permanent:      turns < 0,
		Deltas:         deltas,
		Multipliers:    multipliers,
		target:         target,
	}
}

// Target returns the entity the modifier is installed on.
func (s *StatModifier) Target() Entity { return s.target }

// EffectName returns the name of the installed runtime effect, or "" before Apply.
func (s *StatModifier) EffectName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.installed
}

// AppliedDeltas returns a copy of the deltas actually installed.
func (s *StatModifier) AppliedDeltas() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.applied))
	for k, v := range s.applied {
		out[k] = v
	}
	return out
}

// Apply merges deltas and multiplier-derived deltas into one additive
// modifier, scales each stat's change through calc unless
// BypassDiminishing is set, and installs the result on the target. Scaling
// starts from the stat's value before this modifier, so the modifier never
// diminishes against itself twice. A nil calc installs unscaled values.
//
// Postcondition: exactly one runtime effect named EffectName() is installed;
// calls while it is installed are no-ops.
func (s *StatModifier) Apply(calc *diminish.Calculator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed != "" {
		return
	}

	merged := make(map[string]float64, len(s.Deltas)+len(s.Multipliers))
	for stat, d := range s.Deltas {
		merged[stat] += d
	}
	for stat, m := range s.Multipliers {
		merged[stat] += s.target.BaseStat(stat) * (m - 1)
	}

	// deterministic order keeps CurrentStat reads stable across runs
	stats := make([]string, 0, len(merged))
	for stat := range merged {
		stats = append(stats, stat)
	}
	sort.Strings(stats)

	scaled := make(map[string]float64, len(merged))
	for _, stat := range stats {
		d := merged[stat]
		if !s.BypassDiminishing && calc != nil {
			d = calc.ScaleDelta(stat, s.target.CurrentStat(stat), d)
		}
		scaled[stat] = d
	}

	s.installed = fmt.Sprintf("%s_%s", s.Name, s.InstanceID)
	s.applied = scaled
	s.target.AddEffect(StatEffect{Name: s.installed, Source: s.ID, Deltas: scaled})
}

// Remove detaches the installed runtime effect from the target.
//
// Postcondition: EffectName() == ""; repeated calls are no-ops.
func (s *StatModifier) Remove() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.installed == "" {
		return
	}
	s.target.RemoveEffectByName(s.installed)
	s.installed = ""
}

// Tick advances the modifier one turn.
//
// Postcondition: returns false once a non-permanent modifier runs out of turns.
func (s *StatModifier) Tick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Permanent && s.TurnsRemaining <= 0 {
		return true
	}
	s.TurnsRemaining--
	return s.TurnsRemaining > 0
}
