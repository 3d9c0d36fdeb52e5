// Package diminish implements the diminishing-returns law applied to stacked
// stat buffs: every time a stat crosses another threshold above its base
// offset, further gains are divided by the stat's scaling factor.
package diminish

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// MinEffectiveness is the floor returned for maximally diminished stats and
// for arithmetic failures.
const MinEffectiveness = 1e-6

// maxSlices bounds the slice walk of ScaleDelta; the remainder past it is
// scaled at the last effectiveness reached.
const maxSlices = 4096

// Rule is the scaling law for one stat.
type Rule struct {
	Threshold     float64 `yaml:"threshold"`
	ScalingFactor float64 `yaml:"scaling_factor"`
	BaseOffset    float64 `yaml:"base_offset"`
}

// Validate reports whether r can be evaluated.
func (r Rule) Validate() error {
	if !(r.Threshold > 0) {
		return fmt.Errorf("threshold must be > 0, got %v", r.Threshold)
	}
	if !(r.ScalingFactor > 0) {
		return fmt.Errorf("scaling_factor must be > 0, got %v", r.ScalingFactor)
	}
	return nil
}

// steps returns how many whole thresholds value lies above the offset.
// epsilon absorbs floating point error at exact boundaries.
func (r Rule) steps(value float64) float64 {
	effective := math.Max(0, value-r.BaseOffset)
	epsilon := r.Threshold * 1e-10
	return math.Floor((effective + epsilon) / r.Threshold)
}

func (r Rule) effectiveness(value float64) float64 {
	if math.IsNaN(value) || !(r.Threshold > 0) {
		return MinEffectiveness
	}
	steps := r.steps(value)
	if math.IsNaN(steps) {
		return MinEffectiveness
	}
	if steps <= 0 {
		return 1.0
	}
	denom := math.Pow(r.ScalingFactor, steps)
	if denom == 0 || math.IsInf(denom, 0) || math.IsNaN(denom) {
		return MinEffectiveness
	}
	return clamp(1 / denom)
}

// nextBoundary returns the smallest threshold boundary strictly above value.
func (r Rule) nextBoundary(value float64) float64 {
	return r.BaseOffset + (r.steps(value)+1)*r.Threshold
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return MinEffectiveness
	case v < MinEffectiveness:
		return MinEffectiveness
	case v > 1.0:
		return 1.0
	default:
		return v
	}
}

// DefaultRules returns the built-in scaling table. Stats absent from the
// table are never scaled.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		"atk":               {Threshold: 100, ScalingFactor: 2.0},
		"defense":           {Threshold: 100, ScalingFactor: 2.0},
		"max_hp":            {Threshold: 1000, ScalingFactor: 2.0},
		"crit_rate":         {Threshold: 0.1, ScalingFactor: 1.5},
		"crit_damage":       {Threshold: 0.5, ScalingFactor: 1.5, BaseOffset: 2.0},
		"effect_hit_rate":   {Threshold: 0.5, ScalingFactor: 1.5},
		"effect_resistance": {Threshold: 0.5, ScalingFactor: 1.5},
		"mitigation":        {Threshold: 0.2, ScalingFactor: 2.0, BaseOffset: 1.0},
		"vitality":          {Threshold: 0.25, ScalingFactor: 2.0, BaseOffset: 1.0},
		"dodge_odds":        {Threshold: 0.1, ScalingFactor: 2.0},
	}
}

// Calculator maps (stat, current value) to an effectiveness multiplier.
// It is immutable after construction and safe for concurrent use.
type Calculator struct {
	rules map[string]Rule
}

// NewCalculator creates a Calculator over rules. The map is copied.
//
// Precondition: every rule passes Validate; invalid rules evaluate to MinEffectiveness.
func NewCalculator(rules map[string]Rule) *Calculator {
	c := &Calculator{rules: make(map[string]Rule, len(rules))}
	for k, v := range rules {
		c.rules[k] = v
	}
	return c
}

// NewDefaultCalculator creates a Calculator over DefaultRules.
func NewDefaultCalculator() *Calculator {
	return NewCalculator(DefaultRules())
}

// Rule returns the configured rule for stat.
func (c *Calculator) Rule(stat string) (Rule, bool) {
	r, ok := c.rules[stat]
	return r, ok
}

// Effectiveness returns the multiplier a buff to stat receives when the stat
// currently sits at value.
//
// Postcondition: result is in [MinEffectiveness, 1.0]; unconfigured stats return 1.0.
func (c *Calculator) Effectiveness(stat string, value float64) float64 {
	rule, ok := c.rules[stat]
	if !ok {
		return 1.0
	}
	return rule.effectiveness(value)
}

// ScaleDelta returns the diminished size of a +delta buff to stat starting
// from current. The delta is walked across threshold boundaries and every
// slice is scaled by the effectiveness at the slice's start, so a large buff
// diminishes itself as it climbs. Non-positive deltas and unconfigured stats
// are returned unchanged.
//
// Postcondition: 0 < result <= delta for positive delta on a configured stat.
func (c *Calculator) ScaleDelta(stat string, current, delta float64) float64 {
	rule, ok := c.rules[stat]
	if !ok || !(delta > 0) {
		return delta
	}
	if !(rule.Threshold > 0) || math.IsNaN(current) || math.IsInf(delta, 0) {
		return delta * MinEffectiveness
	}

	pos := current
	remaining := delta
	total := 0.0
	for i := 0; remaining > 0; i++ {
		eff := rule.effectiveness(pos)
		if i >= maxSlices || eff <= MinEffectiveness {
			total += remaining * eff
			break
		}
		span := rule.nextBoundary(pos) - pos
		if !(span > 0) || span > remaining {
			span = remaining
		}
		total += span * eff
		pos += span
		remaining -= span
	}
	return total
}

type tableFile struct {
	Stats map[string]Rule `yaml:"stats"`
}

// ParseRules decodes a YAML scaling table of the form
//
//	stats:
//	  atk: {threshold: 100, scaling_factor: 2.0, base_offset: 0}
//
// Postcondition: Returns validated rules, or an error naming the first bad stat.
func ParseRules(data []byte) (map[string]Rule, error) {
	var tf tableFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("parsing diminishing returns table: %w", err)
	}
	for stat, r := range tf.Stats {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("stat %q: %w", stat, err)
		}
	}
	return tf.Stats, nil
}

// LoadFile reads a YAML scaling table from path and builds a Calculator.
// An empty path yields the default table.
//
// Postcondition: Returns a non-nil Calculator or a non-nil error.
func LoadFile(path string) (*Calculator, error) {
	if path == "" {
		return NewDefaultCalculator(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("loading %q: %w", path, err)
	}
	return NewCalculator(rules), nil
}
