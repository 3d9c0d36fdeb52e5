// Package damagetype loads damage-type plugins from YAML. A damage type
// turns a landed hit into a damage-over-time stack for the effect engine.
package damagetype

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/combatfx/internal/game/dice"
	"github.com/cory-johannsen/combatfx/internal/game/effect"
)

// Definition is the static description of a damage type.
type Definition struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	DOTID   string `yaml:"dot_id"`
	DOTName string `yaml:"dot_name"`
	// DOTRatio is the share of the hit dealt per turn; <= 0 never creates a DOT.
	DOTRatio  float64 `yaml:"dot_ratio"`
	MinDamage int     `yaml:"min_damage"`
	Turns     int     `yaml:"turns"`
	MaxStacks int     `yaml:"max_stacks"` // 0 = uncapped
	// KillHealRatio heals the killer by this share of the DOT's damage when
	// the victim dies to the DOT.
	KillHealRatio float64 `yaml:"kill_heal_ratio"`
	// BonusDice is an optional dice expression added to each DOT's damage.
	BonusDice string `yaml:"bonus_dice"`
}

// Validate reports every problem with d.
func (d Definition) Validate() error {
	var errs []error
	if d.ID == "" {
		errs = append(errs, errors.New("id must not be empty"))
	}
	if d.DOTRatio > 0 {
		if d.DOTID == "" {
			errs = append(errs, errors.New("dot_id must not be empty when dot_ratio > 0"))
		}
		if d.Turns < 1 {
			errs = append(errs, fmt.Errorf("turns must be >= 1, got %d", d.Turns))
		}
	}
	if d.MinDamage < 0 {
		errs = append(errs, fmt.Errorf("min_damage must be >= 0, got %d", d.MinDamage))
	}
	if d.MaxStacks < 0 {
		errs = append(errs, fmt.Errorf("max_stacks must be >= 0, got %d", d.MaxStacks))
	}
	if d.KillHealRatio < 0 {
		errs = append(errs, fmt.Errorf("kill_heal_ratio must be >= 0, got %v", d.KillHealRatio))
	}
	if d.BonusDice != "" {
		if _, err := dice.Parse(d.BonusDice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DamageType is a loaded damage type. It implements effect.DamageType.
type DamageType struct {
	def    Definition
	bonus  *dice.Expression
	roller *dice.Roller
}

// New builds a DamageType from def. roller rolls the bonus dice and may be
// nil when def has none.
//
// Postcondition: Returns a usable DamageType or the validation error.
func New(def Definition, roller *dice.Roller) (*DamageType, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("damage type %q: %w", def.ID, err)
	}
	t := &DamageType{def: def, roller: roller}
	if def.BonusDice != "" {
		expr, _ := dice.Parse(def.BonusDice)
		t.bonus = &expr
		if roller == nil {
			t.roller = dice.NewLoggedRoller(dice.NewCryptoSource(), nil)
		}
	}
	return t, nil
}

func (t *DamageType) ID() string { return t.def.ID }

// Definition returns a copy of the static definition.
func (t *DamageType) Definition() Definition { return t.def }

// CreateDOT manufactures one DOT stack for a hit of damage by source, or nil
// when the type carries no DOT. Per-turn damage is max(min_damage,
// round(damage*dot_ratio)) plus any bonus dice.
func (t *DamageType) CreateDOT(damage int, source effect.Entity) *effect.DamageOverTime {
	if t.def.DOTRatio <= 0 {
		return nil
	}
	perTurn := max(t.def.MinDamage, int(math.Round(float64(damage)*t.def.DOTRatio)))
	if t.bonus != nil {
		perTurn += max(0, t.roller.Roll(*t.bonus))
	}
	name := t.def.DOTName
	if name == "" {
		name = t.def.Name
	}
	dot := effect.NewDOT(name, t.def.DOTID, perTurn, t.def.Turns, source)
	dot.MaxStacks = t.def.MaxStacks
	if ratio := t.def.KillHealRatio; ratio > 0 {
		heal := int(math.Round(float64(perTurn) * ratio))
		dot.OnDeath = func(killer *effect.Manager) {
			killer.Entity().ApplyHealing(heal, nil)
		}
	}
	return dot
}

var _ effect.DamageType = (*DamageType)(nil)

// Registry holds damage types keyed by ID.
type Registry struct {
	types map[string]*DamageType
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*DamageType)}
}

// Register adds t, overwriting any type with the same ID.
//
// Precondition: t must not be nil.
func (r *Registry) Register(t *DamageType) {
	r.types[t.ID()] = t
}

// Get returns the damage type for id, or (nil, false).
func (r *Registry) Get(id string) (*DamageType, bool) {
	t, ok := r.types[id]
	return t, ok
}

// IDs returns the registered ids, sorted.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.types))
	for id := range r.types {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Parse decodes one YAML damage-type definition.
func Parse(data []byte) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDirectory reads every *.yaml file in dir as one damage type.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a populated Registry, or an error naming the first bad file.
func LoadDirectory(dir string, roller *dice.Roller) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading damage type dir %q: %w", dir, err)
	}
	reg := NewRegistry()
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		def, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		t, err := New(def, roller)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		reg.Register(t)
	}
	return reg, nil
}
