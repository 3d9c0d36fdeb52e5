// Package passive loads passive abilities from YAML and resolves each one's
// turn-end hook once, at registration, to a Go builtin or a Lua function.
package passive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/combatfx/internal/game/effect"
	"github.com/cory-johannsen/combatfx/internal/observability"
	"github.com/cory-johannsen/combatfx/internal/scripting"
)

// TriggerTurnEnd is the trigger that lets an apply-only passive fire at turn end.
const TriggerTurnEnd = "turn_end"

// luaPrefix marks a hook implemented by a Lua global function.
const luaPrefix = "lua:"

// Definition is the static description of a passive ability.
type Definition struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	Trigger   string `yaml:"trigger"`
	MaxStacks int    `yaml:"max_stacks"` // <= 0 = one stack
	// OnTurnEnd, Tick and Apply name hooks: a builtin or "lua:<function>".
	OnTurnEnd string         `yaml:"on_turn_end"`
	Tick      string         `yaml:"tick"`
	Apply     string         `yaml:"apply"`
	Params    map[string]int `yaml:"params"`
}

// Ability is a registered passive. It implements effect.Passive.
type Ability struct {
	def   Definition
	hook  effect.HookKind
	name  string
	fn    HookFunc
	state *StateStore
}

func (a *Ability) ID() string { return a.def.ID }

// Name returns the display name, falling back to the id.
func (a *Ability) Name() string {
	if a.def.Name != "" {
		return a.def.Name
	}
	return a.def.ID
}

func (a *Ability) MaxStacks() int { return a.def.MaxStacks }

func (a *Ability) Hook() effect.HookKind { return a.hook }

// HookName returns the resolved hook reference, e.g. "regen" or "lua:thorns".
func (a *Ability) HookName() string { return a.name }

// Param returns params[key], or def when unset.
func (a *Ability) Param(key string, def int) int {
	if v, ok := a.def.Params[key]; ok {
		return v
	}
	return def
}

// Invoke runs the resolved hook once for target.
func (a *Ability) Invoke(ctx context.Context, target effect.Entity) error {
	if a.fn == nil {
		return nil
	}
	return a.fn(ctx, target, a)
}

var _ effect.Passive = (*Ability)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithScripts resolves "lua:" hooks against mgr.
func WithScripts(mgr *scripting.Manager) Option {
	return func(r *Registry) { r.scripts = mgr }
}

// WithState shares store between the registry's abilities.
func WithState(store *StateStore) Option {
	return func(r *Registry) { r.state = store }
}

// WithLogger sets the registry's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// Registry holds passive abilities keyed by id. It implements
// effect.PassiveRegistry and is safe for concurrent use.
type Registry struct {
	scripts *scripting.Manager
	state   *StateStore
	logger  *zap.Logger

	mu        sync.RWMutex
	abilities map[string]*Ability
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{abilities: make(map[string]*Ability)}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = observability.OrNop(r.logger)
	if r.state == nil {
		r.state = NewStateStore()
	}
	return r
}

// State returns the registry's state store.
func (r *Registry) State() *StateStore { return r.state }

// Register resolves def's hook capability and adds it, overwriting any
// ability with the same id. Capability precedence is on_turn_end, then tick,
// then apply when the trigger is turn_end. A hook that cannot be resolved
// leaves the ability with HookNone and is logged at debug.
//
// Precondition: def.ID must not be empty.
// Postcondition: Returns the registered ability or an error for an empty id.
func (r *Registry) Register(def Definition) (*Ability, error) {
	if def.ID == "" {
		return nil, errors.New("passive: id must not be empty")
	}
	a := &Ability{def: def, state: r.state}

	kind, ref := effect.HookNone, ""
	switch {
	case def.OnTurnEnd != "":
		kind, ref = effect.HookTurnEnd, def.OnTurnEnd
	case def.Tick != "":
		kind, ref = effect.HookGenericTick, def.Tick
	case def.Apply != "" && def.Trigger == TriggerTurnEnd:
		kind, ref = effect.HookFallbackApply, def.Apply
	}
	if kind != effect.HookNone {
		if fn, err := r.resolve(ref); err != nil {
			r.logger.Debug("passive hook unresolved",
				zap.String("passive", def.ID),
				zap.String("hook", ref),
				zap.Error(err),
			)
		} else {
			a.hook, a.name, a.fn = kind, ref, fn
		}
	}

	r.mu.Lock()
	r.abilities[def.ID] = a
	r.mu.Unlock()
	return a, nil
}

func (r *Registry) resolve(ref string) (HookFunc, error) {
	if fnName, ok := strings.CutPrefix(ref, luaPrefix); ok {
		if r.scripts == nil {
			return nil, errors.New("scripting disabled")
		}
		if !r.scripts.Has(fnName) {
			return nil, fmt.Errorf("lua function %q not defined", fnName)
		}
		return luaHook(r.scripts, fnName), nil
	}
	fn, ok := builtins[ref]
	if !ok {
		return nil, fmt.Errorf("unknown builtin %q", ref)
	}
	return fn, nil
}

// luaHook calls fnName(uid, hp, max_hp, params). A returned table may carry
// heal and damage amounts, applied to the target in that order.
func luaHook(mgr *scripting.Manager, fnName string) HookFunc {
	return func(ctx context.Context, target effect.Entity, a *Ability) error {
		params := make(map[string]int, len(a.def.Params))
		for k, v := range a.def.Params {
			params[k] = v
		}
		ret, err := mgr.Call(ctx, fnName, target.ID(), target.HP(), target.MaxHP(), params)
		if err != nil {
			return err
		}
		out, ok := ret.(map[string]any)
		if !ok {
			return nil
		}
		if heal, ok := out["heal"].(float64); ok && heal > 0 {
			target.ApplyHealing(int(heal), target)
		}
		if dmg, ok := out["damage"].(float64); ok && dmg > 0 {
			target.ApplyDamage(int(dmg), target)
		}
		return nil
	}
}

// Get returns the ability for id, or (nil, false).
func (r *Registry) Get(id string) (*Ability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.abilities[id]
	return a, ok
}

// IDs returns every registered id, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.abilities))
	for id := range r.abilities {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Discover returns the abilities that have a turn-end capability.
//
// Postcondition: no returned passive reports HookNone.
func (r *Registry) Discover() map[string]effect.Passive {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]effect.Passive, len(r.abilities))
	for id, a := range r.abilities {
		if a.hook != effect.HookNone {
			out[id] = a
		}
	}
	return out
}

// Parse decodes one YAML passive definition.
func Parse(data []byte) (Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDirectory reads every *.yaml file in dir as one passive definition and
// registers it in a new Registry built with opts.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns a populated Registry, or an error naming the first bad file.
func LoadDirectory(dir string, opts ...Option) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading passive dir %q: %w", dir, err)
	}
	reg := NewRegistry(opts...)
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
		if _, err := reg.Register(def); err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
	}
	return reg, nil
}
