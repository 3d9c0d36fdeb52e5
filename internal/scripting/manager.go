package scripting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/cory-johannsen/combatfx/internal/game/dice"
	"github.com/cory-johannsen/combatfx/internal/observability"
)

// ErrNotLoaded is returned by Call before any scripts are loaded.
var ErrNotLoaded = errors.New("scripting: no scripts loaded")

// Manager owns one sandboxed LState holding every loaded hook script.
//
// Manager is safe for concurrent use. An LState is single-threaded, so
// calls are serialized by mu; hooks run one at a time even when the effect
// engine resolves passives in parallel batches.
type Manager struct {
	mu        sync.Mutex
	L         *lua.LState
	instLimit int
	roller    *dice.Roller
	logger    *zap.Logger
}

// NewManager creates a Manager. instLimit <= 0 uses DefaultInstructionLimit.
//
// Precondition: roller must be non-nil; a nil logger is a no-op logger.
// Postcondition: Returns a Manager with no scripts loaded.
func NewManager(roller *dice.Roller, logger *zap.Logger, instLimit int) *Manager {
	return &Manager{
		instLimit: instLimit,
		roller:    roller,
		logger:    observability.Component(logger, "lua"),
	}
}

// LoadDir creates a fresh VM, registers the engine modules, then executes
// every *.lua file in scriptDir in lexicographic order. On success the new
// VM replaces the previous one.
//
// Precondition: scriptDir must be a readable directory.
func (m *Manager) LoadDir(scriptDir string) error {
	entries, err := os.ReadDir(scriptDir)
	if err != nil {
		return fmt.Errorf("scripting: reading script dir %q: %w", scriptDir, err)
	}
	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".lua" {
			luaFiles = append(luaFiles, filepath.Join(scriptDir, e.Name()))
		}
	}
	sort.Strings(luaFiles)

	return m.load(func(L *lua.LState) error {
		for _, path := range luaFiles {
			if err := L.DoFile(path); err != nil {
				return fmt.Errorf("scripting: loading %q: %w", path, err)
			}
		}
		return nil
	})
}

// LoadString is LoadDir for a single in-memory chunk.
func (m *Manager) LoadString(name, src string) error {
	return m.load(func(L *lua.LState) error {
		if err := L.DoString(src); err != nil {
			return fmt.Errorf("scripting: loading %q: %w", name, err)
		}
		return nil
	})
}

func (m *Manager) load(run func(*lua.LState) error) error {
	L := NewSandboxedState()
	m.RegisterModules(L)
	if err := withBudget(context.Background(), L, m.instLimit, func() error { return run(L) }); err != nil {
		L.Close()
		return err
	}

	m.mu.Lock()
	old := m.L
	m.L = L
	m.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Has reports whether a global function named fn is defined.
func (m *Manager) Has(fn string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return false
	}
	return m.L.GetGlobal(fn).Type() == lua.LTFunction
}

// Call invokes the global Lua function fn with args converted by ToLua and
// returns its first result converted by FromLua. An undefined fn returns
// (nil, nil). Runtime errors, including an exhausted instruction budget or a
// done ctx, are returned wrapped.
func (m *Manager) Call(ctx context.Context, fn string, args ...any) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L == nil {
		return nil, ErrNotLoaded
	}
	L := m.L

	f := L.GetGlobal(fn)
	if f.Type() != lua.LTFunction {
		return nil, nil
	}
	largs := make([]lua.LValue, len(args))
	for i, a := range args {
		largs[i] = ToLua(L, a)
	}

	var ret lua.LValue = lua.LNil
	err := withBudget(ctx, L, m.instLimit, func() error {
		if err := L.CallByParam(lua.P{Fn: f, NRet: 1, Protect: true}, largs...); err != nil {
			return err
		}
		ret = L.Get(-1)
		L.Pop(1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scripting: calling %q: %w", fn, err)
	}
	return FromLua(ret), nil
}

// Close releases the VM. The Manager stays usable; Call returns ErrNotLoaded
// until scripts are loaded again.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.L != nil {
		m.L.Close()
		m.L = nil
	}
}

// ToLua converts a Go value to a Lua value. Supported: nil, bool, string,
// int, int64, float64, map[string]int, map[string]float64, map[string]any
// and []any. Anything else becomes its fmt %v string.
func ToLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case map[string]int:
		t := L.NewTable()
		for k, n := range x {
			L.SetField(t, k, lua.LNumber(n))
		}
		return t
	case map[string]float64:
		t := L.NewTable()
		for k, n := range x {
			L.SetField(t, k, lua.LNumber(n))
		}
		return t
	case map[string]any:
		t := L.NewTable()
		for k, e := range x {
			L.SetField(t, k, ToLua(L, e))
		}
		return t
	case []any:
		t := L.NewTable()
		for _, e := range x {
			t.Append(ToLua(L, e))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", x))
	}
}

// FromLua converts a Lua value to Go: nil, bool, float64, string, or
// map[string]any for tables (string keys only; other keys are dropped).
func FromLua(v lua.LValue) any {
	switch x := v.(type) {
	case lua.LBool:
		return bool(x)
	case lua.LNumber:
		return float64(x)
	case lua.LString:
		return string(x)
	case *lua.LTable:
		out := make(map[string]any)
		x.ForEach(func(k, val lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				out[string(ks)] = FromLua(val)
			}
		})
		return out
	default:
		return nil
	}
}
