// Package battle runs turns for two or more sides of combatants, driving
// each combatant's effect manager once per turn.
package battle

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/combatfx/internal/config"
	"github.com/cory-johannsen/combatfx/internal/eventbus"
	"github.com/cory-johannsen/combatfx/internal/game/effect"
	"github.com/cory-johannsen/combatfx/internal/game/passive"
	"github.com/cory-johannsen/combatfx/internal/observability"
)

// Events published by a battle.
const (
	// EventTurnEnd(turn int, result TurnResult) is queued with EmitBatched.
	EventTurnEnd = "turn_end"
	// EventBattleEnd(turn int, winner string) is delivered with EmitAsync.
	EventBattleEnd = "battle_end"
)

// StatAttack is the stat used as strike damage in the action phase.
const StatAttack = "atk"

// ErrOver is returned by RunTurn once the battle is over.
var ErrOver = errors.New("battle: over")

// Side is one team. Members are the effect managers of its combatants.
type Side struct {
	Name    string
	Members []*effect.Manager
}

func (s Side) alive() []*effect.Manager {
	var out []*effect.Manager
	for _, m := range s.Members {
		if m.Entity().HP() > 0 {
			out = append(out, m)
		}
	}
	return out
}

// TurnResult summarises one turn.
type TurnResult struct {
	Turn int
	// Strikes counts action-phase attacks that landed.
	Strikes int
	// Cancelled counts actions cancelled by an effect hook.
	Cancelled int
	// Inflicted counts DOT stacks attached by strikes.
	Inflicted int
	// Reports are the tick reports keyed by entity id.
	Reports map[string]effect.TickReport
	// Deaths are the ids of entities that died this turn, by a strike or a tick.
	Deaths []string
}

// Battle is safe for concurrent use, but turns must not overlap.
type Battle struct {
	bus    *eventbus.Bus
	logger *zap.Logger
	cfg    config.BattleConfig
	sides  []Side
	state  *passive.StateStore

	cleanups map[*effect.Manager]*sync.Once
	endOnce  sync.Once

	mu   sync.Mutex
	turn int
}

// New creates a battle between sides. A nil bus disables battle events.
//
// Precondition: at least two sides; every member manager is distinct.
func New(bus *eventbus.Bus, logger *zap.Logger, cfg config.BattleConfig, sides ...Side) *Battle {
	b := &Battle{
		bus:      bus,
		logger:   observability.Component(logger, "battle"),
		cfg:      cfg,
		sides:    sides,
		cleanups: make(map[*effect.Manager]*sync.Once),
	}
	for _, s := range sides {
		for _, m := range s.Members {
			b.cleanups[m] = &sync.Once{}
		}
	}
	return b
}

// UseState clears each combatant's passive counters from store when the battle ends.
func (b *Battle) UseState(store *passive.StateStore) { b.state = store }

// Turn returns the number of turns run.
func (b *Battle) Turn() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.turn
}

// Over reports whether at most one side has living members or max_turns is reached.
func (b *Battle) Over() bool {
	if b.cfg.MaxTurns > 0 && b.Turn() >= b.cfg.MaxTurns {
		return true
	}
	standing := 0
	for _, s := range b.sides {
		if len(s.alive()) > 0 {
			standing++
		}
	}
	return standing <= 1
}

// Winner returns the name of the only side left standing, or "".
func (b *Battle) Winner() string {
	winner := ""
	for _, s := range b.sides {
		if len(s.alive()) == 0 {
			continue
		}
		if winner != "" {
			return ""
		}
		winner = s.Name
	}
	return winner
}

// opponent returns the first living member of any side other than side i.
func (b *Battle) opponent(i int) *effect.Manager {
	for j, s := range b.sides {
		if j == i {
			continue
		}
		if alive := s.alive(); len(alive) > 0 {
			return alive[0]
		}
	}
	return nil
}

// RunTurn runs one turn. In the action phase every living combatant, side
// by side, strikes the first living opponent for its atk stat unless an
// effect hook cancels the action; each landed strike may inflict DOT stacks.
// In the tick phase every combatant alive at that point is ticked
// concurrently, with its current opponent as the death-hook recipient.
//
// Postcondition: returns ErrOver without running a turn when Over().
func (b *Battle) RunTurn(ctx context.Context) (TurnResult, error) {
	if b.Over() {
		return TurnResult{}, ErrOver
	}
	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}
	b.mu.Lock()
	b.turn++
	res := TurnResult{Turn: b.turn, Reports: make(map[string]effect.TickReport)}
	b.mu.Unlock()

	b.actionPhase(&res)
	if err := b.tickPhase(ctx, &res); err != nil {
		return res, err
	}

	b.logger.Debug("turn complete",
		zap.Int("turn", res.Turn),
		zap.Int("strikes", res.Strikes),
		zap.Int("inflicted", res.Inflicted),
		zap.Strings("deaths", res.Deaths),
	)
	if b.bus != nil {
		b.bus.EmitBatched(EventTurnEnd, res.Turn, res)
	}
	return res, nil
}

func (b *Battle) actionPhase(res *TurnResult) {
	for i, s := range b.sides {
		for _, m := range s.alive() {
			if m.Entity().HP() <= 0 {
				// killed earlier this phase
				continue
			}
			target := b.opponent(i)
			if target == nil {
				return
			}
			if !m.OnAction() {
				res.Cancelled++
				continue
			}
			attacker := m.Entity()
			damage := int(attacker.CurrentStat(StatAttack))
			if damage <= 0 {
				continue
			}
			dealt, killed := target.Entity().ApplyDamage(damage, attacker)
			res.Strikes++
			if killed {
				res.Deaths = append(res.Deaths, target.Entity().ID())
				continue
			}
			if dealt > 0 {
				res.Inflicted += target.MaybeInflictDOT(attacker, dealt, 0)
			}
		}
	}
}

func (b *Battle) tickPhase(ctx context.Context, res *TurnResult) error {
	type job struct {
		m     *effect.Manager
		other *effect.Manager
	}
	var jobs []job
	for i, s := range b.sides {
		for _, m := range s.alive() {
			jobs = append(jobs, job{m: m, other: b.opponent(i)})
		}
	}

	reports := make([]effect.TickReport, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			reports[i] = j.m.Tick(gctx, j.other)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, j := range jobs {
		id := j.m.Entity().ID()
		res.Reports[id] = reports[i]
		if reports[i].Died {
			res.Deaths = append(res.Deaths, id)
		}
	}
	return nil
}

// End cleans up every combatant's effects exactly once, however many times
// End is called, flushes queued battle events and announces the outcome.
func (b *Battle) End(ctx context.Context) {
	for _, s := range b.sides {
		for _, m := range s.Members {
			b.cleanups[m].Do(func() {
				m.Cleanup()
				if b.state != nil {
					b.state.Clear(m.Entity().ID())
				}
			})
		}
	}
	b.endOnce.Do(func() {
		winner := b.Winner()
		b.logger.Info("battle ended",
			zap.Int("turns", b.Turn()),
			zap.String("winner", winner),
		)
		if b.bus == nil {
			return
		}
		if err := b.bus.Flush(ctx); err != nil {
			b.logger.Warn("flushing battle events", zap.Error(err))
		}
		if err := b.bus.EmitAsync(ctx, EventBattleEnd, b.Turn(), winner); err != nil {
			b.logger.Warn("announcing battle end", zap.Error(err))
		}
	})
}
