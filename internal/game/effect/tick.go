package effect

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TickReport summarises one call to Tick.
type TickReport struct {
	HOTsTicked      int
	DOTsTicked      int
	ModifiersTicked int
	PassivesInvoked int
	// Expired counts effects of all kinds removed by this tick.
	Expired int
	// Died is true when the entity was alive at the start of the tick and dead at its end.
	Died bool
}

// Tick resolves one turn for the entity: HOTs, then DOTs, then stat
// modifiers, then passives. Each collection larger than its parallel
// threshold is resolved in concurrent batches, otherwise one effect at a
// time. As soon as the entity is dead (checked after every sequential tick
// and every completed batch) resolution stops; effects not yet reached are
// left untouched. Expired effects are removed and announced with
// effect_expired. If the entity died during this tick and other is non-nil,
// the OnDeath hook of every DOT active at the start of the tick runs with other.
// All three effect collections are snapshotted when Tick starts, so effects
// added by handlers or hooks during the tick are first resolved next turn.
//
// Precondition: Tick is not already running for this manager.
func (m *Manager) Tick(ctx context.Context, other *Manager) TickReport {
	var report TickReport
	wasAlive := m.alive()

	m.mu.Lock()
	hots := append([]*HealingOverTime(nil), m.hots...)
	dots := append([]*DamageOverTime(nil), m.dots...)
	mods := append([]*StatModifier(nil), m.mods...)
	m.mu.Unlock()

	if wasAlive {
		m.tickHOTs(ctx, hots, &report)
	}
	if m.alive() && wasAlive {
		m.tickDOTs(ctx, dots, &report)
	}
	if m.alive() && wasAlive {
		m.tickModifiers(ctx, mods, &report)
	}
	if m.alive() && wasAlive {
		m.tickPassives(ctx, &report)
	}
	report.Died = wasAlive && !m.alive()
	if report.Died && other != nil {
		m.runDeathHooks(dots, other)
	}
	return report
}

func (m *Manager) tickHOTs(ctx context.Context, hots []*HealingOverTime, report *TickReport) {
	expired, n := dispatch(ctx, hots, m.cfg.DOTParallelThreshold, m.cfg.DOTBatchSize, m.alive,
		func(ctx context.Context, h *HealingOverTime) bool {
			return m.safeTick(TypeHOT, h.ID, func() bool { return h.Tick(ctx, m.entity, m.bus) })
		})
	report.HOTsTicked += n

	gone := pick(hots, expired)
	if len(gone) == 0 {
		return
	}
	m.mu.Lock()
	m.hots = without(m.hots, gone)
	for _, h := range gone {
		m.entity.Statuses().RemoveOne(TypeHOT, h.ID)
	}
	m.mu.Unlock()
	for _, h := range gone {
		m.publishExpired(h.Name, TypeHOT, h.ID)
	}
	report.Expired += len(gone)
}

func (m *Manager) tickDOTs(ctx context.Context, dots []*DamageOverTime, report *TickReport) {
	expired, n := dispatch(ctx, dots, m.cfg.DOTParallelThreshold, m.cfg.DOTBatchSize, m.alive,
		func(ctx context.Context, d *DamageOverTime) bool {
			return m.safeTick(TypeDOT, d.ID, func() bool { return d.Tick(ctx, m.entity, m.bus) })
		})
	report.DOTsTicked += n

	gone := pick(dots, expired)
	if len(gone) == 0 {
		return
	}
	m.mu.Lock()
	m.dots = without(m.dots, gone)
	for _, d := range gone {
		m.entity.Statuses().RemoveOne(TypeDOT, d.ID)
	}
	m.mu.Unlock()
	for _, d := range gone {
		m.publishExpired(d.Name, TypeDOT, d.ID)
	}
	report.Expired += len(gone)
}

func (m *Manager) tickModifiers(ctx context.Context, mods []*StatModifier, report *TickReport) {
	expired, n := dispatch(ctx, mods, m.cfg.ModifierParallelThreshold, m.cfg.ModifierBatchSize, m.alive,
		func(_ context.Context, mod *StatModifier) bool {
			return m.safeTick(TypeModifier, mod.ID, mod.Tick)
		})
	report.ModifiersTicked += n

	gone := pick(mods, expired)
	if len(gone) == 0 {
		return
	}
	m.mu.Lock()
	m.mods = without(m.mods, gone)
	for _, mod := range gone {
		m.entity.Statuses().RemoveOne(TypeModifier, mod.ID)
	}
	m.mu.Unlock()
	for _, mod := range gone {
		m.safeRemove(mod)
		m.publishExpired(mod.Name, TypeModifier, mod.ID)
	}
	report.Expired += len(gone)
}

// tickPassives resolves every passive with a turn-end capability once per
// stack, up to the passive's own stack cap. Unknown ids are skipped.
func (m *Manager) tickPassives(ctx context.Context, report *TickReport) {
	ids := m.entity.PassiveIDs()
	if len(ids) == 0 {
		return
	}

	counts := make(map[string]int, len(ids))
	var order []string
	for _, id := range ids {
		if counts[id] == 0 {
			order = append(order, id)
		}
		counts[id]++
	}

	var invocations []Passive
	for _, id := range order {
		p, ok := m.passives[id]
		if !ok {
			m.logger.Debug("unknown passive skipped", zap.String("passive", id))
			continue
		}
		if p.Hook() == HookNone {
			continue
		}
		limit := p.MaxStacks()
		if limit < 1 {
			limit = 1
		}
		n := min(counts[id], limit)
		for i := 0; i < n; i++ {
			invocations = append(invocations, p)
		}
	}

	_, n := dispatch(ctx, invocations, m.cfg.PassiveParallelThreshold, m.cfg.PassiveBatchSize, m.alive,
		func(ctx context.Context, p Passive) bool {
			m.invokePassive(ctx, p)
			return true
		})
	report.PassivesInvoked += n
}

func (m *Manager) invokePassive(ctx context.Context, p Passive) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("passive hook panicked",
				zap.String("passive", p.ID()),
				zap.Stringer("hook", p.Hook()),
				zap.Any("panic", r),
			)
		}
	}()
	if err := p.Invoke(ctx, m.entity); err != nil {
		m.logger.Debug("passive hook failed",
			zap.String("passive", p.ID()),
			zap.Stringer("hook", p.Hook()),
			zap.Error(err),
		)
	}
}

// runDeathHooks runs the OnDeath hooks of dots, the DOTs active when the
// fatal tick began, so a stack that expired on its killing tick still fires.
func (m *Manager) runDeathHooks(dots []*DamageOverTime, other *Manager) {
	for _, d := range dots {
		if d.OnDeath == nil {
			continue
		}
		hook := d.OnDeath
		m.safeHook("on_death", func() bool {
			hook(other)
			return true
		})
	}
}

// safeTick runs one effect tick. A panicking effect is treated as expired so
// it cannot fault again next turn.
func (m *Manager) safeTick(kind EffectType, id string, tick func() bool) (active bool) {
	defer func() {
		if r := recover(); r != nil {
			active = false
			m.logger.Warn("effect tick panicked",
				zap.String("effect_type", string(kind)),
				zap.String("effect", id),
				zap.Any("panic", r),
			)
		}
	}()
	return tick()
}

func (m *Manager) publishExpired(name string, kind EffectType, id string) {
	m.publish(EventEffectExpired, name, m.entity, map[string]any{
		"effect_type":       string(kind),
		"effect_id":         id,
		"expired_naturally": true,
	})
}

// dispatch ticks items in order and reports which of them expired and how
// many were ticked. Up to threshold items are ticked one at a time; larger
// collections are ticked in batches of batchSize whose members run
// concurrently, each batch completing before the next starts. alive is
// checked after every sequential tick and every batch; once it reports
// false no further item is ticked.
func dispatch[T any](ctx context.Context, items []T, threshold, batchSize int, alive func() bool, tick func(context.Context, T) bool) ([]bool, int) {
	expired := make([]bool, len(items))
	ticked := 0

	if len(items) <= threshold || batchSize < 1 {
		for i, item := range items {
			expired[i] = !tick(ctx, item)
			ticked++
			if !alive() {
				break
			}
		}
		return expired, ticked
	}

	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				expired[i] = !tick(ctx, items[i])
				return nil
			})
		}
		g.Wait()
		ticked = end
		if !alive() {
			break
		}
	}
	return expired, ticked
}

// pick returns the items flagged in mask.
func pick[T any](items []T, mask []bool) []T {
	var out []T
	for i, item := range items {
		if mask[i] {
			out = append(out, item)
		}
	}
	return out
}

// without returns list minus every element of gone, preserving order.
func without[T comparable](list []T, gone []T) []T {
	drop := make(map[T]struct{}, len(gone))
	for _, g := range gone {
		drop[g] = struct{}{}
	}
	out := list[:0:0]
	for _, item := range list {
		if _, ok := drop[item]; !ok {
			out = append(out, item)
		}
	}
	return out
}
