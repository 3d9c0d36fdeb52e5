package battle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TurnTicker drives a Battle as a server.Service: it runs turns every
// turn_interval until the battle is over or the ticker is stopped, then
// ends the battle.
type TurnTicker struct {
	battle   *Battle
	interval time.Duration
	logger   *zap.Logger
	onTurn   func(TurnResult)

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewTurnTicker creates a ticker for b using b's configured interval.
// onTurn, if non-nil, sees every turn result.
func NewTurnTicker(b *Battle, onTurn func(TurnResult)) *TurnTicker {
	ctx, cancel := context.WithCancel(context.Background())
	return &TurnTicker{
		battle:   b,
		interval: b.cfg.TurnInterval,
		logger:   b.logger,
		onTurn:   onTurn,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start runs turns until the battle is over or Stop is called.
//
// Postcondition: the battle has been ended; returns nil on completion or stop.
func (t *TurnTicker) Start() error {
	defer t.battle.End(context.WithoutCancel(t.ctx))

	var tick <-chan time.Time
	if t.interval > 0 {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		res, err := t.battle.RunTurn(t.ctx)
		switch {
		case errors.Is(err, ErrOver):
			return nil
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			t.logger.Error("turn failed", zap.Int("turn", t.battle.Turn()), zap.Error(err))
			return err
		}
		if t.onTurn != nil {
			t.onTurn(res)
		}

		if tick == nil {
			select {
			case <-t.ctx.Done():
				return nil
			default:
			}
			continue
		}
		select {
		case <-t.ctx.Done():
			return nil
		case <-tick:
		}
	}
}

// Stop asks Start to return after the current turn.
func (t *TurnTicker) Stop() {
	t.once.Do(t.cancel)
}
