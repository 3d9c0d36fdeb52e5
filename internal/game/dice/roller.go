package dice

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/combatfx/internal/observability"
)

// Roller wraps a Source and logs every outcome at debug level.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller drawing from src. A nil logger is a no-op logger.
//
// Precondition: src must not be nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: observability.OrNop(logger)}
}

// Chance reports whether an event of probability p happened. p <= 0 never
// happens and p >= 1 always does; label identifies the check in the log.
func (r *Roller) Chance(p float64, label string) bool {
	var roll float64
	hit := false
	switch {
	case p <= 0:
	case p >= 1:
		hit = true
	default:
		roll = r.src.Float64()
		hit = roll < p
	}
	r.logger.Debug("chance roll",
		zap.String("check", label),
		zap.Float64("chance", p),
		zap.Float64("roll", roll),
		zap.Bool("hit", hit),
	)
	return hit
}

// Roll rolls expr and logs the dice and total.
func (r *Roller) Roll(expr Expression) int {
	rolled, total := expr.Roll(r.src)
	r.logger.Debug("dice roll",
		zap.String("expression", expr.Raw),
		zap.Ints("dice", rolled),
		zap.Int("total", total),
	)
	return total
}
