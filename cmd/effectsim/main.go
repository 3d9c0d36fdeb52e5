// Package main provides the effect simulator binary: it loads content,
// stages a demo battle and resolves it turn by turn on the effect engine.
package main

import (
	"context"
	"flag"
	"log"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/combatfx/internal/battle"
	"github.com/cory-johannsen/combatfx/internal/config"
	"github.com/cory-johannsen/combatfx/internal/eventbus"
	"github.com/cory-johannsen/combatfx/internal/game/damagetype"
	"github.com/cory-johannsen/combatfx/internal/game/dice"
	"github.com/cory-johannsen/combatfx/internal/game/diminish"
	"github.com/cory-johannsen/combatfx/internal/game/passive"
	"github.com/cory-johannsen/combatfx/internal/observability"
	"github.com/cory-johannsen/combatfx/internal/scripting"
	"github.com/cory-johannsen/combatfx/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	seed := flag.Uint64("seed", 0, "seed for deterministic runs; 0 = crypto randomness")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	src := dice.NewCryptoSource()
	if *seed != 0 {
		src = dice.NewSeededSource(*seed)
	}
	roller := dice.NewLoggedRoller(src, logger)

	calc, err := diminish.LoadFile(cfg.Content.DiminishingReturns)
	if err != nil {
		logger.Fatal("loading diminishing returns", zap.Error(err))
	}

	var scripts *scripting.Manager
	if dir := cfg.Content.ScriptsDir; dir != "" {
		scripts = scripting.NewManager(roller, logger, 0)
		if err := scripts.LoadDir(dir); err != nil {
			logger.Fatal("loading scripts", zap.Error(err))
		}
		defer scripts.Close()
	}

	passiveOpts := []passive.Option{passive.WithLogger(logger)}
	if scripts != nil {
		passiveOpts = append(passiveOpts, passive.WithScripts(scripts))
	}
	passives := passive.NewRegistry(passiveOpts...)
	if dir := cfg.Content.PassivesDir; dir != "" {
		if passives, err = passive.LoadDirectory(dir, passiveOpts...); err != nil {
			logger.Fatal("loading passives", zap.Error(err))
		}
	}

	damageTypes := damagetype.NewRegistry()
	if dir := cfg.Content.DamageTypesDir; dir != "" {
		if damageTypes, err = damagetype.LoadDirectory(dir, roller); err != nil {
			logger.Fatal("loading damage types", zap.Error(err))
		}
	}

	logger.Info("content loaded",
		zap.Strings("passives", passives.IDs()),
		zap.Strings("damage_types", damageTypes.IDs()),
		zap.Bool("scripting", scripts != nil),
		zap.Duration("elapsed", time.Since(start)),
	)

	bus := eventbus.New(logger,
		eventbus.WithAsyncYield(cfg.EventBus.AsyncYield),
		eventbus.WithQueueHint(cfg.EventBus.BatchQueueHint),
	)
	events := battle.NewEventLogger(bus, logger)

	sides := demoSides(rosterDeps{
		bus:         bus,
		calc:        calc,
		passives:    passives,
		damageTypes: damageTypes,
		roller:      roller,
		engine:      cfg.Engine,
		logger:      logger,
	})
	b := battle.New(bus, logger, cfg.Battle, sides...)
	b.UseState(passives.State())

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("battle", battle.NewTurnTicker(b, func(res battle.TurnResult) {
		logger.Info("turn",
			zap.Int("turn", res.Turn),
			zap.Int("strikes", res.Strikes),
			zap.Int("inflicted", res.Inflicted),
			zap.Strings("deaths", res.Deaths),
		)
	}))
	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Error("simulation failed", zap.Error(err))
	}

	events.Close()
	bus.Close()
	logMetrics(logger, bus.Metrics())
	logger.Info("simulation complete",
		zap.Int("turns", b.Turn()),
		zap.String("winner", b.Winner()),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func logMetrics(logger *zap.Logger, metrics map[string]eventbus.Stats) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := metrics[name]
		logger.Info("event metrics",
			zap.String("event", name),
			zap.Int("count", s.Count),
			zap.Duration("total", s.TotalTime),
			zap.Duration("avg", s.AvgTime),
			zap.Duration("max", s.MaxTime),
			zap.Int("errors", s.ErrorCount),
		)
	}
}
