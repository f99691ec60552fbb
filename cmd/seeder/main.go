package main

import (
	"context"
	"flag"
	"strings"
	"time"

	"optionsflow/internal/adapters/config"
	pgclient "optionsflow/internal/adapters/postgres"
	pgrepo "optionsflow/internal/repository/postgres"
	"optionsflow/pkg/logger"
)

// watchlistSeed is one flow_watchlist row
type watchlistSeed struct {
	Symbol   string
	Priority int
	Notes    string
}

func main() {
	env := flag.String("env", "dev", "Environment: dev, test")
	tickers := flag.String("tickers", "", "Comma separated symbols, overrides the environment seed")
	dryRun := flag.Bool("dry-run", false, "List seeds without writing")
	activate := flag.String("activate", "", "Comma separated symbols to switch on, skips seeding")
	deactivate := flag.String("deactivate", "", "Comma separated symbols to switch off, skips seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	toggles := activeToggles(*activate, *deactivate)

	seeds := seedsFor(*env, *tickers)
	if len(toggles) == 0 && len(seeds) == 0 {
		log.Warnw("No seeds available for environment", "environment", *env)
		return
	}

	if len(toggles) > 0 {
		log.Infow("Toggling flow watchlist symbols", "count", len(toggles), "dry_run", *dryRun)
	} else {
		log.Infow("Seeding flow watchlist",
			"environment", *env,
			"count", len(seeds),
			"dry_run", *dryRun,
			"database", cfg.Postgres.Database,
		)
	}

	if *dryRun {
		for _, tg := range toggles {
			log.Infow("Toggle", "symbol", tg.Symbol, "active", tg.Active)
		}
		if len(toggles) == 0 {
			for _, s := range seeds {
				log.Infow("Seed", "symbol", s.Symbol, "priority", s.Priority)
			}
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pg, err := pgclient.NewClient(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	repo := pgrepo.NewFlowWatchlistRepository(pg.DB())

	if len(toggles) > 0 {
		for _, tg := range toggles {
			if err := repo.SetActive(ctx, tg.Symbol, tg.Active); err != nil {
				log.Errorw("Failed to toggle symbol", "symbol", tg.Symbol, "active", tg.Active, "error", err)
				continue
			}
			log.Infow("Symbol toggled", "symbol", tg.Symbol, "active", tg.Active)
		}
		return
	}

	for _, s := range seeds {
		if err := repo.Upsert(ctx, s.Symbol, s.Priority, s.Notes); err != nil {
			log.Errorw("Failed to seed symbol", "symbol", s.Symbol, "error", err)
			return
		}
	}

	log.Info("All seeds applied successfully")
}

// toggle switches is_active for an existing watchlist row
type toggle struct {
	Symbol string
	Active bool
}

// activeToggles merges both flag lists, upper-casing symbols. A symbol named
// in both ends up deactivated.
func activeToggles(activate, deactivate string) []toggle {
	var out []toggle
	index := make(map[string]int)

	add := func(list string, active bool) {
		for _, sym := range strings.Split(list, ",") {
			sym = strings.ToUpper(strings.TrimSpace(sym))
			if sym == "" {
				continue
			}
			if i, ok := index[sym]; ok {
				out[i].Active = active
				continue
			}
			index[sym] = len(out)
			out = append(out, toggle{Symbol: sym, Active: active})
		}
	}
	add(activate, true)
	add(deactivate, false)

	return out
}

// seedsFor returns the watchlist for env. Explicit tickers get descending
// priority in the given order.
func seedsFor(env, tickers string) []watchlistSeed {
	if strings.TrimSpace(tickers) != "" {
		var out []watchlistSeed
		parts := strings.Split(tickers, ",")
		for i, t := range parts {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, watchlistSeed{Symbol: t, Priority: len(parts) - i})
			}
		}
		return out
	}

	switch env {
	case "dev":
		return []watchlistSeed{
			{Symbol: "SPY", Priority: 100, Notes: "index"},
			{Symbol: "QQQ", Priority: 90, Notes: "index"},
			{Symbol: "AAPL", Priority: 80},
			{Symbol: "TSLA", Priority: 70},
			{Symbol: "NVDA", Priority: 60},
			{Symbol: "AMD", Priority: 50},
			{Symbol: "META", Priority: 40},
		}
	case "test":
		return []watchlistSeed{
			{Symbol: "AAPL", Priority: 10},
			{Symbol: "SPY", Priority: 5},
		}
	default:
		return nil
	}
}
