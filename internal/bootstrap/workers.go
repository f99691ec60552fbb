package bootstrap

import (
	flowworker "optionsflow/internal/workers/flow"
)

// provideFlowScanner wires the scanner to whatever stores are enabled.
// Optional deps stay nil interfaces when their backend is off.
func provideFlowScanner(c *Container) *flowworker.FlowScanner {
	deps := flowworker.Deps{
		Scanner: c.Services.Flow,
		Store:   c.Repos.LatestMetrics,
	}
	if c.Repos.Watchlist != nil {
		deps.Watchlist = c.Repos.Watchlist
	}
	if c.Repos.History != nil {
		deps.History = c.Repos.History
	}
	if c.Services.AlertPublisher != nil {
		deps.Alerts = c.Services.AlertPublisher
	}

	return flowworker.NewFlowScanner(deps, flowworker.Config{
		Interval:       c.Config.Workers.FlowScannerInterval,
		Enabled:        c.Config.Workers.FlowScannerEnabled,
		Tickers:        c.Config.Flow.Tickers,
		WatchlistLimit: c.Config.Flow.WatchlistLimit,
		MetricsTTL:     c.Config.Redis.MetricsTTL,
	}, c.Log)
}
