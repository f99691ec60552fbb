package main

// Backfills ClickHouse flow history from the dated options flow endpoint.
//
// Usage:
//   go run scripts/backfill_flow_history.go --tickers SPY,AAPL --start 2024-03-01 --end 2024-03-15

import (
	"context"
	"flag"
	"strings"
	"time"

	chclient "optionsflow/internal/adapters/clickhouse"
	"optionsflow/internal/adapters/config"
	"optionsflow/internal/adapters/unusualwhales"
	"optionsflow/internal/domain/flow"
	chrepo "optionsflow/internal/repository/clickhouse"
	"optionsflow/pkg/errors"
	"optionsflow/pkg/logger"
)

const (
	dateLayout   = "2006-01-02"
	sessionClose = 21 * time.Hour // scan time assigned to a backfilled day
)

func main() {
	tickers := flag.String("tickers", "SPY,QQQ,AAPL,TSLA,NVDA", "Comma separated symbols")
	startDate := flag.String("start", "", "Start date (YYYY-MM-DD)")
	endDate := flag.String("end", "", "End date (YYYY-MM-DD), defaults to start")
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

	start, end, err := parseRange(*startDate, *endDate)
	if err != nil {
		log.Fatalf("Invalid date range: %v", err)
	}

	symbols, rejected := flow.NormalizeTickers(strings.Split(*tickers, ","))
	for raw, err := range rejected {
		log.Warnw("Skipping invalid ticker", "ticker", raw, "error", err)
	}

	ctx := context.Background()

	ch, err := chclient.NewClient(ctx, cfg.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer ch.Close()

	repo := chrepo.NewFlowRepository(ch.Conn(), chrepo.FlowRepositoryConfig{
		BatchSize:     cfg.ClickHouse.BatchSize,
		FlushInterval: cfg.ClickHouse.FlushInterval,
		Logger:        log,
	})
	repo.Start(ctx)

	uwCfg := cfg.UnusualWhales
	client := unusualwhales.NewClient(unusualwhales.Config{
		BaseURL:    uwCfg.BaseURL,
		APIKey:     uwCfg.APIKey,
		Timeout:    uwCfg.Timeout,
		PageLimit:  uwCfg.PageLimit,
		RateLimit:  uwCfg.RateLimit,
		RateBurst:  uwCfg.RateBurst,
		MaxRetries: uwCfg.MaxRetries,
		Backoff:    uwCfg.Backoff,
	}, nil, log)

	classifier := flow.NewClassifier(cfg.Flow.ClassifierThresholds())

	sessions := sessionCloses(start, end)
	reports := 0
	for _, scannedAt := range sessions {
		date := scannedAt.Format(dateLayout)

		var dayReports []flow.TickerReport
		for _, ticker := range symbols {
			records, err := client.FetchFlow(ctx, ticker, unusualwhales.FlowQuery{Date: date})
			if err != nil {
				log.Warnw("Fetch failed", "ticker", ticker, "date", date, "error", err)
				continue
			}

			events, dropped := flow.NormalizeAll(records)
			report := flow.Summarize(ticker, events, func(e flow.TradeEvent) flow.Tags {
				return classifier.ClassifyAt(e, scannedAt)
			}, scannedAt)
			report.Dropped = dropped

			if err := repo.InsertEvents(ctx, scannedAt, report.Tagged); err != nil {
				log.Warnw("Insert events failed", "ticker", ticker, "date", date, "error", err)
			}
			dayReports = append(dayReports, report)
		}

		if err := repo.InsertMetrics(ctx, scannedAt, dayReports); err != nil {
			log.Warnw("Insert metrics failed", "date", date, "error", err)
		}
		reports += len(dayReports)

		log.Infow("Backfilled day", "date", date, "tickers", len(dayReports))
	}

	if err := repo.Stop(ctx); err != nil {
		log.Errorw("Final flush failed", "error", err)
		return
	}

	log.Infow("Backfill complete", "days", len(sessions), "reports", reports)
}

// parseRange reads YYYY-MM-DD bounds in UTC. An empty end means a single day.
func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrapf(errors.ErrInvalidInput, "start %q: use YYYY-MM-DD", startDate)
	}
	end := start
	if endDate != "" {
		if end, err = time.Parse(dateLayout, endDate); err != nil {
			return time.Time{}, time.Time{}, errors.Wrapf(errors.ErrInvalidInput, "end %q: use YYYY-MM-DD", endDate)
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.Wrapf(errors.ErrInvalidInput, "end %s is before start %s", endDate, startDate)
	}
	return start, end, nil
}

// sessionCloses lists the scan time of every weekday in [start, end], inclusive
func sessionCloses(start, end time.Time) []time.Time {
	var out []time.Time
	for day := start.UTC().Truncate(24 * time.Hour); !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		out = append(out, day.Add(sessionClose))
	}
	return out
}
