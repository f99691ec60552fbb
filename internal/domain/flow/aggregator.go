package flow

import (
	"math"
	"time"
)

// GammaPremiumUnit converts net aggressor premium into gamma exposure units:
// one unit per $100 of net premium.
const GammaPremiumUnit = 100.0

// neutralBand is the share of gross premium delta flow must exceed to read as directional
const neutralBand = 0.10

// Contribution returns one event's additive share of gamma exposure and delta flow.
//
//	net   = askSidePremium - bidSidePremium
//	delta = sign(type) * net          call +1, put -1, unknown 0
//	gamma = -net / GammaPremiumUnit   dealers take the other side of customer flow
//
// Customers lifting offers (calls or puts) leave dealers short gamma, so
// ask-side flow pushes gamma exposure negative; bid-side selling pushes it
// positive. Buying calls or selling puts is bullish delta flow.
func Contribution(e TradeEvent) (gamma, delta float64) {
	net := e.NetPremium()
	return -net / GammaPremiumUnit, e.OptionType.Sign() * net
}

// Aggregate folds events into a fresh TickerMetrics snapshot. The fold is a
// plain sum so input order does not matter. LastUpdated is the latest
// ExecutedAt, or now when the batch is empty or carries no timestamps.
func Aggregate(ticker string, events []TradeEvent, now time.Time) TickerMetrics {
	m := TickerMetrics{
		Ticker:     ticker,
		EventCount: len(events),
	}

	for _, e := range events {
		gamma, delta := Contribution(e)
		m.GammaExposure += gamma
		m.DeltaFlow += delta

		if e.ExecutedAt.After(m.LastUpdated) {
			m.LastUpdated = e.ExecutedAt
		}
	}

	if m.LastUpdated.IsZero() {
		m.LastUpdated = now
	}
	return m
}

// Summarize builds the full report for one ticker: metrics, call/put split,
// sentiment and the tagged events. classify is called once per event.
func Summarize(ticker string, events []TradeEvent, classify func(TradeEvent) Tags, now time.Time) TickerReport {
	report := TickerReport{
		Metrics:   Aggregate(ticker, events, now),
		TagCounts: make(map[PatternTag]int),
		Tagged:    make([]ClassifiedEvent, 0),
	}

	for _, e := range events {
		switch e.OptionType {
		case OptionCall:
			report.CallPremium += e.PremiumTotal
		case OptionPut:
			report.PutPremium += e.PremiumTotal
		}

		tags := classify(e)
		if len(tags) == 0 {
			continue
		}
		for _, tag := range tags {
			report.TagCounts[tag]++
		}
		report.Tagged = append(report.Tagged, ClassifiedEvent{Event: e, Tags: tags})
	}

	if report.CallPremium > 0 {
		report.PutCallRatio = report.PutPremium / report.CallPremium
	}
	report.Sentiment = interpretSentiment(report.Metrics.DeltaFlow, report.CallPremium+report.PutPremium)

	return report
}

func interpretSentiment(deltaFlow, grossPremium float64) Sentiment {
	if grossPremium <= 0 || math.Abs(deltaFlow) < grossPremium*neutralBand {
		return SentimentNeutral
	}
	if deltaFlow > 0 {
		return SentimentBullish
	}
	return SentimentBearish
}
