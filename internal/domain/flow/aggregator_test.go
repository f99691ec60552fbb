package flow

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []TradeEvent {
	base := testNow.Add(-time.Hour)
	return []TradeEvent{
		{Ticker: "AAPL", OptionType: OptionCall, PremiumTotal: 600_000, AskSidePremium: 600_000, ExecutedAt: base},
		{Ticker: "AAPL", OptionType: OptionPut, PremiumTotal: 200_000, AskSidePremium: 150_000, BidSidePremium: 50_000, ExecutedAt: base.Add(20 * time.Minute)},
		{Ticker: "AAPL", OptionType: OptionCall, PremiumTotal: 80_000, AskSidePremium: 10_000, BidSidePremium: 70_000, ExecutedAt: base.Add(5 * time.Minute)},
		{Ticker: "AAPL", OptionType: OptionUnknown, PremiumTotal: 40_000, AskSidePremium: 40_000},
	}
}

func TestContribution(t *testing.T) {
	tests := []struct {
		name      string
		event     TradeEvent
		wantGamma float64
		wantDelta float64
	}{
		{
			name:      "ask side call",
			event:     TradeEvent{OptionType: OptionCall, AskSidePremium: 600_000},
			wantGamma: -6_000,
			wantDelta: 600_000,
		},
		{
			name:      "ask side put",
			event:     TradeEvent{OptionType: OptionPut, AskSidePremium: 150_000, BidSidePremium: 50_000},
			wantGamma: -1_000,
			wantDelta: -100_000,
		},
		{
			name:      "bid side call",
			event:     TradeEvent{OptionType: OptionCall, AskSidePremium: 10_000, BidSidePremium: 70_000},
			wantGamma: 600,
			wantDelta: -60_000,
		},
		{
			name:      "unknown type has gamma only",
			event:     TradeEvent{OptionType: OptionUnknown, AskSidePremium: 40_000},
			wantGamma: -400,
			wantDelta: 0,
		},
		{
			name:  "balanced trade contributes nothing",
			event: TradeEvent{OptionType: OptionCall, AskSidePremium: 5_000, BidSidePremium: 5_000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gamma, delta := Contribution(tt.event)
			assert.InDelta(t, tt.wantGamma, gamma, 1e-9)
			assert.InDelta(t, tt.wantDelta, delta, 1e-9)
		})
	}
}

func TestAggregate(t *testing.T) {
	m := Aggregate("AAPL", sampleEvents(), testNow)

	assert.Equal(t, "AAPL", m.Ticker)
	assert.Equal(t, 4, m.EventCount)
	assert.InDelta(t, -6_000-1_000+600-400, m.GammaExposure, 1e-9)
	assert.InDelta(t, 600_000-100_000-60_000, m.DeltaFlow, 1e-9)
	assert.Equal(t, testNow.Add(-40*time.Minute), m.LastUpdated)
}

func TestAggregate_Empty(t *testing.T) {
	for _, events := range [][]TradeEvent{nil, {}} {
		m := Aggregate("MSFT", events, testNow)

		assert.Equal(t, 0, m.EventCount)
		assert.Zero(t, m.GammaExposure)
		assert.Zero(t, m.DeltaFlow)
		assert.Equal(t, testNow, m.LastUpdated)
	}
}

func TestAggregate_NoTimestampsUsesCallTime(t *testing.T) {
	events := []TradeEvent{{Ticker: "X", OptionType: OptionCall, AskSidePremium: 1_000}}

	m := Aggregate("X", events, testNow)
	assert.Equal(t, testNow, m.LastUpdated)
	assert.Equal(t, 1, m.EventCount)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	events := sampleEvents()
	want := Aggregate("AAPL", events, testNow)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]TradeEvent(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := Aggregate("AAPL", shuffled, testNow)
		assert.InDelta(t, want.GammaExposure, got.GammaExposure, 1e-6)
		assert.InDelta(t, want.DeltaFlow, got.DeltaFlow, 1e-6)
		assert.Equal(t, want.LastUpdated, got.LastUpdated)
	}
}

func TestAggregate_DoesNotTouchPreviousSnapshot(t *testing.T) {
	events := sampleEvents()
	first := Aggregate("AAPL", events[:1], testNow)
	snapshot := first

	_ = Aggregate("AAPL", events, testNow)
	assert.Equal(t, snapshot, first)
}

func TestSummarize(t *testing.T) {
	c := fixedClassifier()
	events := sampleEvents()
	for i := range events {
		events[i].Expiry = testNow.Add(7 * 24 * time.Hour)
	}
	events[0].HasSweep = true

	report := Summarize("AAPL", events, c.Classify, testNow)

	assert.Equal(t, Aggregate("AAPL", events, testNow), report.Metrics)
	assert.InDelta(t, 680_000, report.CallPremium, 1e-9)
	assert.InDelta(t, 200_000, report.PutPremium, 1e-9)
	assert.InDelta(t, 200_000.0/680_000.0, report.PutCallRatio, 1e-9)
	assert.Equal(t, SentimentBullish, report.Sentiment)

	require.Len(t, report.Tagged, 1)
	assert.Equal(t, "AAPL", report.Tagged[0].Event.Ticker)
	assert.Equal(t, 1, report.TagCounts[TagBigMoney])
	assert.Equal(t, 1, report.TagCounts[TagDarkPool])
	assert.Equal(t, 1, report.TagCounts[TagGammaSqueeze])
	assert.Equal(t, 1, report.TagCounts[TagAggressiveShortTerm])
}

func TestInterpretSentiment(t *testing.T) {
	assert.Equal(t, SentimentNeutral, interpretSentiment(0, 0))
	assert.Equal(t, SentimentNeutral, interpretSentiment(9_000, 100_000))
	assert.Equal(t, SentimentBullish, interpretSentiment(10_000, 100_000))
	assert.Equal(t, SentimentBearish, interpretSentiment(-50_000, 100_000))
}
