package flow

import (
	"strings"
	"time"
)

// OptionType is the contract side of a trade
type OptionType string

const (
	OptionCall    OptionType = "call"
	OptionPut     OptionType = "put"
	OptionUnknown OptionType = "unknown"
)

// ParseOptionType accepts the spellings seen on the wire (call, calls, c, put, puts, p)
func ParseOptionType(s string) OptionType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "calls", "c":
		return OptionCall
	case "put", "puts", "p":
		return OptionPut
	default:
		return OptionUnknown
	}
}

// Sign is the directional sign used by delta flow: +1 for calls, -1 for puts
func (t OptionType) Sign() float64 {
	switch t {
	case OptionCall:
		return 1
	case OptionPut:
		return -1
	default:
		return 0
	}
}

// RawRecord is one loosely typed upstream flow record, as decoded from JSON
type RawRecord map[string]any

// TradeEvent is one normalized options trade
type TradeEvent struct {
	ID           string     `json:"id,omitempty" ch:"id"`
	Ticker       string     `json:"ticker" ch:"ticker"`
	OptionSymbol string     `json:"option_symbol,omitempty" ch:"option_symbol"`
	OptionType   OptionType `json:"option_type" ch:"option_type"`
	Strike       float64    `json:"strike,omitempty" ch:"strike"`

	PremiumTotal   float64 `json:"premium_total" ch:"premium_total"` // USD, ask + bid side
	AskSidePremium float64 `json:"ask_side_premium" ch:"ask_side_premium"`
	BidSidePremium float64 `json:"bid_side_premium" ch:"bid_side_premium"`
	Volume         int64   `json:"volume" ch:"volume"` // contracts

	UnderlyingPrice float64 `json:"underlying_price,omitempty" ch:"underlying_price"`

	Expiry     time.Time `json:"expiry" ch:"expiry"`
	HasSweep   bool      `json:"has_sweep" ch:"has_sweep"`
	HasFloor   bool      `json:"has_floor" ch:"has_floor"`
	ExecutedAt time.Time `json:"executed_at" ch:"executed_at"` // zero when upstream sent no timestamp
}

// IsAskSide reports aggressive (ask-side) buying pressure
func (e TradeEvent) IsAskSide() bool {
	return e.AskSidePremium > e.BidSidePremium
}

// NetPremium is ask-side minus bid-side premium
func (e TradeEvent) NetPremium() float64 {
	return e.AskSidePremium - e.BidSidePremium
}

// DaysToExpiry returns ceil((expiry - now) / 1 day). Negative once expired.
func (e TradeEvent) DaysToExpiry(now time.Time) int {
	ms := e.Expiry.Sub(now).Milliseconds()
	const day = int64(86_400_000)

	days := ms / day
	if ms%day > 0 {
		days++
	}
	return int(days)
}

// PatternTag is one trading-pattern signal
type PatternTag string

const (
	TagBigMoney            PatternTag = "big-money"
	TagAggressiveShortTerm PatternTag = "aggressive-short-term"
	TagDarkPool            PatternTag = "dark-pool"
	TagGammaSqueeze        PatternTag = "gamma-squeeze"
)

// AllTags lists every tag in canonical order.
// New tags are appended; existing ones never change meaning.
var AllTags = []PatternTag{
	TagBigMoney,
	TagAggressiveShortTerm,
	TagDarkPool,
	TagGammaSqueeze,
}

// Tags is a duplicate-free set of pattern tags kept in canonical order
type Tags []PatternTag

// Has reports whether tag is in the set
func (t Tags) Has(tag PatternTag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Strings returns the tag names, used for storage columns and log fields
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = string(tag)
	}
	return out
}

// ClassifiedEvent pairs a trade with the tags it matched
type ClassifiedEvent struct {
	Event TradeEvent `json:"event"`
	Tags  Tags       `json:"tags"`
}

// TickerMetrics is the per-ticker aggregation snapshot of one analysis call.
// It is a value; nothing mutates a returned snapshot.
type TickerMetrics struct {
	Ticker        string    `json:"ticker" ch:"ticker"`
	GammaExposure float64   `json:"gamma_exposure" ch:"gamma_exposure"`
	DeltaFlow     float64   `json:"delta_flow" ch:"delta_flow"`
	EventCount    int       `json:"event_count" ch:"event_count"`
	LastUpdated   time.Time `json:"last_updated" ch:"last_updated"`
}

// BatchResult maps ticker to metrics; serialized as a JSON object keyed by ticker
type BatchResult map[string]TickerMetrics

// Sentiment is the directional read of a ticker's flow
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// TickerReport is the full per-ticker analysis: metrics plus the breakdown
// used for alerts and history.
type TickerReport struct {
	Metrics TickerMetrics `json:"metrics"`

	CallPremium  float64   `json:"call_premium"`
	PutPremium   float64   `json:"put_premium"`
	PutCallRatio float64   `json:"put_call_ratio"` // 0 when no call premium
	Sentiment    Sentiment `json:"sentiment"`

	TagCounts map[PatternTag]int `json:"tag_counts"`
	Tagged    []ClassifiedEvent  `json:"tagged"`  // events with at least one tag
	Dropped   int                `json:"dropped"` // malformed records skipped
}
