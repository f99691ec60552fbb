package events

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"optionsflow/internal/domain/flow"
)

const (
	EventTypeFlowAlert = "flow.significant"
	eventSource        = "flow_scanner"
	eventVersion       = "1.0"

	maxAlertTrades = 3
)

// FlowAlertEvent announces a ticker that passed the significance filter
type FlowAlertEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	Ticker        string         `json:"ticker"`
	ScannedAt     time.Time      `json:"scanned_at"`
	GammaExposure float64        `json:"gamma_exposure"`
	DeltaFlow     float64        `json:"delta_flow"`
	EventCount    int            `json:"event_count"`
	LastUpdated   time.Time      `json:"last_updated"`
	CallPremium   float64        `json:"call_premium"`
	PutPremium    float64        `json:"put_premium"`
	PutCallRatio  float64        `json:"put_call_ratio"`
	Sentiment     string         `json:"sentiment"`
	TagCounts     map[string]int `json:"tag_counts,omitempty"`
	TopTrades     []AlertTrade   `json:"top_trades,omitempty"`
}

// AlertTrade is one of the largest tagged trades behind an alert
type AlertTrade struct {
	OptionSymbol string    `json:"option_symbol,omitempty"`
	OptionType   string    `json:"option_type"`
	Strike       float64   `json:"strike,omitempty"`
	Premium      float64   `json:"premium"`
	Expiry       time.Time `json:"expiry"`
	HasSweep     bool      `json:"has_sweep"`
	Tags         []string  `json:"tags"`
}

// NewFlowAlertEvent builds an alert from a ticker report
func NewFlowAlertEvent(report flow.TickerReport, scannedAt time.Time) FlowAlertEvent {
	m := report.Metrics

	event := FlowAlertEvent{
		ID:            uuid.NewString(),
		Type:          EventTypeFlowAlert,
		Source:        eventSource,
		Version:       eventVersion,
		Timestamp:     time.Now().UTC(),
		Ticker:        m.Ticker,
		ScannedAt:     scannedAt.UTC(),
		GammaExposure: m.GammaExposure,
		DeltaFlow:     m.DeltaFlow,
		EventCount:    m.EventCount,
		LastUpdated:   m.LastUpdated.UTC(),
		CallPremium:   report.CallPremium,
		PutPremium:    report.PutPremium,
		PutCallRatio:  report.PutCallRatio,
		Sentiment:     string(report.Sentiment),
	}

	if len(report.TagCounts) > 0 {
		event.TagCounts = make(map[string]int, len(report.TagCounts))
		for tag, n := range report.TagCounts {
			event.TagCounts[string(tag)] = n
		}
	}

	event.TopTrades = topTrades(report.Tagged, maxAlertTrades)
	return event
}

// topTrades returns the n largest tagged trades by premium
func topTrades(tagged []flow.ClassifiedEvent, n int) []AlertTrade {
	sorted := make([]flow.ClassifiedEvent, len(tagged))
	copy(sorted, tagged)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Event.PremiumTotal > sorted[j].Event.PremiumTotal
	})

	if len(sorted) > n {
		sorted = sorted[:n]
	}

	out := make([]AlertTrade, 0, len(sorted))
	for _, ce := range sorted {
		out = append(out, AlertTrade{
			OptionSymbol: ce.Event.OptionSymbol,
			OptionType:   string(ce.Event.OptionType),
			Strike:       ce.Event.Strike,
			Premium:      ce.Event.PremiumTotal,
			Expiry:       ce.Event.Expiry,
			HasSweep:     ce.Event.HasSweep,
			Tags:         ce.Tags.Strings(),
		})
	}
	return out
}
