package flow

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"optionsflow/pkg/errors"
)

// Upstream field aliases, first match wins
var (
	tickerKeys       = []string{"ticker", "underlying_symbol", "symbol"}
	optionTypeKeys   = []string{"type", "option_type", "put_call"}
	optionSymbolKeys = []string{"option_chain", "option_symbol", "option_chain_id"}
	premiumKeys      = []string{"total_premium", "premium"}
	askPremiumKeys   = []string{"total_ask_side_prem", "ask_side_premium", "ask_prem"}
	bidPremiumKeys   = []string{"total_bid_side_prem", "bid_side_premium", "bid_prem"}
	volumeKeys       = []string{"volume", "total_size", "size"}
	expiryKeys       = []string{"expiry", "expiration", "expires"}
	strikeKeys       = []string{"strike", "strike_price"}
	underlyingKeys   = []string{"underlying_price", "stock_price"}
	idKeys           = []string{"id", "alert_id"}
)

// Normalize coerces one raw upstream record into a TradeEvent.
//
// Absent or unparseable numerics become 0 and absent flags false. Only a
// record without a ticker or without a usable expiry is rejected, with
// ErrMalformedRecord.
func Normalize(raw RawRecord) (TradeEvent, error) {
	ticker := strings.ToUpper(strings.TrimSpace(lookupString(raw, tickerKeys...)))
	if ticker == "" {
		return TradeEvent{}, errors.Wrap(errors.ErrMalformedRecord, "missing ticker")
	}

	occ := strings.ToUpper(strings.TrimSpace(lookupString(raw, optionSymbolKeys...)))
	occType, occExpiry, occStrike, occOK := parseOCCSymbol(occ)

	event := TradeEvent{
		ID:              lookupString(raw, idKeys...),
		Ticker:          ticker,
		OptionSymbol:    occ,
		OptionType:      ParseOptionType(lookupString(raw, optionTypeKeys...)),
		AskSidePremium:  lookupAmount(raw, askPremiumKeys...),
		BidSidePremium:  lookupAmount(raw, bidPremiumKeys...),
		Volume:          lookupCount(raw, volumeKeys...),
		Strike:          lookupAmount(raw, strikeKeys...),
		UnderlyingPrice: lookupAmount(raw, underlyingKeys...),
		HasSweep:        lookupBool(raw, "has_sweep"),
		HasFloor:        lookupBool(raw, "has_floor"),
	}

	if event.OptionType == OptionUnknown && occOK {
		event.OptionType = occType
	}
	if event.Strike == 0 && occOK {
		event.Strike = occStrike
	}

	if _, ok := lookup(raw, premiumKeys...); ok {
		event.PremiumTotal = lookupAmount(raw, premiumKeys...)
	} else {
		event.PremiumTotal = event.AskSidePremium + event.BidSidePremium
	}

	expiry, ok := parseExpiry(lookupString(raw, expiryKeys...))
	if !ok {
		if !occOK {
			return TradeEvent{}, errors.Wrapf(errors.ErrMalformedRecord, "unparseable expiry for %s", ticker)
		}
		expiry = occExpiry
	}
	event.Expiry = expiry

	if ts, ok := lookupTime(raw, "executed_at"); ok {
		event.ExecutedAt = ts
	} else if ts, ok := lookupTime(raw, "created_at"); ok {
		event.ExecutedAt = ts
	}

	return event, nil
}

// NormalizeAll normalizes a batch, silently dropping malformed records.
// dropped is the number of records skipped.
func NormalizeAll(records []RawRecord) (events []TradeEvent, dropped int) {
	events = make([]TradeEvent, 0, len(records))
	for _, raw := range records {
		event, err := Normalize(raw)
		if err != nil {
			dropped++
			continue
		}
		events = append(events, event)
	}
	return events, dropped
}

func lookup(raw RawRecord, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupString(raw RawRecord, keys ...string) string {
	v, ok := lookup(raw, keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

// lookupAmount coerces a numeric field to a non-negative finite float
func lookupAmount(raw RawRecord, keys ...string) float64 {
	v, ok := lookup(raw, keys...)
	if !ok {
		return 0
	}

	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		f = parseDecimal(n.String())
	case string:
		f = parseDecimal(n)
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

// lookupCount floors an amount to a whole count, saturating at MaxInt64
func lookupCount(raw RawRecord, keys ...string) int64 {
	f := math.Floor(lookupAmount(raw, keys...))
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

func parseDecimal(s string) float64 {
	s = strings.NewReplacer("$", "", ",", "", "_", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func lookupBool(raw RawRecord, key string) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		return err == nil && parsed
	case float64:
		return b != 0
	case int:
		return b != 0
	case json.Number:
		f, err := b.Float64()
		return err == nil && f != 0
	default:
		return false
	}
}

func parseExpiry(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// lookupTime accepts RFC3339 strings or unix timestamps in seconds or milliseconds
func lookupTime(raw RawRecord, key string) (time.Time, bool) {
	v, ok := raw[key]
	if !ok || v == nil {
		return time.Time{}, false
	}

	var unix float64
	switch ts := v.(type) {
	case string:
		ts = strings.TrimSpace(ts)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t.UTC(), true
		}
		f, err := strconv.ParseFloat(ts, 64)
		if err != nil {
			return time.Time{}, false
		}
		unix = f
	case float64:
		unix = ts
	case int64:
		unix = float64(ts)
	case int:
		unix = float64(ts)
	case json.Number:
		f, err := ts.Float64()
		if err != nil {
			return time.Time{}, false
		}
		unix = f
	default:
		return time.Time{}, false
	}

	if unix <= 0 || math.IsNaN(unix) || math.IsInf(unix, 0) {
		return time.Time{}, false
	}
	// 1e12 seconds is far in the future, so larger values are milliseconds
	if unix > 1e12 {
		return time.UnixMilli(int64(unix)).UTC(), true
	}
	sec, frac := math.Modf(unix)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

// parseOCCSymbol decodes an OCC option symbol like AAPL240119C00190000:
// root, YYMMDD expiry, C/P, strike * 1000 over 8 digits.
func parseOCCSymbol(symbol string) (OptionType, time.Time, float64, bool) {
	if len(symbol) < 16 {
		return OptionUnknown, time.Time{}, 0, false
	}
	tail := symbol[len(symbol)-15:]

	expiry, err := time.Parse("060102", tail[:6])
	if err != nil {
		return OptionUnknown, time.Time{}, 0, false
	}

	optType := ParseOptionType(tail[6:7])
	if optType == OptionUnknown {
		return OptionUnknown, time.Time{}, 0, false
	}

	strike, err := strconv.ParseInt(tail[7:], 10, 64)
	if err != nil {
		return OptionUnknown, time.Time{}, 0, false
	}

	return optType, expiry, float64(strike) / 1000, true
}
