package flow

import "time"

// Classifier maps a trade to the pattern tags it matches.
// Safe for concurrent use; it holds no mutable state.
type Classifier struct {
	th  ClassifierThresholds
	now func() time.Time
}

// ClassifierOption configures a Classifier
type ClassifierOption func(*Classifier)

// WithClock overrides the time source used for days-to-expiry
func WithClock(now func() time.Time) ClassifierOption {
	return func(c *Classifier) {
		c.now = now
	}
}

// NewClassifier creates a classifier over the given thresholds
func NewClassifier(th ClassifierThresholds, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		th:  th,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Thresholds returns the rule constants in use
func (c *Classifier) Thresholds() ClassifierThresholds {
	return c.th
}

// Classify tags an event relative to the classifier clock
func (c *Classifier) Classify(e TradeEvent) Tags {
	return c.ClassifyAt(e, c.now())
}

// ClassifyAt tags an event relative to now. Every rule is evaluated
// independently; the result is in canonical tag order and may be empty.
// An expired contract (negative DTE) fails every DTE-bounded rule.
func (c *Classifier) ClassifyAt(e TradeEvent, now time.Time) Tags {
	isAskSide := e.IsAskSide()
	dte := e.DaysToExpiry(now)
	live := dte >= 0
	isBlock := e.HasFloor || e.PremiumTotal > c.th.BlockPremium
	premium := e.PremiumTotal

	tags := make(Tags, 0, len(AllTags))

	if premium >= c.th.BigMoneyPremium && isAskSide {
		tags = append(tags, TagBigMoney)
	}

	if premium >= c.th.AggressivePremium && live && dte <= c.th.AggressiveMaxDTE && e.HasSweep && isAskSide {
		tags = append(tags, TagAggressiveShortTerm)
	}

	if premium >= c.th.DarkPoolPremium && (isBlock || e.Volume > c.th.DarkPoolVolume) {
		tags = append(tags, TagDarkPool)
	}

	if e.OptionType == OptionCall && isAskSide && live && dte <= c.th.GammaSqueezeMaxDTE && premium >= c.th.GammaSqueezePremium {
		tags = append(tags, TagGammaSqueeze)
	}

	return tags
}
