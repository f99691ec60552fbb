package flow

import (
	"math"

	"optionsflow/pkg/errors"
)

// ClassifierThresholds holds the pattern rule constants. Defaults preserve
// the established tag semantics; callers inject a different set rather than
// editing the rules.
type ClassifierThresholds struct {
	BigMoneyPremium float64 // big-money: premium >= this and ask side

	AggressivePremium float64 // aggressive-short-term: premium >= this
	AggressiveMaxDTE  int     // ... and dte <= this

	DarkPoolPremium float64 // dark-pool: premium >= this
	DarkPoolVolume  int64   // ... and (block or volume > this)
	BlockPremium    float64 // premium above this makes a trade a block

	GammaSqueezePremium float64 // gamma-squeeze: call, ask side, premium >= this
	GammaSqueezeMaxDTE  int     // ... and dte <= this
}

// DefaultClassifierThresholds returns the standard rule constants
func DefaultClassifierThresholds() ClassifierThresholds {
	return ClassifierThresholds{
		BigMoneyPremium:     500_000,
		AggressivePremium:   100_000,
		AggressiveMaxDTE:    14,
		DarkPoolPremium:     250_000,
		DarkPoolVolume:      500,
		BlockPremium:        500_000,
		GammaSqueezePremium: 50_000,
		GammaSqueezeMaxDTE:  30,
	}
}

// Validate rejects non-positive or NaN thresholds
func (t ClassifierThresholds) Validate() error {
	var errs errors.MultiError

	checkPositive(&errs, "big_money_premium", t.BigMoneyPremium)
	checkPositive(&errs, "aggressive_premium", t.AggressivePremium)
	checkPositive(&errs, "aggressive_max_dte", float64(t.AggressiveMaxDTE))
	checkPositive(&errs, "dark_pool_premium", t.DarkPoolPremium)
	checkPositive(&errs, "dark_pool_volume", float64(t.DarkPoolVolume))
	checkPositive(&errs, "block_premium", t.BlockPremium)
	checkPositive(&errs, "gamma_squeeze_premium", t.GammaSqueezePremium)
	checkPositive(&errs, "gamma_squeeze_max_dte", float64(t.GammaSqueezeMaxDTE))

	return errs.ToError()
}

// SignificanceThresholds gates which tickers are surfaced
type SignificanceThresholds struct {
	Gamma float64 // keep when |gamma exposure| >= Gamma
	Delta float64 // or |delta flow| >= Delta (USD)
}

const (
	DefaultGammaThreshold = 1000
	DefaultDeltaThreshold = 100_000
)

// DefaultSignificanceThresholds returns GAMMA 1000 / DELTA 100000
func DefaultSignificanceThresholds() SignificanceThresholds {
	return SignificanceThresholds{
		Gamma: DefaultGammaThreshold,
		Delta: DefaultDeltaThreshold,
	}
}

// Validate rejects non-positive or NaN thresholds
func (t SignificanceThresholds) Validate() error {
	var errs errors.MultiError

	checkPositive(&errs, "gamma_threshold", t.Gamma)
	checkPositive(&errs, "delta_threshold", t.Delta)

	return errs.ToError()
}

func checkPositive(errs *errors.MultiError, field string, v float64) {
	if math.IsNaN(v) || v <= 0 {
		verr := errors.NewValidationError(field, "must be a positive number", v)
		verr.Err = errors.ErrInvalidThreshold
		errs.Add(verr)
	}
}
