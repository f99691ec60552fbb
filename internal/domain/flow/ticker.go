package flow

import (
	"regexp"
	"strings"

	"optionsflow/pkg/errors"
)

// MaxTickerLength bounds accepted symbols
const MaxTickerLength = 10

var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]*$`)

// NormalizeTicker trims and upper-cases a symbol and validates it
func NormalizeTicker(s string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	if t == "" {
		return "", errors.Wrap(errors.ErrInvalidTicker, "empty ticker")
	}
	if len(t) > MaxTickerLength {
		return "", errors.Wrapf(errors.ErrInvalidTicker, "%q longer than %d characters", t, MaxTickerLength)
	}
	if !tickerPattern.MatchString(t) {
		return "", errors.Wrapf(errors.ErrInvalidTicker, "%q has unsupported characters", t)
	}
	return t, nil
}

// NormalizeTickers validates and de-duplicates a list, keeping first-seen
// order. Rejected symbols are returned with their errors.
func NormalizeTickers(in []string) ([]string, map[string]error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	var rejected map[string]error

	for _, raw := range in {
		t, err := NormalizeTicker(raw)
		if err != nil {
			if rejected == nil {
				rejected = make(map[string]error)
			}
			rejected[raw] = err
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, rejected
}
