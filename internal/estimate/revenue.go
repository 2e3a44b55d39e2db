// Package estimate parses the free-form revenue estimates produced by the
// scoring model into dollar amounts.
package estimate

import (
	"regexp"
	"strconv"
	"strings"
)

// Revenue thresholds shared by the scoring filter and the approval gate.
const (
	// IPUpsideThreshold is the revenue below which a candidate is checked for
	// patent-based upside.
	IPUpsideThreshold = 10_000_000
	// MaxRevenue is the ceiling above which candidates are out of band.
	MaxRevenue = 150_000_000
)

var leadingNumber = regexp.MustCompile(`^[0-9]*\.?[0-9]+`)

var revenueStripper = strings.NewReplacer("$", "", ",", "", " ", "", "\t", "")

// ParseRevenue converts strings like "$25M", "1.2B", "$750K" or "4000000"
// into dollars. The unit is detected by substring: "b" scales by 1e9, then
// "m" by 1e6, then "k" by 1e3. Empty or non-numeric input yields 0.
func ParseRevenue(s string) float64 {
	norm := revenueStripper.Replace(strings.ToLower(strings.TrimSpace(s)))
	if norm == "" {
		return 0
	}

	num := leadingNumber.FindString(norm)
	if num == "" {
		return 0
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}

	switch {
	case strings.Contains(norm, "b"):
		return v * 1e9
	case strings.Contains(norm, "m"):
		return v * 1e6
	case strings.Contains(norm, "k"):
		return v * 1e3
	default:
		return v
	}
}

// FormatRevenue renders a dollar amount in the compact form used in approval
// reasons ("$25M", "$1.2B", "$750K").
func FormatRevenue(v float64) string {
	switch {
	case v >= 1e9:
		return "$" + compact(v/1e9) + "B"
	case v >= 1e6:
		return "$" + compact(v/1e6) + "M"
	case v >= 1e3:
		return "$" + compact(v/1e3) + "K"
	default:
		return "$" + compact(v)
	}
}

func compact(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// InIPUpsideBand reports whether a parsed revenue is positive but below
// threshold. A non-positive threshold falls back to IPUpsideThreshold.
func InIPUpsideBand(revenue, threshold float64) bool {
	if threshold <= 0 {
		threshold = IPUpsideThreshold
	}
	return revenue > 0 && revenue < threshold
}
