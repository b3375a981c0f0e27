// Package tokens approximates token counts for budget accounting. Estimates
// are intentionally cheap; they only need to be consistent wherever a count
// is compared against a quota or assembly budget.
package tokens

import (
	"regexp"
	"strings"
	"unicode"
)

// Mode selects which estimator the whole system uses. Mixing modes between
// the write path and the assembly budget would skew quota accounting, so the
// mode is fixed once at startup.
type Mode string

const (
	ModeSimple  Mode = "simple"
	ModeRefined Mode = "refined"
)

var wordPattern = regexp.MustCompile(`[A-Za-z0-9'_\-]+`)

// Estimate returns the simple character-ratio estimate: ceil(runes / 4),
// never zero for non-empty input.
func Estimate(text string) int {
	runes := len([]rune(text))
	if runes == 0 {
		return 0
	}
	n := (runes + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateRefined blends word, punctuation and number counts. Numbers and
// punctuation tend to tokenize finer than plain words, so they carry extra
// weight.
func EstimateRefined(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	words := wordPattern.FindAllString(text, -1)

	punct := 0
	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			punct++
		}
	}
	numeric := 0
	for _, w := range words {
		if strings.IndexFunc(w, unicode.IsDigit) >= 0 {
			numeric++
		}
	}

	// ~1.3 tokens per word baseline, in integer arithmetic.
	n := (len(words)*13+9)/10 + punct/2 + numeric
	if n < 1 {
		n = 1
	}
	return n
}

// Estimator is a fixed estimation function selected by Mode.
type Estimator func(string) int

// ForMode returns the estimator for mode, defaulting to the simple ratio.
func ForMode(mode Mode) Estimator {
	if mode == ModeRefined {
		return EstimateRefined
	}
	return Estimate
}
