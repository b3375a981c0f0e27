package tokens

import "testing"

func TestEstimate(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"hello world!", 3},
	}
	for _, tc := range cases {
		if got := Estimate(tc.text); got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}

func TestEstimate_NonASCII(t *testing.T) {
	// Rune count, not byte count.
	if got := Estimate("日本語テキスト例文"); got != 2 {
		t.Errorf("Estimate(8 runes) = %d, want 2", got)
	}
}

func TestEstimateRefined(t *testing.T) {
	if got := EstimateRefined(""); got != 0 {
		t.Errorf("EstimateRefined(empty) = %d, want 0", got)
	}
	if got := EstimateRefined("   "); got != 0 {
		t.Errorf("EstimateRefined(whitespace) = %d, want 0", got)
	}

	// 4 words -> ceil(4 * 1.3) = 6 baseline, no punctuation or numbers.
	if got := EstimateRefined("the quick brown fox"); got != 6 {
		t.Errorf("EstimateRefined(4 words) = %d, want 6", got)
	}

	// Numbers and punctuation add on top of the word baseline.
	plain := EstimateRefined("my appointment is on friday morning")
	dense := EstimateRefined("my appointment is at 9:45, room 312!")
	if dense <= plain {
		t.Errorf("numeric/punctuated text should estimate higher: dense=%d plain=%d", dense, plain)
	}
}

func TestEstimateRefined_NeverZeroForContent(t *testing.T) {
	if got := EstimateRefined("x"); got < 1 {
		t.Errorf("EstimateRefined(non-empty) = %d, want >= 1", got)
	}
}

func TestForMode(t *testing.T) {
	text := "my appointment is at 9:45, room 312!"
	if got := ForMode(ModeSimple)(text); got != Estimate(text) {
		t.Errorf("ForMode(simple) mismatch: %d", got)
	}
	if got := ForMode(ModeRefined)(text); got != EstimateRefined(text) {
		t.Errorf("ForMode(refined) mismatch: %d", got)
	}
	// Unknown modes fall back to the simple estimator.
	if got := ForMode(Mode("bogus"))(text); got != Estimate(text) {
		t.Errorf("ForMode(bogus) mismatch: %d", got)
	}
}
