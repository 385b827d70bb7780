package fuzzyratio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio_IdenticalStringsScore100(t *testing.T) {
	assert.Equal(t, 100.0, Ratio("real madrid", "real madrid"))
}

func TestRatio_EmptyBothScore100(t *testing.T) {
	assert.Equal(t, 100.0, Ratio("", ""))
}

func TestRatio_OneEmptyScoresZero(t *testing.T) {
	assert.Equal(t, 0.0, Ratio("real madrid", ""))
}

func TestTokenSortRatio_IgnoresWordOrder(t *testing.T) {
	got := TokenSortRatio("Madrid Real", "Real Madrid")
	assert.Equal(t, 100.0, got)
}

func TestTokenSetRatio_IgnoresExtraTokensOnOneSide(t *testing.T) {
	got := TokenSetRatio("real madrid cf", "real madrid")
	assert.Greater(t, got, 85.0)
}

func TestPartialRatio_ScoresSubstringHigh(t *testing.T) {
	got := PartialRatio("inter", "fc internazionale")
	assert.Greater(t, got, 80.0)
}

func TestPartialRatio_WindowsByRuneNotByte(t *testing.T) {
	// "Atlético Madrid" has multi-byte runes (é is 2 bytes in UTF-8); a
	// byte-indexed window can slice mid-rune and silently corrupt the
	// comparison. Windowing by rune keeps this scoring high.
	got := PartialRatio("Atlético", "Atlético Madrid")
	assert.Greater(t, got, 92.0)
}

func TestPartialRatio_DoesNotExceedFullRatioForEqualLengthStrings(t *testing.T) {
	a, b := "arsenal", "aarseno"
	partial := PartialRatio(a, b)
	full := Ratio(a, b)
	assert.Equal(t, full, partial)
}

func TestTableDrivenThresholdBehavior(t *testing.T) {
	cases := []struct {
		name      string
		a, b      string
		scorer    func(string, string) float64
		wantAbove float64
	}{
		{"token sort above 85 for near-identical", "Manchester United", "United Manchester", TokenSortRatio, 85},
		{"token set above 40 for partial token overlap", "Sporting Lisbon", "Sporting Clube de Lisboa", TokenSetRatio, 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.scorer(tc.a, tc.b)
			assert.GreaterOrEqual(t, got, tc.wantAbove)
		})
	}
}
