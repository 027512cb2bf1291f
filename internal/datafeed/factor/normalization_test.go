package factor

import (
	"testing"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      float64
		scale    float64
		dividend float64
		mode     types.DataNormalizationMode
		expected float64
	}{
		{"raw", 100, 0.5, 2, types.NormalizationRaw, 100},
		{"adjusted", 100, 0.5, 2, types.NormalizationAdjusted, 50},
		{"split adjusted", 100, 0.5, 2, types.NormalizationSplitAdjusted, 50},
		{"total return", 100, 0.5, 2, types.NormalizationTotalReturn, 52},
		{"zero scale is one", 100, 0, 0, types.NormalizationAdjusted, 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.expected, Normalize(tc.raw, tc.scale, tc.dividend, tc.mode), 1e-9)
		})
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	modes := []types.DataNormalizationMode{
		types.NormalizationRaw,
		types.NormalizationAdjusted,
		types.NormalizationSplitAdjusted,
		types.NormalizationTotalReturn,
	}

	rapid.Check(t, func(t *rapid.T) {
		raw := float64(rapid.Int64Range(1, 1_000_000).Draw(t, "raw")) / 100
		scale := float64(rapid.Int64Range(1, 10_000).Draw(t, "scale")) / 1000
		dividends := float64(rapid.Int64Range(0, 10_000).Draw(t, "dividends")) / 100
		mode := modes[rapid.IntRange(0, len(modes)-1).Draw(t, "mode")]

		normalized := Normalize(raw, scale, dividends, mode)
		back := Denormalize(normalized, scale, dividends, mode)

		if diff := back - raw; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("round trip of %v in %s gave %v", raw, mode, back)
		}
	})
}
