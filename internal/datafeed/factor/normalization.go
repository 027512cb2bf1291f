package factor

import "github.com/rxtech-lab/argo-engine/internal/types"

// Normalize converts a raw price into the given normalization mode.
func Normalize(raw, scale, sumOfDividends float64, mode types.DataNormalizationMode) float64 {
	if scale == 0 {
		scale = 1
	}

	switch mode {
	case types.NormalizationAdjusted, types.NormalizationSplitAdjusted:
		return raw * scale
	case types.NormalizationTotalReturn:
		return raw*scale + sumOfDividends
	default:
		return raw
	}
}

// Denormalize is the inverse of Normalize: it recovers the raw price.
func Denormalize(price, scale, sumOfDividends float64, mode types.DataNormalizationMode) float64 {
	if scale == 0 {
		scale = 1
	}

	switch mode {
	case types.NormalizationAdjusted, types.NormalizationSplitAdjusted:
		return price / scale
	case types.NormalizationTotalReturn:
		return (price - sumOfDividends) / scale
	default:
		return price
	}
}
