package factor

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// Row is one line of a factor file. Factors are cumulative: a row applies to
// every date from the previous row (exclusive) up to and including its Date.
type Row struct {
	Date           time.Time `yaml:"date" json:"date"`
	PriceFactor    float64   `yaml:"price_factor" json:"price_factor"`
	SplitFactor    float64   `yaml:"split_factor" json:"split_factor"`
	ReferencePrice float64   `yaml:"reference_price" json:"reference_price"`
}

// PriceScaleFactor returns PriceFactor * SplitFactor.
func (r Row) PriceScaleFactor() float64 {
	return r.PriceFactor * r.SplitFactor
}

// File is the sorted factor table of one security.
type File struct {
	Permtick string
	// MinimumDate is the first date for which the factors are trustworthy.
	MinimumDate optional.Option[time.Time]
	rows        []Row
}

// NewFile sorts the rows by date and validates them.
func NewFile(permtick string, rows []Row, minimumDate optional.Option[time.Time]) (*File, error) {
	sorted := make([]Row, 0, len(rows))
	for _, row := range rows {
		if row.PriceFactor <= 0 || row.SplitFactor <= 0 {
			return nil, errors.Newf(errors.ErrCodeFactorFileInvalid, "factor file %s has non-positive factor on %s", permtick, row.Date.Format("2006-01-02"))
		}

		row.Date = utils.DateOf(row.Date)
		sorted = append(sorted, row)
	}

	slices.SortFunc(sorted, func(a, b Row) int { return a.Date.Compare(b.Date) })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Date.Equal(sorted[i-1].Date) {
			return nil, errors.Newf(errors.ErrCodeFactorFileInvalid, "factor file %s has duplicate date %s", permtick, sorted[i].Date.Format("2006-01-02"))
		}
	}

	return &File{Permtick: permtick, MinimumDate: minimumDate, rows: sorted}, nil
}

// Rows returns a copy of the sorted rows.
func (f *File) Rows() []Row {
	return slices.Clone(f.rows)
}

// rowFor returns the earliest row dated on or after date.
func (f *File) rowFor(date time.Time) (Row, bool) {
	key := utils.DateOf(date)
	i := sort.Search(len(f.rows), func(i int) bool { return !f.rows[i].Date.Before(key) })

	if i == len(f.rows) {
		return Row{}, false //nolint:exhaustruct
	}

	return f.rows[i], true
}

// PriceScaleFactor returns the factor that converts a raw price on date into
// the given normalization mode.
func (f *File) PriceScaleFactor(date time.Time, mode types.DataNormalizationMode) float64 {
	row, ok := f.rowFor(date)
	if !ok {
		return 1
	}

	switch mode {
	case types.NormalizationRaw:
		return 1
	case types.NormalizationSplitAdjusted, types.NormalizationTotalReturn:
		return row.SplitFactor
	default:
		return row.PriceScaleFactor()
	}
}

// indexOf returns the index of the row dated exactly on date.
func (f *File) indexOf(date time.Time) int {
	key := utils.DateOf(date)
	i := sort.Search(len(f.rows), func(i int) bool { return !f.rows[i].Date.Before(key) })

	if i < len(f.rows) && f.rows[i].Date.Equal(key) {
		return i
	}

	return -1
}

// HasSplitEventOnNextTradingDay reports whether the row dated on date
// announces a split on the following trading day. splitFactor is the ratio of
// new to old price (0.5 for a 2:1 split).
func (f *File) HasSplitEventOnNextTradingDay(date time.Time) (splitFactor float64, referencePrice float64, ok bool) {
	i := f.indexOf(date)
	if i < 0 || i >= len(f.rows)-1 {
		return 0, 0, false
	}

	this, next := f.rows[i], f.rows[i+1]
	if this.SplitFactor == next.SplitFactor {
		return 0, 0, false
	}

	return this.SplitFactor / next.SplitFactor, this.ReferencePrice, true
}

// HasDividendEventOnNextTradingDay reports whether the row dated on date
// announces a dividend on the following trading day.
func (f *File) HasDividendEventOnNextTradingDay(date time.Time) (priceFactorRatio float64, referencePrice float64, ok bool) {
	i := f.indexOf(date)
	if i < 0 || i >= len(f.rows)-1 {
		return 0, 0, false
	}

	this, next := f.rows[i], f.rows[i+1]
	if this.PriceFactor == next.PriceFactor {
		return 0, 0, false
	}

	return this.PriceFactor / next.PriceFactor, this.ReferencePrice, true
}

// DividendDistribution computes the cash distribution implied by a price
// factor ratio, rounded to cents.
func DividendDistribution(close, priceFactorRatio float64) float64 {
	return math.Round((close-close*priceFactorRatio)*100) / 100
}
