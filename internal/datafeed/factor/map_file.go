package factor

import (
	"slices"
	"sort"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// MapRow maps every date up to and including Date to MappedTicker.
type MapRow struct {
	Date         time.Time `yaml:"date" json:"date"`
	MappedTicker string    `yaml:"mapped_ticker" json:"mapped_ticker"`
}

// MapFile is the ticker history of one security. The first row is the
// listing date and the last row the delisting date.
type MapFile struct {
	Permtick string
	rows     []MapRow
}

// NewMapFile sorts and validates the rows.
func NewMapFile(permtick string, rows []MapRow) (*MapFile, error) {
	sorted := make([]MapRow, 0, len(rows))
	for _, row := range rows {
		if row.MappedTicker == "" {
			return nil, errors.Newf(errors.ErrCodeMapFileInvalid, "map file %s has empty ticker on %s", permtick, row.Date.Format("2006-01-02"))
		}

		row.Date = utils.DateOf(row.Date)
		sorted = append(sorted, row)
	}

	slices.SortFunc(sorted, func(a, b MapRow) int { return a.Date.Compare(b.Date) })

	return &MapFile{Permtick: permtick, rows: sorted}, nil
}

// Rows returns a copy of the sorted rows.
func (m *MapFile) Rows() []MapRow {
	return slices.Clone(m.rows)
}

// FirstDate is the first date the security has data.
func (m *MapFile) FirstDate() time.Time {
	if len(m.rows) == 0 {
		return time.Time{}
	}

	return m.rows[0].Date
}

// DelistingDate is the last date of the map file, or FarFuture for an empty file.
func (m *MapFile) DelistingDate() time.Time {
	if len(m.rows) == 0 {
		return utils.FarFuture
	}

	return m.rows[len(m.rows)-1].Date
}

// IsDelisted reports whether the delisting date is a real date rather than the open-ended marker.
func (m *MapFile) IsDelisted() bool {
	return m.DelistingDate().Before(utils.FarFuture)
}

// MappedTicker returns the ticker in use on date, or "" when the date is past
// the last row.
func (m *MapFile) MappedTicker(date time.Time) string {
	key := utils.DateOf(date)
	i := sort.Search(len(m.rows), func(i int) bool { return !m.rows[i].Date.Before(key) })

	if i == len(m.rows) {
		return ""
	}

	return m.rows[i].MappedTicker
}

// HasData reports whether date falls between listing and delisting.
func (m *MapFile) HasData(date time.Time) bool {
	if len(m.rows) == 0 {
		return false
	}

	key := utils.DateOf(date)

	return !key.Before(m.FirstDate()) && !key.After(m.DelistingDate())
}
