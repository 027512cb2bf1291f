package datafeed

import (
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/scmhub/calendar"
)

// marketMIC maps markets to exchange calendars. Markets not listed trade on
// a fallback schedule.
var marketMIC = map[string]string{
	types.MarketUSA: "xnys",
	types.MarketCME: "xcme",
}

// TradingCalendar answers trading-day questions for one market.
type TradingCalendar struct {
	cal *calendar.Calendar
	loc *time.Location
	// everyDay marks markets that never close, such as crypto.
	everyDay bool
}

// NewTradingCalendar returns the calendar of market. Unknown markets fall
// back to Monday to Friday in UTC; crypto markets trade every day.
func NewTradingCalendar(market string) *TradingCalendar {
	if market == types.MarketBinance {
		return &TradingCalendar{cal: nil, loc: time.UTC, everyDay: true}
	}

	if mic, ok := marketMIC[market]; ok {
		if cal := calendar.GetCalendar(mic); cal != nil {
			return &TradingCalendar{cal: cal, loc: cal.Loc, everyDay: false}
		}
	}

	return &TradingCalendar{cal: nil, loc: time.UTC, everyDay: false}
}

// Location is the exchange time zone.
func (c *TradingCalendar) Location() *time.Location {
	return c.loc
}

// IsTradingDay reports whether the exchange trades on the calendar date of t.
func (c *TradingCalendar) IsTradingDay(t time.Time) bool {
	t = t.In(c.loc)

	if c.everyDay {
		return true
	}

	if c.cal == nil {
		return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
	}

	return c.cal.IsBusinessDay(t)
}

// IsOpen reports whether the market is open at t.
func (c *TradingCalendar) IsOpen(t time.Time) bool {
	if c.cal == nil {
		return c.IsTradingDay(t)
	}

	return c.cal.IsOpen(t.In(c.loc))
}

// TradeableDates lists the trading days between start and end inclusive, as
// midnight in the exchange time zone.
func (c *TradingCalendar) TradeableDates(start, end time.Time) []time.Time {
	first := utils.StartOfDay(start.In(c.loc), c.loc)
	last := utils.StartOfDay(end.In(c.loc), c.loc)

	var dates []time.Time

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		// noon avoids DST edges when asking the calendar
		if c.IsTradingDay(day.Add(12 * time.Hour)) {
			dates = append(dates, day)
		}
	}

	return dates
}
