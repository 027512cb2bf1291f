package datafeed

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/stretchr/testify/suite"
)

type CalendarTestSuite struct {
	suite.Suite
}

func TestCalendarSuite(t *testing.T) {
	suite.Run(t, new(CalendarTestSuite))
}

func (suite *CalendarTestSuite) TestUSAHolidays() {
	cal := NewTradingCalendar(types.MarketUSA)
	suite.Equal("America/New_York", cal.Location().String())

	noon := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 12, 0, 0, 0, cal.Location())
	}

	tests := []struct {
		name     string
		date     time.Time
		expected bool
	}{
		{name: "new year", date: noon(2020, 1, 1), expected: false},
		{name: "first session", date: noon(2020, 1, 2), expected: true},
		{name: "saturday", date: noon(2020, 1, 4), expected: false},
		{name: "independence day", date: noon(2020, 7, 3), expected: false},
		{name: "christmas", date: noon(2020, 12, 25), expected: false},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, cal.IsTradingDay(tc.date))
		})
	}
}

func (suite *CalendarTestSuite) TestTradeableDates() {
	cal := NewTradingCalendar(types.MarketUSA)
	loc := cal.Location()

	dates := cal.TradeableDates(time.Date(2019, 12, 31, 0, 0, 0, 0, loc), time.Date(2020, 1, 6, 0, 0, 0, 0, loc))

	expected := []time.Time{
		time.Date(2019, 12, 31, 0, 0, 0, 0, loc),
		time.Date(2020, 1, 2, 0, 0, 0, 0, loc),
		time.Date(2020, 1, 3, 0, 0, 0, 0, loc),
		time.Date(2020, 1, 6, 0, 0, 0, 0, loc),
	}
	suite.Equal(expected, dates)
}

func (suite *CalendarTestSuite) TestUSAOpenHours() {
	cal := NewTradingCalendar(types.MarketUSA)
	loc := cal.Location()

	suite.True(cal.IsOpen(time.Date(2020, 1, 2, 10, 0, 0, 0, loc)))
	suite.False(cal.IsOpen(time.Date(2020, 1, 2, 7, 45, 0, 0, loc)))
	suite.False(cal.IsOpen(time.Date(2020, 1, 4, 10, 0, 0, 0, loc)))
}

func (suite *CalendarTestSuite) TestCryptoTradesEveryDay() {
	cal := NewTradingCalendar(types.MarketBinance)

	dates := cal.TradeableDates(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 7, 0, 0, 0, 0, time.UTC))
	suite.Len(dates, 7)
	suite.True(cal.IsOpen(time.Date(2020, 1, 4, 3, 0, 0, 0, time.UTC)))
}

func (suite *CalendarTestSuite) TestUnknownMarketFallsBackToWeekdays() {
	cal := NewTradingCalendar(types.MarketOanda)

	suite.Equal(time.UTC, cal.Location())
	suite.True(cal.IsTradingDay(time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)))
	suite.False(cal.IsTradingDay(time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC)))

	dates := cal.TradeableDates(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2020, 1, 7, 0, 0, 0, 0, time.UTC))
	suite.Len(dates, 5)
}
