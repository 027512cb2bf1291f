package factor

import (
	"strings"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/stretchr/testify/suite"
)

type MapFileTestSuite struct {
	suite.Suite
	file *MapFile
}

func TestMapFileSuite(t *testing.T) {
	suite.Run(t, new(MapFileTestSuite))
}

// GOOG listed in 2004, renamed to GOOGL in 2014, delisted in 2020.
func (suite *MapFileTestSuite) SetupTest() {
	file, err := NewMapFile("GOOG", []MapRow{
		{Date: date(2004, 8, 19), MappedTicker: "GOOG"},
		{Date: date(2014, 4, 2), MappedTicker: "GOOG"},
		{Date: date(2020, 6, 30), MappedTicker: "GOOGL"},
	})
	suite.Require().NoError(err)
	suite.file = file
}

func (suite *MapFileTestSuite) TestMappedTicker() {
	tests := []struct {
		name     string
		date     time.Time
		expected string
	}{
		{"before listing", date(2000, 1, 1), "GOOG"},
		{"on row date", date(2014, 4, 2), "GOOG"},
		{"after rename", date(2014, 4, 3), "GOOGL"},
		{"on delisting date", date(2020, 6, 30), "GOOGL"},
		{"past delisting", date(2020, 7, 1), ""},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			suite.Equal(tc.expected, suite.file.MappedTicker(tc.date))
		})
	}
}

func (suite *MapFileTestSuite) TestListingAndDelisting() {
	suite.Equal(date(2004, 8, 19), suite.file.FirstDate())
	suite.Equal(date(2020, 6, 30), suite.file.DelistingDate())
	suite.True(suite.file.IsDelisted())

	suite.True(suite.file.HasData(date(2010, 1, 1)))
	suite.True(suite.file.HasData(date(2020, 6, 30)))
	suite.False(suite.file.HasData(date(2004, 8, 18)))
	suite.False(suite.file.HasData(date(2020, 7, 1)))
}

func (suite *MapFileTestSuite) TestEmptyMapFile() {
	file, err := NewMapFile("EMPTY", nil)
	suite.Require().NoError(err)
	suite.Equal(utils.FarFuture, file.DelistingDate())
	suite.False(file.IsDelisted())
	suite.False(file.HasData(date(2020, 1, 1)))
	suite.Equal("", file.MappedTicker(date(2020, 1, 1)))
}

func (suite *MapFileTestSuite) TestActiveSecurityIsNotDelisted() {
	file, err := NewMapFile("SPY", []MapRow{
		{Date: date(1993, 1, 29), MappedTicker: "SPY"},
		{Date: utils.FarFuture, MappedTicker: "SPY"},
	})
	suite.Require().NoError(err)
	suite.False(file.IsDelisted())
	suite.True(file.HasData(date(2024, 1, 2)))
}

func (suite *MapFileTestSuite) TestRejectsEmptyTicker() {
	_, err := NewMapFile("BAD", []MapRow{{Date: date(2020, 1, 1), MappedTicker: ""}})
	suite.Error(err)
}

func (suite *MapFileTestSuite) TestParseMapFile() {
	input := "20040819,goog\n20140402,GOOG\n20200630,googl\n"

	file, err := ParseMapFile("GOOG", strings.NewReader(input))
	suite.Require().NoError(err)
	suite.Equal(suite.file.Rows(), file.Rows())
}
