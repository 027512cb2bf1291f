package source

import (
	"encoding/csv"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

const fileDateLayout = "20060102"

// isRemote reports whether root is an http(s) base URL.
func isRemote(root string) bool {
	return strings.HasPrefix(root, "http://") || strings.HasPrefix(root, "https://")
}

// locate joins parts under root and picks the transport. Remote roots are
// polled in live mode.
func locate(root string, live bool, format Format, parts ...string) SubscriptionDataSource {
	if isRemote(root) {
		transport := TransportRemoteFile
		if live {
			transport = TransportRest
		}

		return SubscriptionDataSource{
			Source:    strings.TrimSuffix(root, "/") + "/" + path.Join(parts...),
			Transport: transport,
			Format:    format,
		}
	}

	return SubscriptionDataSource{
		Source:    filepath.Join(append([]string{root}, parts...)...),
		Transport: TransportLocalFile,
		Format:    format,
	}
}

func extension(format Format) string {
	if format == FormatParquet {
		return ".parquet"
	}

	return ".csv"
}

// splitLine splits a CSV line. Header and blank lines return nil.
func splitLine(line string) ([]string, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(line))
	reader.TrimLeadingSpace = true

	fields, err := reader.Read()
	if err != nil {
		return nil, err
	}

	// A header starts with a column name rather than a number.
	if first := fields[0]; first != "" && (first[0] < '0' || first[0] > '9') {
		return nil, nil
	}

	return fields, nil
}

func parseFloats(fields []string) ([]float64, error) {
	values := make([]float64, len(fields))

	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, err
		}

		values[i] = v
	}

	return values, nil
}

func parseError(config *types.SubscriptionDataConfig, line string, cause error) error {
	return errors.Wrapf(errors.ErrCodeParseFailed, cause, "failed to parse %s line %q", config.Kind, line)
}

// TradeBarFactory reads OHLCV bars.
//
// Intraday files hold one trading day each:
// <root>/<type>/<market>/<resolution>/<ticker>/<yyyyMMdd>_trade.csv with rows
// "millisecondsSinceMidnight,open,high,low,close,volume".
// Hourly and daily files hold the whole history: <root>/<type>/<market>/<resolution>/<ticker>.csv
// with rows "yyyyMMdd HH:mm,open,high,low,close,volume".
type TradeBarFactory struct {
	Root   string
	Format Format
}

var _ Factory = (*TradeBarFactory)(nil)

func (f *TradeBarFactory) Source(config *types.SubscriptionDataConfig, date time.Time, live bool) SubscriptionDataSource {
	ticker := strings.ToLower(config.TickerForLookup())
	securityType := strings.ToLower(string(config.Symbol.SecurityType))
	resolution := strings.ToLower(string(config.Resolution))
	format := f.Format

	if format == "" {
		format = FormatCSV
	}

	if isWholeHistory(config.Resolution) {
		return locate(f.Root, live, format, securityType, config.Symbol.Market, resolution, ticker+extension(format))
	}

	return locate(f.Root, live, format, securityType, config.Symbol.Market, resolution, ticker, date.Format(fileDateLayout)+"_trade"+extension(format))
}

func (f *TradeBarFactory) Parse(config *types.SubscriptionDataConfig, line string, date time.Time, _ bool) (types.BaseData, error) {
	fields, err := splitLine(line)
	if err != nil {
		return nil, parseError(config, line, err)
	}

	if fields == nil {
		return nil, nil
	}

	if len(fields) < 6 {
		return nil, errors.Newf(errors.ErrCodeParseFailed, "tradebar line %q: expected 6 columns, got %d", line, len(fields))
	}

	start, err := parseBarTime(config, fields[0], date)
	if err != nil {
		return nil, parseError(config, line, err)
	}

	values, err := parseFloats(fields[1:6])
	if err != nil {
		return nil, parseError(config, line, err)
	}

	return &types.TradeBar{
		Symbol: config.Symbol,
		Time:   start,
		Period: config.Resolution.Duration(),
		Open:   values[0],
		High:   values[1],
		Low:    values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

func isWholeHistory(resolution types.Resolution) bool {
	return resolution == types.ResolutionHour || resolution == types.ResolutionDaily
}

// parseBarTime reads either milliseconds since midnight of date or a full
// "yyyyMMdd HH:mm" stamp, both in the data time zone.
func parseBarTime(config *types.SubscriptionDataConfig, field string, date time.Time) (time.Time, error) {
	loc := config.DataLocation()

	if isWholeHistory(config.Resolution) {
		layout := "20060102 15:04"
		if len(field) == len(fileDateLayout) {
			layout = fileDateLayout
		}

		return time.ParseInLocation(layout, field, loc)
	}

	ms, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	return utils.StartOfDay(date, loc).Add(time.Duration(ms) * time.Millisecond), nil
}

// TickFactory reads trade ticks from
// <root>/<type>/<market>/tick/<ticker>/<yyyyMMdd>_trade.csv with rows
// "millisecondsSinceMidnight,price,quantity".
type TickFactory struct {
	Root string
}

var _ Factory = (*TickFactory)(nil)

func (f *TickFactory) Source(config *types.SubscriptionDataConfig, date time.Time, live bool) SubscriptionDataSource {
	return locate(f.Root, live, FormatCSV,
		strings.ToLower(string(config.Symbol.SecurityType)),
		config.Symbol.Market,
		"tick",
		strings.ToLower(config.TickerForLookup()),
		date.Format(fileDateLayout)+"_trade.csv",
	)
}

func (f *TickFactory) Parse(config *types.SubscriptionDataConfig, line string, date time.Time, _ bool) (types.BaseData, error) {
	fields, err := splitLine(line)
	if err != nil {
		return nil, parseError(config, line, err)
	}

	if fields == nil {
		return nil, nil
	}

	if len(fields) < 3 {
		return nil, errors.Newf(errors.ErrCodeParseFailed, "tick line %q: expected 3 columns, got %d", line, len(fields))
	}

	ms, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return nil, parseError(config, line, err)
	}

	values, err := parseFloats(fields[1:3])
	if err != nil {
		return nil, parseError(config, line, err)
	}

	return &types.Tick{
		Symbol:   config.Symbol,
		Time:     utils.StartOfDay(date, config.DataLocation()).Add(time.Duration(ms) * time.Millisecond),
		Price:    values[0],
		Quantity: values[1],
		BidPrice: 0,
		AskPrice: 0,
	}, nil
}

// CoarseFactory reads daily coarse universe files from
// <root>/equity/<market>/fundamental/coarse/<yyyyMMdd>.csv with rows
// "ticker,close,volume,dollarVolume,hasFundamentalData,priceFactor,splitFactor".
type CoarseFactory struct {
	Root string
}

var _ Factory = (*CoarseFactory)(nil)

func (f *CoarseFactory) Source(config *types.SubscriptionDataConfig, date time.Time, live bool) SubscriptionDataSource {
	return locate(f.Root, live, FormatCSV, "equity", config.Symbol.Market, "fundamental", "coarse", date.Format(fileDateLayout)+".csv")
}

func (f *CoarseFactory) Parse(config *types.SubscriptionDataConfig, line string, date time.Time, _ bool) (types.BaseData, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return nil, nil
	}

	fields := strings.Split(line, ",")
	if len(fields) < 7 {
		return nil, errors.Newf(errors.ErrCodeParseFailed, "coarse line %q: expected 7 columns, got %d", line, len(fields))
	}

	prices, err := parseFloats(fields[1:4])
	if err != nil {
		return nil, parseError(config, line, err)
	}

	hasFundamentals, err := strconv.ParseBool(strings.TrimSpace(fields[4]))
	if err != nil {
		return nil, parseError(config, line, err)
	}

	factors, err := parseFloats(fields[5:7])
	if err != nil {
		return nil, parseError(config, line, err)
	}

	return &types.CoarseFundamental{
		Symbol:             types.NewSymbol(strings.TrimSpace(fields[0]), types.SecurityTypeEquity, config.Symbol.Market),
		Time:               utils.StartOfDay(date, config.ExchangeLocation()),
		Price:              prices[0],
		Volume:             prices[1],
		DollarVolume:       prices[2],
		HasFundamentalData: hasFundamentals,
		PriceFactor:        factors[0],
		SplitFactor:        factors[1],
	}, nil
}

// CustomFactory reads user data from <root>/custom/<kind>/<ticker>.csv with
// rows "RFC3339 time,value[,name=value...]". Extra named columns land in
// CustomData.Fields.
type CustomFactory struct {
	Root string
	Kind types.DataKind
}

var _ Factory = (*CustomFactory)(nil)

func (f *CustomFactory) Source(config *types.SubscriptionDataConfig, _ time.Time, live bool) SubscriptionDataSource {
	return locate(f.Root, live, FormatCSV, "custom", strings.ToLower(string(f.Kind)), strings.ToLower(config.TickerForLookup())+".csv")
}

func (f *CustomFactory) Parse(config *types.SubscriptionDataConfig, line string, _ time.Time, _ bool) (types.BaseData, error) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' || strings.HasPrefix(strings.ToLower(line), "time") {
		return nil, nil
	}

	fields := strings.Split(line, ",")
	if len(fields) < 2 {
		return nil, errors.Newf(errors.ErrCodeParseFailed, "custom line %q: expected at least 2 columns", line)
	}

	at, err := time.Parse(time.RFC3339, strings.TrimSpace(fields[0]))
	if err != nil {
		return nil, parseError(config, line, err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return nil, parseError(config, line, err)
	}

	extra := make(map[string]float64)

	for _, field := range fields[2:] {
		name, raw, ok := strings.Cut(field, "=")
		if !ok {
			return nil, errors.Newf(errors.ErrCodeParseFailed, "custom line %q: field %q is not name=value", line, field)
		}

		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, parseError(config, line, err)
		}

		extra[strings.TrimSpace(name)] = v
	}

	return &types.CustomData{
		Symbol:  config.Symbol,
		Kind:    f.Kind,
		Time:    at,
		EndTime: at,
		Value:   value,
		Fields:  extra,
	}, nil
}
