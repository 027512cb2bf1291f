package datafeed

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/datafeed/factor"
	"github.com/rxtech-lab/argo-engine/internal/datafeed/source"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// ErrNoData is returned by live streams that have nothing new yet. The
// stream is still alive and should be polled again.
var ErrNoData = errors.New(errors.ErrCodeDataNotFound, "no data available yet")

// OnInvalidConfigurationCallback is called when a subscription can never
// produce data, for example because its data kind is unknown.
type OnInvalidConfigurationCallback func(config types.SubscriptionDataConfig, err error)

// OnDownloadFailedCallback is called when a remote source could not be fetched.
// The date is skipped.
type OnDownloadFailedCallback func(config types.SubscriptionDataConfig, src source.SubscriptionDataSource, err error)

// OnReaderErrorCallback is called for parse failures and local read failures.
type OnReaderErrorCallback func(config types.SubscriptionDataConfig, err error)

// OnStartDateLimitedCallback is called when the factor file cannot adjust
// prices as early as the requested start.
type OnStartDateLimitedCallback func(config types.SubscriptionDataConfig, requested, limited time.Time)

// ReaderCallbacks receive the reader's non-fatal problems. Nil callbacks are skipped.
type ReaderCallbacks struct {
	OnInvalidConfiguration *OnInvalidConfigurationCallback
	OnDownloadFailed       *OnDownloadFailedCallback
	OnReaderError          *OnReaderErrorCallback
	OnStartDateLimited     *OnStartDateLimitedCallback
}

// ReaderOptions configures a SubscriptionDataReader.
type ReaderOptions struct {
	Config types.SubscriptionDataConfig
	// PeriodStart and PeriodFinish bound the emitted data, in any time zone.
	PeriodStart  time.Time
	PeriodFinish time.Time
	// Dates are the tradeable dates of the subscription, ascending, at midnight
	// exchange time. They may start before PeriodStart so the reader can look
	// at the preceding trading day.
	Dates []time.Time
	// Resolver is optional; without it prices are never adjusted.
	Resolver *factor.Resolver
	Registry *source.Registry
	Opener   source.Opener
	Live     bool
	// Clock supplies "today" in live mode.
	Clock     utils.Clock
	Callbacks ReaderCallbacks
	Logger    *logger.Logger
}

// SubscriptionDataReader turns one subscription's raw files into a clean,
// time ordered, normalized sequence of points. It is not safe for concurrent use.
type SubscriptionDataReader struct {
	opts   ReaderOptions
	config types.SubscriptionDataConfig
	logger *logger.Logger

	initialized bool
	factory     source.Factory
	mapFile     *factor.MapFile
	factorFile  *factor.File

	periodStart  time.Time
	periodFinish time.Time

	dateIndex   int
	currentDate time.Time
	delisting   time.Time

	src     source.SubscriptionDataSource
	next    func() (types.BaseData, error, bool)
	stop    func()
	hasOpen bool

	scale          float64
	sumOfDividends float64
	lastRawClose   float64

	previous     types.BaseData
	lastEmitted  types.BaseData
	hasPrevious  bool
	previousEnd  time.Time
	pending      []types.BaseData
	endOfStream  bool
	delistedSent bool
}

func NewSubscriptionDataReader(opts ReaderOptions) *SubscriptionDataReader {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}

	//nolint:exhaustruct
	return &SubscriptionDataReader{
		opts:         opts,
		config:       opts.Config,
		logger:       log.Named("reader").With(zap.String("subscription", opts.Config.Key().String())),
		periodStart:  opts.PeriodStart,
		periodFinish: opts.PeriodFinish,
		delisting:    utils.FarFuture,
		scale:        1,
	}
}

// Config returns the subscription config, with MappedTicker following renames.
func (r *SubscriptionDataReader) Config() types.SubscriptionDataConfig {
	return r.config
}

// Previous returns the last point seen before PeriodStart, if any.
func (r *SubscriptionDataReader) Previous() types.BaseData {
	return r.previous
}

// Close releases the open source, if any, and ends the stream.
func (r *SubscriptionDataReader) Close() {
	r.closeSource()
	r.endOfStream = true
	r.pending = nil
}

// All adapts the reader to a range-over-func sequence. Iteration stops at the
// end of the stream or on ctx cancellation; ErrNoData ends the sequence early.
func (r *SubscriptionDataReader) All(ctx context.Context) iter.Seq2[types.BaseData, error] {
	return func(yield func(types.BaseData, error) bool) {
		for {
			point, err := r.Next(ctx)
			if err == io.EOF || errors.Is(err, ErrNoData) {
				return
			}

			if !yield(point, err) || err != nil {
				return
			}
		}
	}
}

// Next returns the next point. It returns io.EOF once the stream has ended and
// ErrNoData in live mode when nothing new is available.
func (r *SubscriptionDataReader) Next(ctx context.Context) (types.BaseData, error) {
	if !r.initialized {
		r.initialize()
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(r.pending) > 0 {
			point := r.pending[0]
			r.pending = r.pending[1:]

			return point, nil
		}

		if r.endOfStream {
			return nil, io.EOF
		}

		if !r.hasOpen {
			if r.opts.Live {
				if !r.refreshLive(ctx) {
					return nil, ErrNoData
				}

				continue
			}

			if !r.advanceDate(ctx, time.Time{}) {
				r.endOfStream = true
			}

			continue
		}

		point, err, ok := r.next()
		if !ok {
			r.closeSource()

			if r.opts.Live {
				return nil, ErrNoData
			}

			continue
		}

		if err != nil {
			r.handleReadError(err)

			if r.opts.Live && !r.hasOpen && !r.endOfStream {
				return nil, ErrNoData
			}

			continue
		}

		if emitted := r.accept(ctx, point); emitted != nil {
			return emitted, nil
		}
	}
}

func (r *SubscriptionDataReader) initialize() {
	r.initialized = true

	factory, err := r.opts.Registry.Lookup(r.config.Kind)
	if err != nil {
		r.logger.Error("Invalid subscription configuration", zap.Error(err))

		if cb := r.opts.Callbacks.OnInvalidConfiguration; cb != nil {
			(*cb)(r.config, err)
		}

		r.endOfStream = true

		return
	}

	r.factory = factory

	if r.opts.Resolver == nil || r.config.IsCustomData || !factor.HasFactorFiles(r.config.Symbol) {
		return
	}

	startDate := r.periodStart.In(r.config.ExchangeLocation())

	mapFile, err := r.opts.Resolver.MapFile(r.config.Symbol, startDate)
	if err != nil {
		r.logger.Warn("Failed to resolve map file", zap.Error(err))
	}

	permtick := r.config.Symbol.Ticker

	if mapFile != nil {
		r.mapFile = mapFile
		r.delisting = utils.StartOfDay(mapFile.DelistingDate(), r.config.ExchangeLocation())
		permtick = mapFile.Permtick

		if ticker := mapFile.MappedTicker(startDate); ticker != "" {
			r.config.MappedTicker = ticker
		}
	}

	factorFile, err := r.opts.Resolver.FactorFile(r.config.Symbol, permtick)
	if err != nil {
		r.logger.Warn("Failed to load factor file", zap.Error(err))
	}

	if factorFile == nil {
		return
	}

	r.factorFile = factorFile

	if factorFile.MinimumDate.IsSome() {
		minimum := utils.StartOfDay(factorFile.MinimumDate.Unwrap(), r.config.ExchangeLocation())
		if r.periodStart.Before(minimum) {
			r.logger.Warn("Start date limited by factor file",
				zap.Time("requested", r.periodStart),
				zap.Time("limited", minimum),
			)

			if cb := r.opts.Callbacks.OnStartDateLimited; cb != nil {
				(*cb)(r.config, r.periodStart, minimum)
			}

			r.periodStart = minimum
		}
	}
}

// advanceDate moves to the next tradeable date, emitting the day's corporate
// actions. With a non-zero until it stops at the first date on or after
// until without opening new sources. It reports false when no dates remain.
func (r *SubscriptionDataReader) advanceDate(ctx context.Context, until time.Time) bool {
	dates := r.opts.Dates
	startDate := utils.DateOf(r.periodStart.In(r.config.ExchangeLocation()))
	finishDate := utils.DateOf(r.periodFinish.In(r.config.ExchangeLocation()))

	for r.dateIndex < len(dates) {
		date := dates[r.dateIndex]
		r.dateIndex++

		if utils.DateOf(date).Before(startDate) {
			continue
		}

		if utils.DateOf(date).After(finishDate) {
			return false
		}

		if r.mapFile != nil {
			if date.After(r.delisting) {
				r.emitDelisted(date)

				return false
			}

			if !r.mapFile.HasData(date) {
				continue
			}
		}

		r.enterDate(date)

		if !until.IsZero() {
			if date.Before(until) {
				continue
			}

			return true
		}

		src := r.factory.Source(&r.config, date, r.opts.Live)
		if src.IsZero() {
			continue
		}

		if src == r.src && src.Transport != source.TransportRest {
			// The same file covers this date and was already read.
			if r.hasOpen {
				return true
			}

			continue
		}

		r.open(ctx, src, date)

		return true
	}

	return false
}

// enterDate applies the daily bookkeeping for date: ticker changes, split and
// dividend announcements, delisting warnings and the new scale factor.
func (r *SubscriptionDataReader) enterDate(date time.Time) {
	previousDate := r.currentDate
	if r.dateIndex >= 2 {
		previousDate = r.opts.Dates[r.dateIndex-2]
	}

	r.currentDate = date
	start := utils.StartOfDay(date, r.config.ExchangeLocation())

	if r.mapFile != nil {
		if ticker := r.mapFile.MappedTicker(date); ticker != "" && ticker != r.config.MappedTicker {
			r.pending = append(r.pending, &types.SymbolChangedEvent{
				Symbol:    r.config.Symbol,
				Time:      start,
				OldTicker: r.config.MappedTicker,
				NewTicker: ticker,
			})
			r.config.MappedTicker = ticker
		}

		if utils.SameDate(date, r.delisting) {
			r.pending = append(r.pending, &types.Delisting{
				Symbol: r.config.Symbol,
				Time:   start,
				Price:  r.lastRawClose,
				Type:   types.DelistingWarning,
			})
		}
	}

	if r.factorFile == nil {
		return
	}

	oldSum := r.sumOfDividends

	if !previousDate.IsZero() {
		r.emitCorporateActions(previousDate, start)
	}

	r.updateScale(date, start, oldSum)
}

func (r *SubscriptionDataReader) emitCorporateActions(previousDate, start time.Time) {
	if ratio, reference, ok := r.factorFile.HasDividendEventOnNextTradingDay(previousDate); ok {
		if reference == 0 {
			reference = r.lastRawClose
		}

		distribution := factor.DividendDistribution(reference, ratio)
		if r.config.NormalizationMode == types.NormalizationTotalReturn {
			r.sumOfDividends += distribution
		}

		r.pending = append(r.pending, &types.Dividend{
			Symbol:         r.config.Symbol,
			Time:           start,
			Distribution:   distribution,
			ReferencePrice: reference,
		})
	}

	if ratio, reference, ok := r.factorFile.HasSplitEventOnNextTradingDay(previousDate); ok {
		if reference == 0 {
			reference = r.lastRawClose
		}

		r.pending = append(r.pending, &types.Split{
			Symbol:         r.config.Symbol,
			Time:           start,
			SplitFactor:    ratio,
			ReferencePrice: reference,
			Type:           types.SplitOccurred,
		})
	}
}

// updateScale recomputes the price scale factor for date. When the factor or
// the dividend sum changes, a bar already handed out but ending after the
// start of date is rescaled in place so it matches the new regime. oldSum is
// the dividend sum before the dividends of date were credited.
func (r *SubscriptionDataReader) updateScale(date, start time.Time, oldSum float64) {
	oldScale := r.scale
	newScale := r.factorFile.PriceScaleFactor(date, r.config.NormalizationMode)

	r.scale = newScale

	unchanged := newScale == oldScale && r.sumOfDividends == oldSum
	if unchanged || r.lastEmitted == nil || !r.lastEmitted.GetEndTime().After(start) {
		return
	}

	scalable, ok := r.lastEmitted.(types.Scalable)
	if !ok {
		return
	}

	mode := r.config.NormalizationMode
	scalable.Scale(func(price float64) float64 {
		raw := factor.Denormalize(price, oldScale, oldSum, mode)

		return factor.Normalize(raw, newScale, r.sumOfDividends, mode)
	})

	r.logger.Debug("Rescaled bar spanning factor change",
		zap.Time("end_time", r.lastEmitted.GetEndTime()),
		zap.Float64("old_scale", oldScale),
		zap.Float64("new_scale", newScale),
		zap.Float64("dividends", r.sumOfDividends),
	)
}

func (r *SubscriptionDataReader) emitDelisted(date time.Time) {
	if r.delistedSent {
		r.endOfStream = true

		return
	}

	r.delistedSent = true
	r.endOfStream = true
	r.pending = append(r.pending, &types.Delisting{
		Symbol: r.config.Symbol,
		Time:   utils.StartOfDay(date, r.config.ExchangeLocation()),
		Price:  r.lastRawClose,
		Type:   types.DelistingDelisted,
	})
}

func (r *SubscriptionDataReader) open(ctx context.Context, src source.SubscriptionDataSource, date time.Time) {
	r.closeSource()

	r.src = src
	r.logger.Debug("Opening source", zap.String("source", src.Source), zap.Time("date", date))

	parse := func(line string) (types.BaseData, error) {
		return r.factory.Parse(&r.config, line, date, r.opts.Live)
	}

	reader, err := r.opts.Opener.Open(ctx, &r.config, src, parse)
	if err != nil {
		r.handleReadError(err)

		return
	}

	r.next, r.stop = iter.Pull2(reader)
	r.hasOpen = true
}

func (r *SubscriptionDataReader) closeSource() {
	if r.stop != nil {
		r.stop()
	}

	r.next = nil
	r.stop = nil
	r.hasOpen = false
}

// handleReadError routes a source error. Missing data is silent, download
// failures skip the date, parse failures skip the line.
func (r *SubscriptionDataReader) handleReadError(err error) {
	switch {
	case errors.IsCode(err, errors.ErrCodeDataNotFound):
		r.logger.Debug("No data for date", zap.String("source", r.src.Source))
		r.closeSource()
	case errors.IsCode(err, errors.ErrCodeDownloadFailed):
		r.logger.Warn("Download failed", zap.String("source", r.src.Source), zap.Error(err))

		if cb := r.opts.Callbacks.OnDownloadFailed; cb != nil {
			(*cb)(r.config, r.src, err)
		}

		r.closeSource()
	case errors.IsCode(err, errors.ErrCodeParseFailed):
		r.logger.Warn("Failed to parse line", zap.Error(err))

		if cb := r.opts.Callbacks.OnReaderError; cb != nil {
			(*cb)(r.config, err)
		}
	case errors.IsCode(err, errors.ErrCodeUnknownDataKind), errors.IsCode(err, errors.ErrCodeInvalidConfiguration):
		r.logger.Error("Invalid subscription configuration", zap.Error(err))

		if cb := r.opts.Callbacks.OnInvalidConfiguration; cb != nil {
			(*cb)(r.config, err)
		}

		r.closeSource()
		r.endOfStream = true
	default:
		r.logger.Warn("Failed to read source", zap.String("source", r.src.Source), zap.Error(err))

		if cb := r.opts.Callbacks.OnReaderError; cb != nil {
			(*cb)(r.config, err)
		}

		r.closeSource()
	}
}

// accept filters and normalizes a point. It returns the point to emit, or nil
// when the point was dropped.
func (r *SubscriptionDataReader) accept(ctx context.Context, point types.BaseData) types.BaseData {
	endTime := point.GetEndTime()

	if r.hasPrevious && r.isDuplicate(endTime) {
		return nil
	}

	if endTime.Before(r.periodStart) {
		r.previous = point
		r.hasPrevious = true
		r.previousEnd = endTime
		r.trackClose(point)

		return nil
	}

	if point.GetTime().After(r.periodFinish) {
		r.closeSource()
		r.endOfStream = true

		return nil
	}

	// Whole-history files run ahead of the date cursor; catch the cursor up so
	// the day's corporate actions and scale apply.
	pointDate := utils.StartOfDay(point.GetTime().In(r.config.ExchangeLocation()), r.config.ExchangeLocation())
	if !r.currentDate.IsZero() && pointDate.After(r.currentDate) && !r.opts.Live {
		if !r.advanceDate(ctx, pointDate) {
			r.closeSource()
			r.endOfStream = true

			return nil
		}
	}

	r.hasPrevious = true
	r.previousEnd = endTime
	r.trackClose(point)
	r.normalize(point)
	r.lastEmitted = point

	if len(r.pending) > 0 {
		r.pending = append(r.pending, point)

		return nil
	}

	return point
}

// isDuplicate applies the ordering rule: end times must increase, except that
// custom data may repeat one.
func (r *SubscriptionDataReader) isDuplicate(endTime time.Time) bool {
	if r.config.IsCustomData {
		return endTime.Before(r.previousEnd)
	}

	return !endTime.After(r.previousEnd)
}

func (r *SubscriptionDataReader) trackClose(point types.BaseData) {
	switch p := point.(type) {
	case *types.TradeBar:
		r.lastRawClose = p.Close
	case *types.Tick:
		r.lastRawClose = p.Price
	}
}

func (r *SubscriptionDataReader) normalize(point types.BaseData) {
	if r.factorFile == nil || r.config.NormalizationMode == types.NormalizationRaw {
		return
	}

	scalable, ok := point.(types.Scalable)
	if !ok {
		return
	}

	scale, dividends, mode := r.scale, r.sumOfDividends, r.config.NormalizationMode
	scalable.Scale(func(price float64) float64 {
		return factor.Normalize(price, scale, dividends, mode)
	})
}

// refreshLive checks today's source in live mode. It reports whether a
// source was opened.
func (r *SubscriptionDataReader) refreshLive(ctx context.Context) bool {
	if r.factory == nil {
		return false
	}

	loc := r.config.ExchangeLocation()
	today := utils.StartOfDay(r.opts.Clock.Now().In(loc), loc)

	if !today.Equal(r.currentDate) {
		r.currentDate = today
	}

	src := r.factory.Source(&r.config, today, true)
	if src.IsZero() {
		return false
	}

	if src == r.src && src.Transport != source.TransportRest {
		return false
	}

	r.open(ctx, src, today)

	return r.hasOpen
}
