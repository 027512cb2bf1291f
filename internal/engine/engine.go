package engine

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-engine/internal/brokerage"
	"github.com/rxtech-lab/argo-engine/internal/datafeed"
	"github.com/rxtech-lab/argo-engine/internal/datafeed/factor"
	"github.com/rxtech-lab/argo-engine/internal/datafeed/live"
	"github.com/rxtech-lab/argo-engine/internal/datafeed/source"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/transactions"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/universe"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

const exitTimeout = 5 * time.Second

// ContractProvider lists the tradable contracts of an option or futures
// chain at a point in time.
type ContractProvider interface {
	Contracts(ctx context.Context, underlying types.Symbol, utc time.Time) ([]types.Symbol, error)
}

// OnRunStartCallback is called once the algorithm is initialized.
type OnRunStartCallback func(runID string, start, end time.Time) error

// OnSliceCallback is called after each slice has been processed.
type OnSliceCallback func(slice *datafeed.TimeSlice) error

// OnRunEndCallback is called with the final statistics.
type OnRunEndCallback func(stats Statistics)

type Callbacks struct {
	OnRunStart *OnRunStartCallback
	OnSlice    *OnSliceCallback
	OnRunEnd   *OnRunEndCallback
}

// Options carries the optional collaborators of an Engine.
type Options struct {
	Fine      universe.FineFundamentalProvider
	Contracts ContractProvider
	Callbacks Callbacks
	Logger    *logger.Logger
}

// Engine drives an algorithm over synchronized time slices, routing its
// orders through the transaction handler and the simulated brokerage.
type Engine struct {
	config    Config
	algorithm Algorithm
	opts      Options
	api       *API

	clock        utils.Clock
	manualClock  *utils.ManualClock
	start        time.Time
	end          time.Time
	dataStart    time.Time
	warmingUp    atomic.Bool
	lastSelected time.Time
	lastEquity   time.Time

	securities   *securities.Manager
	cashBook     *securities.CashBook
	portfolio    *securities.Portfolio
	synchronizer *datafeed.Synchronizer
	data         *datafeed.DataManager
	selection    *universe.SelectionEngine
	manual       *universe.Universe
	universes    []*universe.Universe
	brokerage    *brokerage.BacktestingBrokerage
	transactions *transactions.Handler
	feed         *live.WebsocketFeed
	factors      *factor.DuckDBProvider

	results *ResultsStore
	stats   *StatsTracker
	runID   string

	logger *logger.Logger
}

// New validates config and wires the engine components.
func New(config Config, algorithm Algorithm, opts Options) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}

	//nolint:exhaustruct
	e := &Engine{
		config:    config,
		algorithm: algorithm,
		opts:      opts,
		logger:    opts.Logger.Named("engine"),
	}
	e.api = &API{engine: e}

	isLive := config.Mode == ModePaper

	if isLive {
		e.clock = utils.RealClock{}
		e.start = e.clock.Now().UTC()
		e.end = utils.FarFuture
		e.dataStart = e.start
	} else {
		e.start = config.StartTime.Unwrap().UTC()
		e.end = config.EndTime.Unwrap().UTC()
		e.dataStart = e.start.Add(-config.WarmUp)
		e.manualClock = utils.NewManualClock(e.dataStart)
		e.clock = e.manualClock
	}

	e.warmingUp.Store(config.WarmUp > 0)

	resolver, err := e.factorResolver()
	if err != nil {
		return nil, err
	}

	format := config.DataFormat
	if format == "" {
		format = source.FormatCSV
	}

	registry := source.NewDefaultRegistry(config.DataRoot)
	registry.Register(types.DataKindTradeBar, &source.TradeBarFactory{Root: config.DataRoot, Format: format})

	newStream := datafeed.NewReaderStreamFactory(datafeed.ReaderStreamOptions{
		End:       e.end,
		Resolver:  resolver,
		Registry:  registry,
		Opener:    source.NewReaderFactory(config.Download, opts.Logger),
		Live:      isLive,
		Clock:     e.clock,
		Callbacks: e.readerCallbacks(),
		Logger:    opts.Logger,
	})

	if isLive {
		e.feed = live.NewWebsocketFeed(config.Live, opts.Logger)
		newStream = e.feed.StreamFactory(newStream)
	}

	e.synchronizer = datafeed.NewSynchronizer(datafeed.SynchronizerOptions{
		Live:         isLive,
		Clock:        e.clock,
		PollInterval: 0,
		Logger:       opts.Logger,
	})
	e.data = datafeed.NewDataManager(e.synchronizer, newStream, opts.Logger)

	e.securities = securities.NewManager(nil)
	e.cashBook = securities.NewCashBook(config.AccountCurrency)
	e.portfolio = securities.NewPortfolio(e.securities, e.cashBook, opts.Logger)
	e.brokerage = brokerage.NewBacktestingBrokerage(e.securities, e.cashBook, config.Brokerage, brokerage.ImmediateFillModel{}, opts.Logger)

	onOrderEvent := transactions.OnOrderEventCallback(e.handleOrderEvent)
	e.transactions = transactions.NewHandler(transactions.Options{
		Brokerage:       e.brokerage,
		Model:           config.Brokerage,
		Portfolio:       e.portfolio,
		Clock:           e.clock,
		Calendar:        datafeed.NewTradingCalendar(types.MarketUSA),
		Live:            isLive,
		IsWarmingUp:     e.warmingUp.Load,
		QueueSize:       config.Transactions.QueueSize,
		EventBufferSize: 0,
		BusyTimeout:     config.Transactions.BusyTimeout,
		Callbacks: transactions.Callbacks{
			OnOrderEvent:       &onOrderEvent,
			OnBrokerageMessage: nil,
			OnAccountChanged:   nil,
		},
		Logger: opts.Logger,
	})

	e.selection = universe.NewSelectionEngine(universe.Options{
		Securities:    e.securities,
		CashBook:      e.cashBook,
		Subscriptions: e.data,
		Orders:        e.transactions,
		Fine:          opts.Fine,
		Workers:       0,
		Logger:        opts.Logger,
	})
	e.manual = universe.NewUserDefinedUniverse("manual", config.Universe, nil)

	e.stats = NewStatsTracker(opts.Logger)

	if config.ResultsFolder != "" {
		e.results, err = NewResultsStore(opts.Logger)
		if err != nil {
			e.closeFactors()

			return nil, err
		}
	}

	return e, nil
}

func (e *Engine) factorResolver() (*factor.Resolver, error) {
	if e.config.FactorDatabase != "" {
		provider, err := factor.NewDuckDBProvider(e.config.FactorDatabase, e.opts.Logger)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeEngineInitFailed, "failed to open factor database", err)
		}

		e.factors = provider

		return factor.NewResolver(provider, provider), nil
	}

	provider := factor.NewDiskProvider(e.config.factorRoot())

	return factor.NewResolver(provider, provider), nil
}

func (e *Engine) readerCallbacks() datafeed.ReaderCallbacks {
	onInvalid := datafeed.OnInvalidConfigurationCallback(func(config types.SubscriptionDataConfig, err error) {
		e.logger.Warn("Invalid subscription", zap.String("subscription", config.Key().String()), zap.Error(err))
	})
	onDownload := datafeed.OnDownloadFailedCallback(func(config types.SubscriptionDataConfig, src source.SubscriptionDataSource, err error) {
		e.logger.Warn("Download failed", zap.String("subscription", config.Key().String()), zap.String("source", src.Source), zap.Error(err))
	})
	onReader := datafeed.OnReaderErrorCallback(func(config types.SubscriptionDataConfig, err error) {
		e.logger.Debug("Reader error", zap.String("subscription", config.Key().String()), zap.Error(err))
	})
	onLimited := datafeed.OnStartDateLimitedCallback(func(config types.SubscriptionDataConfig, requested, limited time.Time) {
		e.logger.Warn("Start date limited by factor file",
			zap.String("subscription", config.Key().String()),
			zap.Time("requested", requested),
			zap.Time("limited", limited),
		)
	})

	return datafeed.ReaderCallbacks{
		OnInvalidConfiguration: &onInvalid,
		OnDownloadFailed:       &onDownload,
		OnReaderError:          &onReader,
		OnStartDateLimited:     &onLimited,
	}
}

// API returns the handle passed to the algorithm.
func (e *Engine) API() *API {
	return e.api
}

func (e *Engine) RunID() string {
	return e.runID
}

// Run initializes the algorithm and feeds it until the data ends, the
// context is cancelled or an error stops the run. Paper runs end normally on
// cancellation.
func (e *Engine) Run(ctx context.Context) (Statistics, error) {
	defer e.close()

	e.runID = uuid.NewString()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := e.transactions.Start(ctx); err != nil {
		return Statistics{}, errors.Wrap(errors.ErrCodeEngineInitFailed, "failed to start transactions", err)
	}

	e.portfolio.SetCash(decimal.NewFromFloat(e.config.InitialCapital))

	if err := e.callAlgorithm("Initialize", func() error { return e.algorithm.Initialize(e.api) }); err != nil {
		e.transactions.Exit(exitTimeout)

		return Statistics{}, err
	}

	if len(e.data.Subscriptions()) == 0 {
		e.transactions.Exit(exitTimeout)

		return Statistics{}, errors.New(errors.ErrCodeNoSubscriptions, "the algorithm did not add any security or universe")
	}

	e.stats.Initialize(e.runID, e.algorithm.Name(), e.mode(), e.start, e.config.InitialCapital)

	if e.opts.Callbacks.OnRunStart != nil {
		if err := (*e.opts.Callbacks.OnRunStart)(e.runID, e.start, e.end); err != nil {
			e.transactions.Exit(exitTimeout)

			return Statistics{}, errors.Wrap(errors.ErrCodeCallbackFailed, "run start callback failed", err)
		}
	}

	e.logger.Info("Run started",
		zap.String("run_id", e.runID),
		zap.String("algorithm", e.algorithm.Name()),
		zap.String("mode", string(e.mode())),
		zap.Time("start", e.start),
		zap.Time("end", e.end),
		zap.Int("subscriptions", len(e.data.Subscriptions())),
	)

	var wg conc.WaitGroup

	if e.feed != nil {
		wg.Go(func() {
			if err := e.feed.Run(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("Live feed stopped", zap.Error(err))
			}
		})
	}

	runErr := e.loop(ctx)

	cancel()
	wg.Wait()

	if err := e.transactions.ProcessSynchronousEvents(); err != nil && runErr == nil {
		runErr = errors.Wrap(errors.ErrCodeEngineRuntime, "transaction handler failed", err)
	}

	e.transactions.Exit(exitTimeout)

	e.recordEquity(e.clock.Now(), true)
	stats := e.stats.Statistics(e.transactions.OrdersCount())

	if err := e.writeResults(stats); err != nil && runErr == nil {
		runErr = err
	}

	if e.opts.Callbacks.OnRunEnd != nil {
		(*e.opts.Callbacks.OnRunEnd)(stats)
	}

	e.logger.Info("Run finished",
		zap.String("run_id", e.runID),
		zap.Float64("final_value", stats.FinalValue),
		zap.Float64("net_profit", stats.NetProfit),
		zap.Int("orders", stats.Orders),
		zap.Error(runErr),
	)

	return stats, runErr
}

func (e *Engine) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			if e.config.Mode == ModePaper {
				return nil
			}

			return errors.Wrap(errors.ErrCodeEngineStopped, "run cancelled", err)
		}

		slice, err := e.synchronizer.Next(ctx)
		if err == io.EOF {
			return nil
		}

		if err != nil {
			if ctx.Err() != nil {
				if e.config.Mode == ModePaper {
					return nil
				}

				return errors.Wrap(errors.ErrCodeEngineStopped, "run cancelled", ctx.Err())
			}

			return errors.Wrap(errors.ErrCodeEngineRuntime, "failed to read the next time slice", err)
		}

		if err := e.step(ctx, slice); err != nil {
			return err
		}

		// cash sync exhaustion and handler loop failures end the run
		if err := e.transactions.Fatal(); err != nil {
			return errors.Wrap(errors.ErrCodeEngineRuntime, "transaction handler failed", err)
		}
	}
}

// step processes one slice. Corporate actions are applied before prices
// move so splits rescale holdings at the pre-split price.
func (e *Engine) step(ctx context.Context, slice *datafeed.TimeSlice) error {
	if e.manualClock != nil {
		e.manualClock.Set(slice.Time)
	}

	e.updateWarmUp(slice.Time)

	e.applyCorporateActions(slice)
	e.securities.Update(marketData(slice))

	e.brokerage.Scan(slice.Time)

	if err := e.transactions.ProcessSynchronousEvents(); err != nil {
		return errors.Wrap(errors.ErrCodeEngineRuntime, "transaction handler failed", err)
	}

	changes, err := e.selectUniverses(ctx, slice)
	if err != nil {
		return err
	}

	slice.SecurityChanges = slice.SecurityChanges.Merge(changes)

	e.cashBook.UpdateConversionRates(e.securities)

	if !slice.SecurityChanges.IsNone() {
		err := e.callAlgorithm("OnSecuritiesChanged", func() error {
			return e.algorithm.OnSecuritiesChanged(e.api, slice.SecurityChanges)
		})
		if err != nil {
			return err
		}
	}

	if !e.warmingUp.Load() && len(slice.Data) > 0 {
		if err := e.callAlgorithm("OnData", func() error { return e.algorithm.OnData(e.api, slice) }); err != nil {
			return err
		}
	}

	if err := e.transactions.ProcessSynchronousEvents(); err != nil {
		return errors.Wrap(errors.ErrCodeEngineRuntime, "transaction handler failed", err)
	}

	if !e.warmingUp.Load() {
		e.recordEquity(slice.Time, false)
	}

	if e.opts.Callbacks.OnSlice != nil {
		if err := (*e.opts.Callbacks.OnSlice)(slice); err != nil {
			return errors.Wrap(errors.ErrCodeCallbackFailed, "slice callback failed", err)
		}
	}

	return nil
}

func (e *Engine) updateWarmUp(utc time.Time) {
	if !e.warmingUp.Load() || utc.Before(e.start) {
		return
	}

	e.warmingUp.Store(false)
	e.logger.Info("Warm up finished", zap.Time("time", utc))
}

// marketData drops the selection data that does not price a security.
func marketData(slice *datafeed.TimeSlice) []types.BaseData {
	points := make([]types.BaseData, 0, len(slice.Data))

	for _, point := range slice.Data {
		if point.GetKind() == types.DataKindCoarse {
			continue
		}

		points = append(points, point)
	}

	return points
}

// applyCorporateActions adjusts holdings for splits and dividends of raw
// priced securities and retires delisted ones.
func (e *Engine) applyCorporateActions(slice *datafeed.TimeSlice) {
	for _, split := range slice.Splits() {
		if split.Type != types.SplitOccurred {
			e.logger.Info("Split announced",
				zap.String("symbol", split.Symbol.String()),
				zap.Float64("factor", split.SplitFactor),
			)

			continue
		}

		if e.rawPriced(split.Symbol) {
			e.portfolio.ApplySplit(split)
		}
	}

	for _, dividend := range slice.Dividends() {
		if e.rawPriced(dividend.Symbol) {
			e.portfolio.ApplyDividend(dividend)
		}
	}

	for _, delisting := range slice.Delistings() {
		if delisting.Type == types.DelistingWarning {
			e.logger.Warn("Security will be delisted", zap.String("symbol", delisting.Symbol.String()))

			continue
		}

		cancelled := e.transactions.CancelOpenOrders(delisting.Symbol, "delisted")

		if security, ok := e.securities.Get(delisting.Symbol); ok {
			security.MarkDelisted()
		}

		e.logger.Warn("Security delisted",
			zap.String("symbol", delisting.Symbol.String()),
			zap.Float64("price", delisting.Price),
			zap.Int("cancelled_orders", len(cancelled)),
		)
	}

	for _, change := range slice.SymbolChanges() {
		e.logger.Info("Ticker changed",
			zap.String("symbol", change.Symbol.String()),
			zap.String("old", change.OldTicker),
			zap.String("new", change.NewTicker),
		)
	}
}

func (e *Engine) rawPriced(symbol types.Symbol) bool {
	for _, config := range e.data.SubscriptionsFor(symbol) {
		if config.NormalizationMode == types.NormalizationRaw {
			return true
		}
	}

	return false
}

// addUniverse registers u for evaluation. User defined universes are
// selected straight away.
func (e *Engine) addUniverse(u *universe.Universe) error {
	for _, existing := range e.universes {
		if existing.Name == u.Name {
			return errors.Newf(errors.ErrCodeUniverseAlreadyAdded, "universe %s is already added", u.Name)
		}
	}

	if err := e.selection.AddUniverse(u, e.clock.Now()); err != nil {
		return err
	}

	e.universes = append(e.universes, u)

	if u.Kind == universe.KindUserDefined {
		return e.reselect(u)
	}

	return nil
}

// selectUniverses evaluates the universes due at slice. Coarse universes
// run on their selection data; user defined and chain universes once a day.
func (e *Engine) selectUniverses(ctx context.Context, slice *datafeed.TimeSlice) (*types.SecurityChanges, error) {
	changes := types.SecurityChangesNone
	newDay := !utils.SameDate(slice.Time, e.lastSelected)

	for _, u := range e.universes {
		data := universe.SelectionData{Coarse: nil, Contracts: nil}

		switch {
		case u.HasSelectionData():
			points := slice.ForSubscription(u.DataConfig.Key())
			if len(points) == 0 {
				continue
			}

			for _, point := range points {
				if coarse, ok := point.(*types.CoarseFundamental); ok {
					data.Coarse = append(data.Coarse, coarse)
				}
			}
		case u.Kind == universe.KindOptionChain || u.Kind == universe.KindFuturesChain:
			if !newDay {
				continue
			}

			if e.opts.Contracts == nil {
				e.logger.Warn("No contract provider for chain universe", zap.String("universe", u.Name))

				continue
			}

			contracts, err := e.opts.Contracts.Contracts(ctx, u.Underlying, slice.Time)
			if err != nil {
				e.logger.Warn("Failed to list chain contracts", zap.String("universe", u.Name), zap.Error(err))

				continue
			}

			data.Contracts = contracts
		default:
			if !newDay {
				continue
			}
		}

		selected, err := e.selection.ApplyUniverseSelection(ctx, u, slice.Time, data)
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(errors.ErrCodeEngineStopped, "run cancelled", err)
			}

			return nil, errors.Wrapf(errors.ErrCodeSelectionFailed, err, "failed to select universe %s", u.Name)
		}

		changes = changes.Merge(selected)
	}

	e.lastSelected = slice.Time

	return changes, nil
}

// handleOrderEvent fans an order event out to the statistics, the results
// store and the algorithm.
func (e *Engine) handleOrderEvent(event types.OrderEvent) {
	e.stats.RecordOrderEvent(event)

	if e.results != nil {
		order, _ := e.transactions.GetOrderByID(event.OrderID)
		if err := e.results.RecordOrderEvent(order, event); err != nil {
			e.logger.Error("Failed to record order event", zap.Int("order_id", event.OrderID), zap.Error(err))
		}
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Algorithm panicked handling an order event", zap.Any("panic", r))
		}
	}()

	e.algorithm.OnOrderEvent(e.api, event)
}

// recordEquity samples the portfolio value. Results keep the first sample of
// each day and the final one.
func (e *Engine) recordEquity(utc time.Time, final bool) {
	cash := e.portfolio.Cash()
	holdings := e.portfolio.TotalHoldingsValue()
	total := e.portfolio.TotalPortfolioValue()

	e.stats.RecordValue(utc, total.InexactFloat64())

	if e.results == nil || (!final && utils.SameDate(utc, e.lastEquity)) {
		return
	}

	e.lastEquity = utc

	if err := e.results.RecordEquity(utc, cash.InexactFloat64(), holdings.InexactFloat64(), total.InexactFloat64()); err != nil {
		e.logger.Error("Failed to record equity", zap.Error(err))
	}
}

func (e *Engine) writeResults(stats Statistics) error {
	if e.results == nil {
		return nil
	}

	folder := filepath.Join(e.config.ResultsFolder, e.runID)

	if err := e.results.Export(folder); err != nil {
		return err
	}

	return WriteStatsYAML(filepath.Join(folder, StatsFile), stats)
}

// callAlgorithm runs fn and turns its errors and panics into
// ErrCodeAlgorithmFailed.
func (e *Engine) callAlgorithm(method string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeAlgorithmFailed, "%s.%s panicked: %v", e.algorithm.Name(), method, r)
		}
	}()

	if err := fn(); err != nil {
		if errors.HasCode(err, errors.ErrCodeEngineStopped) {
			return err
		}

		return errors.Wrap(errors.ErrCodeAlgorithmFailed, fmt.Sprintf("%s.%s failed", e.algorithm.Name(), method), err)
	}

	return nil
}

func (e *Engine) mode() Mode {
	if e.config.Mode == "" {
		return ModeBacktest
	}

	return e.config.Mode
}

func (e *Engine) close() {
	if e.results != nil {
		if err := e.results.Close(); err != nil {
			e.logger.Warn("Failed to close results store", zap.Error(err))
		}
	}

	e.closeFactors()
}

func (e *Engine) closeFactors() {
	if e.factors == nil {
		return
	}

	if err := e.factors.Close(); err != nil {
		e.logger.Warn("Failed to close factor database", zap.Error(err))
	}
}
