package datafeed

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/datafeed/factor"
	"github.com/rxtech-lab/argo-engine/internal/datafeed/source"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"go.uber.org/zap"
)

// StreamFactory builds the stream behind a new subscription.
type StreamFactory func(request types.SubscriptionRequest) (Stream, error)

type subscription struct {
	config    types.SubscriptionDataConfig
	universes map[string]struct{}
}

// DataManager owns the active subscriptions. A subscription stays alive while
// at least one universe references it.
type DataManager struct {
	mu            sync.RWMutex
	subscriptions map[types.SubscriptionKey]*subscription
	synchronizer  *Synchronizer
	newStream     StreamFactory
	logger        *logger.Logger
}

func NewDataManager(synchronizer *Synchronizer, newStream StreamFactory, log *logger.Logger) *DataManager {
	return &DataManager{
		mu:            sync.RWMutex{},
		subscriptions: make(map[types.SubscriptionKey]*subscription),
		synchronizer:  synchronizer,
		newStream:     newStream,
		logger:        log.Named("data_manager"),
	}
}

// AddSubscription registers the request's universe on its subscription and
// starts streaming when the subscription is new or its stream has ended. It
// reports whether a stream was started.
func (m *DataManager) AddSubscription(request types.SubscriptionRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := request.Config.Key()

	existing, ok := m.subscriptions[key]
	if ok && m.synchronizer.Contains(key) {
		existing.universes[request.Universe] = struct{}{}

		return false, nil
	}

	stream, err := m.newStream(request)
	if err != nil {
		return false, err
	}

	if err := m.synchronizer.Add(request.Config, stream, request.StartUTC); err != nil {
		return false, err
	}

	if ok {
		existing.universes[request.Universe] = struct{}{}

		m.logger.Debug("Restarted ended subscription",
			zap.String("subscription", key.String()),
			zap.String("universe", request.Universe),
			zap.Time("start", request.StartUTC),
		)

		return true, nil
	}

	m.subscriptions[key] = &subscription{
		config:    request.Config,
		universes: map[string]struct{}{request.Universe: {}},
	}

	m.logger.Debug("Added subscription",
		zap.String("subscription", key.String()),
		zap.String("universe", request.Universe),
		zap.Time("start", request.StartUTC),
	)

	return true, nil
}

// RemoveSubscription drops universe's reference. The stream is stopped when no
// universe references it anymore, in which case it reports true.
func (m *DataManager) RemoveSubscription(key types.SubscriptionKey, universe string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.subscriptions[key]
	if !ok {
		return false
	}

	delete(existing.universes, universe)

	if len(existing.universes) > 0 {
		return false
	}

	delete(m.subscriptions, key)
	m.synchronizer.Remove(key)

	m.logger.Debug("Removed subscription", zap.String("subscription", key.String()))

	return true
}

// Contains reports whether key is subscribed.
func (m *DataManager) Contains(key types.SubscriptionKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.subscriptions[key]

	return ok
}

// Subscriptions returns every subscription config, sorted by key.
func (m *DataManager) Subscriptions() []types.SubscriptionDataConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := slices.SortedFunc(maps.Keys(m.subscriptions), func(a, b types.SubscriptionKey) int {
		return strings.Compare(a.String(), b.String())
	})

	configs := make([]types.SubscriptionDataConfig, 0, len(keys))
	for _, key := range keys {
		configs = append(configs, m.subscriptions[key].config)
	}

	return configs
}

// SubscriptionsFor returns the configs of symbol.
func (m *DataManager) SubscriptionsFor(symbol types.Symbol) []types.SubscriptionDataConfig {
	var out []types.SubscriptionDataConfig

	for _, config := range m.Subscriptions() {
		if config.Symbol == symbol {
			out = append(out, config)
		}
	}

	return out
}

// Universes returns the universes referencing key.
func (m *DataManager) Universes(key types.SubscriptionKey) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	existing, ok := m.subscriptions[key]
	if !ok {
		return nil
	}

	return slices.Sorted(maps.Keys(existing.universes))
}

// ReaderStreamOptions holds what every subscription reader shares.
type ReaderStreamOptions struct {
	// End bounds every subscription; requests with an earlier EndUTC win.
	End       time.Time
	Resolver  *factor.Resolver
	Registry  *source.Registry
	Opener    source.Opener
	Live      bool
	Clock     utils.Clock
	Callbacks ReaderCallbacks
	Logger    *logger.Logger
}

// NewReaderStreamFactory builds subscription readers over the trading days of
// each symbol's market.
func NewReaderStreamFactory(opts ReaderStreamOptions) StreamFactory {
	var (
		mu        sync.Mutex
		calendars = make(map[string]*TradingCalendar)
	)

	calendarFor := func(market string) *TradingCalendar {
		mu.Lock()
		defer mu.Unlock()

		if cal, ok := calendars[market]; ok {
			return cal
		}

		cal := NewTradingCalendar(market)
		calendars[market] = cal

		return cal
	}

	return func(request types.SubscriptionRequest) (Stream, error) {
		config := request.Config
		cal := calendarFor(config.Symbol.Market)

		if config.ExchangeTimeZone == nil {
			config.ExchangeTimeZone = cal.Location()
		}

		end := opts.End
		if !request.EndUTC.IsZero() && (end.IsZero() || request.EndUTC.Before(end)) {
			end = request.EndUTC
		}

		var dates []time.Time
		if !opts.Live {
			// Start a week early so the reader knows the previous trading day.
			dates = cal.TradeableDates(request.StartUTC.AddDate(0, 0, -7), end)
		}

		return NewSubscriptionDataReader(ReaderOptions{
			Config:       config,
			PeriodStart:  request.StartUTC,
			PeriodFinish: end,
			Dates:        dates,
			Resolver:     opts.Resolver,
			Registry:     opts.Registry,
			Opener:       opts.Opener,
			Live:         opts.Live,
			Clock:        opts.Clock,
			Callbacks:    opts.Callbacks,
			Logger:       opts.Logger,
		}), nil
	}
}
