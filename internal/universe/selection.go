package universe

import (
	"context"
	"maps"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const conversionUniverse = "__currency_conversion"

// FineFundamentalProvider fetches the fine fields of one symbol.
type FineFundamentalProvider interface {
	Fine(ctx context.Context, symbol types.Symbol, utc time.Time) (types.FineFundamental, error)
}

// SubscriptionService adds and removes data subscriptions on behalf of a
// universe. AddSubscription reports whether a new subscription was created.
type SubscriptionService interface {
	AddSubscription(request types.SubscriptionRequest) (bool, error)
	RemoveSubscription(key types.SubscriptionKey, universe string) bool
}

// Options configures a SelectionEngine.
type Options struct {
	Securities    *securities.Manager
	CashBook      *securities.CashBook
	Subscriptions SubscriptionService
	Orders        OrderProvider
	Fine          FineFundamentalProvider
	// Workers bounds the fine fundamental fan-out. Defaults to the CPU count.
	Workers int
	Logger  *logger.Logger
}

// SelectionEngine applies universe selections to the securities and their
// subscriptions.
type SelectionEngine struct {
	securities    *securities.Manager
	cashBook      *securities.CashBook
	subscriptions SubscriptionService
	fine          FineFundamentalProvider
	workers       int
	pending       *PendingRemovalsManager
	logger        *logger.Logger

	mu sync.Mutex
	// pendingAdditions caches the securities created at pendingTime so two
	// universes selecting the same symbol share one security.
	pendingAdditions map[types.Symbol]*securities.Security
	pendingTime      time.Time
}

func NewSelectionEngine(opts Options) *SelectionEngine {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	return &SelectionEngine{
		securities:       opts.Securities,
		cashBook:         opts.CashBook,
		subscriptions:    opts.Subscriptions,
		fine:             opts.Fine,
		workers:          opts.Workers,
		pending:          NewPendingRemovalsManager(opts.Orders),
		logger:           opts.Logger.Named("universe"),
		mu:               sync.Mutex{},
		pendingAdditions: make(map[types.Symbol]*securities.Security),
		pendingTime:      time.Time{},
	}
}

// PendingRemovals exposes the deferred removals.
func (e *SelectionEngine) PendingRemovals() *PendingRemovalsManager {
	return e.pending
}

// AddUniverse subscribes the selection data of u starting at startUTC.
func (e *SelectionEngine) AddUniverse(u *Universe, startUTC time.Time) error {
	if !u.HasSelectionData() {
		return nil
	}

	added, err := e.subscriptions.AddSubscription(types.SubscriptionRequest{
		Config:   u.DataConfig,
		Universe: u.Name,
		StartUTC: startUTC,
		EndUTC:   time.Time{},
	})
	if err != nil {
		return errors.Wrapf(errors.ErrCodeSubscriptionFailed, err, "failed to subscribe selection data of universe %s", u.Name)
	}

	if !added {
		return errors.Newf(errors.ErrCodeUniverseAlreadyAdded, "selection data of universe %s is already subscribed", u.Name)
	}

	return nil
}

// ApplyUniverseSelection evaluates u with data at utc and reconciles the
// result. It returns types.SecurityChangesNone when the selection is
// unchanged or nothing moved. Errors only come from ctx.
func (e *SelectionEngine) ApplyUniverseSelection(ctx context.Context, u *Universe, utc time.Time, data SelectionData) (*types.SecurityChanges, error) {
	selection, err := e.selection(ctx, u, utc, data)
	if err != nil {
		return nil, err
	}

	if selection.IsUnchanged() {
		return types.SecurityChangesNone, nil
	}

	selected := make(map[types.Symbol]struct{}, len(selection.Symbols))
	for _, symbol := range selection.Symbols {
		selected[symbol] = struct{}{}
	}

	var removed []types.Symbol

	for _, ready := range e.pending.CheckPendingRemovals(selected, u) {
		if e.removeMember(u, ready.Security.Symbol) {
			removed = append(removed, ready.Security.Symbol)
		}
	}

	for _, member := range u.Members() {
		symbol := member.Security.Symbol

		if _, ok := selected[symbol]; ok {
			continue
		}

		if !u.CanRemoveMember(utc, symbol) {
			continue
		}

		if !e.pending.TryRemoveMember(member.Security, u, utc) {
			e.logger.Debug("Deferred member removal",
				zap.String("universe", u.Name),
				zap.String("symbol", symbol.String()),
			)

			continue
		}

		if e.removeMember(u, symbol) {
			removed = append(removed, symbol)
		}
	}

	var added, internal []types.Symbol

	for _, symbol := range slices.SortedFunc(maps.Keys(selected), compareSymbols) {
		if u.Contains(symbol) {
			continue
		}

		security := e.security(symbol, utc)
		config := u.subscriptionConfig(symbol)

		subscribed, err := e.subscriptions.AddSubscription(types.SubscriptionRequest{
			Config:   config,
			Universe: u.Name,
			StartUTC: utc,
			EndUTC:   time.Time{},
		})
		if err != nil {
			e.logger.Warn("Failed to subscribe selected security",
				zap.String("universe", u.Name),
				zap.String("symbol", symbol.String()),
				zap.Error(err),
			)

			continue
		}

		u.addMember(&Member{
			Security:      security,
			Added:         utc,
			Subscriptions: []types.SubscriptionKey{config.Key()},
		})

		if !subscribed {
			continue
		}

		if config.IsInternalFeed || config.IsUniverseSubscription {
			internal = append(internal, symbol)
		} else {
			added = append(added, symbol)
		}
	}

	internal = append(internal, e.ensureConversionFeeds(added, utc)...)

	changes := types.NewSecurityChanges(added, removed, internal)
	if !changes.IsNone() {
		e.logger.Info("Universe selection changed",
			zap.String("universe", u.Name),
			zap.Time("time", utc),
			zap.Int("added", len(changes.Added)),
			zap.Int("removed", len(changes.Removed)),
			zap.Int("internal_added", len(changes.InternalAdded)),
		)
	}

	return changes, nil
}

// selection runs the rule of u. An option chain always selects its
// underlying.
func (e *SelectionEngine) selection(ctx context.Context, u *Universe, utc time.Time, data SelectionData) (Selection, error) {
	switch u.Kind {
	case KindUserDefined:
		if u.selectUser != nil {
			return u.selectUser(utc), nil
		}

		return Select(u.fixedSymbols()...), nil
	case KindCoarse:
		return u.selectCoarse(utc, data.Coarse), nil
	case KindCoarseFine:
		coarse := u.selectCoarse(utc, data.Coarse)
		if coarse.IsUnchanged() {
			return Unchanged, nil
		}

		fundamentals, err := e.joinFine(ctx, utc, coarse.Symbols, data.Coarse)
		if err != nil {
			return Unchanged, err
		}

		return u.selectFine(utc, fundamentals), nil
	case KindOptionChain, KindFuturesChain:
		selection := u.filterChain(utc, u.Underlying, data.Contracts)
		if selection.IsUnchanged() {
			return selection, nil
		}

		if u.Binding() == BindingUnderlyingSecurity {
			selection.Symbols = append(slices.Clone(selection.Symbols), u.Underlying)
		}

		return selection, nil
	default:
		return Unchanged, errors.Newf(errors.ErrCodeUniverseNotFound, "unknown universe kind %q", u.Kind)
	}
}

// joinFine fetches the fine fields of the coarse survivors in parallel and
// merges them with their coarse rows. Symbols whose fine data fails are
// dropped.
func (e *SelectionEngine) joinFine(ctx context.Context, utc time.Time, survivors []types.Symbol, coarse []*types.CoarseFundamental) ([]*types.Fundamentals, error) {
	rows := make(map[types.Symbol]*types.CoarseFundamental, len(coarse))
	for _, row := range coarse {
		rows[row.Symbol] = row
	}

	var (
		mu     sync.Mutex
		merged = make(map[types.Symbol]*types.Fundamentals, len(survivors))
	)

	p := pool.New().WithMaxGoroutines(e.workers)

	for _, symbol := range survivors {
		row, ok := rows[symbol]
		if !ok {
			continue
		}

		p.Go(func() {
			if ctx.Err() != nil {
				return
			}

			fine, err := e.fine.Fine(ctx, symbol, utc)
			if err != nil {
				e.logger.Warn("Failed to fetch fine fundamentals",
					zap.String("symbol", symbol.String()),
					zap.Error(errors.Wrap(errors.ErrCodeFundamentalsFailed, "fine fundamentals", err)),
				)

				return
			}

			fundamentals := types.NewFundamentals(row, fine)

			mu.Lock()
			defer mu.Unlock()

			if _, dup := merged[symbol]; !dup {
				merged[symbol] = fundamentals
			}
		})
	}

	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*types.Fundamentals, 0, len(merged))
	for _, symbol := range slices.SortedFunc(maps.Keys(merged), compareSymbols) {
		out = append(out, merged[symbol])
	}

	return out, nil
}

// security returns the security of symbol, creating it at most once per
// timestamp.
func (e *SelectionEngine) security(symbol types.Symbol, utc time.Time) *securities.Security {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.pendingTime.Equal(utc) {
		clear(e.pendingAdditions)
		e.pendingTime = utc
	}

	if security, ok := e.pendingAdditions[symbol]; ok {
		return security
	}

	security, _ := e.securities.Add(symbol)
	e.pendingAdditions[symbol] = security

	return security
}

func (e *SelectionEngine) removeMember(u *Universe, symbol types.Symbol) bool {
	member, ok := u.removeMember(symbol)
	if !ok {
		return false
	}

	for _, key := range member.Subscriptions {
		e.subscriptions.RemoveSubscription(key, u.Name)
	}

	return true
}

// ensureConversionFeeds subscribes the forex pairs that price the quote
// currencies of added securities in the account currency.
func (e *SelectionEngine) ensureConversionFeeds(added []types.Symbol, utc time.Time) []types.Symbol {
	if e.cashBook == nil {
		return nil
	}

	fresh := false

	for _, symbol := range added {
		security, ok := e.securities.Get(symbol)
		if !ok {
			continue
		}

		if e.cashBook.Ensure(security.Properties.QuoteCurrency) {
			fresh = true
		}
	}

	if !fresh {
		return nil
	}

	var internal []types.Symbol

	for _, symbol := range e.cashBook.ConversionSymbols() {
		e.security(symbol, utc)

		config := types.NewSubscriptionDataConfig(symbol, types.DataKindTradeBar, types.ResolutionMinute, nil)
		config.ExchangeTimeZone = nil
		config.DataTimeZone = nil
		config.NormalizationMode = types.NormalizationRaw
		config.IsInternalFeed = true

		subscribed, err := e.subscriptions.AddSubscription(types.SubscriptionRequest{
			Config:   config,
			Universe: conversionUniverse,
			StartUTC: utc,
			EndUTC:   time.Time{},
		})
		if err != nil {
			e.logger.Warn("Failed to subscribe currency conversion feed",
				zap.String("symbol", symbol.String()),
				zap.Error(err),
			)

			continue
		}

		if subscribed {
			internal = append(internal, symbol)
		}
	}

	return internal
}
