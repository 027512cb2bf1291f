package datafeed

import (
	"container/heap"
	"context"
	"io"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// Stream yields one subscription's points in end-time order. It returns
// io.EOF when exhausted and ErrNoData when a live source is idle.
type Stream interface {
	Next(ctx context.Context) (types.BaseData, error)
}

var _ Stream = (*SubscriptionDataReader)(nil)

type streamEntry struct {
	config types.SubscriptionDataConfig
	stream Stream
	start  time.Time
	head   types.BaseData
	// sortKey caches the symbol string used for tie breaks.
	sortKey string
	index   int
}

// streamHeap orders streams by head end time, then symbol, kind and resolution.
type streamHeap []*streamEntry

func (h streamHeap) Len() int { return len(h) }

func (h streamHeap) Less(i, j int) bool {
	a, b := h[i], h[j]

	if c := a.head.GetEndTime().Compare(b.head.GetEndTime()); c != 0 {
		return c < 0
	}

	if c := strings.Compare(a.sortKey, b.sortKey); c != 0 {
		return c < 0
	}

	if a.config.Kind != b.config.Kind {
		return a.config.Kind < b.config.Kind
	}

	return a.config.Resolution < b.config.Resolution
}

func (h streamHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *streamHeap) Push(x any) {
	entry, _ := x.(*streamEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *streamHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]

	return entry
}

type pendingChanges struct {
	effective time.Time
	changes   *types.SecurityChanges
}

// SynchronizerOptions configures a Synchronizer.
type SynchronizerOptions struct {
	Live bool
	// Clock bounds live slices; required in live mode.
	Clock utils.Clock
	// PollInterval is how long a live Next waits for data before returning an
	// empty slice.
	PollInterval time.Duration
	Logger       *logger.Logger
}

// Synchronizer merges many streams into time slices. It is driven from a
// single goroutine and does no locking.
type Synchronizer struct {
	opts   SynchronizerOptions
	logger *logger.Logger

	heap     streamHeap
	unprimed []*streamEntry
	parked   []*streamEntry
	entries  map[types.SubscriptionKey]*streamEntry

	changes  []pendingChanges
	lastTime time.Time
}

func NewSynchronizer(opts SynchronizerOptions) *Synchronizer {
	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}

	return &Synchronizer{
		opts:     opts,
		logger:   opts.Logger.Named("synchronizer"),
		heap:     nil,
		unprimed: nil,
		parked:   nil,
		entries:  make(map[types.SubscriptionKey]*streamEntry),
		changes:  nil,
		lastTime: time.Time{},
	}
}

// Add injects a stream. Points ending before start are skipped.
func (s *Synchronizer) Add(config types.SubscriptionDataConfig, stream Stream, start time.Time) error {
	key := config.Key()
	if _, ok := s.entries[key]; ok {
		return errors.Newf(errors.ErrCodeSubscriptionExists, "subscription %s already streaming", key)
	}

	entry := &streamEntry{
		config:  config,
		stream:  stream,
		start:   start,
		head:    nil,
		sortKey: config.Symbol.String(),
		index:   -1,
	}

	s.entries[key] = entry
	s.unprimed = append(s.unprimed, entry)

	return nil
}

// Remove excises the stream for key. It reports whether the stream existed.
func (s *Synchronizer) Remove(key types.SubscriptionKey) bool {
	entry, ok := s.entries[key]
	if !ok {
		return false
	}

	delete(s.entries, key)

	if entry.index >= 0 {
		heap.Remove(&s.heap, entry.index)
	}

	s.unprimed = removeEntry(s.unprimed, entry)
	s.parked = removeEntry(s.parked, entry)

	if closer, ok := entry.stream.(interface{ Close() }); ok {
		closer.Close()
	}

	return true
}

func removeEntry(entries []*streamEntry, target *streamEntry) []*streamEntry {
	out := entries[:0]

	for _, entry := range entries {
		if entry != target {
			out = append(out, entry)
		}
	}

	return out
}

// Contains reports whether the stream for key is still live. Streams leave
// once they end or fail.
func (s *Synchronizer) Contains(key types.SubscriptionKey) bool {
	_, ok := s.entries[key]

	return ok
}

// Len returns the number of live streams.
func (s *Synchronizer) Len() int {
	return len(s.entries)
}

// AddSecurityChanges queues changes to be attached to the first slice at or
// after effective.
func (s *Synchronizer) AddSecurityChanges(changes *types.SecurityChanges, effective time.Time) {
	if changes.IsNone() {
		return
	}

	s.changes = append(s.changes, pendingChanges{effective: effective, changes: changes})
}

// Next returns the next slice. In backtests it returns io.EOF once every
// stream is exhausted. In live mode it never returns io.EOF and returns an
// empty slice when nothing arrived within the poll interval.
func (s *Synchronizer) Next(ctx context.Context) (*TimeSlice, error) {
	if s.opts.Live {
		return s.nextLive(ctx)
	}

	if err := s.prime(ctx); err != nil {
		return nil, err
	}

	if s.heap.Len() == 0 {
		return nil, io.EOF
	}

	t := s.heap[0].head.GetEndTime()
	slice := newTimeSlice(t)

	for s.heap.Len() > 0 && s.heap[0].head.GetEndTime().Equal(t) {
		if err := s.take(ctx, slice); err != nil {
			return nil, err
		}
	}

	s.finish(slice)

	return slice, nil
}

func (s *Synchronizer) nextLive(ctx context.Context) (*TimeSlice, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := s.prime(ctx); err != nil {
			return nil, err
		}

		s.repollParked(ctx)

		now := s.opts.Clock.Now()
		if s.heap.Len() > 0 && !s.heap[0].head.GetEndTime().After(now) {
			slice := newTimeSlice(now)

			for s.heap.Len() > 0 && !s.heap[0].head.GetEndTime().After(now) {
				if err := s.take(ctx, slice); err != nil {
					return nil, err
				}
			}

			s.finish(slice)

			return slice, nil
		}

		if attempt == 0 {
			timer := time.NewTimer(s.opts.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()

				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}

	slice := newTimeSlice(s.opts.Clock.Now())
	s.finish(slice)

	return slice, nil
}

// take pops the minimum stream, adds its head to slice and advances it.
func (s *Synchronizer) take(ctx context.Context, slice *TimeSlice) error {
	entry, _ := heap.Pop(&s.heap).(*streamEntry)
	slice.add(entry.config.Key(), entry.head)
	entry.head = nil

	return s.advance(ctx, entry)
}

// advance pulls the next usable point of entry and files the entry under the
// heap, the parked list, or drops it at end of stream.
func (s *Synchronizer) advance(ctx context.Context, entry *streamEntry) error {
	for {
		point, err := entry.stream.Next(ctx)

		switch {
		case err == nil:
		case err == io.EOF:
			s.logger.Debug("Stream exhausted", zap.String("subscription", entry.config.Key().String()))
			delete(s.entries, entry.config.Key())

			return nil
		case errors.Is(err, ErrNoData):
			s.parked = append(s.parked, entry)

			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.logger.Warn("Stream failed, removing it",
				zap.String("subscription", entry.config.Key().String()),
				zap.Error(err),
			)
			delete(s.entries, entry.config.Key())

			return nil
		}

		end := point.GetEndTime()
		if end.Before(entry.start) {
			continue
		}

		if !s.lastTime.IsZero() && end.Before(s.lastTime) {
			s.logger.Warn("Dropping point older than the last slice",
				zap.String("subscription", entry.config.Key().String()),
				zap.Time("end_time", end),
				zap.Time("last_slice", s.lastTime),
			)

			continue
		}

		entry.head = point
		heap.Push(&s.heap, entry)

		return nil
	}
}

func (s *Synchronizer) prime(ctx context.Context) error {
	pending := s.unprimed
	s.unprimed = nil

	for _, entry := range pending {
		if err := s.advance(ctx, entry); err != nil {
			return err
		}
	}

	return nil
}

func (s *Synchronizer) repollParked(ctx context.Context) {
	parked := s.parked
	s.parked = nil

	for _, entry := range parked {
		if err := s.advance(ctx, entry); err != nil {
			s.parked = append(s.parked, entry)
		}
	}
}

// finish attaches due security changes and records the slice time.
func (s *Synchronizer) finish(slice *TimeSlice) {
	remaining := s.changes[:0]

	for _, pending := range s.changes {
		if !pending.effective.After(slice.Time) {
			slice.SecurityChanges = slice.SecurityChanges.Merge(pending.changes)
		} else {
			remaining = append(remaining, pending)
		}
	}

	s.changes = remaining

	if slice.Time.After(s.lastTime) {
		s.lastTime = slice.Time
	}
}
