package live

import (
	"context"
	"sync"

	"github.com/rxtech-lab/argo-engine/internal/datafeed"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"go.uber.org/zap"
)

// TickStream buffers one symbol's ticks until the synchronizer pulls them.
type TickStream struct {
	feed   *WebsocketFeed
	config types.SubscriptionDataConfig
	limit  int

	mu      sync.Mutex
	queue   []*types.Tick
	dropped int
}

var _ datafeed.Stream = (*TickStream)(nil)

func newTickStream(feed *WebsocketFeed, config types.SubscriptionDataConfig, limit int) *TickStream {
	return &TickStream{
		feed:    feed,
		config:  config,
		limit:   limit,
		mu:      sync.Mutex{},
		queue:   nil,
		dropped: 0,
	}
}

func (s *TickStream) push(tick *types.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) >= s.limit {
		s.queue = s.queue[1:]
		s.dropped++

		if s.dropped == 1 || s.dropped%1000 == 0 {
			s.feed.logger.Warn("Tick buffer full, dropping oldest",
				zap.String("symbol", s.config.Symbol.String()),
				zap.Int("dropped", s.dropped),
			)
		}
	}

	s.queue = append(s.queue, tick)
}

// Next returns the oldest buffered tick, or datafeed.ErrNoData when none
// arrived yet.
func (s *TickStream) Next(ctx context.Context) (types.BaseData, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return nil, datafeed.ErrNoData
	}

	tick := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]

	return tick, nil
}

// Len returns the number of buffered ticks.
func (s *TickStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// Close unsubscribes the symbol.
func (s *TickStream) Close() {
	s.feed.unsubscribe(s)
}
