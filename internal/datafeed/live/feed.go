// Package live streams ticks from a websocket endpoint into the synchronizer.
//
// The endpoint speaks JSON. After connecting the feed sends
//
//	{"op":"subscribe","symbols":["SPY","AAPL"]}
//
// and expects one message per trade:
//
//	{"symbol":"SPY","price":321.5,"quantity":100,"bid":321.4,"ask":321.6,"time":1578061800000}
//
// where time is in Unix milliseconds.
package live

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-engine/internal/datafeed"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// TickMessage is one trade on the wire.
type TickMessage struct {
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Bid      float64 `json:"bid"`
	Ask      float64 `json:"ask"`
	Time     int64   `json:"time"`
}

// ControlMessage changes the symbols the server sends.
type ControlMessage struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
)

// Config configures a WebsocketFeed.
type Config struct {
	URL string `yaml:"url" json:"url" validate:"required,url"`
	// BufferSize bounds the ticks held per symbol; the oldest are dropped.
	BufferSize int `yaml:"buffer_size" json:"buffer_size" validate:"omitempty,min=1"`
	// MaxReconnectWait caps the exponential reconnect delay.
	MaxReconnectWait time.Duration `yaml:"max_reconnect_wait" json:"max_reconnect_wait"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
}

// WebsocketFeed keeps one connection open and fans ticks out to per-symbol
// streams.
type WebsocketFeed struct {
	config Config
	dialer *websocket.Dialer
	logger *logger.Logger

	mu      sync.Mutex
	streams map[string]*TickStream
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewWebsocketFeed(config Config, log *logger.Logger) *WebsocketFeed {
	if config.BufferSize <= 0 {
		config.BufferSize = 10000
	}

	if config.MaxReconnectWait <= 0 {
		config.MaxReconnectWait = 30 * time.Second
	}

	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 10 * time.Second
	}

	return &WebsocketFeed{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		},
		logger:  log.Named("websocket_feed"),
		mu:      sync.Mutex{},
		streams: make(map[string]*TickStream),
		conn:    nil,
		writeMu: sync.Mutex{},
	}
}

// Subscribe returns the stream of symbol's ticks, creating it on first use.
func (f *WebsocketFeed) Subscribe(config types.SubscriptionDataConfig) *TickStream {
	ticker := config.TickerForLookup()

	f.mu.Lock()
	stream, ok := f.streams[ticker]
	if !ok {
		stream = newTickStream(f, config, f.config.BufferSize)
		f.streams[ticker] = stream
	}
	conn := f.conn
	f.mu.Unlock()

	if !ok && conn != nil {
		f.send(conn, ControlMessage{Op: opSubscribe, Symbols: []string{ticker}})
	}

	return stream
}

func (f *WebsocketFeed) unsubscribe(stream *TickStream) {
	ticker := stream.config.TickerForLookup()

	f.mu.Lock()
	if f.streams[ticker] != stream {
		f.mu.Unlock()

		return
	}

	delete(f.streams, ticker)
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		f.send(conn, ControlMessage{Op: opUnsubscribe, Symbols: []string{ticker}})
	}
}

func (f *WebsocketFeed) send(conn *websocket.Conn, msg ControlMessage) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := conn.WriteJSON(msg); err != nil {
		f.logger.Warn("Failed to send control message", zap.String("op", msg.Op), zap.Error(err))
	}
}

// Run connects and reads until ctx is done, reconnecting with exponential
// backoff when the connection drops.
func (f *WebsocketFeed) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = f.config.MaxReconnectWait
	policy.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		err := f.session(ctx, policy)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		return err
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		f.logger.Warn("Websocket feed disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("wait", wait),
		)
	})

	if ctx.Err() != nil {
		return nil
	}

	return err
}

// session runs one connection until it fails.
func (f *WebsocketFeed) session(ctx context.Context, policy backoff.BackOff) error {
	conn, _, err := f.dialer.DialContext(ctx, f.config.URL, nil)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeFeedDisconnected, err, "failed to dial %s", f.config.URL)
	}

	f.mu.Lock()
	f.conn = conn
	tickers := make([]string, 0, len(f.streams))
	for ticker := range f.streams {
		tickers = append(tickers, ticker)
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	if len(tickers) > 0 {
		f.send(conn, ControlMessage{Op: opSubscribe, Symbols: tickers})
	}

	f.logger.Info("Websocket feed connected", zap.String("url", f.config.URL), zap.Int("symbols", len(tickers)))
	policy.Reset()

	for {
		var msg TickMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return errors.Wrap(errors.ErrCodeFeedDisconnected, "websocket read failed", err)
		}

		f.dispatch(msg)
	}
}

func (f *WebsocketFeed) dispatch(msg TickMessage) {
	f.mu.Lock()
	stream, ok := f.streams[msg.Symbol]
	f.mu.Unlock()

	if !ok {
		return
	}

	stream.push(&types.Tick{
		Symbol:   stream.config.Symbol,
		Time:     time.UnixMilli(msg.Time).UTC(),
		Price:    msg.Price,
		Quantity: msg.Quantity,
		BidPrice: msg.Bid,
		AskPrice: msg.Ask,
	})
}

// StreamFactory serves tick subscriptions from the feed and everything else
// from fallback.
func (f *WebsocketFeed) StreamFactory(fallback datafeed.StreamFactory) datafeed.StreamFactory {
	return func(request types.SubscriptionRequest) (datafeed.Stream, error) {
		if request.Config.Kind == types.DataKindTick {
			return f.Subscribe(request.Config), nil
		}

		if fallback == nil {
			return nil, errors.Newf(errors.ErrCodeUnknownDataKind, "live feed cannot serve %s", request.Config.Kind)
		}

		return fallback(request)
	}
}
