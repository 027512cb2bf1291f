package engine

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

const (
	OrdersFile      = "orders.parquet"
	OrderEventsFile = "order_events.parquet"
	EquityFile      = "equity.parquet"
	StatsFile       = "stats.yaml"
)

// ResultsStore keeps the orders, order events and equity curve of a run in
// an in-memory DuckDB database and exports them as parquet files.
type ResultsStore struct {
	mu     sync.Mutex
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
}

func NewResultsStore(log *logger.Logger) (*ResultsStore, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to open duckdb", err)
	}

	s := &ResultsStore{
		mu:     sync.Mutex{},
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger: log.Named("results"),
	}

	if err := s.createTables(); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

func (s *ResultsStore) createTables() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			order_id INTEGER PRIMARY KEY,
			symbol TEXT,
			security_type TEXT,
			order_type TEXT,
			status TEXT,
			quantity DOUBLE,
			limit_price DOUBLE,
			stop_price DOUBLE,
			fill_price DOUBLE,
			created_at TIMESTAMP,
			updated_at TIMESTAMP,
			tag TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS order_events (
			order_id INTEGER,
			event_id INTEGER,
			symbol TEXT,
			utc_time TIMESTAMP,
			status TEXT,
			direction TEXT,
			fill_price DOUBLE,
			fill_quantity DOUBLE,
			fee DOUBLE,
			fee_currency TEXT,
			message TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS equity (
			utc_time TIMESTAMP PRIMARY KEY,
			cash DOUBLE,
			holdings DOUBLE,
			total DOUBLE
		)`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to create results tables", err)
		}
	}

	return nil
}

// RecordOrderEvent stores event and upserts the order it belongs to.
func (s *ResultsStore) RecordOrderEvent(order *types.Order, event types.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New(errors.ErrCodeResultsWriteFail, "results store is closed")
	}

	query, args, err := s.sq.Insert("order_events").
		Columns("order_id", "event_id", "symbol", "utc_time", "status", "direction",
			"fill_price", "fill_quantity", "fee", "fee_currency", "message").
		Values(event.OrderID, event.ID, event.Symbol.String(), event.UTCTime, string(event.Status), string(event.Direction),
			event.FillPrice.InexactFloat64(), event.FillQuantity.InexactFloat64(), event.OrderFee.InexactFloat64(),
			event.FeeCurrency, event.Message).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to build order event insert", err)
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to insert order event", err)
	}

	if order == nil {
		return nil
	}

	query, args, err = s.sq.Insert("orders").
		Columns("order_id", "symbol", "security_type", "order_type", "status", "quantity",
			"limit_price", "stop_price", "fill_price", "created_at", "updated_at", "tag").
		Values(order.ID, order.Symbol.String(), string(order.Symbol.SecurityType), string(order.Type), string(order.Status),
			order.Quantity.InexactFloat64(), order.LimitPrice.InexactFloat64(), order.StopPrice.InexactFloat64(),
			order.Price.InexactFloat64(), order.Time, event.UTCTime, order.Tag).
		Suffix(`ON CONFLICT (order_id) DO UPDATE SET
			status = excluded.status,
			quantity = excluded.quantity,
			limit_price = excluded.limit_price,
			stop_price = excluded.stop_price,
			fill_price = excluded.fill_price,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to build order upsert", err)
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to upsert order", err)
	}

	return nil
}

// RecordEquity stores one point of the equity curve. A second point at the
// same time replaces the first.
func (s *ResultsStore) RecordEquity(utc time.Time, cash, holdings, total float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New(errors.ErrCodeResultsWriteFail, "results store is closed")
	}

	query, args, err := s.sq.Insert("equity").
		Columns("utc_time", "cash", "holdings", "total").
		Values(utc, cash, holdings, total).
		Suffix("ON CONFLICT (utc_time) DO UPDATE SET cash = excluded.cash, holdings = excluded.holdings, total = excluded.total").
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to build equity insert", err)
	}

	if _, err := s.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to insert equity point", err)
	}

	return nil
}

func (s *ResultsStore) count(table string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return 0, errors.New(errors.ErrCodeResultsWriteFail, "results store is closed")
	}

	query, args, err := s.sq.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to build count query", err)
	}

	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrapf(errors.ErrCodeResultsWriteFail, err, "failed to count %s", table)
	}

	return count, nil
}

func (s *ResultsStore) OrderCount() (int, error) {
	return s.count("orders")
}

func (s *ResultsStore) OrderEventCount() (int, error) {
	return s.count("order_events")
}

func (s *ResultsStore) EquityCount() (int, error) {
	return s.count("equity")
}

// Export writes orders, order events and the equity curve as parquet files
// into folder.
func (s *ResultsStore) Export(folder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return errors.New(errors.ErrCodeResultsWriteFail, "results store is closed")
	}

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to create results folder", err)
	}

	exports := []struct {
		query string
		file  string
	}{
		{query: "SELECT * FROM orders ORDER BY order_id", file: OrdersFile},
		{query: "SELECT * FROM order_events ORDER BY utc_time, order_id, event_id", file: OrderEventsFile},
		{query: "SELECT * FROM equity ORDER BY utc_time", file: EquityFile},
	}

	for _, export := range exports {
		path := filepath.Join(folder, export.file)

		if _, err := s.db.Exec(fmt.Sprintf("COPY (%s) TO '%s' (FORMAT PARQUET)", export.query, path)); err != nil {
			return errors.Wrapf(errors.ErrCodeResultsWriteFail, err, "failed to export %s", export.file)
		}
	}

	s.logger.Info("Exported results", zap.String("folder", folder))

	return nil
}

func (s *ResultsStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	if err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to close results store", err)
	}

	return nil
}
