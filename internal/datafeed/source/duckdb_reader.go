package source

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBReader reads bars from a parquet file with the columns
// time, open, high, low, close, volume.
type DuckDBReader struct {
	logger *logger.Logger
}

func NewDuckDBReader(log *logger.Logger) *DuckDBReader {
	return &DuckDBReader{logger: log}
}

// ReadBars yields the bars of path ordered by time. Bar times are taken as
// instants; naive timestamps are interpreted in the data time zone.
func (r *DuckDBReader) ReadBars(ctx context.Context, config *types.SubscriptionDataConfig, path string) iter.Seq2[types.BaseData, error] {
	return func(yield func(types.BaseData, error) bool) {
		db, err := sql.Open("duckdb", "")
		if err != nil {
			yield(nil, errors.Wrap(errors.ErrCodeReaderFailed, "failed to open duckdb", err))

			return
		}
		defer db.Close()

		// squirrel cannot express table functions, so the source goes in as text.
		query, args, err := squirrel.
			Select("time", "open", "high", "low", "close", "volume").
			From(fmt.Sprintf("read_parquet('%s')", path)).
			OrderBy("time ASC").
			ToSql()
		if err != nil {
			yield(nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build parquet query", err))

			return
		}

		r.logger.Debug("Reading parquet bars", zap.String("path", path), zap.String("symbol", config.Symbol.String()))

		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(nil, errors.Wrapf(errors.ErrCodeReaderFailed, err, "failed to read %s", path))

			return
		}
		defer rows.Close()

		loc := config.DataLocation()
		period := config.Resolution.Duration()

		for rows.Next() {
			var (
				at                             time.Time
				open, high, low, close, volume float64
			)

			if err := rows.Scan(&at, &open, &high, &low, &close, &volume); err != nil {
				if !yield(nil, errors.Wrap(errors.ErrCodeParseFailed, "failed to scan parquet row", err)) {
					return
				}

				continue
			}

			// duckdb returns TIMESTAMP columns as UTC wall clock values.
			at = time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), at.Minute(), at.Second(), at.Nanosecond(), loc)

			bar := &types.TradeBar{
				Symbol: config.Symbol,
				Time:   at,
				Period: period,
				Open:   open,
				High:   high,
				Low:    low,
				Close:  close,
				Volume: volume,
			}

			if !yield(bar, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, errors.Wrapf(errors.ErrCodeReaderFailed, err, "failed to iterate %s", path))
		}
	}
}
