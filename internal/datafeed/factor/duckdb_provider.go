package factor

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBProvider serves factor and map files from two DuckDB tables:
//
//	factor_files(permtick, date, price_factor, split_factor, reference_price, minimum_date)
//	map_files(permtick, date, ticker)
type DuckDBProvider struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
}

var (
	_ FactorFileProvider = (*DuckDBProvider)(nil)
	_ MapFileProvider    = (*DuckDBProvider)(nil)
)

// NewDuckDBProvider opens (or creates) the database at path. Use ":memory:" for
// a throwaway store.
func NewDuckDBProvider(path string, log *logger.Logger) (*DuckDBProvider, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to open duckdb", err)
	}

	p := &DuckDBProvider{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger: log,
	}

	if err := p.createTables(); err != nil {
		db.Close()

		return nil, err
	}

	return p, nil
}

func (p *DuckDBProvider) createTables() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS factor_files (
			permtick TEXT,
			date DATE,
			price_factor DOUBLE,
			split_factor DOUBLE,
			reference_price DOUBLE,
			minimum_date DATE
		);
		CREATE TABLE IF NOT EXISTS map_files (
			permtick TEXT,
			date DATE,
			ticker TEXT
		);
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create factor tables", err)
	}

	return nil
}

// ImportCSV loads factor or map rows from a CSV file with a header row into
// the given table ("factor_files" or "map_files").
func (p *DuckDBProvider) ImportCSV(table string, path string) error {
	if table != "factor_files" && table != "map_files" {
		return errors.Newf(errors.ErrCodeInvalidParameter, "unknown factor table %q", table)
	}

	query := fmt.Sprintf(`INSERT INTO %s SELECT * FROM read_csv_auto('%s', header = true)`, table, path)
	if _, err := p.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to import %s", path)
	}

	return nil
}

// PutFactorFile stores a factor file, replacing any existing rows.
func (p *DuckDBProvider) PutFactorFile(file *File) error {
	tx, err := p.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to begin transaction", err)
	}

	deleteQuery, args, err := p.sq.Delete("factor_files").Where(squirrel.Eq{"permtick": file.Permtick}).ToSql()
	if err != nil {
		tx.Rollback() //nolint:errcheck

		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build delete", err)
	}

	if _, err := tx.Exec(deleteQuery, args...); err != nil {
		tx.Rollback() //nolint:errcheck

		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to delete factor rows", err)
	}

	var minimum any
	if file.MinimumDate.IsSome() {
		minimum = file.MinimumDate.Unwrap()
	}

	insert := p.sq.Insert("factor_files").Columns("permtick", "date", "price_factor", "split_factor", "reference_price", "minimum_date")
	for _, row := range file.rows {
		insert = insert.Values(file.Permtick, row.Date, row.PriceFactor, row.SplitFactor, row.ReferencePrice, minimum)
	}

	if len(file.rows) > 0 {
		insertQuery, args, err := insert.ToSql()
		if err != nil {
			tx.Rollback() //nolint:errcheck

			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build insert", err)
		}

		if _, err := tx.Exec(insertQuery, args...); err != nil {
			tx.Rollback() //nolint:errcheck

			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to insert factor rows", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to commit factor rows", err)
	}

	return nil
}

// PutMapFile stores a map file.
func (p *DuckDBProvider) PutMapFile(file *MapFile) error {
	if len(file.rows) == 0 {
		return nil
	}

	insert := p.sq.Insert("map_files").Columns("permtick", "date", "ticker")
	for _, row := range file.rows {
		insert = insert.Values(file.Permtick, row.Date, row.MappedTicker)
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build insert", err)
	}

	if _, err := p.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to insert map rows", err)
	}

	return nil
}

func (p *DuckDBProvider) Get(symbol types.Symbol) (*File, error) {
	query, args, err := p.sq.
		Select("date", "price_factor", "split_factor", "reference_price", "minimum_date").
		From("factor_files").
		Where(squirrel.Eq{"permtick": symbol.Ticker}).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build factor query", err)
	}

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query factor rows", err)
	}
	defer rows.Close()

	var (
		result  []Row
		minimum = optional.None[time.Time]()
	)

	for rows.Next() {
		var (
			row     Row
			minDate sql.NullTime
		)

		if err := rows.Scan(&row.Date, &row.PriceFactor, &row.SplitFactor, &row.ReferencePrice, &minDate); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan factor row", err)
		}

		if minDate.Valid {
			minimum = optional.Some(minDate.Time)
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate factor rows", err)
	}

	if len(result) == 0 {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "no factor file for %s", symbol.Ticker)
	}

	return NewFile(symbol.Ticker, result, minimum)
}

func (p *DuckDBProvider) ResolveMapFile(symbol types.Symbol, asOf time.Time) (*MapFile, error) {
	// Find every permtick that ever used this ticker, then pick the one whose
	// mapping on asOf matches.
	query, args, err := p.sq.
		Select("DISTINCT permtick").
		From("map_files").
		Where(squirrel.Or{
			squirrel.Eq{"ticker": symbol.Ticker},
			squirrel.Eq{"permtick": symbol.Ticker},
		}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build map query", err)
	}

	permticks, err := p.queryStrings(query, args...)
	if err != nil {
		return nil, err
	}

	files := make([]*MapFile, 0, len(permticks))

	for _, permtick := range permticks {
		file, err := p.loadMapFile(permtick)
		if err != nil {
			return nil, err
		}

		files = append(files, file)
	}

	p.logger.Debug("Resolved map file candidates",
		zap.String("ticker", symbol.Ticker),
		zap.Int("candidates", len(files)),
	)

	return resolveMapFile(files, symbol, asOf)
}

func (p *DuckDBProvider) loadMapFile(permtick string) (*MapFile, error) {
	query, args, err := p.sq.
		Select("date", "ticker").
		From("map_files").
		Where(squirrel.Eq{"permtick": permtick}).
		OrderBy("date ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build map query", err)
	}

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query map rows", err)
	}
	defer rows.Close()

	var result []MapRow

	for rows.Next() {
		var row MapRow
		if err := rows.Scan(&row.Date, &row.MappedTicker); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan map row", err)
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to iterate map rows", err)
	}

	return NewMapFile(permtick, result)
}

func (p *DuckDBProvider) queryStrings(query string, args ...any) ([]string, error) {
	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to run query", err)
	}
	defer rows.Close()

	var out []string

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan value", err)
		}

		out = append(out, s)
	}

	return out, rows.Err()
}

// Close closes the database.
func (p *DuckDBProvider) Close() error {
	return p.db.Close()
}
