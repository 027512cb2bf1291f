package factor

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

const dateLayout = "20060102"

// DiskProvider reads factor and map files laid out as
// <root>/<security type>/<market>/{factor_files,map_files}/<ticker>.csv.
//
// Factor rows are "yyyyMMdd,priceFactor,splitFactor[,referencePrice]"; map rows
// are "yyyyMMdd,ticker".
type DiskProvider struct {
	root string

	mu       sync.Mutex
	mapFiles map[string][]*MapFile
}

var (
	_ FactorFileProvider = (*DiskProvider)(nil)
	_ MapFileProvider    = (*DiskProvider)(nil)
)

func NewDiskProvider(root string) *DiskProvider {
	return &DiskProvider{
		root:     root,
		mu:       sync.Mutex{},
		mapFiles: make(map[string][]*MapFile),
	}
}

func (p *DiskProvider) dir(symbol types.Symbol, kind string) string {
	return filepath.Join(p.root, strings.ToLower(string(symbol.SecurityType)), symbol.Market, kind)
}

func (p *DiskProvider) Get(symbol types.Symbol) (*File, error) {
	path := filepath.Join(p.dir(symbol, "factor_files"), strings.ToLower(symbol.Ticker)+".csv")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "no factor file for %s", symbol.Ticker)
		}

		return nil, errors.Wrap(errors.ErrCodeReaderFailed, "failed to open factor file", err)
	}
	defer f.Close()

	return ParseFactorFile(symbol.Ticker, f)
}

func (p *DiskProvider) ResolveMapFile(symbol types.Symbol, asOf time.Time) (*MapFile, error) {
	files, err := p.loadMapFiles(symbol)
	if err != nil {
		return nil, err
	}

	return resolveMapFile(files, symbol, asOf)
}

// loadMapFiles reads every map file of the symbol's market once.
func (p *DiskProvider) loadMapFiles(symbol types.Symbol) ([]*MapFile, error) {
	dir := p.dir(symbol, "map_files")

	p.mu.Lock()
	defer p.mu.Unlock()

	if files, ok := p.mapFiles[dir]; ok {
		return files, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			p.mapFiles[dir] = nil

			return nil, nil
		}

		return nil, errors.Wrap(errors.ErrCodeReaderFailed, "failed to list map files", err)
	}

	files := make([]*MapFile, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".csv" {
			continue
		}

		permtick := strings.ToUpper(strings.TrimSuffix(entry.Name(), ".csv"))

		file, err := p.readMapFile(filepath.Join(dir, entry.Name()), permtick)
		if err != nil {
			return nil, err
		}

		files = append(files, file)
	}

	p.mapFiles[dir] = files

	return files, nil
}

func (p *DiskProvider) readMapFile(path, permtick string) (*MapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeReaderFailed, "failed to open map file", err)
	}
	defer f.Close()

	return ParseMapFile(permtick, f)
}

// ParseFactorFile parses factor rows from r.
func ParseFactorFile(permtick string, r io.Reader) (*File, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeFactorFileInvalid, err, "failed to read factor file %s", permtick)
	}

	rows := make([]Row, 0, len(records))

	for _, record := range records {
		if len(record) < 3 {
			return nil, errors.Newf(errors.ErrCodeFactorFileInvalid, "factor file %s: expected at least 3 columns, got %d", permtick, len(record))
		}

		date, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeFactorFileInvalid, err, "factor file %s: bad date", permtick)
		}

		values := make([]float64, 0, 3)

		for _, field := range record[1:min(len(record), 4)] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, errors.Wrapf(errors.ErrCodeFactorFileInvalid, err, "factor file %s: bad value %q", permtick, field)
			}

			values = append(values, v)
		}

		row := Row{Date: date, PriceFactor: values[0], SplitFactor: values[1], ReferencePrice: 0}
		if len(values) > 2 {
			row.ReferencePrice = values[2]
		}

		rows = append(rows, row)
	}

	return NewFile(permtick, rows, optional.None[time.Time]())
}

// ParseMapFile parses map rows from r.
func ParseMapFile(permtick string, r io.Reader) (*MapFile, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMapFileInvalid, err, "failed to read map file %s", permtick)
	}

	rows := make([]MapRow, 0, len(records))

	for _, record := range records {
		if len(record) < 2 {
			return nil, errors.Newf(errors.ErrCodeMapFileInvalid, "map file %s: expected 2 columns, got %d", permtick, len(record))
		}

		date, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMapFileInvalid, err, "map file %s: bad date", permtick)
		}

		rows = append(rows, MapRow{Date: date, MappedTicker: strings.ToUpper(strings.TrimSpace(record[1]))})
	}

	return NewMapFile(permtick, rows)
}

func readRecords(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	return reader.ReadAll()
}
