package factor

import (
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
)

// Resolver answers scale-factor and ticker questions for securities, caching
// the files it loads.
type Resolver struct {
	factorFiles FactorFileProvider
	mapFiles    MapFileProvider

	mu          sync.Mutex
	factorCache map[string]*File
}

func NewResolver(factorFiles FactorFileProvider, mapFiles MapFileProvider) *Resolver {
	return &Resolver{
		factorFiles: factorFiles,
		mapFiles:    mapFiles,
		mu:          sync.Mutex{},
		factorCache: make(map[string]*File),
	}
}

// MapFile resolves the map file of symbol as of a date. It returns nil without
// error for securities that have no map files.
func (r *Resolver) MapFile(symbol types.Symbol, asOf time.Time) (*MapFile, error) {
	if r.mapFiles == nil || !HasFactorFiles(symbol) {
		return nil, nil
	}

	file, err := r.mapFiles.ResolveMapFile(symbol, asOf)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	return file, nil
}

// FactorFile returns the factor file for the permtick, or nil when the
// security has none.
func (r *Resolver) FactorFile(symbol types.Symbol, permtick string) (*File, error) {
	if r.factorFiles == nil || !HasFactorFiles(symbol) {
		return nil, nil
	}

	if permtick == "" {
		permtick = symbol.Ticker
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if file, ok := r.factorCache[permtick]; ok {
		return file, nil
	}

	lookup := symbol
	lookup.Ticker = permtick

	file, err := r.factorFiles.Get(lookup)
	if err != nil {
		if IsNotFound(err) {
			r.factorCache[permtick] = nil

			return nil, nil
		}

		return nil, err
	}

	r.factorCache[permtick] = file

	return file, nil
}

// PriceScaleFactor returns the scale factor for symbol on date, 1 when no
// factor file applies.
func (r *Resolver) PriceScaleFactor(symbol types.Symbol, date time.Time, mode types.DataNormalizationMode) (float64, error) {
	mapFile, err := r.MapFile(symbol, date)
	if err != nil {
		return 1, err
	}

	permtick := symbol.Ticker
	if mapFile != nil {
		permtick = mapFile.Permtick
	}

	file, err := r.FactorFile(symbol, permtick)
	if err != nil || file == nil {
		return 1, err
	}

	return file.PriceScaleFactor(date, mode), nil
}
