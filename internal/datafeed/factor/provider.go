package factor

import (
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// FactorFileProvider loads the factor file of a security.
type FactorFileProvider interface {
	// Get returns the factor file of symbol. A missing file is reported with
	// ErrCodeDataNotFound.
	Get(symbol types.Symbol) (*File, error)
}

// MapFileProvider resolves the ticker history of a security.
type MapFileProvider interface {
	// ResolveMapFile returns the map file whose mapped ticker on asOf equals the
	// symbol's ticker. A missing file is reported with ErrCodeDataNotFound.
	ResolveMapFile(symbol types.Symbol, asOf time.Time) (*MapFile, error)
}

// IsNotFound reports whether a provider error means "no file for this symbol".
func IsNotFound(err error) bool {
	return errors.HasCode(err, errors.ErrCodeDataNotFound)
}

// HasFactorFiles reports whether securities of this type carry factor and map files.
func HasFactorFiles(symbol types.Symbol) bool {
	return symbol.SecurityType == types.SecurityTypeEquity
}

// InMemoryProvider serves factor and map files registered in code.
type InMemoryProvider struct {
	mu          sync.RWMutex
	factorFiles map[string]*File
	mapFiles    []*MapFile
}

var (
	_ FactorFileProvider = (*InMemoryProvider)(nil)
	_ MapFileProvider    = (*InMemoryProvider)(nil)
)

func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{
		mu:          sync.RWMutex{},
		factorFiles: make(map[string]*File),
		mapFiles:    nil,
	}
}

// AddFactorFile registers a factor file under its permtick.
func (p *InMemoryProvider) AddFactorFile(file *File) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.factorFiles[file.Permtick] = file
}

// AddMapFile registers a map file.
func (p *InMemoryProvider) AddMapFile(file *MapFile) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.mapFiles = append(p.mapFiles, file)
}

func (p *InMemoryProvider) Get(symbol types.Symbol) (*File, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if file, ok := p.factorFiles[symbol.Ticker]; ok {
		return file, nil
	}

	return nil, errors.Newf(errors.ErrCodeDataNotFound, "no factor file for %s", symbol.Ticker)
}

func (p *InMemoryProvider) ResolveMapFile(symbol types.Symbol, asOf time.Time) (*MapFile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return resolveMapFile(p.mapFiles, symbol, asOf)
}

// resolveMapFile prefers the file whose ticker on asOf matches, then a file
// named after the ticker.
func resolveMapFile(files []*MapFile, symbol types.Symbol, asOf time.Time) (*MapFile, error) {
	for _, file := range files {
		if file.MappedTicker(asOf) == symbol.Ticker {
			return file, nil
		}
	}

	for _, file := range files {
		if file.Permtick == symbol.Ticker {
			return file, nil
		}
	}

	return nil, errors.Newf(errors.ErrCodeDataNotFound, "no map file for %s", symbol.Ticker)
}
