package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
)

// DownloadConfig configures remote transports.
type DownloadConfig struct {
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	RetryCount int           `yaml:"retry_count" json:"retry_count" validate:"gte=0"`
	RetryWait  time.Duration `yaml:"retry_wait" json:"retry_wait"`
	// CacheDir receives downloaded parquet files. Empty means the OS temp dir.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// DefaultDownloadConfig returns a 30s timeout with two retries.
func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		Timeout:    30 * time.Second,
		RetryCount: 2,
		RetryWait:  500 * time.Millisecond,
		CacheDir:   "",
	}
}

// ReaderFactory opens CSV sources line by line and parquet bar files through DuckDB.
// Sources are opened lazily when the returned reader is first iterated.
type ReaderFactory struct {
	client   *resty.Client
	cacheDir string
	logger   *logger.Logger
}

var _ Opener = (*ReaderFactory)(nil)

func NewReaderFactory(cfg DownloadConfig, log *logger.Logger) *ReaderFactory {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait)

	return &ReaderFactory{
		client:   client,
		cacheDir: cfg.CacheDir,
		logger:   log,
	}
}

// Open returns a reader for source. Missing local files are reported through
// the reader as ErrCodeDataNotFound and remote failures as ErrCodeDownloadFailed.
func (f *ReaderFactory) Open(ctx context.Context, config *types.SubscriptionDataConfig, source SubscriptionDataSource, parse LineParser) (SourceReader, error) {
	switch source.Format {
	case FormatCSV, "":
		return f.textReader(ctx, source, parse), nil
	case FormatParquet:
		if config.Kind != types.DataKindTradeBar {
			return nil, errors.Newf(errors.ErrCodeUnknownDataKind, "parquet sources only carry trade bars, got %s", config.Kind)
		}

		return f.parquetReader(ctx, config, source), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported source format %q", source.Format)
	}
}

func (f *ReaderFactory) textReader(ctx context.Context, source SubscriptionDataSource, parse LineParser) SourceReader {
	return func(yield func(types.BaseData, error) bool) {
		body, err := f.openText(ctx, source)
		if err != nil {
			yield(nil, err)

			return
		}
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			point, err := parse(scanner.Text())
			if err != nil {
				if !yield(nil, err) {
					return
				}

				continue
			}

			if point == nil {
				continue
			}

			if !yield(point, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield(nil, errors.Wrapf(errors.ErrCodeReaderFailed, err, "failed to read %s", source.Source))
		}
	}
}

func (f *ReaderFactory) openText(ctx context.Context, source SubscriptionDataSource) (io.ReadCloser, error) {
	if source.Transport == TransportLocalFile {
		file, err := os.Open(source.Source)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "no data at %s", source.Source)
			}

			return nil, errors.Wrapf(errors.ErrCodeReaderFailed, err, "failed to open %s", source.Source)
		}

		return file, nil
	}

	f.logger.Debug("Downloading source", zap.String("url", source.Source), zap.String("transport", string(source.Transport)))

	resp, err := f.client.R().SetContext(ctx).Get(source.Source)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDownloadFailed, err, "failed to download %s", source.Source)
	}

	if resp.IsError() {
		return nil, errors.Newf(errors.ErrCodeDownloadFailed, "failed to download %s: status %d", source.Source, resp.StatusCode())
	}

	return io.NopCloser(bytes.NewReader(resp.Body())), nil
}

// download fetches a remote file into the cache directory and returns its path.
func (f *ReaderFactory) download(ctx context.Context, source SubscriptionDataSource) (string, error) {
	dir := f.cacheDir
	if dir == "" {
		dir = os.TempDir()
	}

	target := filepath.Join(dir, fmt.Sprintf("argo-%d-%s", time.Now().UnixNano(), filepath.Base(source.Source)))

	resp, err := f.client.R().SetContext(ctx).SetOutput(target).Get(source.Source)
	if err != nil {
		return "", errors.Wrapf(errors.ErrCodeDownloadFailed, err, "failed to download %s", source.Source)
	}

	if resp.IsError() {
		os.Remove(target) //nolint:errcheck

		return "", errors.Newf(errors.ErrCodeDownloadFailed, "failed to download %s: status %d", source.Source, resp.StatusCode())
	}

	return target, nil
}

func (f *ReaderFactory) parquetReader(ctx context.Context, config *types.SubscriptionDataConfig, source SubscriptionDataSource) SourceReader {
	return func(yield func(types.BaseData, error) bool) {
		path := source.Source

		if source.Transport == TransportLocalFile {
			if _, err := os.Stat(path); err != nil {
				if os.IsNotExist(err) {
					yield(nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "no data at %s", path))
				} else {
					yield(nil, errors.Wrapf(errors.ErrCodeReaderFailed, err, "failed to stat %s", path))
				}

				return
			}
		} else {
			downloaded, err := f.download(ctx, source)
			if err != nil {
				yield(nil, err)

				return
			}
			defer os.Remove(downloaded) //nolint:errcheck

			path = downloaded
		}

		reader := &DuckDBReader{logger: f.logger}
		for bar, err := range reader.ReadBars(ctx, config, path) {
			if !yield(bar, err) {
				return
			}
		}
	}
}
