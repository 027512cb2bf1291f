// Package source locates and opens the raw data behind a subscription.
//
// A Factory, registered per data kind, knows where the data for a date lives
// (a SubscriptionDataSource) and how to parse one line of it. A ReaderFactory
// turns a SubscriptionDataSource into a SourceReader that yields parsed points.
package source

import (
	"context"
	"iter"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
)

type Transport string

type Format string

const (
	TransportLocalFile  Transport = "LOCAL_FILE"
	TransportRemoteFile Transport = "REMOTE_FILE"
	// TransportRest is polled: the source is re-read every time it is requested.
	TransportRest Transport = "REST"
)

const (
	FormatCSV     Format = "CSV"
	FormatParquet Format = "PARQUET"
)

// SubscriptionDataSource locates the raw data for one subscription and date.
// Two sources are the same when all fields are equal.
type SubscriptionDataSource struct {
	Source    string    `yaml:"source" json:"source"`
	Transport Transport `yaml:"transport" json:"transport"`
	Format    Format    `yaml:"format" json:"format"`
}

// IsZero reports whether the source is empty, meaning there is no data for the date.
func (s SubscriptionDataSource) IsZero() bool {
	return s.Source == ""
}

// Factory builds sources and parses lines for one data kind.
type Factory interface {
	// Source returns where the data for date lives. date is in exchange time.
	Source(config *types.SubscriptionDataConfig, date time.Time, live bool) SubscriptionDataSource
	// Parse turns one line into a data point. A nil point with a nil error
	// means the line carries no data (headers, blank lines).
	Parse(config *types.SubscriptionDataConfig, line string, date time.Time, live bool) (types.BaseData, error)
}

// SourceReader yields the points of one opened source in file order. Parse
// failures are yielded as errors and reading continues; a read failure is
// yielded once and ends the sequence.
type SourceReader = iter.Seq2[types.BaseData, error]

// LineParser parses one line of a text source.
type LineParser func(line string) (types.BaseData, error)

// Opener opens sources.
type Opener interface {
	Open(ctx context.Context, config *types.SubscriptionDataConfig, source SubscriptionDataSource, parse LineParser) (SourceReader, error)
}
