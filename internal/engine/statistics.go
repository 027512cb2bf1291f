package engine

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Statistics summarizes a run. It is written to stats.yaml next to the
// parquet results.
type Statistics struct {
	RunID         string    `yaml:"run_id" json:"run_id"`
	Algorithm     string    `yaml:"algorithm" json:"algorithm"`
	Mode          Mode      `yaml:"mode" json:"mode"`
	Start         time.Time `yaml:"start" json:"start"`
	End           time.Time `yaml:"end" json:"end"`
	StartingValue float64   `yaml:"starting_value" json:"starting_value"`
	FinalValue    float64   `yaml:"final_value" json:"final_value"`
	NetProfit     float64   `yaml:"net_profit" json:"net_profit"`
	// TotalReturn is NetProfit over StartingValue.
	TotalReturn  float64 `yaml:"total_return" json:"total_return"`
	Orders       int     `yaml:"orders" json:"orders"`
	Fills        int     `yaml:"fills" json:"fills"`
	BuyFills     int     `yaml:"buy_fills" json:"buy_fills"`
	SellFills    int     `yaml:"sell_fills" json:"sell_fills"`
	Rejected     int     `yaml:"rejected" json:"rejected"`
	TotalFees    float64 `yaml:"total_fees" json:"total_fees"`
	TradedVolume float64 `yaml:"traded_volume" json:"traded_volume"`
	// MaxDrawdown is the largest peak-to-trough fall of the portfolio value,
	// as a fraction of the peak.
	MaxDrawdown float64 `yaml:"max_drawdown" json:"max_drawdown"`
	TradingDays int     `yaml:"trading_days" json:"trading_days"`
}

type statsAccumulator struct {
	fills        int
	buyFills     int
	sellFills    int
	rejected     int
	totalFees    float64
	tradedVolume float64
	peakValue    float64
	lastValue    float64
	maxDrawdown  float64
}

func (a *statsAccumulator) recordEvent(event types.OrderEvent) {
	switch {
	case event.Status == types.OrderStatusInvalid:
		a.rejected++
	case event.Status.IsFill():
		a.fills++

		if event.FillQuantity.Sign() > 0 {
			a.buyFills++
		} else {
			a.sellFills++
		}

		a.totalFees += event.OrderFee.InexactFloat64()
		a.tradedVolume += event.FillValue().InexactFloat64()
	}
}

func (a *statsAccumulator) recordValue(value float64) {
	a.lastValue = value

	if value > a.peakValue {
		a.peakValue = value

		return
	}

	if a.peakValue > 0 {
		if drawdown := (a.peakValue - value) / a.peakValue; drawdown > a.maxDrawdown {
			a.maxDrawdown = drawdown
		}
	}
}

// StatsTracker accumulates run statistics from order events and portfolio
// values. Values are tracked per day and for the whole run.
type StatsTracker struct {
	mu sync.Mutex

	runID         string
	algorithm     string
	mode          Mode
	start         time.Time
	last          time.Time
	startingValue float64
	currentDate   string
	tradingDays   int

	daily      *statsAccumulator
	cumulative *statsAccumulator

	logger *logger.Logger
}

func NewStatsTracker(log *logger.Logger) *StatsTracker {
	//nolint:exhaustruct
	return &StatsTracker{
		daily:      &statsAccumulator{},
		cumulative: &statsAccumulator{},
		logger:     log.Named("stats"),
	}
}

// Initialize starts a run at start with the given portfolio value.
func (s *StatsTracker) Initialize(runID, algorithm string, mode Mode, start time.Time, startingValue float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runID = runID
	s.algorithm = algorithm
	s.mode = mode
	s.start = start
	s.last = start
	s.startingValue = startingValue
	s.currentDate = start.Format(time.DateOnly)
	s.tradingDays = 0
	s.daily = &statsAccumulator{}      //nolint:exhaustruct
	s.cumulative = &statsAccumulator{} //nolint:exhaustruct
	s.cumulative.recordValue(startingValue)
	s.daily.recordValue(startingValue)

	s.logger.Info("Stats tracker initialized",
		zap.String("run_id", runID),
		zap.Float64("starting_value", startingValue),
	)
}

func (s *StatsTracker) RecordOrderEvent(event types.OrderEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.daily.recordEvent(event)
	s.cumulative.recordEvent(event)
}

// RecordValue samples the portfolio value at utc. Crossing into a new date
// closes the previous day.
func (s *StatsTracker) RecordValue(utc time.Time, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date := utc.Format(time.DateOnly)
	if date != s.currentDate {
		s.closeDay()
		s.currentDate = date
	}

	s.last = utc
	s.daily.recordValue(value)
	s.cumulative.recordValue(value)
}

// closeDay logs the finished day and resets the daily accumulator. Callers
// hold mu.
func (s *StatsTracker) closeDay() {
	if s.daily.fills > 0 || s.daily.lastValue > 0 {
		s.tradingDays++
	}

	s.logger.Debug("Day closed",
		zap.String("date", s.currentDate),
		zap.Int("fills", s.daily.fills),
		zap.Float64("fees", s.daily.totalFees),
		zap.Float64("value", s.daily.lastValue),
		zap.Float64("max_drawdown", s.daily.maxDrawdown),
	)

	previous := s.daily.lastValue
	s.daily = &statsAccumulator{} //nolint:exhaustruct
	s.daily.recordValue(previous)
}

// Statistics returns the run summary so far. orders is the number of orders
// the transaction handler created.
func (s *StatsTracker) Statistics(orders int) Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	final := s.cumulative.lastValue
	net := final - s.startingValue

	totalReturn := 0.0
	if s.startingValue > 0 {
		totalReturn = net / s.startingValue
	}

	days := s.tradingDays
	if s.daily.fills > 0 || s.daily.lastValue > 0 {
		days++
	}

	return Statistics{
		RunID:         s.runID,
		Algorithm:     s.algorithm,
		Mode:          s.mode,
		Start:         s.start,
		End:           s.last,
		StartingValue: s.startingValue,
		FinalValue:    final,
		NetProfit:     net,
		TotalReturn:   totalReturn,
		Orders:        orders,
		Fills:         s.cumulative.fills,
		BuyFills:      s.cumulative.buyFills,
		SellFills:     s.cumulative.sellFills,
		Rejected:      s.cumulative.rejected,
		TotalFees:     s.cumulative.totalFees,
		TradedVolume:  s.cumulative.tradedVolume,
		MaxDrawdown:   s.cumulative.maxDrawdown,
		TradingDays:   days,
	}
}

// WriteStatsYAML writes stats to path, creating the folder.
func WriteStatsYAML(path string, stats Statistics) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to create results folder", err)
	}

	data, err := yaml.Marshal(stats)
	if err != nil {
		return errors.Wrap(errors.ErrCodeResultsWriteFail, "failed to marshal statistics", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrapf(errors.ErrCodeResultsWriteFail, err, "failed to write %s", path)
	}

	return nil
}
