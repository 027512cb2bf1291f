package mocks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
)

func TestDataGenerator_Generate(t *testing.T) {
	gen := NewDataGenerator(42) // Fixed seed for reproducibility
	config := DefaultConfig()
	config.Count = 100

	data := gen.Generate(config)

	if len(data) != 100 {
		t.Errorf("expected 100 bars, got %d", len(data))
	}

	for i := 1; i < len(data); i++ {
		if !data[i].Time.After(data[i-1].Time) {
			t.Errorf("bars not in chronological order at index %d", i)
		}

		if interval := data[i].Time.Sub(data[i-1].Time); interval != config.Interval {
			t.Errorf("unexpected interval at index %d: expected %v, got %v", i, config.Interval, interval)
		}
	}

	for i, d := range data {
		if d.Symbol != config.Symbol {
			t.Errorf("expected symbol %s at index %d, got %s", config.Symbol, i, d.Symbol)
		}

		if d.Open <= 0 || d.High <= 0 || d.Low <= 0 || d.Close <= 0 {
			t.Errorf("invalid OHLC values at index %d: O=%f H=%f L=%f C=%f", i, d.Open, d.High, d.Low, d.Close)
		}

		if d.High < d.Low {
			t.Errorf("High < Low at index %d: H=%f L=%f", i, d.High, d.Low)
		}

		if d.Period != config.Interval {
			t.Errorf("expected period %v at index %d, got %v", config.Interval, i, d.Period)
		}
	}
}

func TestDataGenerator_Reproducibility(t *testing.T) {
	gen1 := NewDataGenerator(42)
	gen2 := NewDataGenerator(42)

	config := DefaultConfig()
	config.Count = 10

	data1 := gen1.Generate(config)
	data2 := gen2.Generate(config)

	for i := range data1 {
		if data1[i].Close != data2[i].Close {
			t.Errorf("data not reproducible at index %d: got %f and %f", i, data1[i].Close, data2[i].Close)
		}
	}
}

func TestDataGenerator_Different_Seeds(t *testing.T) {
	config := DefaultConfig()
	config.Count = 10

	data1 := NewDataGenerator(42).Generate(config)
	data2 := NewDataGenerator(123).Generate(config)

	sameCount := 0
	for i := range data1 {
		if data1[i].Close == data2[i].Close {
			sameCount++
		}
	}

	if sameCount == len(data1) {
		t.Error("different seeds produced identical data")
	}
}

func TestDataGenerator_SessionOnly(t *testing.T) {
	config := DefaultConfig()
	// Friday 2024-01-05 15:58 New York
	config.StartTime = time.Date(2024, 1, 5, 20, 58, 0, 0, time.UTC)
	config.Count = 4
	config.SessionOnly = true

	data := NewDataGenerator(1).Generate(config)

	if len(data) != 4 {
		t.Fatalf("expected 4 bars, got %d", len(data))
	}

	// two bars on Friday, then Monday's open
	monday := time.Date(2024, 1, 8, 14, 30, 0, 0, time.UTC)
	if !data[2].Time.Equal(monday) {
		t.Errorf("expected third bar at %v, got %v", monday, data[2].Time)
	}
}

func TestGenerate10K(t *testing.T) {
	data := Generate10K("TEST")

	if len(data) != 10000 {
		t.Errorf("expected 10000 bars, got %d", len(data))
	}

	if data[0].Symbol.Ticker != "TEST" {
		t.Errorf("expected symbol TEST, got %s", data[0].Symbol.Ticker)
	}
}

func TestGenerateMultiSymbol(t *testing.T) {
	symbols := []types.Symbol{types.NewEquity("AAPL"), types.NewEquity("GOOG"), types.NewEquity("MSFT")}
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Count = 100

	data := gen.GenerateMultiSymbol(symbols, config)

	if expected := len(symbols) * config.Count; len(data) != expected {
		t.Errorf("expected %d bars, got %d", expected, len(data))
	}

	counts := make(map[types.Symbol]int)
	for _, d := range data {
		counts[d.Symbol]++
	}

	for _, symbol := range symbols {
		if counts[symbol] != config.Count {
			t.Errorf("expected %d bars for %s, got %d", config.Count, symbol, counts[symbol])
		}
	}
}

func TestWriteMinuteFiles(t *testing.T) {
	config := DefaultConfig()
	config.Symbol = types.NewEquity("SPY")
	// 2024-01-02 15:59 New York, crosses into the next session
	config.StartTime = time.Date(2024, 1, 2, 20, 59, 0, 0, time.UTC)
	config.Count = 2
	config.SessionOnly = true

	bars := NewDataGenerator(7).Generate(config)
	root := t.TempDir()

	paths, err := WriteMinuteFiles(root, bars, newYork)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{
		filepath.Join(root, "equity", "usa", "minute", "spy", "20240102_trade.csv"),
		filepath.Join(root, "equity", "usa", "minute", "spy", "20240103_trade.csv"),
	}

	if len(paths) != len(expected) {
		t.Fatalf("expected %d files, got %v", len(expected), paths)
	}

	for i := range expected {
		if paths[i] != expected[i] {
			t.Errorf("expected %s, got %s", expected[i], paths[i])
		}
	}

	content, err := os.ReadFile(paths[1])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 09:30 is 34,200,000 ms after midnight
	if !strings.HasPrefix(string(content), "34200000,") {
		t.Errorf("unexpected first row: %q", string(content))
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Count != 10000 {
		t.Errorf("expected default count 10000, got %d", config.Count)
	}

	if config.Symbol.Ticker != "TEST" {
		t.Errorf("expected default symbol TEST, got %s", config.Symbol.Ticker)
	}

	if config.Interval != time.Minute {
		t.Errorf("expected default interval 1m, got %v", config.Interval)
	}
}
