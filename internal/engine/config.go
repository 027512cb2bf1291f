package engine

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/brokerage"
	"github.com/rxtech-lab/argo-engine/internal/datafeed/live"
	"github.com/rxtech-lab/argo-engine/internal/datafeed/source"
	"github.com/rxtech-lab/argo-engine/internal/universe"
	"github.com/rxtech-lab/argo-engine/internal/version"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	// ModeBacktest replays history on a simulated clock.
	ModeBacktest Mode = "backtest"
	// ModePaper trades the live websocket feed against the simulated brokerage.
	ModePaper Mode = "paper"
)

// TransactionsConfig tunes the order request queue.
type TransactionsConfig struct {
	QueueSize   int           `yaml:"queue_size" json:"queue_size" validate:"gte=0"`
	BusyTimeout time.Duration `yaml:"busy_timeout" json:"busy_timeout"`
}

type Config struct {
	// Version is the engine version the config was written for.
	Version         string  `yaml:"version" json:"version,omitempty" jsonschema:"title=Version,description=Engine version this config targets"`
	Mode            Mode    `yaml:"mode" json:"mode" validate:"omitempty,oneof=backtest paper" jsonschema:"title=Mode,enum=backtest,enum=paper"`
	InitialCapital  float64 `yaml:"initial_capital" json:"initial_capital" validate:"gte=0" jsonschema:"title=Initial Capital,description=Starting cash in the account currency,minimum=0"`
	AccountCurrency string  `yaml:"account_currency" json:"account_currency" validate:"required,len=3" jsonschema:"title=Account Currency"`
	// StartTime and EndTime bound a backtest. Both are required in backtest mode.
	StartTime optional.Option[time.Time] `yaml:"-" json:"start_time" jsonschema:"title=Start Time"`
	EndTime   optional.Option[time.Time] `yaml:"-" json:"end_time" jsonschema:"title=End Time"`
	// WarmUp feeds this much history before StartTime without trading.
	WarmUp time.Duration `yaml:"warm_up" json:"warm_up" jsonschema:"title=Warm Up"`
	// DataRoot is a directory or an http(s) base URL.
	DataRoot   string        `yaml:"data_root" json:"data_root" validate:"required" jsonschema:"title=Data Root"`
	DataFormat source.Format `yaml:"data_format" json:"data_format" validate:"omitempty,oneof=CSV PARQUET" jsonschema:"title=Data Format,enum=CSV,enum=PARQUET"`
	// FactorRoot holds factor and map files. Defaults to DataRoot.
	FactorRoot string `yaml:"factor_root" json:"factor_root,omitempty"`
	// FactorDatabase reads factor and map files from a DuckDB database instead.
	FactorDatabase string                 `yaml:"factor_database" json:"factor_database,omitempty"`
	ResultsFolder  string                 `yaml:"results_folder" json:"results_folder,omitempty" jsonschema:"title=Results Folder"`
	LogLevel       string                 `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Universe       universe.Settings      `yaml:"universe" json:"universe"`
	Brokerage      brokerage.DefaultModel `yaml:"brokerage" json:"brokerage"`
	Download       source.DownloadConfig  `yaml:"download" json:"download"`
	Transactions   TransactionsConfig     `yaml:"transactions" json:"transactions"`
	// Live is only read in paper mode.
	Live live.Config `yaml:"live" json:"live" validate:"-"`
}

// UnmarshalYAML decodes the optional start and end times through pointers.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type plain Config

	aux := struct {
		Plain     plain      `yaml:",inline"`
		StartTime *time.Time `yaml:"start_time"`
		EndTime   *time.Time `yaml:"end_time"`
	}{
		Plain:     plain(*c),
		StartTime: nil,
		EndTime:   nil,
	}

	if err := value.Decode(&aux); err != nil {
		return err
	}

	*c = Config(aux.Plain)

	if aux.StartTime != nil {
		c.StartTime = optional.Some(aux.StartTime.UTC())
	}

	if aux.EndTime != nil {
		c.EndTime = optional.Some(aux.EndTime.UTC())
	}

	return nil
}

// DefaultConfig is a cash account backtest with 100k USD and adjusted minute
// bars read from ./data.
func DefaultConfig() Config {
	return Config{
		Version:         "",
		Mode:            ModeBacktest,
		InitialCapital:  100000,
		AccountCurrency: "USD",
		StartTime:       optional.None[time.Time](),
		EndTime:         optional.None[time.Time](),
		WarmUp:          0,
		DataRoot:        "./data",
		DataFormat:      source.FormatCSV,
		FactorRoot:      "",
		FactorDatabase:  "",
		ResultsFolder:   "",
		LogLevel:        "info",
		Universe:        universe.DefaultSettings(),
		Brokerage: brokerage.DefaultModel{
			AccountType:        brokerage.AccountTypeCash,
			Fee:                brokerage.FeeModelInteractiveBroker,
			ConstantFee:        decimal.Zero,
			Leverage:           decimal.NewFromInt(1),
			UpdatesRequireLive: false,
		},
		Download: source.DefaultDownloadConfig(),
		Transactions: TransactionsConfig{
			QueueSize:   0,
			BusyTimeout: 0,
		},
		Live: live.Config{
			URL:              "",
			BufferSize:       0,
			MaxReconnectWait: 0,
			HandshakeTimeout: 0,
		},
	}
}

// TestConfig is a zero-fee backtest over [start, end) reading from dataRoot.
func TestConfig(start, end time.Time, dataRoot string) Config {
	config := DefaultConfig()
	config.StartTime = optional.Some(start)
	config.EndTime = optional.Some(end)
	config.DataRoot = dataRoot
	config.Brokerage.Fee = brokerage.FeeModelZero

	return config
}

// LoadConfig decodes YAML on top of DefaultConfig and validates the result.
func LoadConfig(data []byte) (Config, error) {
	config := DefaultConfig()

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks field rules, the engine version and the backtest period.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if err := version.CheckCompatibility(version.GetVersion(), c.Version); err != nil {
		return err
	}

	switch c.Mode {
	case ModePaper:
		if err := validate.Struct(c.Live); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfiguration, "paper trading needs a live feed", err)
		}
	case ModeBacktest, "":
		if c.StartTime.IsNone() || c.EndTime.IsNone() {
			return errors.New(errors.ErrCodeInvalidPeriod, "backtests need start_time and end_time")
		}

		if !c.StartTime.Unwrap().Before(c.EndTime.Unwrap()) {
			return errors.Newf(errors.ErrCodeInvalidPeriod, "start_time %s is not before end_time %s",
				c.StartTime.Unwrap().Format(time.RFC3339), c.EndTime.Unwrap().Format(time.RFC3339))
		}
	}

	if c.WarmUp < 0 {
		return errors.New(errors.ErrCodeInvalidParameter, "warm_up must not be negative")
	}

	return nil
}

func (c *Config) factorRoot() string {
	if c.FactorRoot != "" {
		return c.FactorRoot
	}

	return c.DataRoot
}

// GenerateSchema generates a JSON schema for Config.
func (c *Config) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			switch t {
			case reflect.TypeFor[optional.Option[time.Time]]():
				return &jsonschema.Schema{Type: "string", Format: "date-time"}
			case reflect.TypeFor[time.Duration]():
				return &jsonschema.Schema{Type: "string", Description: "Go duration such as 30s or 1h"}
			case reflect.TypeFor[decimal.Decimal]():
				return &jsonschema.Schema{Type: "number"}
			case reflect.TypeFor[brokerage.FeeModelType]():
				return &jsonschema.Schema{Type: "string", Enum: brokerage.AllFeeModels}
			}

			return nil
		},
	}

	schema := reflector.Reflect(c)
	schema.Title = "argo-engine-config"
	schema.Description = "Configuration schema for the argo engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates the JSON schema as an indented string.
func (c *Config) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
