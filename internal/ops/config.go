package ops

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"

	"bondpipe/internal/algoexec"
	"bondpipe/internal/connector"
	"bondpipe/internal/datagen"
	"bondpipe/internal/risk"
	"bondpipe/internal/schema"
)

const envPrefix = "BONDPIPE"

// Config mirrors the config file layout. Every key may be overridden by an
// environment variable, e.g. BONDPIPE_MARKETDATA_DEPTH.
type Config struct {
	Input      InputConfig      `mapstructure:"input"`
	Output     OutputConfig     `mapstructure:"output"`
	MarketData MarketDataConfig `mapstructure:"marketdata"`
	Algo       AlgoConfig       `mapstructure:"algo"`
	Booking    BookingConfig    `mapstructure:"booking"`
	GUI        GUIConfig        `mapstructure:"gui"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Reference  ReferenceConfig  `mapstructure:"reference"`
	Connector  ConnectorConfig  `mapstructure:"connector"`
	Snapshot   SnapshotConfig   `mapstructure:"snapshot"`
	Recover    bool             `mapstructure:"recover"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Profiling  ProfilingConfig  `mapstructure:"profiling"`
	Generate   GenerateConfig   `mapstructure:"generate"`
}

type InputConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

type OutputConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
	// Truncate empties output files at startup instead of appending.
	Truncate bool `mapstructure:"truncate"`
}

type MarketDataConfig struct {
	Depth int `mapstructure:"depth" validate:"gte=1"`
}

// Order id sources.
const (
	OrderIDsRandom   = "random"
	OrderIDsSequence = "sequence"
)

type AlgoConfig struct {
	SpreadLimit   string `mapstructure:"spread_limit" validate:"required,numeric"`
	ParentOrderID string `mapstructure:"parent_order_id" validate:"required"`
	// OrderIDs is "random" or "sequence"; sequence ids make runs reproducible.
	OrderIDs string `mapstructure:"order_ids" validate:"oneof=random sequence"`
}

type BookingConfig struct {
	Books      []string `mapstructure:"books" validate:"min=1,dive,required"`
	NotifyOnce bool     `mapstructure:"notify_once"`
}

type GUIConfig struct {
	Throttle time.Duration `mapstructure:"throttle" validate:"gte=0"`
}

type ArchiveConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval" validate:"gte=0"`
	QueueSize     int           `mapstructure:"queue_size" validate:"gte=1"`
	// DropWhenFull drops and counts records instead of blocking the stage
	// when the archive queue is full.
	DropWhenFull bool     `mapstructure:"drop_when_full"`
	DB           DBConfig `mapstructure:"db"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver" validate:"omitempty,oneof=postgres sqlite"`
	DSN    string `mapstructure:"dsn" validate:"required_with=Driver"`
}

type RiskConfig struct {
	MaxAbsPV01 string         `mapstructure:"max_abs_pv01" validate:"omitempty,numeric"`
	Sectors    []SectorConfig `mapstructure:"sectors" validate:"dive"`
}

type SectorConfig struct {
	Name   string `mapstructure:"name" validate:"required"`
	Tenors []int  `mapstructure:"tenors" validate:"min=1,dive,gte=1"`
}

type ReferenceConfig struct {
	Instruments []InstrumentConfig `mapstructure:"instruments" validate:"dive"`
}

type InstrumentConfig struct {
	ID       string `mapstructure:"id" validate:"required"`
	Tenor    int    `mapstructure:"tenor" validate:"gte=1"`
	Coupon   string `mapstructure:"coupon" validate:"omitempty,numeric"`
	Maturity string `mapstructure:"maturity" validate:"omitempty,datetime=2006-01-02"`
	PV01     string `mapstructure:"pv01" validate:"required,numeric"`
}

type ConnectorConfig struct {
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0"`
}

type SnapshotConfig struct {
	Path string `mapstructure:"path"`
}

type MetricsConfig struct {
	Path string `mapstructure:"path"`
}

type ProfilingConfig struct {
	ServerAddress   string `mapstructure:"server_address" validate:"omitempty,url"`
	ApplicationName string `mapstructure:"application_name"`
}

type GenerateConfig struct {
	Enabled    bool  `mapstructure:"enabled"`
	Seed       int64 `mapstructure:"seed"`
	Prices     int   `mapstructure:"prices" validate:"gte=0"`
	Trades     int   `mapstructure:"trades" validate:"gte=0"`
	MarketData int   `mapstructure:"marketdata" validate:"gte=0"`
	Inquiries  int   `mapstructure:"inquiries" validate:"gte=0"`
	// Chaos mangles the generated files to exercise the skip paths.
	Chaos ChaosConfig `mapstructure:"chaos"`
}

type ChaosConfig struct {
	DropRate      float64 `mapstructure:"drop_rate" validate:"gte=0,lte=1"`
	DuplicateRate float64 `mapstructure:"duplicate_rate" validate:"gte=0,lte=1"`
	CorruptRate   float64 `mapstructure:"corrupt_rate" validate:"gte=0,lte=1"`
	ReorderWindow int     `mapstructure:"reorder_window" validate:"gte=0"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Config
	Registry    *schema.Registry
	Sectors     []schema.Sector
	SpreadLimit decimal.Decimal
	MaxAbsPV01  decimal.Decimal
}

// Options controls where configuration is read from.
type Options struct {
	// Path of a YAML, JSON or TOML config file. Empty uses defaults and env only.
	Path string
	// EnvFile is loaded into the process environment if it exists.
	EnvFile string
}

func setDefaults(v *viper.Viper) {
	sizes := datagen.DefaultSizes()
	v.SetDefault("input.dir", ".")
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.truncate", false)
	v.SetDefault("marketdata.depth", 10)
	v.SetDefault("algo.spread_limit", algoexec.DefaultSpreadLimit.String())
	v.SetDefault("algo.parent_order_id", algoexec.DefaultParentOrderID)
	v.SetDefault("algo.order_ids", OrderIDsRandom)
	v.SetDefault("booking.books", []string{"TRSY1", "TRSY2", "TRSY3"})
	v.SetDefault("booking.notify_once", false)
	v.SetDefault("gui.throttle", "300ms")
	v.SetDefault("archive.flush_interval", "0s")
	v.SetDefault("archive.queue_size", 4096)
	v.SetDefault("archive.drop_when_full", false)
	v.SetDefault("archive.db.driver", "")
	v.SetDefault("archive.db.dsn", "")
	v.SetDefault("risk.max_abs_pv01", "")
	v.SetDefault("connector.max_retries", connector.DefaultMaxRetries)
	v.SetDefault("snapshot.path", "")
	v.SetDefault("recover", false)
	v.SetDefault("metrics.path", "")
	v.SetDefault("profiling.server_address", "")
	v.SetDefault("profiling.application_name", "bondpipe")
	v.SetDefault("generate.enabled", false)
	v.SetDefault("generate.seed", 1)
	v.SetDefault("generate.prices", sizes.Prices)
	v.SetDefault("generate.trades", sizes.Trades)
	v.SetDefault("generate.marketdata", sizes.MarketData)
	v.SetDefault("generate.inquiries", sizes.Inquiries)
	v.SetDefault("generate.chaos.drop_rate", 0)
	v.SetDefault("generate.chaos.duplicate_rate", 0)
	v.SetDefault("generate.chaos.corrupt_rate", 0)
	v.SetDefault("generate.chaos.reorder_window", 0)
}

// Load reads, validates and resolves the configuration.
func Load(opts Options) (Loaded, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Loaded{}, errors.Wrapf(err, "load env file %s", opts.EnvFile)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return Loaded{}, errors.Wrapf(err, "read config %s", opts.Path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	return Resolve(cfg)
}

// Resolve fills derived defaults, validates cfg and builds reference data.
func Resolve(cfg Config) (Loaded, error) {
	cfg = cfg.withDefaults()
	if err := validator.New().Struct(cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "invalid config")
	}

	reg, err := buildRegistry(cfg.Reference.Instruments)
	if err != nil {
		return Loaded{}, err
	}

	specs := make([]risk.SectorSpec, 0, len(cfg.Risk.Sectors))
	for _, s := range cfg.Risk.Sectors {
		specs = append(specs, risk.SectorSpec{Name: s.Name, Tenors: s.Tenors})
	}
	sectors, err := risk.BuildSectors(specs, reg)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "build sectors")
	}

	spreadLimit, err := decimal.NewFromString(cfg.Algo.SpreadLimit)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "algo.spread_limit")
	}
	if spreadLimit.IsNegative() {
		return Loaded{}, errors.Errorf("algo.spread_limit must be >= 0, got %s", spreadLimit)
	}

	maxPV01 := decimal.Zero
	if cfg.Risk.MaxAbsPV01 != "" {
		if maxPV01, err = decimal.NewFromString(cfg.Risk.MaxAbsPV01); err != nil {
			return Loaded{}, errors.Wrap(err, "risk.max_abs_pv01")
		}
	}

	return Loaded{
		Config:      cfg,
		Registry:    reg,
		Sectors:     sectors,
		SpreadLimit: spreadLimit,
		MaxAbsPV01:  maxPV01,
	}, nil
}

func (c Config) withDefaults() Config {
	if c.Input.Dir == "" {
		c.Input.Dir = "."
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.MarketData.Depth == 0 {
		c.MarketData.Depth = 10
	}
	if c.Algo.SpreadLimit == "" {
		c.Algo.SpreadLimit = algoexec.DefaultSpreadLimit.String()
	}
	if c.Algo.ParentOrderID == "" {
		c.Algo.ParentOrderID = algoexec.DefaultParentOrderID
	}
	if c.Algo.OrderIDs == "" {
		c.Algo.OrderIDs = OrderIDsRandom
	}
	if len(c.Booking.Books) == 0 {
		c.Booking.Books = []string{"TRSY1", "TRSY2", "TRSY3"}
	}
	if c.Archive.QueueSize == 0 {
		c.Archive.QueueSize = 4096
	}
	if len(c.Risk.Sectors) == 0 {
		for _, s := range risk.DefaultSectors() {
			c.Risk.Sectors = append(c.Risk.Sectors, SectorConfig{Name: s.Name, Tenors: s.Tenors})
		}
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = filepath.Join(c.Output.Dir, "positions.json")
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = filepath.Join(c.Output.Dir, "metrics.prom")
	}
	return c
}

func buildRegistry(instruments []InstrumentConfig) (*schema.Registry, error) {
	if len(instruments) == 0 {
		return schema.DefaultRegistry(), nil
	}

	list := make([]schema.Instrument, 0, len(instruments))
	for _, ic := range instruments {
		inst := schema.Instrument{ID: ic.ID, Tenor: ic.Tenor}
		var err error
		if inst.PV01, err = decimal.NewFromString(ic.PV01); err != nil {
			return nil, errors.Wrapf(err, "instrument %s: pv01", ic.ID)
		}
		if ic.Coupon != "" {
			if inst.Coupon, err = decimal.NewFromString(ic.Coupon); err != nil {
				return nil, errors.Wrapf(err, "instrument %s: coupon", ic.ID)
			}
		}
		if ic.Maturity != "" {
			if inst.Maturity, err = time.Parse(time.DateOnly, ic.Maturity); err != nil {
				return nil, errors.Wrapf(err, "instrument %s: maturity", ic.ID)
			}
		}
		list = append(list, inst)
	}
	return schema.NewRegistry(list...)
}
