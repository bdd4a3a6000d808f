// Package config loads and validates the generation run configuration.
//
// Loading is layered the usual way: built-in defaults, then an optional
// YAML file, then RETAILGEN_* environment variables. The merged tree is
// validated against an embedded CUE schema before it is converted into
// the typed Config, so every configuration error (category a in the
// error taxonomy) surfaces before any generation work starts.
package config

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"
)

//go:embed schema.cue
var schemaCUE string

// Error is a fatal configuration error. Runs must not start when one is
// returned; there is no partial-run recovery from bad config.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config: %s", e.Message)
}

// Journey holds customer journey tuning.
type Journey struct {
	// BrowserRate is the expected non-entering passers-by per visitor
	// (foot traffic above the visit set).
	BrowserRate float64 `mapstructure:"browser_rate"`
	// BLEAttachRate is the fraction of visitors whose phone resolves to
	// a BLE ping. Buyers are drawn only from resolved visitors.
	BLEAttachRate float64 `mapstructure:"ble_attach_rate"`
	// BuyRate is the baseline probability that a resolved visitor buys.
	BuyRate float64 `mapstructure:"buy_rate"`
}

// Inventory holds replenishment and truck tuning.
type Inventory struct {
	TruckUnitCapacity     int     `mapstructure:"truck_unit_capacity"`
	MaxConcurrentPerDC    int     `mapstructure:"max_concurrent_per_dc"`
	ReorderPoint          int     `mapstructure:"reorder_point"`
	ReorderTarget         int     `mapstructure:"reorder_target"`
	DisruptionProbability float64 `mapstructure:"disruption_probability"`
	DelayMinHours         int     `mapstructure:"delay_min_hours"`
	DelayMaxHours         int     `mapstructure:"delay_max_hours"`
	LeadMinHours          int     `mapstructure:"lead_min_hours"`
	LeadMaxHours          int     `mapstructure:"lead_max_hours"`
}

// Channel is one marketing channel's cost range.
type Channel struct {
	Name    string  `mapstructure:"name"`
	CostMin float64 `mapstructure:"cost_min"`
	CostMax float64 `mapstructure:"cost_max"`
}

// Marketing holds campaign and attribution tuning.
type Marketing struct {
	StartProbability    float64   `mapstructure:"start_probability"`
	MaxActive           int       `mapstructure:"max_active"`
	MinDailyImpressions int       `mapstructure:"min_daily_impressions"`
	ResolvedFraction    float64   `mapstructure:"resolved_fraction"`
	AttributionMinHours int       `mapstructure:"attribution_min_hours"`
	AttributionMaxHours int       `mapstructure:"attribution_max_hours"`
	ConversionLift      float64   `mapstructure:"conversion_lift"`
	Channels            []Channel `mapstructure:"channels"`
}

// Orders holds online order tuning.
type Orders struct {
	// Rate is online demand as a fraction of walk-in demand.
	Rate float64 `mapstructure:"rate"`
}

// Reference sizes the demo reference dataset built when no external
// dimensions are supplied.
type Reference struct {
	Stores       int     `mapstructure:"stores"`
	DCs          int     `mapstructure:"dcs"`
	Customers    int     `mapstructure:"customers"`
	Products     int     `mapstructure:"products"`
	TruckDCRatio float64 `mapstructure:"truck_dc_ratio"`
}

// Config is the fully validated run configuration.
type Config struct {
	Seed     int64
	Start    time.Time
	End      time.Time
	Workers  int
	Parallel bool

	BaseHourlyArrivals   float64
	ReducedTaxMultiplier float64

	Journey   Journey
	Inventory Inventory
	Marketing Marketing
	Orders    Orders
	Reference Reference

	CalendarPath     string
	OutputPath       string
	CheckpointPath   string
	ProgressInterval time.Duration
}

// raw mirrors the YAML/env layout before dates are parsed.
type raw struct {
	Seed                 int64     `mapstructure:"seed"`
	Start                string    `mapstructure:"start"`
	End                  string    `mapstructure:"end"`
	Workers              int       `mapstructure:"workers"`
	Parallel             bool      `mapstructure:"parallel"`
	BaseHourlyArrivals   float64   `mapstructure:"base_hourly_arrivals"`
	ReducedTaxMultiplier float64   `mapstructure:"reduced_tax_multiplier"`
	Journey              Journey   `mapstructure:"journey"`
	Inventory            Inventory `mapstructure:"inventory"`
	Marketing            Marketing `mapstructure:"marketing"`
	Orders               Orders    `mapstructure:"orders"`
	Reference            Reference `mapstructure:"reference"`
	CalendarPath         string    `mapstructure:"calendar_path"`
	OutputPath           string    `mapstructure:"output_path"`
	CheckpointPath       string    `mapstructure:"checkpoint_path"`
	ProgressIntervalMS   int       `mapstructure:"progress_interval_ms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("seed", 1)
	v.SetDefault("start", "2024-01-01")
	v.SetDefault("end", "2024-01-02")
	v.SetDefault("workers", 4)
	v.SetDefault("parallel", true)
	v.SetDefault("base_hourly_arrivals", 36.0)
	v.SetDefault("reduced_tax_multiplier", 0.5)

	v.SetDefault("journey.browser_rate", 0.35)
	v.SetDefault("journey.ble_attach_rate", 0.65)
	v.SetDefault("journey.buy_rate", 0.62)

	v.SetDefault("inventory.truck_unit_capacity", 2400)
	v.SetDefault("inventory.max_concurrent_per_dc", 6)
	v.SetDefault("inventory.reorder_point", 60)
	v.SetDefault("inventory.reorder_target", 200)
	v.SetDefault("inventory.disruption_probability", 0.04)
	v.SetDefault("inventory.delay_min_hours", 4)
	v.SetDefault("inventory.delay_max_hours", 18)
	v.SetDefault("inventory.lead_min_hours", 4)
	v.SetDefault("inventory.lead_max_hours", 12)

	v.SetDefault("marketing.start_probability", 0.15)
	v.SetDefault("marketing.max_active", 4)
	v.SetDefault("marketing.min_daily_impressions", 500)
	v.SetDefault("marketing.resolved_fraction", 0.3)
	v.SetDefault("marketing.attribution_min_hours", 1)
	v.SetDefault("marketing.attribution_max_hours", 48)
	v.SetDefault("marketing.conversion_lift", 1.6)
	v.SetDefault("marketing.channels", []map[string]any{
		{"name": "social", "cost_min": 0.002, "cost_max": 0.012},
		{"name": "search", "cost_min": 0.01, "cost_max": 0.08},
		{"name": "display", "cost_min": 0.001, "cost_max": 0.006},
		{"name": "email", "cost_min": 0.0005, "cost_max": 0.002},
	})

	v.SetDefault("orders.rate", 0.12)

	v.SetDefault("reference.stores", 12)
	v.SetDefault("reference.dcs", 2)
	v.SetDefault("reference.customers", 600)
	v.SetDefault("reference.products", 240)
	v.SetDefault("reference.truck_dc_ratio", 0.7)

	v.SetDefault("calendar_path", "")
	v.SetDefault("output_path", "retailgen.db")
	v.SetDefault("checkpoint_path", "retailgen.checkpoint.json")
	v.SetDefault("progress_interval_ms", 500)
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RETAILGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &Error{Message: fmt.Sprintf("read %s: %v", path, err)}
		}
	}

	if err := validateAgainstSchema(v.AllSettings()); err != nil {
		return nil, err
	}

	var r raw
	if err := v.Unmarshal(&r); err != nil {
		return nil, &Error{Message: fmt.Sprintf("unmarshal: %v", err)}
	}
	return fromRaw(r)
}

// validateAgainstSchema unifies the merged settings tree with the
// embedded CUE schema. Any constraint violation becomes a fatal Error.
func validateAgainstSchema(settings map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return &Error{Message: fmt.Sprintf("internal schema error: %v", err)}
	}
	data := ctx.Encode(settings)
	if err := data.Err(); err != nil {
		return &Error{Message: fmt.Sprintf("encode settings: %v", err)}
	}
	unified := schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &Error{Message: strings.TrimSpace(cueerrors.Details(err, nil))}
	}
	return nil
}

func fromRaw(r raw) (*Config, error) {
	start, err := time.ParseInLocation("2006-01-02", r.Start, time.UTC)
	if err != nil {
		return nil, &Error{Field: "start", Message: fmt.Sprintf("invalid date %q", r.Start)}
	}
	end, err := time.ParseInLocation("2006-01-02", r.End, time.UTC)
	if err != nil {
		return nil, &Error{Field: "end", Message: fmt.Sprintf("invalid date %q", r.End)}
	}
	cfg := &Config{
		Seed:                 r.Seed,
		Start:                start,
		End:                  end,
		Workers:              r.Workers,
		Parallel:             r.Parallel,
		BaseHourlyArrivals:   r.BaseHourlyArrivals,
		ReducedTaxMultiplier: r.ReducedTaxMultiplier,
		Journey:              r.Journey,
		Inventory:            r.Inventory,
		Marketing:            r.Marketing,
		Orders:               r.Orders,
		Reference:            r.Reference,
		CalendarPath:         r.CalendarPath,
		OutputPath:           r.OutputPath,
		CheckpointPath:       r.CheckpointPath,
		ProgressInterval:     time.Duration(r.ProgressIntervalMS) * time.Millisecond,
	}
	return cfg, cfg.Validate()
}

// Validate performs the cross-field checks CUE cannot express from the
// flat tree (date ordering, range sanity).
func (c *Config) Validate() error {
	if !c.Start.Before(c.End) {
		return &Error{Field: "start/end", Message: fmt.Sprintf("start %s must precede end %s",
			c.Start.Format("2006-01-02"), c.End.Format("2006-01-02"))}
	}
	if c.Inventory.DelayMinHours > c.Inventory.DelayMaxHours {
		return &Error{Field: "inventory.delay_min_hours", Message: "min exceeds max"}
	}
	if c.Inventory.LeadMinHours > c.Inventory.LeadMaxHours {
		return &Error{Field: "inventory.lead_min_hours", Message: "min exceeds max"}
	}
	if c.Inventory.ReorderPoint >= c.Inventory.ReorderTarget {
		return &Error{Field: "inventory.reorder_point", Message: "reorder point must be below target"}
	}
	if c.Marketing.AttributionMinHours > c.Marketing.AttributionMaxHours {
		return &Error{Field: "marketing.attribution_min_hours", Message: "min exceeds max"}
	}
	for _, ch := range c.Marketing.Channels {
		if ch.CostMin > ch.CostMax {
			return &Error{Field: "marketing.channels", Message: fmt.Sprintf("channel %q cost_min exceeds cost_max", ch.Name)}
		}
	}
	if len(c.Marketing.Channels) == 0 {
		return &Error{Field: "marketing.channels", Message: "at least one channel is required"}
	}
	return nil
}

// Default returns the configuration built purely from defaults. Used by
// tests and as a base for programmatic construction.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults must always validate; a failure here is a programming
		// error in this package.
		panic(err)
	}
	return cfg
}
