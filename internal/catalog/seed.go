package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pltax/settlement-engine/internal/domain"
)

//go:embed seed/pl.yaml
var defaultSeed []byte

// Dataset is a flat, source-independent set of catalog entries.
type Dataset struct {
	Version    string
	Rates      []domain.RateEntry
	Thresholds []domain.Threshold
	Parameters []domain.ParameterEntry
}

// Source supplies catalog entries, e.g. the embedded seed or a database.
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

// Import adds every entry of the dataset, stopping at the first rejected one.
func (c *Catalog) Import(ds *Dataset) error {
	for _, r := range ds.Rates {
		if err := c.AddRate(r); err != nil {
			return err
		}
	}
	for _, t := range ds.Thresholds {
		if err := c.AddThreshold(t); err != nil {
			return err
		}
	}
	for _, p := range ds.Parameters {
		if err := c.AddParameter(p); err != nil {
			return err
		}
	}
	if ds.Version != "" {
		c.SetVersion(ds.Version)
	}
	return nil
}

// Load builds a catalog from a source.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	ds, err := src.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	c := New()
	if err := c.Import(ds); err != nil {
		return nil, fmt.Errorf("catalog: import %s: %w", ds.Version, err)
	}
	return c, nil
}

// seedFile mirrors the YAML layout: a version plus slices sharing one validity window.
type seedFile struct {
	Version string      `yaml:"version"`
	Slices  []seedSlice `yaml:"slices"`
}

type seedSlice struct {
	ValidFrom  string          `yaml:"valid_from"`
	ValidTo    string          `yaml:"valid_to"`
	Rates      []seedRate      `yaml:"rates"`
	Thresholds []seedThreshold `yaml:"thresholds"`
	Parameters []seedParameter `yaml:"parameters"`
}

type seedRate struct {
	TaxType string `yaml:"tax_type"`
	Code    string `yaml:"code"`
	Value   string `yaml:"value"`
	Active  *bool  `yaml:"active"`
}

type seedThreshold struct {
	TaxType    string `yaml:"tax_type"`
	Lower      string `yaml:"lower"`
	Upper      string `yaml:"upper"`
	Rate       string `yaml:"rate"`
	BaseAmount string `yaml:"base_amount"`
}

type seedParameter struct {
	TaxType string `yaml:"tax_type"`
	Code    string `yaml:"code"`
	Amount  string `yaml:"amount"`
}

// SeedSource parses a YAML seed document.
type SeedSource struct {
	data []byte
}

// DefaultSeed returns the embedded Polish dataset.
func DefaultSeed() *SeedSource {
	return &SeedSource{data: defaultSeed}
}

// NewSeedSource wraps raw YAML.
func NewSeedSource(data []byte) *SeedSource {
	return &SeedSource{data: data}
}

// LoadSeed builds a catalog from the embedded dataset.
func LoadSeed(ctx context.Context) (*Catalog, error) {
	return Load(ctx, DefaultSeed())
}

// LoadSeedFile builds a catalog from a seed file on disk.
func LoadSeedFile(ctx context.Context, path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return Load(ctx, NewSeedSource(data))
}

// Load implements Source.
func (s *SeedSource) Load(_ context.Context) (*Dataset, error) {
	var f seedFile
	if err := yaml.Unmarshal(s.data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed YAML: %w", err)
	}
	if f.Version == "" {
		return nil, domain.InvalidInput("version", "SEED_VERSION_MISSING", "seed dataset has no version")
	}
	ds := &Dataset{Version: f.Version}
	for i, sl := range f.Slices {
		if err := sl.appendTo(ds); err != nil {
			return nil, fmt.Errorf("slice %d: %w", i, err)
		}
	}
	return ds, nil
}

func (sl seedSlice) appendTo(ds *Dataset) error {
	from, err := parseDate("valid_from", sl.ValidFrom)
	if err != nil {
		return err
	}
	var to *time.Time
	if sl.ValidTo != "" {
		t, err := parseDate("valid_to", sl.ValidTo)
		if err != nil {
			return err
		}
		to = &t
	}

	for _, r := range sl.Rates {
		v, err := parseDecimal("value", r.Value)
		if err != nil {
			return fmt.Errorf("rate %s/%s: %w", r.TaxType, r.Code, err)
		}
		active := r.Active == nil || *r.Active
		ds.Rates = append(ds.Rates, domain.RateEntry{
			TaxType: domain.TaxType(r.TaxType), Code: r.Code, Value: v,
			ValidFrom: from, ValidTo: to, IsActive: active,
		})
	}
	for _, t := range sl.Thresholds {
		th := domain.Threshold{TaxType: domain.TaxType(t.TaxType), ValidFrom: from, ValidTo: to}
		if th.LowerBound, err = parseDecimal("lower", t.Lower); err != nil {
			return err
		}
		if th.Rate, err = parseDecimal("rate", t.Rate); err != nil {
			return err
		}
		if t.Upper != "" {
			u, err := parseDecimal("upper", t.Upper)
			if err != nil {
				return err
			}
			th.UpperBound = &u
		}
		if t.BaseAmount != "" {
			b, err := parseDecimal("base_amount", t.BaseAmount)
			if err != nil {
				return err
			}
			th.BaseAmount = &b
		}
		ds.Thresholds = append(ds.Thresholds, th)
	}
	for _, p := range sl.Parameters {
		a, err := parseDecimal("amount", p.Amount)
		if err != nil {
			return fmt.Errorf("parameter %s/%s: %w", p.TaxType, p.Code, err)
		}
		ds.Parameters = append(ds.Parameters, domain.ParameterEntry{
			TaxType: domain.TaxType(p.TaxType), Code: p.Code, Amount: a,
			ValidFrom: from, ValidTo: to,
		})
	}
	return nil
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, domain.InvalidInput(field, "MALFORMED_DATE", "cannot parse date %q", s).WithCause(err)
	}
	return t, nil
}

func parseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.InvalidInput(field, "MALFORMED_AMOUNT", "cannot parse amount %q", s).WithCause(err)
	}
	return d, nil
}
