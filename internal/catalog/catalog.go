// Package catalog holds the time-sliced rate, threshold and parameter tables
// queried by the calculators "as of" a date.
package catalog

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pltax/settlement-engine/internal/domain"
)

type entryKey struct {
	taxType domain.TaxType
	code    string
}

// Catalog is safe for concurrent lookups; writes are expected at initialization.
type Catalog struct {
	mu         sync.RWMutex
	version    string
	rates      map[entryKey][]domain.RateEntry
	thresholds map[domain.TaxType][]domain.Threshold
	params     map[entryKey][]domain.ParameterEntry
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		rates:      make(map[entryKey][]domain.RateEntry),
		thresholds: make(map[domain.TaxType][]domain.Threshold),
		params:     make(map[entryKey][]domain.ParameterEntry),
	}
}

// Version is the identifier of the loaded dataset.
func (c *Catalog) Version() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// SetVersion records the dataset identifier.
func (c *Catalog) SetVersion(v string) {
	c.mu.Lock()
	c.version = v
	c.mu.Unlock()
}

// AddRate inserts a rate entry. Overlapping validity for the same (taxType, code) is rejected.
func (c *Catalog) AddRate(e domain.RateEntry) error {
	if !e.TaxType.Valid() {
		return domain.InvalidInput("tax_type", "UNKNOWN_TAX_TYPE", "unknown tax type %q", e.TaxType)
	}
	if e.Code == "" {
		return domain.InvalidInput("code", "MISSING_CODE", "rate code is required")
	}
	if e.Value.IsNegative() {
		return domain.InvalidInput("value", "NEGATIVE_RATE", "rate %s/%s is negative", e.TaxType, e.Code)
	}
	if err := checkInterval(e.Validity()); err != nil {
		return err
	}
	k := entryKey{e.TaxType, e.Code}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.rates[k] {
		if existing.Validity().Overlaps(e.Validity()) {
			return domain.InvariantViolation("RATE_OVERLAP", "rate %s/%s valid from %s overlaps an existing entry",
				e.TaxType, e.Code, e.ValidFrom.Format(time.DateOnly))
		}
	}
	c.rates[k] = append(c.rates[k], e)
	return nil
}

// AddThreshold inserts one progressive bracket.
func (c *Catalog) AddThreshold(t domain.Threshold) error {
	if !t.TaxType.Valid() {
		return domain.InvalidInput("tax_type", "UNKNOWN_TAX_TYPE", "unknown tax type %q", t.TaxType)
	}
	if t.UpperBound != nil && !t.UpperBound.GreaterThan(t.LowerBound) {
		return domain.InvalidInput("upper_bound", "EMPTY_BRACKET", "threshold upper bound %s must exceed lower bound %s", t.UpperBound, t.LowerBound)
	}
	if err := checkInterval(t.Validity()); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.thresholds[t.TaxType] {
		if existing.LowerBound.Equal(t.LowerBound) && existing.Validity().Overlaps(t.Validity()) {
			return domain.InvariantViolation("THRESHOLD_OVERLAP", "threshold %s from %s already defined for an overlapping period",
				t.TaxType, t.LowerBound)
		}
	}
	c.thresholds[t.TaxType] = append(c.thresholds[t.TaxType], t)
	return nil
}

// AddParameter inserts an absolute statutory amount.
func (c *Catalog) AddParameter(p domain.ParameterEntry) error {
	if !p.TaxType.Valid() {
		return domain.InvalidInput("tax_type", "UNKNOWN_TAX_TYPE", "unknown tax type %q", p.TaxType)
	}
	if p.Code == "" {
		return domain.InvalidInput("code", "MISSING_CODE", "parameter code is required")
	}
	if err := checkInterval(p.Validity()); err != nil {
		return err
	}
	k := entryKey{p.TaxType, p.Code}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.params[k] {
		if existing.Validity().Overlaps(p.Validity()) {
			return domain.InvariantViolation("PARAMETER_OVERLAP", "parameter %s/%s valid from %s overlaps an existing entry",
				p.TaxType, p.Code, p.ValidFrom.Format(time.DateOnly))
		}
	}
	c.params[k] = append(c.params[k], p)
	return nil
}

func checkInterval(v domain.Validity) error {
	if v.From.IsZero() {
		return domain.InvalidInput("valid_from", "MISSING_VALID_FROM", "validity start is required")
	}
	if v.To != nil && v.To.Before(v.From) {
		return domain.InvalidInput("valid_to", "INVERTED_VALIDITY", "validity ends %s before it starts %s",
			v.To.Format(time.DateOnly), v.From.Format(time.DateOnly))
	}
	return nil
}

// Rate returns the single active entry for (taxType, code) valid on asOf.
func (c *Catalog) Rate(taxType domain.TaxType, code string, asOf time.Time) (domain.RateEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var found []domain.RateEntry
	for _, e := range c.rates[entryKey{taxType, code}] {
		if e.IsActive && e.Validity().Contains(asOf) {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 0:
		return domain.RateEntry{}, domain.NotFound("RATE_NOT_FOUND", "no %s rate %q valid on %s", taxType, code, asOf.Format(time.DateOnly))
	case 1:
		return found[0], nil
	default:
		return domain.RateEntry{}, domain.InvariantViolation("RATE_AMBIGUOUS", "%d %s rates %q valid on %s", len(found), taxType, code, asOf.Format(time.DateOnly))
	}
}

// RateValue is a shortcut for Rate(...).Value.
func (c *Catalog) RateValue(taxType domain.TaxType, code string, asOf time.Time) (decimal.Decimal, error) {
	e, err := c.Rate(taxType, code, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return e.Value, nil
}

// Rates lists every active entry of a tax type valid on asOf, ordered by code.
func (c *Catalog) Rates(taxType domain.TaxType, asOf time.Time) []domain.RateEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.RateEntry
	for k, entries := range c.rates {
		if k.taxType != taxType {
			continue
		}
		for _, e := range entries {
			if e.IsActive && e.Validity().Contains(asOf) {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Thresholds returns the brackets valid on asOf, ascending by lower bound.
// The brackets must tile [0, inf) without gaps or overlaps.
func (c *Catalog) Thresholds(taxType domain.TaxType, asOf time.Time) ([]domain.Threshold, error) {
	c.mu.RLock()
	var out []domain.Threshold
	for _, t := range c.thresholds[taxType] {
		if t.Validity().Contains(asOf) {
			out = append(out, t)
		}
	}
	c.mu.RUnlock()

	if len(out) == 0 {
		return nil, domain.NotFound("THRESHOLDS_NOT_FOUND", "no %s threshold table valid on %s", taxType, asOf.Format(time.DateOnly))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LowerBound.LessThan(out[j].LowerBound) })
	if err := checkTiling(taxType, out); err != nil {
		return nil, err
	}
	return out, nil
}

func checkTiling(taxType domain.TaxType, brackets []domain.Threshold) error {
	if !brackets[0].LowerBound.IsZero() {
		return domain.InvariantViolation("THRESHOLD_GAP", "%s threshold table starts at %s, not 0", taxType, brackets[0].LowerBound)
	}
	for i, b := range brackets {
		last := i == len(brackets)-1
		if b.UpperBound == nil {
			if !last {
				return domain.InvariantViolation("THRESHOLD_OVERLAP", "%s unbounded bracket from %s is not the last one", taxType, b.LowerBound)
			}
			continue
		}
		if last {
			return domain.InvariantViolation("THRESHOLD_GAP", "%s threshold table ends at %s", taxType, b.UpperBound)
		}
		if next := brackets[i+1].LowerBound; !next.Equal(*b.UpperBound) {
			return domain.InvariantViolation("THRESHOLD_GAP", "%s bracket ending %s is followed by one starting %s", taxType, b.UpperBound, next)
		}
	}
	return nil
}

// Parameter returns the amount valid on asOf.
func (c *Catalog) Parameter(taxType domain.TaxType, code string, asOf time.Time) (decimal.Decimal, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.params[entryKey{taxType, code}] {
		if p.Validity().Contains(asOf) {
			return p.Amount, nil
		}
	}
	return decimal.Zero, domain.NotFound("PARAMETER_NOT_FOUND", "no %s parameter %q valid on %s", taxType, code, asOf.Format(time.DateOnly))
}
