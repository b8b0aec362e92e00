package decimal

import (
	"testing"

	stddec "github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

func TestConstructors(t *testing.T) {
	m := NewMoney(12.345)
	if m.String() != "12.35" { // rounded for display
		t.Fatalf("NewMoney display mismatch: got %s", m.String())
	}

	d := stddec.NewFromFloat(10.125)
	m2 := NewMoneyFromDecimal(d)
	if !m2.Decimal.Equal(d) {
		t.Fatalf("NewMoneyFromDecimal mismatch: got %s want %s", m2.Decimal, d)
	}

	m3, err := NewMoneyFromString("123.45")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m3.String() != "123.45" {
		t.Fatalf("NewMoneyFromString display mismatch: got %s", m3.String())
	}

	if _, err := NewMoneyFromString("not-a-number"); err == nil {
		t.Fatalf("expected error for invalid string")
	}

	if got := NewMoneyFromInt(500000).String(); got != "500000.00" {
		t.Fatalf("NewMoneyFromInt got %s", got)
	}
}

func TestRoundingIsHalfUp(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"2.344", "2.34"},
		{"2.345", "2.35"},
		{"2.355", "2.36"},
		{"2.365", "2.37"},
		{"-2.345", "-2.35"},
	}
	for _, c := range cases {
		got := MustMoney(c.in).Round().String()
		if got != c.out {
			t.Fatalf("round(%s) got %s want %s", c.in, got, c.out)
		}
	}
}

func TestRoundWhole(t *testing.T) {
	cases := []struct {
		in  string
		out string
	}{
		{"14399.49", "14399.00"},
		{"14399.50", "14400.00"},
		{"38000.00", "38000.00"},
	}
	for _, c := range cases {
		if got := MustMoney(c.in).RoundWhole().String(); got != c.out {
			t.Fatalf("RoundWhole(%s) got %s want %s", c.in, got, c.out)
		}
	}
}

func TestPercentKeepsPrecision(t *testing.T) {
	net := MustMoney("0.05")
	vat := net.Percent(stddec.RequireFromString("0.23"))
	if vat.Decimal.String() != "0.0115" {
		t.Fatalf("Percent must not round, got %s", vat.Decimal.String())
	}
	if vat.Round().String() != "0.01" {
		t.Fatalf("rounded vat got %s", vat.Round().String())
	}
}

func TestGrossInversionPrecision(t *testing.T) {
	gross := MustMoney("123.00")
	net := gross.Div(stddec.RequireFromString("1.23"))
	if got := net.Round().String(); got != "100.00" {
		t.Fatalf("inverted net got %s", got)
	}
	gross = MustMoney("100.00")
	net = gross.Div(stddec.RequireFromString("1.08"))
	if got := net.Round().String(); got != "92.59" {
		t.Fatalf("inverted net got %s", got)
	}
}

func TestArithmetic(t *testing.T) {
	a := MustMoney("10.10")
	b := MustMoney("5.05")
	if got := a.Add(b).String(); got != "15.15" {
		t.Fatalf("Add got %s", got)
	}
	if got := a.Sub(b).String(); got != "5.05" {
		t.Fatalf("Sub got %s", got)
	}
	if got := a.Mul(stddec.NewFromFloat(2.5)).String(); got != "25.25" {
		t.Fatalf("Mul got %s", got)
	}
	if got := a.Div(stddec.NewFromInt(2)).String(); got != "5.05" {
		t.Fatalf("Div got %s", got)
	}
	if got := b.Sub(a).Abs().String(); got != "5.05" {
		t.Fatalf("Abs got %s", got)
	}
	if got := b.Sub(a).ClampZero().String(); got != "0.00" {
		t.Fatalf("ClampZero got %s", got)
	}
	if got := a.Neg().String(); got != "-10.10" {
		t.Fatalf("Neg got %s", got)
	}
	if got := Sum(a, b, MustMoney("0.01")).String(); got != "15.16" {
		t.Fatalf("Sum got %s", got)
	}
}

func TestComparisonsAndUtils(t *testing.T) {
	a := NewMoneyFromInt(10)
	b := NewMoneyFromInt(20)

	if !b.GreaterThan(a) || !b.GreaterThanOrEqual(a) || a.GreaterThanOrEqual(b) {
		t.Fatalf("GreaterThan/GreaterThanOrEqual logic failure")
	}
	if !a.LessThan(b) || !a.LessThanOrEqual(b) || b.LessThanOrEqual(a) {
		t.Fatalf("LessThan/LessThanOrEqual logic failure")
	}
	if !a.Equal(NewMoneyFromInt(10)) || b.Equal(a) {
		t.Fatalf("Equal logic failure")
	}
	if !Zero().IsZero() {
		t.Fatalf("Zero should be zero")
	}
	if !b.IsPositive() || NewMoneyFromInt(-1).IsPositive() {
		t.Fatalf("IsPositive logic failure")
	}
	if !MustMoney("-0.01").IsNegative() || a.IsNegative() {
		t.Fatalf("IsNegative logic failure")
	}
	if !Min(a, b).Equal(a) || !Max(a, b).Equal(b) {
		t.Fatalf("Min/Max failed")
	}
}

func TestStringAndFormat(t *testing.T) {
	m := MustMoney("1234.5")
	if got := m.String(); got != "1234.50" {
		t.Fatalf("String got %s", got)
	}
	if got := m.Format(); got != "1234.50 PLN" {
		t.Fatalf("Format got %s", got)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	var doc struct {
		Quoted Money `yaml:"quoted"`
		Bare   Money `yaml:"bare"`
	}
	if err := yaml.Unmarshal([]byte("quoted: \"1200.10\"\nbare: 99.5\n"), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Quoted.String() != "1200.10" || doc.Bare.String() != "99.50" {
		t.Fatalf("got %s / %s", doc.Quoted, doc.Bare)
	}
	if err := yaml.Unmarshal([]byte("bare: twelve\n"), &doc); err == nil {
		t.Fatalf("expected error for malformed amount")
	}
}
