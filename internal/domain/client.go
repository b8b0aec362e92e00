package domain

// ClientProfile carries the regime eligibility flags supplied by the profile provider.
type ClientProfile struct {
	ClientID           string `yaml:"client_id" json:"client_id" validate:"required"`
	Name               string `yaml:"name" json:"name"`
	SmallTaxpayer      bool   `yaml:"small_taxpayer" json:"small_taxpayer"`
	EstonianCIT        bool   `yaml:"estonian_cit" json:"estonian_cit"`
	ActiveVATPayer     bool   `yaml:"active_vat_payer" json:"active_vat_payer"`
	VATPayerVerified   bool   `yaml:"vat_payer_verified" json:"vat_payer_verified"`
	LateFilingsLast12M int    `yaml:"late_filings_last_12m" json:"late_filings_last_12m" validate:"gte=0"`
	OutstandingDues    bool   `yaml:"outstanding_dues" json:"outstanding_dues"`
}

// CheckRegime verifies the profile allows the requested regime.
// The regime is always chosen by the caller; flags only gate it.
func (p ClientProfile) CheckRegime(r Regime) error {
	switch r {
	case RegimeCITSmall:
		if !p.SmallTaxpayer {
			return InvalidInput("regime", "NOT_SMALL_TAXPAYER", "client %s does not qualify for the reduced CIT rate", p.ClientID)
		}
	case RegimeCITEstonian:
		if !p.EstonianCIT {
			return InvalidInput("regime", "NOT_ESTONIAN_CIT", "client %s has not elected Estonian CIT", p.ClientID)
		}
		return nil
	}
	if r.TaxType() == TaxCIT && p.EstonianCIT {
		return InvalidInput("regime", "ESTONIAN_CIT_ELECTED", "client %s is taxed under Estonian CIT", p.ClientID)
	}
	return nil
}
