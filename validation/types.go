package validation

import (
	"github.com/cloudx-io/escrowauction/core"
)

// BaseValidationResult contains the checks every attestation goes through.
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// SettlementValidationResult adds the checks on the attested settlement.
type SettlementValidationResult struct {
	BaseValidationResult
	// SettlementHashValid is set when the settlement hash recomputed from
	// the user data matches the attested one.
	SettlementHashValid bool
	// OutcomeValid is set when the attested outcome matches every field
	// the caller expected.
	OutcomeValid bool
}

// IsValid returns true if all settlement validation checks passed
func (r *SettlementValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid &&
		r.SettlementHashValid && r.OutcomeValid
}

// Expectation is what the caller believes the settlement was. Zero fields
// are not checked, except AuctionID which is required.
type Expectation struct {
	AuctionID  string
	Owner      core.Addr
	Winner     core.Addr
	Amount     *core.Coin
	Commission *uint64
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // commit the enclave image was built from
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
