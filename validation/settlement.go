package validation

import (
	"encoding/json"
	"fmt"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
)

// ValidateSettlementAttestation verifies a close attestation and checks
// the attested settlement against what the caller expects.
//
// Returns:
//   - the detailed result; call result.IsValid() for the overall status
//   - an error when validation cannot be performed at all, e.g. malformed
//     input
func (v *Validator) ValidateSettlementAttestation(attestation auctionapi.AttestationCOSEBase64, want Expectation) (*SettlementValidationResult, error) {
	if want.AuctionID == "" {
		return nil, fmt.Errorf("expected auction id is required")
	}

	coseBytes, err := attestation.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	base, _, userDataBytes, err := v.validateCommonAttestation(coseBytes)
	if err != nil {
		return nil, err
	}
	result := &SettlementValidationResult{BaseValidationResult: *base}

	if len(userDataBytes) == 0 {
		result.ValidationDetails = append(result.ValidationDetails, "Attestation user data missing")
		return result, nil
	}
	var settlement auctionapi.SettlementUserData
	if err := json.Unmarshal(userDataBytes, &settlement); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement user data unreadable: %v", err))
		return result, nil
	}

	result.SettlementHashValid = validateSettlementHash(&settlement, result)
	result.OutcomeValid = validateOutcome(&settlement, want, result)
	return result, nil
}

func validateSettlementHash(s *auctionapi.SettlementUserData, result *SettlementValidationResult) bool {
	amount := core.NewCoin(s.Amount, s.Denom)
	expected := core.ComputeSettlementHash(s.AuctionID, core.Addr(s.Winner), amount, s.Nonce)
	if expected != s.SettlementHash {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Settlement hash mismatch: computed %s, attested %s", expected, s.SettlementHash))
		return false
	}
	result.ValidationDetails = append(result.ValidationDetails, "Settlement hash verified")
	return true
}

func validateOutcome(s *auctionapi.SettlementUserData, want Expectation, result *SettlementValidationResult) bool {
	ok := true
	mismatch := func(field string, expected, attested any) {
		ok = false
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("%s mismatch: expected %v, attested %v", field, expected, attested))
	}

	if s.AuctionID != want.AuctionID {
		mismatch("Auction ID", want.AuctionID, s.AuctionID)
	}
	if !want.Owner.IsEmpty() && string(want.Owner) != s.Owner {
		mismatch("Owner", want.Owner, s.Owner)
	}
	if !want.Winner.IsEmpty() && string(want.Winner) != s.Winner {
		mismatch("Winner", want.Winner, s.Winner)
	}
	if want.Amount != nil && (want.Amount.Amount != s.Amount || want.Amount.Denom != s.Denom) {
		mismatch("Amount", fmt.Sprintf("%d%s", want.Amount.Amount, want.Amount.Denom), fmt.Sprintf("%d%s", s.Amount, s.Denom))
	}
	if want.Commission != nil && *want.Commission != s.Commission {
		mismatch("Commission", *want.Commission, s.Commission)
	}

	if ok {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("Settlement matches: %s won %d%s", s.Winner, s.Amount, s.Denom))
	}
	return ok
}
