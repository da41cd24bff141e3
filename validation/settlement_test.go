package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
)

func fullExpectation(s auctionapi.SettlementUserData) Expectation {
	amount := core.NewCoin(s.Amount, s.Denom)
	commission := s.Commission
	return Expectation{
		AuctionID:  s.AuctionID,
		Owner:      core.Addr(s.Owner),
		Winner:     core.Addr(s.Winner),
		Amount:     &amount,
		Commission: &commission,
	}
}

func TestValidateSettlementAttestation_Valid(t *testing.T) {
	enc := newTestEnclave(t)
	s := testSettlement()
	attestation := enc.attest(t, marshalSettlement(t, s), attestOptions{})

	result, err := enc.validator().ValidateSettlementAttestation(attestation, fullExpectation(s))
	assert.NoError(t, err)

	check.True(t, result.PCRsValid)
	check.True(t, result.CertificateValid)
	check.True(t, result.SignatureValid)
	check.True(t, result.SettlementHashValid)
	check.True(t, result.OutcomeValid)
	check.True(t, result.IsValid())

	// the auction id alone is enough
	result, err = enc.validator().ValidateSettlementAttestation(attestation, Expectation{AuctionID: s.AuctionID})
	assert.NoError(t, err)
	check.True(t, result.IsValid())
}

func TestValidateSettlementAttestation_Failures(t *testing.T) {
	enc := newTestEnclave(t)
	otherKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(s *auctionapi.SettlementUserData, want *Expectation, opts *attestOptions)
		check  func(t *testing.T, r *SettlementValidationResult)
	}{
		{
			name: "wrong winner expected",
			mutate: func(_ *auctionapi.SettlementUserData, want *Expectation, _ *attestOptions) {
				want.Winner = "sender1"
			},
			check: func(t *testing.T, r *SettlementValidationResult) {
				check.False(t, r.OutcomeValid)
				check.True(t, r.SettlementHashValid)
				check.True(t, r.SignatureValid)
			},
		},
		{
			name: "different amount expected",
			mutate: func(_ *auctionapi.SettlementUserData, want *Expectation, _ *attestOptions) {
				c := core.NewCoin(16, "atom")
				want.Amount = &c
			},
			check: func(t *testing.T, r *SettlementValidationResult) {
				check.False(t, r.OutcomeValid)
			},
		},
		{
			name: "forged settlement hash",
			mutate: func(s *auctionapi.SettlementUserData, _ *Expectation, _ *attestOptions) {
				s.SettlementHash = strings.Repeat("0", 64)
			},
			check: func(t *testing.T, r *SettlementValidationResult) {
				check.False(t, r.SettlementHashValid)
				check.True(t, r.OutcomeValid)
			},
		},
		{
			name: "unknown enclave image",
			mutate: func(_ *auctionapi.SettlementUserData, _ *Expectation, opts *attestOptions) {
				opts.pcr0 = strings.Repeat("ab", 48)
			},
			check: func(t *testing.T, r *SettlementValidationResult) {
				check.False(t, r.PCRsValid)
				check.True(t, r.CertificateValid)
			},
		},
		{
			name: "signed by another key",
			mutate: func(_ *auctionapi.SettlementUserData, _ *Expectation, opts *attestOptions) {
				opts.signKey = otherKey
			},
			check: func(t *testing.T, r *SettlementValidationResult) {
				check.False(t, r.SignatureValid)
				check.True(t, r.CertificateValid)
			},
		},
		{
			name: "attested after certificate expiry",
			mutate: func(_ *auctionapi.SettlementUserData, _ *Expectation, opts *attestOptions) {
				opts.at = enc.notAfter.Add(time.Minute)
			},
			check: func(t *testing.T, r *SettlementValidationResult) {
				check.False(t, r.CertificateValid)
				check.True(t, r.SignatureValid)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSettlement()
			want := fullExpectation(s)
			var opts attestOptions
			tt.mutate(&s, &want, &opts)

			attestation := enc.attest(t, marshalSettlement(t, s), opts)
			result, err := enc.validator().ValidateSettlementAttestation(attestation, want)
			assert.NoError(t, err)

			check.False(t, result.IsValid())
			tt.check(t, result)
		})
	}
}

func TestValidateSettlementAttestation_UntrustedRoot(t *testing.T) {
	enc := newTestEnclave(t)
	s := testSettlement()
	attestation := enc.attest(t, marshalSettlement(t, s), attestOptions{})

	v, err := NewValidator(enc.validator().PCRSets)
	assert.NoError(t, err)

	result, err := v.ValidateSettlementAttestation(attestation, fullExpectation(s))
	assert.NoError(t, err)
	check.False(t, result.CertificateValid)
	check.True(t, result.SignatureValid)
	check.False(t, result.IsValid())
}

func TestValidateSettlementAttestation_MissingUserData(t *testing.T) {
	enc := newTestEnclave(t)
	attestation := enc.attest(t, nil, attestOptions{})

	result, err := enc.validator().ValidateSettlementAttestation(attestation, Expectation{AuctionID: "a"})
	assert.NoError(t, err)
	check.False(t, result.IsValid())
	check.True(t, result.SignatureValid)
}

func TestValidateSettlementAttestation_BadInput(t *testing.T) {
	v := newTestEnclave(t).validator()

	_, err := v.ValidateSettlementAttestation("AAAA", Expectation{})
	check.NotNil(t, err)

	_, err = v.ValidateSettlementAttestation("not base64!", Expectation{AuctionID: "a"})
	check.NotNil(t, err)
	check.True(t, strings.Contains(err.Error(), "decode COSE"))

	garbage := auctionapi.AttestationCOSE([]byte("garbage")).EncodeBase64()
	_, err = v.ValidateSettlementAttestation(garbage, Expectation{AuctionID: "a"})
	check.NotNil(t, err)
}

func TestNewValidator_RequiresPCRs(t *testing.T) {
	_, err := NewValidator(nil)
	check.NotNil(t, err)
}

func TestValidatePCRs(t *testing.T) {
	known := []PCRSet{
		{PCR0: "aa", PCR1: "bb", PCR2: "cc"},
		{PCR0: "dd", PCR1: "ee", PCR2: "ff"},
	}

	ok, idx := ValidatePCRs(auctionapi.PCRs{ImageFileHash: "dd", KernelHash: "ee", ApplicationHash: "ff"}, known)
	check.True(t, ok)
	check.Equal(t, 1, idx)

	ok, idx = ValidatePCRs(auctionapi.PCRs{ImageFileHash: "aa", KernelHash: "bb", ApplicationHash: "ff"}, known)
	check.False(t, ok)
	check.Equal(t, -1, idx)

	ok, _ = ValidatePCRs(auctionapi.PCRs{}, []PCRSet{{}})
	check.False(t, ok)
}

func TestLoadPCRsFromFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "pcrs.json")
	assert.NoError(t, os.WriteFile(good, []byte(`{"pcr_sets":[{"pcr0":"aa","pcr1":"bb","pcr2":"cc","commit_hash":"c0ffee"}]}`), 0o600))
	sets, err := LoadPCRsFromFile(good)
	assert.NoError(t, err)
	check.Equal(t, []PCRSet{{PCR0: "aa", PCR1: "bb", PCR2: "cc", CommitHash: "c0ffee"}}, sets)

	empty := filepath.Join(dir, "empty.json")
	assert.NoError(t, os.WriteFile(empty, []byte(`{"pcr_sets":[]}`), 0o600))
	_, err = LoadPCRsFromFile(empty)
	check.NotNil(t, err)

	_, err = LoadPCRsFromFile(filepath.Join(dir, "missing.json"))
	check.NotNil(t, err)
}
