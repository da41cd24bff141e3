package validation

import (
	"crypto/x509"
	"fmt"

	"github.com/cloudx-io/escrowauction/auctionapi"
)

// Validator checks attestations against trusted roots and known enclave
// measurements.
type Validator struct {
	Roots   *x509.CertPool
	PCRSets []PCRSet
}

// NewValidator returns a validator trusting the AWS Nitro root CA and the
// given PCR sets.
func NewValidator(pcrSets []PCRSet) (*Validator, error) {
	if len(pcrSets) == 0 {
		return nil, fmt.Errorf("at least one PCR set is required")
	}
	roots, err := AWSNitroRoots()
	if err != nil {
		return nil, err
	}
	return &Validator{Roots: roots, PCRSets: pcrSets}, nil
}

// validateCommonAttestation checks the PCRs, certificate chain and
// signature of an attestation and returns the decoded document along with
// its raw user data.
func (v *Validator) validateCommonAttestation(coseBytes auctionapi.AttestationCOSE) (*BaseValidationResult, auctionapi.AttestationDoc, []byte, error) {
	attestationDoc, userData, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, auctionapi.AttestationDoc{}, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &BaseValidationResult{ValidationDetails: []string{}}

	pcrMatch, matchedSet := ValidatePCRs(attestationDoc.PCRs, v.PCRSets)
	result.PCRsValid = pcrMatch
	if !pcrMatch {
		result.ValidationDetails = append(result.ValidationDetails,
			fmt.Sprintf("PCR0: %s (no match)", attestationDoc.PCRs.ImageFileHash),
			fmt.Sprintf("PCR1: %s (no match)", attestationDoc.PCRs.KernelHash),
			fmt.Sprintf("PCR2: %s (no match)", attestationDoc.PCRs.ApplicationHash))
	} else {
		result.ValidationDetails = append(result.ValidationDetails,
			"PCR measurements valid",
			fmt.Sprintf("Matched PCR set: #%d (commit: %s)", matchedSet, v.PCRSets[matchedSet].CommitHash))
	}

	// the certificate is checked as of the attestation time
	switch {
	case attestationDoc.Certificate == "":
		result.ValidationDetails = append(result.ValidationDetails, "Missing certificate")
	case len(attestationDoc.CABundle) == 0:
		result.ValidationDetails = append(result.ValidationDetails, "Missing CA bundle")
	default:
		err = ValidateCertificateChain(attestationDoc.Certificate, attestationDoc.CABundle, v.Roots, attestationDoc.Timestamp)
		if err != nil {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Certificate chain validation failed: %v", err))
		} else {
			result.CertificateValid = true
			result.ValidationDetails = append(result.ValidationDetails, "Certificate chain verified")
		}
	}

	if err := VerifyCOSESignature(coseBytes, attestationDoc.Certificate); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
	} else {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "COSE signature verified")
	}

	return result, attestationDoc, userData, nil
}
