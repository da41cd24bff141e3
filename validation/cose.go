package validation

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/escrowauction/auctionapi"
)

// VerifyCOSESignature verifies the ES384 signature of a COSE_Sign1
// attestation against the public key of the base64 DER certificate. Nitro
// emits the untagged form; the tagged form is accepted too.
func VerifyCOSESignature(coseBytes auctionapi.AttestationCOSE, certB64 string) error {
	cert, err := decodeCertificate(certB64)
	if err != nil {
		return err
	}
	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, ecdsaKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	var untagged cose.UntaggedSign1Message
	if err := untagged.UnmarshalCBOR(coseBytes); err == nil {
		if err := untagged.Verify(nil, verifier); err != nil {
			return fmt.Errorf("COSE signature verification failed: %w", err)
		}
		return nil
	}

	var tagged cose.Sign1Message
	if err := tagged.UnmarshalCBOR(coseBytes); err != nil {
		return fmt.Errorf("parse COSE_Sign1: %w", err)
	}
	if err := tagged.Verify(nil, verifier); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}
	return nil
}
