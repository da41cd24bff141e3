package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
)

// EnclaveAttester produces NSM attestation documents. The NSM handle
// implements it; tests inject a mock.
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// getEnclaveAttester opens the NSM, failing outside a Nitro enclave.
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// Settlement is the outcome of a close, as attested.
type Settlement struct {
	AuctionID  string
	Owner      core.Addr
	Winner     core.Addr
	Amount     core.Coin
	Commission uint64
}

// GenerateSettlementAttestation asks the NSM to sign the settlement. The
// user data carries a fresh nonce and the settlement hash binding the
// outcome to it.
func GenerateSettlementAttestation(attester EnclaveAttester, s Settlement, now time.Time) (auctionapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate settlement nonce: %w", err)
	}

	userData := auctionapi.SettlementUserData{
		AuctionID:      s.AuctionID,
		Owner:          string(s.Owner),
		Winner:         string(s.Winner),
		Amount:         s.Amount.Amount,
		Denom:          s.Amount.Denom,
		Commission:     s.Commission,
		SettlementHash: core.ComputeSettlementHash(s.AuctionID, s.Winner, s.Amount, nonce),
		Nonce:          nonce,
		Timestamp:      now.UTC(),
	}
	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settlement user data: %w", err)
	}

	attestationNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	raw, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(attestationNonce),
	})
	if err != nil {
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}
	return auctionapi.AttestationCOSE(raw), nil
}

// generateNonce returns 256 bits of hex-encoded randomness. Inside an
// enclave crypto/rand draws from the NSM-seeded kernel pool.
func generateNonce() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	return hex.EncodeToString(b), nil
}
