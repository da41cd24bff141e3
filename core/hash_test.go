package core

import (
	"crypto/sha256"
	"fmt"
	"testing"
)

func TestComputeSettlementHash(t *testing.T) {
	auctionID := "4c1f7a3e-9a52-4a5e-9a0d-2b6f0c1d9e77"
	winner := Addr("sender2")
	amount := NewCoin(15, "atom")
	nonce := "test_nonce_456"

	hash := ComputeSettlementHash(auctionID, winner, amount, nonce)

	if len(hash) != 64 {
		t.Errorf("ComputeSettlementHash() hash length = %d, want 64", len(hash))
	}

	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("ComputeSettlementHash() contains non-hex character: %c", c)
		}
	}

	if hash2 := ComputeSettlementHash(auctionID, winner, amount, nonce); hash != hash2 {
		t.Errorf("ComputeSettlementHash() not deterministic")
	}

	expectedData := fmt.Sprintf("%s|%s|%d|%s|%s", auctionID, winner, amount.Amount, amount.Denom, nonce)
	expectedHash := fmt.Sprintf("%x", sha256.Sum256([]byte(expectedData)))
	if hash != expectedHash {
		t.Errorf("ComputeSettlementHash() = %v, want %v", hash, expectedHash)
	}
}

func TestComputeSettlementHash_SensitiveToEveryField(t *testing.T) {
	base := ComputeSettlementHash("a1", "w", NewCoin(15, "atom"), "n")

	variants := map[string]string{
		"auction": ComputeSettlementHash("a2", "w", NewCoin(15, "atom"), "n"),
		"winner":  ComputeSettlementHash("a1", "x", NewCoin(15, "atom"), "n"),
		"amount":  ComputeSettlementHash("a1", "w", NewCoin(16, "atom"), "n"),
		"denom":   ComputeSettlementHash("a1", "w", NewCoin(15, "gold"), "n"),
		"nonce":   ComputeSettlementHash("a1", "w", NewCoin(15, "atom"), "m"),
	}
	for field, h := range variants {
		if h == base {
			t.Errorf("changing %s did not change the settlement hash", field)
		}
	}
}
