package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeSettlementHash binds the settled outcome of an auction to a nonce.
// Both the daemon (to attest) and validation (to verify) use it.
//
// Formula: SHA256(auction_id + "|" + winner + "|" + amount + "|" + denom + "|" + nonce)
func ComputeSettlementHash(auctionID string, winner Addr, amount Coin, nonce string) string {
	data := fmt.Sprintf("%s|%s|%d|%s|%s", auctionID, winner, amount.Amount, amount.Denom, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
