package core

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/escrowauction/kvstore"
)

// Storage keys, relative to the auction's namespace.
var (
	keyOwner      = []byte("owner")
	keyHighestBid = []byte("bid")
	keyBidding    = []byte("bidding")
	keyWinner     = []byte("winner")
	keyCommission = []byte("commission")
	keyDenom      = []byte("denom")
	keyCommodity  = []byte("commodity")

	prefixTotalBids = "total_bids/"
	prefixRetracted = "retracted/"
)

func totalBidKey(addr Addr) []byte {
	return []byte(prefixTotalBids + string(addr))
}

func retractedKey(addr Addr) []byte {
	return []byte(prefixRetracted + string(addr))
}

// stateView reads and stages typed auction state over one transaction.
type stateView struct {
	tx *kvstore.Tx
}

// load decodes the value at key into out. It reports false when the key is
// absent.
func (s stateView) load(key []byte, out any) (bool, error) {
	raw, err := s.tx.Get(key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := cbor.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s stateView) save(key []byte, v any) error {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.tx.Put(key, raw)
}

// owner loads the owner; an auction without one was never initialized.
func (s stateView) owner() (Addr, error) {
	var owner Addr
	found, err := s.load(keyOwner, &owner)
	if err != nil {
		return "", errStorage("load owner", err)
	}
	if !found {
		return "", ErrNotInitialized
	}
	return owner, nil
}

func (s stateView) highestBid() (HighestBid, error) {
	var hb HighestBid
	if _, err := s.load(keyHighestBid, &hb); err != nil {
		return HighestBid{}, errStorage("load highest bid", err)
	}
	return hb, nil
}

func (s stateView) biddingOpen() (bool, error) {
	var open bool
	if _, err := s.load(keyBidding, &open); err != nil {
		return false, errStorage("load bidding state", err)
	}
	return open, nil
}

// winner returns the winner and whether one has been decided.
func (s stateView) winner() (Addr, bool, error) {
	var w Addr
	found, err := s.load(keyWinner, &w)
	if err != nil {
		return "", false, errStorage("load winner", err)
	}
	return w, found, nil
}

func (s stateView) commission() (uint64, error) {
	var c uint64
	if _, err := s.load(keyCommission, &c); err != nil {
		return 0, errStorage("load commission", err)
	}
	return c, nil
}

func (s stateView) denom() (string, error) {
	var d string
	found, err := s.load(keyDenom, &d)
	if err != nil {
		return "", errStorage("load denom", err)
	}
	if !found || d == "" {
		return DefaultDenom, nil
	}
	return d, nil
}

func (s stateView) commodity() (string, error) {
	var c string
	if _, err := s.load(keyCommodity, &c); err != nil {
		return "", errStorage("load commodity", err)
	}
	return c, nil
}

// totalBid returns the cumulative amount addr has deposited and whether
// addr ever bid.
func (s stateView) totalBid(addr Addr) (uint64, bool, error) {
	var total uint64
	found, err := s.load(totalBidKey(addr), &total)
	if err != nil {
		return 0, false, errStorage("load total bid", err)
	}
	return total, found, nil
}

func (s stateView) retracted(addr Addr) (bool, error) {
	var done bool
	if _, err := s.load(retractedKey(addr), &done); err != nil {
		return false, errStorage("load retracted marker", err)
	}
	return done, nil
}
