// Package bank keeps asset balances and executes the transfers an auction
// asks for. Balances live in the same kvstore as auction state, so a host
// can commit both in one batch.
package bank

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/kvstore"
)

var (
	// ErrInsufficientFunds is returned when a sender cannot cover a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrBalanceOverflow is returned when a credit would overflow a balance.
	ErrBalanceOverflow = errors.New("balance overflow")
	// ErrInvalidAccount is returned for empty addresses or denominations.
	ErrInvalidAccount = errors.New("invalid account")
)

const balancePrefix = "balance/"

func balanceKey(addr core.Addr, denom string) []byte {
	return []byte(balancePrefix + denom + "/" + string(addr))
}

// Ledger is a balance book over a kvstore.Store.
type Ledger struct {
	store kvstore.Store
}

// New returns a ledger reading and writing balances in store.
func New(store kvstore.Store) *Ledger {
	return &Ledger{store: store}
}

// Balance returns addr's holdings of denom. Unknown accounts hold zero.
func (l *Ledger) Balance(addr core.Addr, denom string) (core.Coin, error) {
	amount, err := readBalance(l.store, addr, denom)
	if err != nil {
		return core.Coin{}, err
	}
	return core.NewCoin(amount, denom), nil
}

// Mint credits coin to addr out of thin air. Hosts expose it only in
// development setups.
func (l *Ledger) Mint(to core.Addr, coin core.Coin) error {
	return l.apply(func(tx *kvstore.Tx) error {
		return credit(tx, to, coin)
	})
}

// Send moves coin from one account to another.
func (l *Ledger) Send(from, to core.Addr, coin core.Coin) error {
	return l.apply(func(tx *kvstore.Tx) error {
		return move(tx, from, to, coin)
	})
}

// Execute pays every transfer out of from. Either all transfers apply or
// none do.
func (l *Ledger) Execute(from core.Addr, transfers []core.Transfer) error {
	return l.apply(func(tx *kvstore.Tx) error {
		for i, tr := range transfers {
			if err := move(tx, from, tr.To, tr.Amount); err != nil {
				return fmt.Errorf("transfer %d to %s: %w", i, tr.To, err)
			}
		}
		return nil
	})
}

func (l *Ledger) apply(fn func(tx *kvstore.Tx) error) error {
	tx := kvstore.NewTx(l.store)
	defer tx.Discard()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func move(tx *kvstore.Tx, from, to core.Addr, coin core.Coin) error {
	if err := debit(tx, from, coin); err != nil {
		return err
	}
	return credit(tx, to, coin)
}

func debit(tx *kvstore.Tx, addr core.Addr, coin core.Coin) error {
	if addr.IsEmpty() || coin.Denom == "" {
		return ErrInvalidAccount
	}
	have, err := readBalance(tx, addr, coin.Denom)
	if err != nil {
		return err
	}
	if have < coin.Amount {
		return fmt.Errorf("%w: %s holds %d%s, needs %d%s",
			ErrInsufficientFunds, addr, have, coin.Denom, coin.Amount, coin.Denom)
	}
	return writeBalance(tx, addr, coin.Denom, have-coin.Amount)
}

func credit(tx *kvstore.Tx, addr core.Addr, coin core.Coin) error {
	if addr.IsEmpty() || coin.Denom == "" {
		return ErrInvalidAccount
	}
	have, err := readBalance(tx, addr, coin.Denom)
	if err != nil {
		return err
	}
	sum := have + coin.Amount
	if sum < have {
		return fmt.Errorf("%w: crediting %s", ErrBalanceOverflow, addr)
	}
	return writeBalance(tx, addr, coin.Denom, sum)
}

func readBalance(store kvstore.Store, addr core.Addr, denom string) (uint64, error) {
	raw, err := store.Get(balanceKey(addr, denom))
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance of %s: %w", addr, err)
	}
	var amount uint64
	if err := cbor.Unmarshal(raw, &amount); err != nil {
		return 0, fmt.Errorf("decode balance of %s: %w", addr, err)
	}
	return amount, nil
}

func writeBalance(tx *kvstore.Tx, addr core.Addr, denom string, amount uint64) error {
	raw, err := cbor.Marshal(amount)
	if err != nil {
		return fmt.Errorf("encode balance of %s: %w", addr, err)
	}
	return tx.Put(balanceKey(addr, denom), raw)
}
