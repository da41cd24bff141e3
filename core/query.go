package core

import (
	"github.com/cloudx-io/escrowauction/kvstore"
)

// view runs a read-only function over the store. Nothing is ever committed.
func (e *Engine) view(fn func(st stateView) error) error {
	tx := kvstore.NewTx(e.store)
	defer tx.Discard()

	st := stateView{tx: tx}
	if _, err := st.owner(); err != nil {
		return err
	}
	return fn(st)
}

// HighestBid returns the current leading cumulative bid.
func (e *Engine) HighestBid() (HighestBid, error) {
	var hb HighestBid
	err := e.view(func(st stateView) error {
		var err error
		hb, err = st.highestBid()
		return err
	})
	return hb, err
}

// Commission returns the commission percentage.
func (e *Engine) Commission() (uint64, error) {
	var c uint64
	err := e.view(func(st stateView) error {
		var err error
		c, err = st.commission()
		return err
	})
	return c, err
}

// BiddingOpen reports whether bids are still accepted.
func (e *Engine) BiddingOpen() (bool, error) {
	var open bool
	err := e.view(func(st stateView) error {
		var err error
		open, err = st.biddingOpen()
		return err
	})
	return open, err
}

// Winner returns the winner, or ErrNotYetDecided before close.
func (e *Engine) Winner() (Addr, error) {
	var w Addr
	err := e.view(func(st stateView) error {
		winner, decided, err := st.winner()
		if err != nil {
			return err
		}
		if !decided {
			return ErrNotYetDecided
		}
		w = winner
		return nil
	})
	return w, err
}

// Owner returns the auction owner.
func (e *Engine) Owner() (Addr, error) {
	var owner Addr
	err := e.view(func(st stateView) error {
		var err error
		owner, err = st.owner()
		return err
	})
	return owner, err
}

// Commodity returns the description of what is auctioned.
func (e *Engine) Commodity() (string, error) {
	var c string
	err := e.view(func(st stateView) error {
		var err error
		c, err = st.commodity()
		return err
	})
	return c, err
}

// Denom returns the escrowed asset denomination.
func (e *Engine) Denom() (string, error) {
	var d string
	err := e.view(func(st stateView) error {
		var err error
		d, err = st.denom()
		return err
	})
	return d, err
}

// TotalBid returns addr's cumulative deposit, or a NoSuchBidder error.
func (e *Engine) TotalBid(addr Addr) (Coin, error) {
	var total Coin
	err := e.view(func(st stateView) error {
		amount, found, err := st.totalBid(addr)
		if err != nil {
			return err
		}
		if !found {
			return errNoSuchBidder(addr)
		}
		denom, err := st.denom()
		if err != nil {
			return err
		}
		total = NewCoin(amount, denom)
		return nil
	})
	return total, err
}
