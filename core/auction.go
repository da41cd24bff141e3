package core

import (
	"log/slog"
	"strconv"

	"github.com/cloudx-io/escrowauction/kvstore"
)

// Engine runs one auction over its own store namespace. Commands are
// expected one at a time; the host serializes them.
//
// Every command reads the state it depends on, validates, stages its writes
// in a transaction and commits them together. A failing command leaves the
// store untouched.
type Engine struct {
	store  kvstore.Store
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine returns an engine persisting its state in store.
func NewEngine(store kvstore.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: slog.Default().With("pkg", "auction"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run executes fn over a fresh transaction and commits what fn staged only
// when fn succeeds.
func (e *Engine) run(op string, fn func(st stateView) (*Response, error)) (*Response, error) {
	tx := kvstore.NewTx(e.store)
	defer tx.Discard()

	resp, err := fn(stateView{tx: tx})
	if err != nil {
		e.logger.Debug("command rejected", "op", op, "code", CodeOf(err), "err", err)
		return nil, err
	}
	writes := tx.Pending()
	if err := tx.Commit(); err != nil {
		return nil, errStorage("commit "+op, err)
	}
	e.logger.Debug("command committed", "op", op, "writes", writes)
	return resp, nil
}

// Initialize sets up a fresh auction. The owner is msg.Owner when given,
// the sender otherwise.
func (e *Engine) Initialize(info MessageInfo, msg InstantiateMsg) (*Response, error) {
	return e.run(OpInitialize, func(st stateView) (*Response, error) {
		exists, err := st.tx.Has(keyOwner)
		if err != nil {
			return nil, errStorage("load owner", err)
		}
		if exists {
			return nil, ErrAlreadyInitialized
		}

		if !ValidCommission(msg.Commission) {
			return nil, withMetadata(CodeInvalidCommission,
				"commission must be between 0 and 100, got "+strconv.FormatUint(msg.Commission, 10),
				map[string]string{"commission": strconv.FormatUint(msg.Commission, 10)})
		}

		owner := msg.Owner
		if owner.IsEmpty() {
			owner = info.Sender
		}
		if owner.IsEmpty() {
			return nil, ErrInvalidOwner
		}

		denom := msg.Denom
		if denom == "" {
			denom = DefaultDenom
		}

		writes := []struct {
			key []byte
			val any
		}{
			{keyOwner, owner},
			{keyHighestBid, HighestBid{Amount: NewCoin(0, denom)}},
			{keyBidding, true},
			{keyCommission, msg.Commission},
			{keyDenom, denom},
			{keyCommodity, msg.Commodity},
		}
		for _, w := range writes {
			if err := st.save(w.key, w.val); err != nil {
				return nil, errStorage("save "+string(w.key), err)
			}
		}

		e.logger.Info("auction initialized", "owner", owner, "denom", denom, "commission", msg.Commission)

		resp := &Response{}
		resp.addAttribute("action", OpInitialize).
			addAttribute("owner", string(owner))
		return resp, nil
	})
}

// Bid adds the attached funds to the sender's cumulative bid. The bid is
// accepted only when the new cumulative total strictly exceeds the current
// highest bid; a tie keeps the incumbent.
func (e *Engine) Bid(info MessageInfo) (*Response, error) {
	return e.run(OpBid, func(st stateView) (*Response, error) {
		if info.Sender.IsEmpty() {
			return nil, ErrInvalidSender
		}
		owner, err := st.owner()
		if err != nil {
			return nil, err
		}
		if info.Sender == owner {
			return nil, errOwnerForbidden(OpBid)
		}

		open, err := st.biddingOpen()
		if err != nil {
			return nil, err
		}
		if !open {
			return nil, ErrBiddingClosed
		}

		denom, err := st.denom()
		if err != nil {
			return nil, err
		}
		attached, err := singleCoin(info.Funds, denom)
		if err != nil {
			return nil, err
		}

		hb, err := st.highestBid()
		if err != nil {
			return nil, err
		}
		prior, _, err := st.totalBid(info.Sender)
		if err != nil {
			return nil, err
		}

		total := prior + attached.Amount
		if total < prior {
			return nil, ErrAmountOverflow
		}
		if total <= hb.Amount.Amount {
			return nil, withMetadata(CodeBidTooLow,
				"bid not high enough",
				map[string]string{
					"total":   strconv.FormatUint(total, 10),
					"highest": strconv.FormatUint(hb.Amount.Amount, 10),
				})
		}

		if err := st.save(keyHighestBid, HighestBid{Bidder: info.Sender, Amount: NewCoin(total, denom)}); err != nil {
			return nil, errStorage("save highest bid", err)
		}
		if err := st.save(totalBidKey(info.Sender), total); err != nil {
			return nil, errStorage("save total bid", err)
		}

		e.logger.Debug("bid accepted", "bidder", info.Sender, "total", total, "previous_leader", hb.Bidder)

		resp := &Response{}
		resp.addAttribute("action", OpBid).
			addAttribute("bidder", string(info.Sender)).
			addAttribute("total", strconv.FormatUint(total, 10))
		return resp, nil
	})
}

// singleCoin checks that funds hold exactly one coin of denom.
func singleCoin(funds []Coin, denom string) (Coin, error) {
	switch len(funds) {
	case 0:
		return Coin{}, ErrNoFundsAttached
	case 1:
	default:
		return Coin{}, withMetadata(CodeInvalidFunds,
			"bid must attach exactly one coin, got "+strconv.Itoa(len(funds)),
			map[string]string{"count": strconv.Itoa(len(funds))})
	}
	if funds[0].Denom != denom {
		return Coin{}, errWrongDenomination(denom, funds[0].Denom)
	}
	return funds[0], nil
}

// Close ends bidding, fixes the winner and asks the host to pay the winning
// total to the owner. Only the owner may close, and only once.
func (e *Engine) Close(info MessageInfo) (*Response, error) {
	return e.run(OpClose, func(st stateView) (*Response, error) {
		owner, err := st.owner()
		if err != nil {
			return nil, err
		}
		if info.Sender != owner {
			return nil, errUnauthorized(owner)
		}

		open, err := st.biddingOpen()
		if err != nil {
			return nil, err
		}
		if !open {
			return nil, ErrBiddingClosed
		}

		hb, err := st.highestBid()
		if err != nil {
			return nil, err
		}
		if hb.Bidder.IsEmpty() {
			return nil, ErrNoWinner
		}

		if err := st.save(keyBidding, false); err != nil {
			return nil, errStorage("save bidding state", err)
		}
		if err := st.save(keyWinner, hb.Bidder); err != nil {
			return nil, errStorage("save winner", err)
		}

		e.logger.Info("auction closed", "winner", hb.Bidder, "amount", hb.Amount.Amount, "denom", hb.Amount.Denom)

		resp := &Response{}
		resp.addAttribute("action", OpClose).
			addAttribute("sender", string(info.Sender)).
			addAttribute("winner", string(hb.Bidder)).
			addTransfer(owner, hb.Amount)
		return resp, nil
	})
}

// Retract returns a losing bidder's cumulative deposit minus commission,
// to receiver when given and to the sender otherwise. Each bidder may
// retract once.
func (e *Engine) Retract(info MessageInfo, receiver Addr) (*Response, error) {
	return e.run(OpRetract, func(st stateView) (*Response, error) {
		if info.Sender.IsEmpty() {
			return nil, ErrInvalidSender
		}
		owner, err := st.owner()
		if err != nil {
			return nil, err
		}
		if info.Sender == owner {
			return nil, errOwnerForbidden(OpRetract)
		}

		open, err := st.biddingOpen()
		if err != nil {
			return nil, err
		}
		if open {
			return nil, ErrBiddingStillOpen
		}
		winner, decided, err := st.winner()
		if err != nil {
			return nil, err
		}
		if !decided {
			return nil, ErrNotYetDecided
		}
		if info.Sender == winner {
			return nil, ErrWinnerCannotRetract
		}

		total, found, err := st.totalBid(info.Sender)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errNoSuchBidder(info.Sender)
		}
		done, err := st.retracted(info.Sender)
		if err != nil {
			return nil, err
		}
		if done {
			return nil, ErrAlreadyRetracted
		}

		commission, err := st.commission()
		if err != nil {
			return nil, err
		}
		refund, err := Refund(total, commission)
		if err != nil {
			return nil, err
		}
		withheld, err := Withheld(total, commission)
		if err != nil {
			return nil, err
		}
		denom, err := st.denom()
		if err != nil {
			return nil, err
		}

		dest := info.Sender
		if !receiver.IsEmpty() {
			dest = receiver
		}

		if err := st.save(retractedKey(info.Sender), true); err != nil {
			return nil, errStorage("save retracted marker", err)
		}

		e.logger.Debug("bid retracted", "bidder", info.Sender, "receiver", dest, "total", total, "refund", refund)

		resp := &Response{}
		resp.addAttribute("action", OpRetract).
			addAttribute("sender", string(info.Sender)).
			addAttribute("receiver", string(dest)).
			addAttribute("refund", strconv.FormatUint(refund, 10)).
			addAttribute("commission", strconv.FormatUint(withheld, 10))
		// a 100% commission leaves nothing to move
		if refund > 0 {
			resp.addTransfer(dest, NewCoin(refund, denom))
		}
		return resp, nil
	})
}
