package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/bank"
	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/kvstore"
)

// Host-level error codes, next to the core.Code values engines return.
const (
	codeUnknownAuction    = "UNKNOWN_AUCTION"
	codeInsufficientFunds = "INSUFFICIENT_FUNDS"
	codeFundsNotAccepted  = "FUNDS_NOT_ACCEPTED"
	codeBadRequest        = "BAD_REQUEST"
	codeMintDisabled      = "MINT_DISABLED"
	codeReservedAccount   = "RESERVED_ACCOUNT"
	codeAttestation       = "ATTESTATION_FAILED"
	codeInternal          = "INTERNAL"
)

// requestError is a failure detected by the host rather than an engine.
type requestError struct {
	code string
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{code: codeBadRequest, msg: fmt.Sprintf(format, args...)}
}

// Host runs auction engines over one database and settles their transfers.
// Every command runs under the host lock in a single transaction that
// spans engine state and bank balances; nothing is written unless the
// whole command succeeds.
type Host struct {
	mu sync.RWMutex

	db        kvstore.Store
	denom     string
	escrow    core.Addr
	allowMint bool
	attester  EnclaveAttester
	metrics   *metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewHost builds a host. attester may be nil to disable settlement
// attestations.
func NewHost(db kvstore.Store, cfg Config, attester EnclaveAttester, m *metrics, logger *slog.Logger) *Host {
	return &Host{
		db:        db,
		denom:     cfg.Denom,
		escrow:    core.Addr(cfg.EscrowAddr),
		allowMint: cfg.AllowMint,
		attester:  attester,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

func auctionNamespace(id string) string {
	return "auction/" + id
}

// escrowAccount holds the deposits of one auction, so one auction's
// payouts can never spend another's funds.
func (h *Host) escrowAccount(auctionID string) core.Addr {
	return h.escrow + core.Addr("/"+auctionID)
}

// isEscrowAccount reports whether addr is the escrow root or one of the
// per-auction escrow accounts below it.
func (h *Host) isEscrowAccount(addr core.Addr) bool {
	return addr == h.escrow || strings.HasPrefix(string(addr), string(h.escrow)+"/")
}

// requireClientAccount rejects escrow accounts used as a client identity.
// Only the host moves funds in and out of escrow.
func (h *Host) requireClientAccount(addrs ...core.Addr) error {
	for _, addr := range addrs {
		if h.isEscrowAccount(addr) {
			return &requestError{code: codeReservedAccount, msg: fmt.Sprintf("account %s is reserved for escrow", addr)}
		}
	}
	return nil
}

func (h *Host) engine(store kvstore.Store, auctionID string) *core.Engine {
	return core.NewEngine(
		kvstore.Prefix(store, auctionNamespace(auctionID)),
		core.WithLogger(h.logger.With("auction_id", auctionID)),
	)
}

// Handle serves one request.
func (h *Host) Handle(req auctionapi.Request) auctionapi.Response {
	start := time.Now()

	var (
		resp *auctionapi.Response
		op   string
		err  error
	)
	switch req.Type {
	case auctionapi.TypePing:
		resp = &auctionapi.Response{Type: auctionapi.TypePong, Success: true, Message: "auction daemon is healthy"}
	case auctionapi.TypeCreateAuction:
		op = core.OpInitialize
		resp, err = h.createAuction(req)
	case auctionapi.TypeExecute:
		resp, op, err = h.execute(req)
	case auctionapi.TypeQuery:
		resp, op, err = h.query(req)
	case auctionapi.TypeMint:
		resp, err = h.mint(req)
	case auctionapi.TypeBalance:
		resp, err = h.balance(req)
	default:
		err = badRequest("unknown request type: %s", req.Type)
	}

	if err != nil {
		resp = h.errorResponse(req, op, err)
	} else {
		if resp.Type == "" {
			resp.Type = auctionapi.TypeResult
		}
		resp.Success = true
		h.metrics.observe(req.Type, op, outcomeOK)
	}
	resp.RequestID = req.RequestID
	resp.ProcessingTime = time.Since(start).Milliseconds()
	return *resp
}

func (h *Host) errorResponse(req auctionapi.Request, op string, err error) *auctionapi.Response {
	resp := &auctionapi.Response{
		Type:      auctionapi.TypeError,
		AuctionID: req.AuctionID,
		Message:   err.Error(),
	}

	var domainErr *core.Error
	var hostErr *requestError
	switch {
	case errors.As(err, &domainErr) && domainErr.Code != core.CodeStorageFailure:
		resp.ErrorCode = string(domainErr.Code)
		resp.ErrorMetadata = domainErr.Metadata
		h.metrics.observe(req.Type, op, outcomeRejected)
	case errors.As(err, &hostErr):
		resp.ErrorCode = hostErr.code
		h.metrics.observe(req.Type, op, outcomeRejected)
	case errors.Is(err, bank.ErrInsufficientFunds):
		resp.ErrorCode = codeInsufficientFunds
		h.metrics.observe(req.Type, op, outcomeRejected)
	default:
		if domainErr != nil {
			resp.ErrorCode = string(domainErr.Code)
		} else {
			resp.ErrorCode = codeInternal
		}
		h.logger.Error("request failed", "type", req.Type, "op", op, "auction_id", req.AuctionID, "err", err)
		h.metrics.observe(req.Type, op, outcomeError)
	}
	return resp
}

func (h *Host) createAuction(req auctionapi.Request) (*auctionapi.Response, error) {
	if req.Instantiate == nil {
		return nil, badRequest("create_auction requires instantiate")
	}
	if len(req.Funds) > 0 {
		return nil, &requestError{code: codeFundsNotAccepted, msg: "create_auction does not accept funds"}
	}

	id := req.AuctionID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, badRequest("auction id must be a UUID: %v", err)
	}

	msg := *req.Instantiate
	if err := h.requireClientAccount(req.Sender, msg.Owner); err != nil {
		return nil, err
	}
	if msg.Denom == "" {
		msg.Denom = h.denom
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var out *core.Response
	err := h.inTx(func(tx *kvstore.Tx) error {
		var err error
		out, err = h.engine(tx, id).Initialize(core.MessageInfo{Sender: req.Sender}, msg)
		return err
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("auction created", "auction_id", id, "commodity", msg.Commodity)
	return &auctionapi.Response{AuctionID: id, Attributes: out.Attributes}, nil
}

func (h *Host) execute(req auctionapi.Request) (*auctionapi.Response, string, error) {
	if req.Execute == nil {
		return nil, "", badRequest("execute requires a message")
	}
	op, err := req.Execute.Op()
	if err != nil {
		return nil, "", badRequest("%v", err)
	}
	if op != core.OpBid && len(req.Funds) > 0 {
		return nil, op, &requestError{code: codeFundsNotAccepted, msg: op + " does not accept funds"}
	}
	if err := h.requireClientAccount(req.Sender); err != nil {
		return nil, op, err
	}
	if op == core.OpRetract {
		if err := h.requireClientAccount(req.Execute.Retract.Receiver); err != nil {
			return nil, op, err
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.requireAuction(req.AuctionID); err != nil {
		return nil, op, err
	}

	info := core.MessageInfo{Sender: req.Sender, Funds: req.Funds}
	escrow := h.escrowAccount(req.AuctionID)

	var (
		out         *core.Response
		attestation auctionapi.AttestationCOSE
		compressed  auctionapi.AttestationCOSEGzip
	)
	err = h.inTx(func(tx *kvstore.Tx) error {
		engine := h.engine(tx, req.AuctionID)
		ledger := bank.New(tx)

		var err error
		switch op {
		case core.OpBid:
			out, err = engine.Bid(info)
		case core.OpClose:
			out, err = engine.Close(info)
		case core.OpRetract:
			out, err = engine.Retract(info, req.Execute.Retract.Receiver)
		}
		if err != nil {
			return err
		}

		// the engine accepted the bid, so exactly one coin is attached
		if op == core.OpBid {
			if err := ledger.Send(info.Sender, escrow, info.Funds[0]); err != nil {
				return fmt.Errorf("escrow bid: %w", err)
			}
		}
		if err := ledger.Execute(escrow, out.Transfers); err != nil {
			return fmt.Errorf("settle transfers: %w", err)
		}

		if op == core.OpClose && h.attester != nil {
			attestation, err = h.attestClose(engine, req.AuctionID)
			if err != nil {
				return &requestError{code: codeAttestation, msg: err.Error()}
			}
			compressed, err = attestation.CompressGzip()
			if err != nil {
				return &requestError{code: codeAttestation, msg: err.Error()}
			}
		}
		return nil
	})
	if err != nil {
		return nil, op, err
	}

	h.metrics.transfers.Add(float64(len(out.Transfers)))

	resp := &auctionapi.Response{
		AuctionID:  req.AuctionID,
		Attributes: out.Attributes,
		Transfers:  out.Transfers,
	}
	if attestation != nil {
		resp.AttestationCOSEBase64 = attestation.EncodeBase64()
		resp.AttestationCOSEGzip = compressed
	}
	return resp, op, nil
}

func (h *Host) attestClose(engine *core.Engine, auctionID string) (auctionapi.AttestationCOSE, error) {
	owner, err := engine.Owner()
	if err != nil {
		return nil, err
	}
	hb, err := engine.HighestBid()
	if err != nil {
		return nil, err
	}
	commission, err := engine.Commission()
	if err != nil {
		return nil, err
	}
	return GenerateSettlementAttestation(h.attester, Settlement{
		AuctionID:  auctionID,
		Owner:      owner,
		Winner:     hb.Bidder,
		Amount:     hb.Amount,
		Commission: commission,
	}, h.now())
}

func (h *Host) query(req auctionapi.Request) (*auctionapi.Response, string, error) {
	if req.Query == nil {
		return nil, "", badRequest("query requires a message")
	}
	name, err := req.Query.Name()
	if err != nil {
		return nil, "", badRequest("%v", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := h.requireAuction(req.AuctionID); err != nil {
		return nil, name, err
	}
	engine := h.engine(h.db, req.AuctionID)

	var data any
	switch name {
	case auctionapi.QueryHighestBid:
		hb, err := engine.HighestBid()
		if err != nil {
			return nil, name, err
		}
		data = auctionapi.HighestBidResponse{Value: hb.Amount, Bidder: hb.Bidder}
	case auctionapi.QueryCommission:
		c, err := engine.Commission()
		if err != nil {
			return nil, name, err
		}
		data = auctionapi.CommissionResponse{Value: c}
	case auctionapi.QueryBiddingState:
		open, err := engine.BiddingOpen()
		if err != nil {
			return nil, name, err
		}
		data = auctionapi.BiddingStateResponse{Value: open}
	case auctionapi.QueryWinner:
		w, err := engine.Winner()
		if err != nil {
			return nil, name, err
		}
		data = auctionapi.WinnerResponse{Value: w}
	case auctionapi.QueryOwner:
		o, err := engine.Owner()
		if err != nil {
			return nil, name, err
		}
		data = auctionapi.OwnerResponse{Value: o}
	case auctionapi.QueryCommodity:
		c, err := engine.Commodity()
		if err != nil {
			return nil, name, err
		}
		data = auctionapi.CommodityResponse{Value: c}
	case auctionapi.QueryTotalBid:
		total, err := engine.TotalBid(req.Query.TotalBid.Address)
		if err != nil {
			return nil, name, err
		}
		data = auctionapi.TotalBidResponse{Address: req.Query.TotalBid.Address, Value: total}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, name, fmt.Errorf("encode %s response: %w", name, err)
	}
	return &auctionapi.Response{AuctionID: req.AuctionID, Data: raw}, name, nil
}

func (h *Host) mint(req auctionapi.Request) (*auctionapi.Response, error) {
	if !h.allowMint {
		return nil, &requestError{code: codeMintDisabled, msg: "minting is disabled"}
	}
	if req.Mint == nil {
		return nil, badRequest("mint requires a coin")
	}
	if err := h.requireClientAccount(req.Sender); err != nil {
		return nil, err
	}
	coin := *req.Mint
	if coin.Denom == "" {
		coin.Denom = h.denom
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := bank.New(h.db).Mint(req.Sender, coin); err != nil {
		if errors.Is(err, bank.ErrInvalidAccount) {
			return nil, badRequest("%v", err)
		}
		return nil, err
	}
	h.logger.Debug("minted", "to", req.Sender, "amount", coin.Amount, "denom", coin.Denom)
	return h.balanceLocked(req.Sender, coin.Denom)
}

func (h *Host) balance(req auctionapi.Request) (*auctionapi.Response, error) {
	denom := req.Denom
	if denom == "" {
		denom = h.denom
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.balanceLocked(req.Sender, denom)
}

func (h *Host) balanceLocked(addr core.Addr, denom string) (*auctionapi.Response, error) {
	coin, err := bank.New(h.db).Balance(addr, denom)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(auctionapi.BalanceResponse{Address: addr, Value: coin})
	if err != nil {
		return nil, fmt.Errorf("encode balance response: %w", err)
	}
	return &auctionapi.Response{Data: raw}, nil
}

// requireAuction fails unless auctionID names an initialized auction.
func (h *Host) requireAuction(auctionID string) error {
	if auctionID == "" {
		return badRequest("auction_id is required")
	}
	if _, err := h.engine(h.db, auctionID).Owner(); err != nil {
		if errors.Is(err, core.ErrNotInitialized) {
			return &requestError{code: codeUnknownAuction, msg: "unknown auction " + auctionID}
		}
		return err
	}
	return nil
}

// inTx runs fn over a transaction on the database and commits it only when
// fn succeeds.
func (h *Host) inTx(fn func(tx *kvstore.Tx) error) error {
	tx := kvstore.NewTx(h.db)
	defer tx.Discard()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
