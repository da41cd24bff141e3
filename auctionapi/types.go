// Package auctionapi defines the JSON wire protocol spoken between the
// auction daemon and its clients, plus the attestation encodings a closed
// auction is published with.
package auctionapi

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudx-io/escrowauction/core"
)

// Request types.
const (
	TypePing          = "ping"
	TypeCreateAuction = "create_auction"
	TypeExecute       = "execute"
	TypeQuery         = "query"
	TypeMint          = "mint"
	TypeBalance       = "balance"
)

// Response types.
const (
	TypePong   = "pong"
	TypeResult = "result"
	TypeError  = "error"
)

// ErrMalformedMessage is returned when a tagged message does not carry
// exactly one variant.
var ErrMalformedMessage = errors.New("message must carry exactly one variant")

// Request is one command or query sent to the daemon. The sender identity
// and attached funds are asserted by the transport in front of the daemon.
type Request struct {
	Type      string      `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	AuctionID string      `json:"auction_id,omitempty"`
	Sender    core.Addr   `json:"sender,omitempty"`
	Funds     []core.Coin `json:"funds,omitempty"`

	Instantiate *core.InstantiateMsg `json:"instantiate,omitempty"`
	Execute     *ExecuteMsg          `json:"execute,omitempty"`
	Query       *QueryMsg            `json:"query,omitempty"`

	// Mint is the coin credited to Sender by a mint request.
	Mint *core.Coin `json:"mint,omitempty"`
	// Denom selects the balance a balance request reports.
	Denom string `json:"denom,omitempty"`
}

// ExecuteMsg is externally tagged: {"bid":{}}, {"close":{}} or
// {"retract":{"receiver":"..."}}.
type ExecuteMsg struct {
	Bid     *BidMsg     `json:"bid,omitempty"`
	Close   *CloseMsg   `json:"close,omitempty"`
	Retract *RetractMsg `json:"retract,omitempty"`
}

type BidMsg struct{}

type CloseMsg struct{}

// RetractMsg sends the refund to Receiver when set, to the sender otherwise.
type RetractMsg struct {
	Receiver core.Addr `json:"receiver,omitempty"`
}

// Op returns the operation the message selects.
func (m *ExecuteMsg) Op() (string, error) {
	var ops []string
	if m.Bid != nil {
		ops = append(ops, core.OpBid)
	}
	if m.Close != nil {
		ops = append(ops, core.OpClose)
	}
	if m.Retract != nil {
		ops = append(ops, core.OpRetract)
	}
	if len(ops) != 1 {
		return "", fmt.Errorf("execute: %w (got %d)", ErrMalformedMessage, len(ops))
	}
	return ops[0], nil
}

// Query names.
const (
	QueryHighestBid   = "highest_bid"
	QueryCommission   = "commission"
	QueryBiddingState = "bidding_state"
	QueryWinner       = "winner"
	QueryOwner        = "owner"
	QueryCommodity    = "commodity"
	QueryTotalBid     = "total_bid"
)

// QueryMsg is externally tagged like ExecuteMsg, e.g. {"highest_bid":{}}.
type QueryMsg struct {
	HighestBid   *struct{}      `json:"highest_bid,omitempty"`
	Commission   *struct{}      `json:"commission,omitempty"`
	BiddingState *struct{}      `json:"bidding_state,omitempty"`
	Winner       *struct{}      `json:"winner,omitempty"`
	Owner        *struct{}      `json:"owner,omitempty"`
	Commodity    *struct{}      `json:"commodity,omitempty"`
	TotalBid     *TotalBidQuery `json:"total_bid,omitempty"`
}

type TotalBidQuery struct {
	Address core.Addr `json:"address"`
}

// Name returns the query the message selects.
func (m *QueryMsg) Name() (string, error) {
	var names []string
	for name, set := range map[string]bool{
		QueryHighestBid:   m.HighestBid != nil,
		QueryCommission:   m.Commission != nil,
		QueryBiddingState: m.BiddingState != nil,
		QueryWinner:       m.Winner != nil,
		QueryOwner:        m.Owner != nil,
		QueryCommodity:    m.Commodity != nil,
		QueryTotalBid:     m.TotalBid != nil,
	} {
		if set {
			names = append(names, name)
		}
	}
	if len(names) != 1 {
		return "", fmt.Errorf("query: %w (got %d)", ErrMalformedMessage, len(names))
	}
	return names[0], nil
}

// Query payloads, carried in Response.Data.
type (
	HighestBidResponse struct {
		Value  core.Coin `json:"value"`
		Bidder core.Addr `json:"bidder,omitempty"`
	}

	CommissionResponse struct {
		Value uint64 `json:"value"`
	}

	BiddingStateResponse struct {
		Value bool `json:"value"`
	}

	WinnerResponse struct {
		Value core.Addr `json:"value"`
	}

	OwnerResponse struct {
		Value core.Addr `json:"value"`
	}

	CommodityResponse struct {
		Value string `json:"value"`
	}

	TotalBidResponse struct {
		Address core.Addr `json:"address"`
		Value   core.Coin `json:"value"`
	}

	BalanceResponse struct {
		Address core.Addr `json:"address"`
		Value   core.Coin `json:"value"`
	}
)

// Response answers one Request.
type Response struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`

	// ErrorCode is the domain error code of a rejected command, empty for
	// transport and decoding failures.
	ErrorCode     string            `json:"error_code,omitempty"`
	ErrorMetadata map[string]string `json:"error_metadata,omitempty"`

	AuctionID  string           `json:"auction_id,omitempty"`
	Attributes []core.Attribute `json:"attributes,omitempty"`
	Transfers  []core.Transfer  `json:"transfers,omitempty"`
	Data       json.RawMessage  `json:"data,omitempty"`

	// AttestationCOSEBase64 is set on a successful close when the daemon
	// runs inside an enclave.
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
	// AttestationCOSEGzip is the same attestation gzipped in URL-safe
	// base64, for callers that relay it through query strings.
	AttestationCOSEGzip AttestationCOSEGzip `json:"attestation_cose_gzip,omitempty"`

	ProcessingTime int64 `json:"processing_time_ms"`
}

// DecodeData unmarshals the query payload into out.
func (r *Response) DecodeData(out any) error {
	if len(r.Data) == 0 {
		return errors.New("response carries no data")
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
