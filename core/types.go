package core

// DefaultDenom is the asset an auction escrows when none is configured.
const DefaultDenom = "atom"

// Operation names, used in response attributes and error metadata.
const (
	OpInitialize = "initialize"
	OpBid        = "bid"
	OpClose      = "close"
	OpRetract    = "retract"
)

// Addr identifies a participant. The empty Addr means "none".
type Addr string

// IsEmpty reports whether the address is unset.
func (a Addr) IsEmpty() bool {
	return a == ""
}

// Coin is an integer quantity of one asset denomination.
type Coin struct {
	Denom  string `json:"denom" cbor:"denom"`
	Amount uint64 `json:"amount,string" cbor:"amount"`
}

// NewCoin builds a Coin.
func NewCoin(amount uint64, denom string) Coin {
	return Coin{Denom: denom, Amount: amount}
}

// MessageInfo is what the transport extracts from an inbound command: who
// sent it and which funds came attached.
type MessageInfo struct {
	Sender Addr
	Funds  []Coin
}

// HighestBid is the leading cumulative bid. Bidder is empty only before the
// first accepted bid, when Amount is zero.
type HighestBid struct {
	Bidder Addr `json:"bidder,omitempty" cbor:"bidder"`
	Amount Coin `json:"amount" cbor:"amount"`
}

// Transfer asks the host to move funds out of escrow. The engine never
// executes it.
type Transfer struct {
	To     Addr `json:"to"`
	Amount Coin `json:"amount"`
}

// Attribute is one key/value pair describing what a command did.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the result of a successful command.
type Response struct {
	Attributes []Attribute `json:"attributes,omitempty"`
	Transfers  []Transfer  `json:"transfers,omitempty"`
}

func (r *Response) addAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

func (r *Response) addTransfer(to Addr, amount Coin) *Response {
	r.Transfers = append(r.Transfers, Transfer{To: to, Amount: amount})
	return r
}

// Attribute returns the value of the first attribute named key.
func (r *Response) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// InstantiateMsg configures a new auction.
type InstantiateMsg struct {
	// Commodity describes what is being auctioned.
	Commodity string `json:"commodity"`
	// Owner overrides the instantiating sender as the auction owner.
	Owner Addr `json:"owner,omitempty"`
	// Commission is the percentage withheld from every retract, 0-100.
	Commission uint64 `json:"commission"`
	// Denom is the escrowed asset; DefaultDenom when empty.
	Denom string `json:"denom,omitempty"`
}
