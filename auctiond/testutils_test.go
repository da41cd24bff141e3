package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/kvstore"
)

// MockEnclaveHandle implements EnclaveAttester for tests.
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
	Calls      int
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	m.Calls++
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

func mustDecodeHex(t *testing.T, hexStr string) []byte {
	t.Helper()
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		t.Fatalf("invalid hex string: %s", hexStr)
	}
	return b
}

// CreateMockEnclave returns an attester producing Nitro-shaped, unsigned
// COSE_Sign1 documents around the requested user data.
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-12345",
				"digest":    "SHA384",
				"timestamp": uint64(1234567890),
				"pcrs": map[uint64][]byte{
					0: mustDecodeHex(t, "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"),
					1: mustDecodeHex(t, "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"),
					2: mustDecodeHex(t, "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"),
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"public_key":  []byte("test-public-key-data"),
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}
			nestedBytes, err := cbor.Marshal(nestedDoc)
			if err != nil {
				return nil, err
			}
			return cbor.Marshal([]any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			})
		},
	}
}

func testConfig() Config {
	return Config{
		ListenAddr:  "127.0.0.1:0",
		MaxWorkers:  4,
		ReadTimeout: 5 * time.Second,
		Denom:       core.DefaultDenom,
		EscrowAddr:  "escrow",
		AllowMint:   true,
		LogLevel:    slog.LevelDebug,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHost returns a host over store with a private metrics registry.
func newTestHost(t *testing.T, store kvstore.Store, attester EnclaveAttester) (*Host, *metrics) {
	t.Helper()
	m := newMetrics(prometheus.NewRegistry())
	return NewHost(store, testConfig(), attester, m, discardLogger()), m
}

func atoms(n uint64) core.Coin {
	return core.NewCoin(n, core.DefaultDenom)
}

func mint(t *testing.T, h *Host, to core.Addr, amount uint64) {
	t.Helper()
	c := atoms(amount)
	resp := h.Handle(auctionapi.Request{Type: auctionapi.TypeMint, Sender: to, Mint: &c})
	assert.True(t, resp.Success)
}

func createAuction(t *testing.T, h *Host, owner core.Addr, commission uint64) string {
	t.Helper()
	resp := h.Handle(auctionapi.Request{
		Type:   auctionapi.TypeCreateAuction,
		Sender: owner,
		Instantiate: &core.InstantiateMsg{
			Commodity:  "bar of gold",
			Commission: commission,
		},
	})
	assert.True(t, resp.Success)
	assert.NotEqual(t, "", resp.AuctionID)
	return resp.AuctionID
}

func bid(h *Host, auctionID string, sender core.Addr, amount uint64) auctionapi.Response {
	return h.Handle(auctionapi.Request{
		Type:      auctionapi.TypeExecute,
		AuctionID: auctionID,
		Sender:    sender,
		Funds:     []core.Coin{atoms(amount)},
		Execute:   &auctionapi.ExecuteMsg{Bid: &auctionapi.BidMsg{}},
	})
}

func closeAuction(h *Host, auctionID string, sender core.Addr) auctionapi.Response {
	return h.Handle(auctionapi.Request{
		Type:      auctionapi.TypeExecute,
		AuctionID: auctionID,
		Sender:    sender,
		Execute:   &auctionapi.ExecuteMsg{Close: &auctionapi.CloseMsg{}},
	})
}

func retract(h *Host, auctionID string, sender, receiver core.Addr) auctionapi.Response {
	return h.Handle(auctionapi.Request{
		Type:      auctionapi.TypeExecute,
		AuctionID: auctionID,
		Sender:    sender,
		Execute:   &auctionapi.ExecuteMsg{Retract: &auctionapi.RetractMsg{Receiver: receiver}},
	})
}

func query(t *testing.T, h *Host, auctionID string, q auctionapi.QueryMsg, out any) auctionapi.Response {
	t.Helper()
	resp := h.Handle(auctionapi.Request{Type: auctionapi.TypeQuery, AuctionID: auctionID, Query: &q})
	if resp.Success && out != nil {
		assert.NoError(t, resp.DecodeData(out))
	}
	return resp
}

func balanceOf(t *testing.T, h *Host, addr core.Addr) uint64 {
	t.Helper()
	resp := h.Handle(auctionapi.Request{Type: auctionapi.TypeBalance, Sender: addr})
	assert.True(t, resp.Success)
	var b auctionapi.BalanceResponse
	assert.NoError(t, resp.DecodeData(&b))
	return b.Value.Amount
}

func newTestMetrics() *metrics {
	return newMetrics(prometheus.NewRegistry())
}
