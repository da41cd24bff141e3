package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
)

const (
	testPCR0 = "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"
	testPCR1 = "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"
	testPCR2 = "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"
)

// testEnclave plays the NSM: a private CA whose leaf key signs attestation
// documents the way Nitro does.
type testEnclave struct {
	rootDER  []byte
	roots    *x509.CertPool
	leafDER  []byte
	leafKey  *ecdsa.PrivateKey
	notAfter time.Time
}

func newTestEnclave(t *testing.T) *testEnclave {
	t.Helper()
	notBefore := time.Now().Add(-time.Hour)
	notAfter := time.Now().Add(time.Hour)

	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test.nitro-enclaves"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)
	assert.NoError(t, err)
	root, err := x509.ParseCertificate(rootDER)
	assert.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "i-0abc-enc0123"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, root, &leafKey.PublicKey, rootKey)
	assert.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(root)

	return &testEnclave{
		rootDER:  rootDER,
		roots:    roots,
		leafDER:  leafDER,
		leafKey:  leafKey,
		notAfter: notAfter,
	}
}

func (e *testEnclave) validator() *Validator {
	return &Validator{
		Roots:   e.roots,
		PCRSets: []PCRSet{{PCR0: testPCR0, PCR1: testPCR1, PCR2: testPCR2, CommitHash: "abc123"}},
	}
}

type attestOptions struct {
	at      time.Time
	pcr0    string
	signKey *ecdsa.PrivateKey
}

// attest signs a Nitro attestation document carrying userData.
func (e *testEnclave) attest(t *testing.T, userData []byte, opts attestOptions) auctionapi.AttestationCOSEBase64 {
	t.Helper()
	if opts.at.IsZero() {
		opts.at = time.Now()
	}
	if opts.pcr0 == "" {
		opts.pcr0 = testPCR0
	}
	if opts.signKey == nil {
		opts.signKey = e.leafKey
	}

	doc := map[string]any{
		"module_id": "i-0abc-enc0123",
		"digest":    "SHA384",
		"timestamp": uint64(opts.at.UnixMilli()),
		"pcrs": map[uint64][]byte{
			0: mustHex(t, opts.pcr0),
			1: mustHex(t, testPCR1),
			2: mustHex(t, testPCR2),
		},
		"certificate": e.leafDER,
		"cabundle":    [][]byte{e.rootDER},
		"public_key":  []byte{},
		"user_data":   userData,
		"nonce":       []byte("attestation-nonce"),
	}
	payload, err := cbor.Marshal(doc)
	assert.NoError(t, err)

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES384)
	msg.Payload = payload
	signer, err := cose.NewSigner(cose.AlgorithmES384, opts.signKey)
	assert.NoError(t, err)
	assert.NoError(t, msg.Sign(rand.Reader, nil, signer))

	raw, err := (*cose.UntaggedSign1Message)(msg).MarshalCBOR()
	assert.NoError(t, err)
	return auctionapi.AttestationCOSE(raw).EncodeBase64()
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	assert.NoError(t, err)
	return b
}

func testSettlement() auctionapi.SettlementUserData {
	s := auctionapi.SettlementUserData{
		AuctionID:  "8a6f0c55-0b7e-4ef3-9c55-3a0e9e5f1a01",
		Owner:      "owner",
		Winner:     "sender2",
		Amount:     15,
		Denom:      "atom",
		Commission: 10,
		Nonce:      "5f0e",
		Timestamp:  time.Now().UTC(),
	}
	s.SettlementHash = core.ComputeSettlementHash(s.AuctionID, core.Addr(s.Winner), core.NewCoin(s.Amount, s.Denom), s.Nonce)
	return s
}

func marshalSettlement(t *testing.T, s auctionapi.SettlementUserData) []byte {
	t.Helper()
	b, err := json.Marshal(s)
	assert.NoError(t, err)
	return b
}
