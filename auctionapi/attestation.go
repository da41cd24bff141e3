package auctionapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// AttestationCOSE is a raw COSE_Sign1 attestation as returned by the NSM.
type AttestationCOSE []byte

// AttestationCOSEBase64 is an AttestationCOSE in standard base64.
type AttestationCOSEBase64 string

// AttestationCOSEGzip is a gzip-compressed AttestationCOSE in unpadded
// URL-safe base64, small enough for query strings.
type AttestationCOSEGzip string

// EncodeBase64 encodes the attestation with standard base64.
func (a AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

// CompressGzip gzips the attestation. Output is deterministic: the gzip
// header carries no name or modification time.
func (a AttestationCOSE) CompressGzip() (AttestationCOSEGzip, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := zw.Write(a); err != nil {
		return "", fmt.Errorf("gzip attestation: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("close gzip writer: %w", err)
	}
	return AttestationCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

func (a AttestationCOSEBase64) String() string { return string(a) }

// Decode returns the raw attestation bytes.
func (a AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	raw, err := base64.StdEncoding.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return AttestationCOSE(raw), nil
}

func (a AttestationCOSEGzip) String() string { return string(a) }

// Decompress returns the raw attestation bytes.
func (a AttestationCOSEGzip) Decompress() (AttestationCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip stream: %w", err)
	}
	return AttestationCOSE(raw), nil
}

// PCRs are the Platform Configuration Registers of an AWS Nitro enclave,
// hex encoded.
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the decoded Nitro attestation document, with binary
// fields base64 encoded.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key,omitempty"`
	Nonce           string    `json:"nonce,omitempty"`
}

// SettlementUserData is what a close attestation embeds: the settled outcome
// and the configuration it was reached under. Identities appear in clear
// because the outcome is public once the auction closes.
type SettlementUserData struct {
	AuctionID      string    `json:"auction_id"`
	Owner          string    `json:"owner"`
	Winner         string    `json:"winner"`
	Amount         uint64    `json:"amount,string"`
	Denom          string    `json:"denom"`
	Commission     uint64    `json:"commission"`
	SettlementHash string    `json:"settlement_hash"`
	Nonce          string    `json:"nonce"`
	Timestamp      time.Time `json:"timestamp"`
}

// SettlementAttestationDoc pairs an attestation document with its decoded
// settlement data.
type SettlementAttestationDoc struct {
	AttestationDoc
	UserData *SettlementUserData `json:"user_data"`
}

// ParseAttestationDoc decodes the Nitro document carried by the COSE_Sign1
// envelope and returns it with the raw user data bytes. It does not verify
// anything.
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	payload, err := ExtractCOSEPayload(a)
	if err != nil {
		return AttestationDoc{}, nil, err
	}
	raw, err := DecodeNitroDocument(payload)
	if err != nil {
		return AttestationDoc{}, nil, err
	}
	return raw.AttestationDoc(), raw.UserData, nil
}

// ParseSettlementAttestation decodes a close attestation together with its
// settlement user data.
func (a AttestationCOSE) ParseSettlementAttestation() (*SettlementAttestationDoc, error) {
	doc, userData, err := a.ParseAttestationDoc()
	if err != nil {
		return nil, err
	}
	var settlement SettlementUserData
	if err := json.Unmarshal(userData, &settlement); err != nil {
		return nil, fmt.Errorf("decode settlement user data: %w", err)
	}
	return &SettlementAttestationDoc{AttestationDoc: doc, UserData: &settlement}, nil
}
