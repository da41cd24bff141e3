package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/cloudx-io/escrowauction/auctionapi"
	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

// gzipPrefix is how a base64url gzip stream starts.
const gzipPrefix = "H4sI"

func main() {
	var (
		responseInput    = flag.String("response", "", "Close response JSON from auctiond (file path or inline JSON)")
		attestationInput = flag.String("attestation", "", "Attestation as base64 or gzip base64url (file path or inline)")
		pcrsPath         = flag.String("pcrs", "", "Path to the known PCR sets JSON file (required)")
		auctionID        = flag.String("auction-id", "", "Expected auction id (defaults to the one in --response)")
		owner            = flag.String("owner", "", "Expected auction owner")
		winner           = flag.String("winner", "", "Expected winner")
		amount           = flag.String("amount", "", "Expected winning amount, in base units")
		denom            = flag.String("denom", core.DefaultDenom, "Denomination of --amount")
		commission       = flag.String("commission", "", "Expected commission percentage")
		outputFormat     = flag.String("format", "text", "Output format: text or json")
		help             = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *pcrsPath == "" || (*responseInput == "" && *attestationInput == "") {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --pcrs and one of --response or --attestation are required\n")
		os.Exit(1)
	}

	attestation, responseAuctionID, err := readAttestation(*responseInput, *attestationInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading attestation: %v\n", err)
		os.Exit(2)
	}
	if *auctionID == "" {
		*auctionID = responseAuctionID
	}

	want, err := buildExpectation(*auctionID, *owner, *winner, *amount, *denom, *commission)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading expectation: %v\n", err)
		os.Exit(2)
	}

	pcrSets, err := validation.LoadPCRsFromFile(*pcrsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading PCRs: %v\n", err)
		os.Exit(2)
	}
	validator, err := validation.NewValidator(pcrSets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating validator: %v\n", err)
		os.Exit(2)
	}

	result, err := validator.ValidateSettlementAttestation(attestation, want)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	logger.Info("Auction Settlement Attestation Validator")
	logger.Info("")
	logger.Info("Validates the enclave attestation returned when an auction is closed.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  settlement-validator --pcrs <file> (--response <json> | --attestation <data>) [options]")
	logger.Info("")
	logger.Info("Required Flags:")
	logger.Info("  --pcrs <file>                     Known-good PCR sets")
	logger.Info("  --response <json>                 Close response as returned by auctiond")
	logger.Info("  --attestation <data>              Attestation alone, base64 or gzip base64url")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --auction-id <id>                 Expected auction id (required with --attestation)")
	logger.Info("  --owner <addr>                    Expected owner")
	logger.Info("  --winner <addr>                   Expected winner")
	logger.Info("  --amount <n>                      Expected winning amount")
	logger.Info("  --denom <denom>                   Denomination of --amount (default: atom)")
	logger.Info("  --commission <pct>                Expected commission percentage")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("PCR file format:")
	logger.Info(`  {"pcr_sets": [{"pcr0": "...", "pcr1": "...", "pcr2": "...", "commit_hash": "..."}]}`)
	logger.Info("")
	logger.Info("Examples:")
	logger.Info("  settlement-validator --pcrs pcrs.json --response close.json --winner sender2 --amount 15")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
}

// readInput returns the file contents when input names a file, input itself
// otherwise.
func readInput(input string) []byte {
	if data, err := os.ReadFile(input); err == nil {
		return data
	}
	return []byte(input)
}

func readAttestation(responseInput, attestationInput string) (auctionapi.AttestationCOSEBase64, string, error) {
	if responseInput != "" {
		var resp auctionapi.Response
		if err := json.Unmarshal(readInput(responseInput), &resp); err != nil {
			return "", "", fmt.Errorf("parse response: %w", err)
		}
		switch {
		case resp.AttestationCOSEBase64 != "":
			return resp.AttestationCOSEBase64, resp.AuctionID, nil
		case resp.AttestationCOSEGzip != "":
			raw, err := resp.AttestationCOSEGzip.Decompress()
			if err != nil {
				return "", "", err
			}
			return raw.EncodeBase64(), resp.AuctionID, nil
		default:
			return "", "", fmt.Errorf("response carries no attestation")
		}
	}

	data := strings.TrimSpace(string(readInput(attestationInput)))
	if !strings.HasPrefix(data, gzipPrefix) {
		return auctionapi.AttestationCOSEBase64(data), "", nil
	}
	raw, err := auctionapi.AttestationCOSEGzip(data).Decompress()
	if err != nil {
		return "", "", err
	}
	return raw.EncodeBase64(), "", nil
}

func buildExpectation(auctionID, owner, winner, amount, denom, commission string) (validation.Expectation, error) {
	want := validation.Expectation{
		AuctionID: auctionID,
		Owner:     core.Addr(owner),
		Winner:    core.Addr(winner),
	}
	if amount != "" {
		n, err := strconv.ParseUint(amount, 10, 64)
		if err != nil {
			return want, fmt.Errorf("invalid --amount %q: %w", amount, err)
		}
		c := core.NewCoin(n, denom)
		want.Amount = &c
	}
	if commission != "" {
		n, err := strconv.ParseUint(commission, 10, 64)
		if err != nil {
			return want, fmt.Errorf("invalid --commission %q: %w", commission, err)
		}
		want.Commission = &n
	}
	return want, nil
}

func outputText(result *validation.SettlementValidationResult) {
	logger.Info("Auction Settlement Attestation Validator")
	logger.Info("========================================")
	logger.Info("")
	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  PCRs Valid:              %v", result.PCRsValid))
	logger.Info(fmt.Sprintf("  Certificate Valid:       %v", result.CertificateValid))
	logger.Info(fmt.Sprintf("  Signature Valid:         %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Settlement Hash Valid:   %v", result.SettlementHashValid))
	logger.Info(fmt.Sprintf("  Outcome Valid:           %v", result.OutcomeValid))
	logger.Info("")
	logger.Info("Details:")
	for _, detail := range result.ValidationDetails {
		logger.Info("  - " + detail)
	}
	logger.Info("")
	logger.Info("========================================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
	}
}

func outputJSON(result *validation.SettlementValidationResult) {
	output := map[string]any{
		"valid":                 result.IsValid(),
		"pcrs_valid":            result.PCRsValid,
		"certificate_valid":     result.CertificateValid,
		"signature_valid":       result.SignatureValid,
		"settlement_hash_valid": result.SettlementHashValid,
		"outcome_valid":         result.OutcomeValid,
		"details":               result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}
