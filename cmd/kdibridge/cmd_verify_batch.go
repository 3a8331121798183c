package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ochairo/kdibridge/internal/domain-adapters/gateways"
)

func runVerifyBatch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("verify-batch", flag.ExitOnError)
	keyPath := fs.String("key", "", "Armored or binary OpenPGP public key; without it only the checksum is verified")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kdibridge verify-batch <file>... [options]

Verify the .sha256 checksum and, with --key, the .asc signature written next
to emitted KDI batch files.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  kdibridge verify-batch output/checkmarx_sast/checkmarx_sast_kdi_7.json
  kdibridge verify-batch --key signing.pub.asc output/qualys_was/*.json
`)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: batch file path is required\n\n")
		fs.Usage()
		return 1
	}

	verifier, err := gateways.NewBatchVerifier(*keyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	failed := 0
	for _, path := range fs.Args() {
		fingerprint, err := verifier.VerifyBatch(ctx, path)
		switch {
		case err != nil:
			fmt.Printf("❌ %s: %v\n", filepath.Base(path), err)
			failed++
		case fingerprint != "":
			fmt.Printf("✅ %s: checksum and signature verified (key %s)\n", filepath.Base(path), fingerprint)
		default:
			fmt.Printf("✅ %s: checksum verified\n", filepath.Base(path))
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d of %d batches failed verification\n", failed, fs.NArg())
		return 1
	}
	return 0
}
