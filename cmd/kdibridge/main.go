package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command := os.Args[1]

	// Dispatch to subcommand
	var code int
	switch command {
	case "checkmarx-sast":
		code = runCheckmarxSAST(ctx, os.Args[2:])
	case "qualys-was":
		code = runQualysWAS(ctx, os.Args[2:])
	case "profiles":
		code = runProfiles(ctx, os.Args[2:])
	case "verify-batch":
		code = runVerifyBatch(ctx, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		code = 1
	}

	stop()
	os.Exit(code)
}

func printUsage() {
	fmt.Println(`kdibridge - Scanner results to KDI batch connector

Usage:
  kdibridge <command> [options]

Commands:
  checkmarx-sast    Ingest Checkmarx SAST scan reports
  qualys-was        Ingest Qualys WAS findings
  profiles          List connector profiles
  verify-batch      Verify the checksum and signature of an emitted batch

Use "kdibridge <command> --help" for more information about a command.`)
}
