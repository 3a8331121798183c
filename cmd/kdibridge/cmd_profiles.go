package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/repositories"
	"github.com/ochairo/kdibridge/internal/external-adapters/yaml"
)

func runProfiles(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("profiles", flag.ExitOnError)
	var (
		profilesDir = fs.String("profiles-dir", "profiles", "Path to profiles directory")
		connector   = fs.String("connector", "", "Filter by connector (checkmarx_sast, qualys_was)")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: kdibridge profiles [options]

List the connector profiles in the profiles directory.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  kdibridge profiles
  kdibridge profiles --connector qualys_was
`)
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	logger, err := newLogger("", "text")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	var repo repositories.ProfileRepository = yaml.NewProfileRepository(*profilesDir, logger)

	var profiles []*entities.Profile
	if *connector != "" {
		profiles, err = repo.GetProfilesByConnector(ctx, *connector)
	} else {
		profiles, err = repo.ListProfiles(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing profiles: %v\n", err)
		return 1
	}

	if *connector != "" {
		fmt.Printf("Profiles for connector %s (%d total):\n\n", *connector, len(profiles))
	} else {
		fmt.Printf("Available profiles (%d total):\n\n", len(profiles))
	}

	for _, p := range profiles {
		fmt.Printf("  %-20s %s\n", p.Name, p.Connector)
		if p.Vendor.Console != "" {
			fmt.Printf("  %-20s Console: %s\n", "", p.Vendor.Console)
		}
		if p.Kenna.ConnectorID != "" {
			fmt.Printf("  %-20s Kenna connector: %s\n", "", p.Kenna.ConnectorID)
		}
		if p.Signing.KeyPath != "" {
			fmt.Printf("  %-20s 🔐 Batches signed\n", "")
		}
		fmt.Println()
	}
	return 0
}
