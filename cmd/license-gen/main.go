// Command license-gen interactively generates encrypted license files
// for hospital deployments. It shares the codec and secret configuration
// with the server, so generated files activate against any deployment
// configured with the same secret.
package main

import (
	"fmt"
	"os"
	"time"

	"hospadmin/internal/config"
	"hospadmin/internal/license"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	secret, err := cfg.ResolveSecret()
	if err != nil {
		return err
	}

	req, err := license.PromptRequest(os.Stdin, os.Stdout)
	if err != nil {
		return err
	}

	now := time.Now()
	gen := license.NewGenerator(license.NewCodec(secret), cfg.License.OutputDir)

	payload, blob, err := gen.Generate(req, now)
	if err != nil {
		return err
	}

	path, err := gen.Save(blob, payload.Institution, now)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("License generated")
	fmt.Printf("  Institution: %s\n", payload.Institution)
	fmt.Printf("  Valid until: %s\n", payload.ValidUntil)
	fmt.Printf("  Domain:      %s\n", payload.AllowedDomain)
	fmt.Printf("  Features:    %d enabled\n", len(payload.Features))
	fmt.Printf("  File:        %s\n", path)
	return nil
}
