// Command seal-secret seals the shared license secret under an operator
// passphrase so it can be distributed as a file instead of a plaintext
// environment variable.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"hospadmin/internal/security"
)

func main() {
	out := flag.String("out", "secret.enc", "output path for the sealed secret")
	flag.Parse()

	if err := run(*out); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(out string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Shared secret: ")
	secret, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	fmt.Print("Passphrase: ")
	passphrase, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	secret = strings.TrimRight(secret, "\r\n")
	passphrase = strings.TrimRight(passphrase, "\r\n")

	if err := security.WriteSecretFile(out, secret, passphrase); err != nil {
		return err
	}

	fmt.Printf("Sealed secret written to %s\n", out)
	return nil
}
