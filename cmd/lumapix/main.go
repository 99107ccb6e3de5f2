// Lumapix CLI - companion client for the Lumapix photo library.
package main

import (
	"os"

	"github.com/lumapix/lumapix-cli/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// Cobra already printed the error (SilenceUsage only suppresses
		// usage text, not errors).
		os.Exit(1)
	}
}
