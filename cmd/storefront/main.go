// Command storefront serves the storefront and manages its page builder
// configuration.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/storefront/cmd/storefront/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
