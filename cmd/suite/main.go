// Command suite runs and supports the knowledge service's end-to-end tests.
package main

import (
	"os"

	"github.com/kuitang/knowledge-e2e/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
