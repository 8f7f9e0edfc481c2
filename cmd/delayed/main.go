// Command delayed operates a delayed job store: it runs workers, releases
// the locks of dead workers, reports queue statistics and migrates schemas.
package main

import (
	"context"
	"os"

	"github.com/xraph/delayed/cmd/delayed/cmd"
)

func main() {
	if err := cmd.Execute(context.Background()); err != nil {
		os.Exit(1)
	}
}
