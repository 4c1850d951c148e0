// Command custodyctl quotes custody math, replays scenarios and serves the
// read-only custody API.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/xraph/custody/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.SilenceErrors = true
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "custodyctl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
