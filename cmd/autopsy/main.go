// Command autopsy renders, serves and archives autopsy reports.
package main

import (
	"context"
	"os"

	"github.com/roach88/autopsy/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
