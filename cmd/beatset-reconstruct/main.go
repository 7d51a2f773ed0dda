// Command beatset-reconstruct rebuilds osu! song folders from a beatset
// dataset.
package main

import (
	"os"

	"github.com/beatset/beatset/internal/cli"
	"github.com/beatset/beatset/internal/config"
)

func main() {
	os.Exit(cli.Main("beatset-reconstruct", config.ModeReconstruct, os.Args[1:], os.Stdout, os.Stderr))
}
