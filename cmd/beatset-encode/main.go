// Command beatset-encode flattens extracted osu! song folders into the
// twelve Parquet tables of a beatset dataset.
package main

import (
	"os"

	"github.com/beatset/beatset/internal/cli"
	"github.com/beatset/beatset/internal/config"
)

func main() {
	os.Exit(cli.Main("beatset-encode", config.ModeEncode, os.Args[1:], os.Stdout, os.Stderr))
}
