// Command beatset encodes osu! song folders into a Parquet dataset,
// reconstructs folders from it and lists its partitions, as selected by -mode.
package main

import (
	"os"

	"github.com/beatset/beatset/internal/cli"
)

func main() {
	os.Exit(cli.Main("beatset", "", os.Args[1:], os.Stdout, os.Stderr))
}
