package main

import (
	_ "time/tzdata"

	"github.com/runwayhq/runway/cli"
)

func main() {
	cli.RunMain()
}
