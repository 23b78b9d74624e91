package main

import (
	"os"

	"github.com/bobmcallan/optimus/internal/common"
)

func main() {
	common.LoadVersionFromFile()
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
