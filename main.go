package main

import (
	"os"

	"github.com/mCat-0/mCat-ac/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
