package main

import (
	"os"

	"github.com/regdelta/regdelta/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
