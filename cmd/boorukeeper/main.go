package main

import (
	"os"

	"github.com/solatis/boorukeeper/cmd/boorukeeper/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
