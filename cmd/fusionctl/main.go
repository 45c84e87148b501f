package main

import (
	"os"

	"fabric-fusion-backend/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
