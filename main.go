package main

import (
	"os"

	"rental-auction/cmd"
	"rental-auction/utils"
)

func main() {
	if err := cmd.Execute(); err != nil {
		utils.Error("rental-auction exited with error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}
