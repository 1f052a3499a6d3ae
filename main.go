package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"swapflow/cmd"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
