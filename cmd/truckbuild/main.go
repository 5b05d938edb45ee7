package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"truckbuild/internal/cli"
)

func main() {
	// A local .env supplies TRUCKBUILD_* variables during development;
	// missing files are fine.
	_ = godotenv.Load()

	if err := cli.Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
