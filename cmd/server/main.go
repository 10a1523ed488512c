// Command server runs the Aria character sheet API.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	loadLocalEnv()

	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadLocalEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; relying on existing environment")
	}
}
