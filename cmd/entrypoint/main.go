// Package main provides the Docker container entrypoint
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

func main() {
	runType := getEnvWithDefault("RUN_TYPE", "bot")

	// Execute the appropriate binary based on RUN_TYPE
	switch runType {
	case "bot":
		if getEnvWithDefault("AUTO_MIGRATE", "false") == "true" {
			execBinary("/app/bin/db", "migrate")
		}

		execBinary("/app/bin/bot")
	case "migrate":
		execBinary("/app/bin/db", "migrate")
	default:
		fmt.Fprintf(os.Stderr, "Invalid RUN_TYPE. Must be either 'bot' or 'migrate'\n")
		fmt.Fprintf(os.Stderr, "Usage: RUN_TYPE=bot [AUTO_MIGRATE=true]\n")
		os.Exit(1)
	}
}

// getEnvWithDefault returns the environment variable value or the default if not set.
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// execBinary runs the binary to completion, exiting on failure.
func execBinary(path string, args ...string) {
	cmd := exec.Command(path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute %s: %v\n", filepath.Base(path), err)
		os.Exit(1)
	}
}
