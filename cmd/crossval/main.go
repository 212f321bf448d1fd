// Command crossval runs deterministic cross-validation over an extraction
// report and writes the json, csv and md artifacts to disk.
//
// Usage:
//
//	crossval run --input report.json [--run-id ID] [--out DIR] [--workers N]
//	crossval version
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
