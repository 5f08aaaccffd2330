// Package main provides the entry point for the annserve CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/annserve/cmd/annserve/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
