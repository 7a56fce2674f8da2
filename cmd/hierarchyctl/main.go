// Command hierarchyctl queries a configured hierarchy from the command line.
//
// It reads the same configuration as the server (file, TIHIER_ environment
// variables and flags) and supports:
//   - ancestors: print the ancestors of one or more nodes
//   - explain:   print the SQL an ancestors lookup would run
//   - exists:    list nodes having an ancestor with a given column value
//   - version:   print the build version
package main

import (
	"fmt"
	"os"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
