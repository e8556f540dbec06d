// Command bpdiff diffs, patches and reconciles blueprint files offline using
// the same engine as the drafts service.
package main

import (
	"fmt"
	"os"
)

const (
	exitOK       = 0
	exitError    = 1
	exitConflict = 2
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if _, ok := err.(*conflictError); ok {
			os.Exit(exitConflict)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitError)
	}
	os.Exit(exitOK)
}
