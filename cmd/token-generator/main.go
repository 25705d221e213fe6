// Package main implements token-generator, a CLI issuing and inspecting the
// bearer tokens accepted by the taskline API.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
