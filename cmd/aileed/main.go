// Package main is the single-binary entrypoint for a mesh node.
package main

import "github.com/ailee-network/ailee-core/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
