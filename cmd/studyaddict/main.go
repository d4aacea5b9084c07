// Package main is the single-binary entrypoint for Study Addict: the CLI and
// the API server.
package main

import "github.com/studyaddict/studyaddict/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
