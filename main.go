package main

import (
	"os"

	"github.com/tphakala/audiosessions/cmd"
	"github.com/tphakala/audiosessions/internal/buildinfo"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=...".
var (
	version   = "dev"
	buildDate string
)

func main() {
	if err := cmd.RootCommand(buildinfo.New(version, buildDate)).Execute(); err != nil {
		os.Exit(1)
	}
}
