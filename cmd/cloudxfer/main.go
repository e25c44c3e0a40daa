// cloudxfer - moves files to and from cloud storage through pre-signed URLs.
package main

import (
	"os"

	"github.com/cloudsdk/cloudxfer/internal/cli"
	"github.com/cloudsdk/cloudxfer/internal/version"
)

// Set by ldflags: -X main.Version=... -X main.BuildTime=...
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
