package main

import (
	"os"

	"github.com/perfgo/perfsuite/cli"
	"github.com/rs/zerolog/log"
)

// Version information, set by goreleaser via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	c := cli.New()
	c.SetVersion(version, commit, date)
	if err := c.Run(os.Args); err != nil {
		log.Error().Err(err).Msg("perfsuite failed")
		os.Exit(1)
	}
}
