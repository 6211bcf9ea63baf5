package cli

// This file contains the devices command for listing simulated device profiles.

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func (a *App) devices(ctx *cli.Context) error {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	def := cfg.Simulator.Device
	if def == "" {
		def = catalog.Default()
	}

	for _, name := range catalog.Names() {
		p, err := catalog.Lookup(name)
		if err != nil {
			return err
		}
		marker := " "
		if name == def {
			marker = "*"
		}
		kind := "desktop"
		if p.Mobile {
			kind = "mobile"
		}
		fmt.Printf("%s %-18s %4dx%-4d @%gx  %-7s  %s/%s\n",
			marker, p.Name, p.Width, p.Height, p.PixelRatio, kind, p.Network.Type, p.Network.EffectiveType)
	}
	return nil
}
