package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/caioluan/tabchat/internal/config"
	"github.com/caioluan/tabchat/internal/daemon"
	"github.com/caioluan/tabchat/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		// First run: no config file yet.
		cfg = config.Default()
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProfileName: profileName,
			Config:      cfg,
			ListenAddr:  *listenFlag,
		}),
	)

	app.Run()
}
