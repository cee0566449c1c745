package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:    "crewctl",
		Usage:   "Watch crew presence and manage crew sessions",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Usage: "crew monitor base URL", Sources: cli.EnvVars("CREWCTL_SERVER")},
			&cli.StringFlag{Name: "token", Usage: "access token (defaults to the saved login)", Sources: cli.EnvVars("CREWCTL_TOKEN")},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			watchCommand(),
			showCommand(),
			sessionCommand(),
			activityCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}
