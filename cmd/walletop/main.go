package main

import (
	"log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/urfave/cli/v2"
)

func main() {
	err := realMain()
	if err != nil {
		log.Fatal(err)
	}
}

func realMain() error {
	return newApp().Run(os.Args)
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "walletop"
	app.Usage = "generate, publish and run the walletComplete operation"
	app.Flags = []cli.Flag{
		&cli.IntFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "log verbosity, 1 shows debug logs",
			EnvVars: []string{"WALLETOP_VERBOSE"},
		},
		&cli.StringFlag{
			Name:    "config",
			Usage:   "YAML config file",
			EnvVars: []string{"WALLETOP_CONFIG"},
		},
	}
	app.Before = func(c *cli.Context) error {
		stdr.SetVerbosity(c.Int("verbose"))
		logger := stdr.New(log.New(c.App.ErrWriter, "", log.LstdFlags))
		c.Context = logr.NewContext(c.Context, logger)
		return nil
	}
	app.Commands = []*cli.Command{
		genCommand(),
		printCommand(),
		manifestCommand(),
		execCommand(),
		serveCommand(),
	}
	return app
}

