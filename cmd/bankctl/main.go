package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"
)

type metadata struct {
	server  string
	key     string
	rep     string
	timeout time.Duration
	verbose bool
	e       io.Writer
	w       io.Writer
}

var version = "zero"

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func newApp(w, e io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "bankctl"
	app.Usage = "send verbs to a bankd server"
	app.Version = version
	app.HideVersion = true

	app.Writer = w
	app.ErrWriter = e

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "verbose, v",
			Usage: " print requests before sending",
		},
		cli.StringFlag{
			Name:   "server, s",
			Value:  "http://localhost:8080",
			Usage:  " bankd base `URL`",
			EnvVar: "BANKCTL_SERVER",
		},
		cli.StringFlag{
			Name:   "key, k",
			Value:  "",
			Usage:  " capability key `REF` authorizing the request",
			EnvVar: "BANKCTL_KEY",
		},
		cli.StringFlag{
			Name:  "rep, r",
			Value: "bankctl",
			Usage: " reply destination `NAME`, empty for fire and forget",
		},
		cli.DurationFlag{
			Name:  "timeout, t",
			Value: 10 * time.Second,
			Usage: " request `TIMEOUT`",
		},
	}
	app.Commands = append(verbCommands(), cli.Command{
		Name:   "verbs",
		Usage:  "list the verbs the server accepts",
		Action: runVerbs,
	}, cli.Command{
		Name:  "version",
		Usage: "display bankctl version",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "%s\n", version)
			return nil
		},
	})

	app.Before = func(c *cli.Context) error {
		c.App.Metadata = map[string]interface{}{
			"config": &metadata{
				server:  c.GlobalString("server"),
				key:     c.GlobalString("key"),
				rep:     c.GlobalString("rep"),
				timeout: c.GlobalDuration("timeout"),
				verbose: c.GlobalBool("verbose"),
				e:       c.App.ErrWriter,
				w:       c.App.Writer,
			},
		}
		return nil
	}
	return app
}
