package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"go-autoagent/internal/config"
)

type options struct {
	configPath string
	logLevel   string
}

func main() {
	if err := run(context.Background(), os.Args, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "autoagent: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, in io.Reader, out io.Writer) error {
	var opts options
	cmd := &cli.Command{
		Name:   "autoagent",
		Usage:  "Operate the automation assistant from the command line",
		Reader: in,
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to the JSON config file",
				Value:       config.DefaultPath,
				Sources:     cli.EnvVars("AUTOAGENT_CONFIG"),
				Destination: &opts.configPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Override logging.level from the config",
				Destination: &opts.logLevel,
			},
		},
		Commands: []*cli.Command{
			gmailAuthCommand(&opts),
			tokenCommand(&opts),
			watcherCommand(&opts),
			memoryCommand(&opts),
			notifyCommand(&opts),
		},
	}
	return cmd.Run(ctx, argv)
}
