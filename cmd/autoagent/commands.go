package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"go-autoagent/internal/app"
	"go-autoagent/internal/auth"
	"go-autoagent/internal/config"
	"go-autoagent/internal/gmail"
	"go-autoagent/internal/logging"
)

func (o *options) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to load config", goerr.V("path", o.configPath))
	}
	level := cfg.Logging.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	return cfg, logging.New(level, os.Stderr), nil
}

// withApp builds the full service graph for one command and tears it
// down afterwards.
func (o *options) withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return goerr.Wrap(err, "failed to encode output")
	}
	return nil
}

func gmailAuthCommand(opts *options) *cli.Command {
	var code string
	return &cli.Command{
		Name:  "gmail-auth",
		Usage: "Authorize Gmail access and store the OAuth token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "code",
				Usage:       "Authorization code from the consent page; prompted for when empty",
				Destination: &code,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			oc, err := gmail.LoadOAuthConfig(cfg.Gmail.CredentialsFile)
			if err != nil {
				return err
			}
			w := c.Root().Writer
			if code == "" {
				fmt.Fprintf(w, "Open this URL in a browser and approve access:\n\n%s\n\nAuthorization code: ", gmail.AuthCodeURL(oc))
				line, err := bufio.NewReader(c.Root().Reader).ReadString('\n')
				if err != nil && line == "" {
					return goerr.Wrap(err, "failed to read authorization code")
				}
				code = strings.TrimSpace(line)
			}
			if code == "" {
				return goerr.New("authorization code is required")
			}
			if _, err := gmail.Exchange(ctx, oc, code, cfg.Gmail.TokenFile); err != nil {
				return err
			}
			fmt.Fprintf(w, "Token saved to %s\n", cfg.Gmail.TokenFile)
			return nil
		},
	}
}

func tokenCommand(opts *options) *cli.Command {
	var (
		subject string
		scope   string
		ttl     time.Duration
	)
	return &cli.Command{
		Name:  "token",
		Usage: "Manage API access tokens",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "Issue a signed API token",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "subject",
						Aliases:     []string{"s"},
						Usage:       "Token subject",
						Value:       "cli",
						Destination: &subject,
					},
					&cli.StringFlag{
						Name:        "scope",
						Usage:       "Token scope; \"admin\" unlocks destructive routes",
						Destination: &scope,
					},
					&cli.DurationFlag{
						Name:        "ttl",
						Usage:       "Token lifetime",
						Value:       24 * time.Hour,
						Destination: &ttl,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, _, err := opts.load()
					if err != nil {
						return err
					}
					if cfg.Server.JWTSecret == "" {
						return goerr.New("server.jwtSecret is not set; authentication is disabled")
					}
					if ttl <= 0 {
						return goerr.New("ttl must be positive", goerr.V("ttl", ttl))
					}
					tok, err := auth.GenerateJWT(cfg.Server.JWTSecret, subject, scope, ttl)
					if err != nil {
						return goerr.Wrap(err, "failed to sign token")
					}
					fmt.Fprintln(c.Root().Writer, tok)
					return nil
				},
			},
			{
				Name:      "revoke",
				Usage:     "Revoke a previously issued token",
				ArgsUsage: "<token>",
				Action: func(ctx context.Context, c *cli.Command) error {
					raw := c.Args().First()
					if raw == "" {
						return goerr.New("token argument is required")
					}
					cfg, _, err := opts.load()
					if err != nil {
						return err
					}
					claims, err := auth.ParseJWT(cfg.Server.JWTSecret, raw)
					if err != nil {
						return goerr.Wrap(err, "invalid token")
					}
					return opts.withApp(ctx, func(a *app.App) error {
						if a.Revocations == nil {
							return goerr.New("revocation needs redis; set redis.addr")
						}
						if err := a.Revocations.Revoke(ctx, claims); err != nil {
							return err
						}
						fmt.Fprintf(c.Root().Writer, "Revoked token %s (subject %s)\n", claims.ID, claims.Subject)
						return nil
					})
				},
			},
		},
	}
}

func watcherCommand(opts *options) *cli.Command {
	return &cli.Command{
		Name:  "watcher",
		Usage: "Email watcher operations",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Run one watcher scan now",
				Action: func(ctx context.Context, c *cli.Command) error {
					return opts.withApp(ctx, func(a *app.App) error {
						if a.Watcher == nil {
							return goerr.New("email watcher is not available; run gmail-auth first")
						}
						res, err := a.Watcher.Check(ctx)
						if err != nil {
							return err
						}
						return printJSON(c.Root().Writer, res)
					})
				},
			},
			{
				Name:  "alerts",
				Usage: "Show recent alerts",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum alerts to show"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return opts.withApp(ctx, func(a *app.App) error {
						if a.Watcher == nil {
							return goerr.New("email watcher is not available; run gmail-auth first")
						}
						alerts, err := a.Watcher.Alerts(ctx, int(c.Int("limit")))
						if err != nil {
							return err
						}
						return printJSON(c.Root().Writer, alerts)
					})
				},
			},
		},
	}
}

func memoryCommand(opts *options) *cli.Command {
	var yes bool
	return &cli.Command{
		Name:  "memory",
		Usage: "Inspect or reset the memory store",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Show memory counts by type",
				Action: func(ctx context.Context, c *cli.Command) error {
					return opts.withApp(ctx, func(a *app.App) error {
						st, err := a.Store.Stats(ctx)
						if err != nil {
							return err
						}
						return printJSON(c.Root().Writer, st)
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Delete every stored memory",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:        "yes",
						Aliases:     []string{"y"},
						Usage:       "Confirm deletion",
						Destination: &yes,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if !yes {
						return goerr.New("refusing to clear memories without --yes")
					}
					return opts.withApp(ctx, func(a *app.App) error {
						res, err := a.Store.ClearAll(ctx)
						if err != nil {
							return err
						}
						return printJSON(c.Root().Writer, res)
					})
				},
			},
		},
	}
}

func notifyCommand(opts *options) *cli.Command {
	return &cli.Command{
		Name:  "notify-test",
		Usage: "Send a test notification over every configured channel",
		Action: func(ctx context.Context, c *cli.Command) error {
			return opts.withApp(ctx, func(a *app.App) error {
				return printJSON(c.Root().Writer, a.Notifier.Test(ctx))
			})
		},
	}
}
