// Command tlsdemo shows per-thread isolation of a threadlocal counter.
//
// It starts a number of worker threads that each increment the same cell,
// prints the count every worker observed, and finally prints the spawning
// goroutine's own count, which the workers never touch.
//
// Usage:
//
//	tlsdemo [--workers 4] [--iterations 20] [--backend native|fallback|sharded]
//	        [--config demo.yaml] [--pin] [--verbose]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "tlsdemo: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	defaults := defaultConfig()
	return &cli.Command{
		Name:    "tlsdemo",
		Usage:   "drive a thread-local counter from several threads",
		Version: version,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "number of worker threads",
				Value:   defaults.Workers,
			},
			&cli.IntFlag{
				Name:    "iterations",
				Aliases: []string{"n"},
				Usage:   "increments per worker",
				Value:   defaults.Iterations,
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "storage backend: native, fallback or sharded",
				Value:   defaults.Backend,
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML or JSON file with workers, iterations, backend and pin",
			},
			&cli.BoolFlag{
				Name:  "pin",
				Usage: "lock every worker to its own OS thread",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log debug records to stderr",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			level := slog.LevelInfo
			if cmd.Bool("verbose") {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrWriter, &slog.HandlerOptions{Level: level}))
			return run(ctx, cfg, cmd.Writer, logger)
		},
	}
}

// resolveConfig starts from the defaults, applies the config file and then
// every flag the user set explicitly.
func resolveConfig(cmd *cli.Command) (Config, error) {
	cfg := defaultConfig()
	if path := cmd.String("config"); path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if cmd.IsSet("workers") {
		cfg.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("iterations") {
		cfg.Iterations = cmd.Int("iterations")
	}
	if cmd.IsSet("backend") {
		cfg.Backend = cmd.String("backend")
	}
	if cmd.IsSet("pin") {
		cfg.Pin = cmd.Bool("pin")
	}
	return cfg, nil
}
