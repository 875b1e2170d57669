package app

import (
	"fmt"
	"os/signal"
	"syscall"

	"codeplat/cmd/internal/db"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

// Run is the CLI entrypoint used by cmd/codeplat.
// It returns an error instead of calling os.Exit to keep defers effective.
func Run(args []string) error {
	return CLI().Run(args)
}

// CLI builds the codeplat command tree. Without a subcommand it serves.
func CLI() *cli.App {
	return &cli.App{
		Name:    "codeplat",
		Usage:   "codeplat session and auth service",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{EnvPrefix + "CONFIG"},
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the expiry sweeper",
				Action: serveAction,
			},
			{
				Name:      "migrate",
				Usage:     "apply or roll back the embedded schema migrations",
				ArgsUsage: "up|down",
				Action:    migrateAction,
			},
			{
				Name:   "sweep",
				Usage:  "delete expired sessions and verification codes once",
				Action: sweepAction,
			},
		},
	}
}

func loadFromContext(c *cli.Context) (Config, Logger, error) {
	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}

func serveAction(c *cli.Context) error {
	cfg, log, err := loadFromContext(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

func migrateAction(c *cli.Context) error {
	dir, err := db.ParseDirection(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	cfg, log, err := loadFromContext(c)
	if err != nil {
		return err
	}

	if err := db.Migrate(cfg.DatabaseURL, dir); err != nil {
		log.Error("db.migrate.fail", "direction", string(dir), "err", err)
		return err
	}
	log.Info("db.migrate.ok", "direction", string(dir))
	return nil
}

func sweepAction(c *cli.Context) error {
	cfg, log, err := loadFromContext(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.SweepOnce(ctx)
	_, _ = fmt.Fprintf(c.App.Writer, "deleted %d expired rows\n", n)
	return nil
}
