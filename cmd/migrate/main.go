package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

type options struct {
	dir      string
	embedded bool
	name     string
	version  string
}

func (o options) source() migrate.Source {
	if o.embedded {
		return migrate.Embedded()
	}
	return migrate.Dir(o.dir)
}

// command is one -cmd value. Commands without a database only touch the
// migration files.
type command struct {
	needsDB bool
	run     func(ctx context.Context, sqlDB *sql.DB, opts options) (string, error)
}

var commands = map[string]command{
	"create": {run: func(_ context.Context, _ *sql.DB, opts options) (string, error) {
		if opts.name == "" {
			return "", errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return "", err
		}
		return "created migration: " + path, nil
	}},
	"validate": {run: func(_ context.Context, _ *sql.DB, opts options) (string, error) {
		var err error
		if opts.embedded {
			err = migrate.ValidateEmbedded()
		} else {
			err = migrate.ValidateDir(opts.dir)
		}
		if err != nil {
			return "", fmt.Errorf("migration validation failed: %w", err)
		}
		return "migration validation passed", nil
	}},
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"redo":   gooseCommand("redo"),
	"status": gooseCommand("status"),
	"version": {needsDB: true, run: func(ctx context.Context, sqlDB *sql.DB, opts options) (string, error) {
		if opts.version == "" {
			return "", errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.source(), opts.version)
	}},
}

func gooseCommand(name string) command {
	return command{needsDB: true, run: func(ctx context.Context, sqlDB *sql.DB, opts options) (string, error) {
		return migrate.Run(ctx, sqlDB, opts.source(), name)
	}}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	_ = godotenv.Load()

	var opts options
	cmdName := flag.String("cmd", "up", "migration command: "+commandNames())
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.BoolVar(&opts.embedded, "embedded", false, "use the migrations compiled into the binary instead of -dir")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cmd, ok := commands[*cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd value %q, want one of %s\n", *cmdName, commandNames())
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "migrate"}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"cmd":      *cmdName,
		"dir":      opts.dir,
		"embedded": opts.embedded,
	})

	out, err := execute(ctx, cfg, logg, cmd, opts)
	if err != nil {
		logg.Error(ctx, "migrate failed", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if out != "" {
		fmt.Println(out)
	}
}

func execute(ctx context.Context, cfg *config.Config, logg *logger.Logger, cmd command, opts options) (string, error) {
	if !cmd.needsDB {
		return cmd.run(ctx, nil, opts)
	}

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return "", fmt.Errorf("connect database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return "", fmt.Errorf("extract sql.DB: %w", err)
	}
	logg.Info(ctx, "migrate ready")
	return cmd.run(ctx, sqlDB, opts)
}
