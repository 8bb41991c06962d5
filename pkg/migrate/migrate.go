package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where the migrate binary looks for SQL files on disk.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source is a set of goose SQL migrations, read from disk or from the binary.
type Source struct {
	fsys  fs.FS
	label string
}

func Dir(dir string) Source {
	if dir == "" {
		return Source{label: "dir"}
	}
	return Source{fsys: os.DirFS(dir), label: dir}
}

// Embedded serves the migrations compiled into the binary, so services can
// migrate without the source tree.
func Embedded() Source {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		// the embed pattern guarantees the directory
		panic(err)
	}
	return Source{fsys: sub, label: "embedded"}
}

func (s Source) String() string { return s.label }

func (s Source) provider(db *sql.DB) (*goose.Provider, error) {
	switch {
	case db == nil:
		return nil, errors.New("db is required")
	case s.fsys == nil:
		return nil, errors.New("migrations dir is required")
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, s.fsys)
	if err != nil {
		return nil, fmt.Errorf("load %s migrations: %w", s.label, err)
	}
	return p, nil
}

// Run executes one of up, down, redo or status and returns a printable
// summary of what changed.
func Run(ctx context.Context, db *sql.DB, src Source, command string) (string, error) {
	p, err := src.provider(db)
	if err != nil {
		return "", err
	}
	var results []*goose.MigrationResult
	switch command {
	case "up":
		results, err = p.Up(ctx)
	case "down":
		results, err = single(p.Down(ctx))
	case "redo":
		results, err = single(p.Down(ctx))
		if err == nil {
			var again []*goose.MigrationResult
			again, err = single(p.UpByOne(ctx))
			results = append(results, again...)
		}
	case "status":
		return status(ctx, p)
	default:
		return "", fmt.Errorf("unsupported goose command %q", command)
	}
	if err != nil {
		return "", fmt.Errorf("goose %s: %w", command, err)
	}
	return summarize(results), nil
}

// MigrateToVersion moves the schema up or down to target (YYYYMMDDHHMMSS).
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, target string) (string, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", target, err)
	}
	p, err := src.provider(db)
	if err != nil {
		return "", err
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return "", fmt.Errorf("get db version: %w", err)
	}

	var results []*goose.MigrationResult
	switch {
	case current == version:
		return fmt.Sprintf("already at version %d", version), nil
	case current < version:
		results, err = p.UpTo(ctx, version)
	default:
		results, err = p.DownTo(ctx, version)
	}
	if err != nil {
		return "", fmt.Errorf("migrate %d -> %d: %w", current, version, err)
	}
	return summarize(results), nil
}

func single(r *goose.MigrationResult, err error) ([]*goose.MigrationResult, error) {
	if r == nil {
		return nil, err
	}
	return []*goose.MigrationResult{r}, err
}

func summarize(results []*goose.MigrationResult) string {
	if len(results) == 0 {
		return "no migrations to apply"
	}
	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("%-4s %s (%s)", r.Direction, r.Source.Path, r.Duration.Round(time.Millisecond)))
	}
	return strings.Join(lines, "\n")
}

func status(ctx context.Context, p *goose.Provider) (string, error) {
	all, err := p.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("goose status: %w", err)
	}
	lines := make([]string, 0, len(all))
	for _, s := range all {
		applied := "pending"
		if s.State == goose.StateApplied {
			applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		lines = append(lines, fmt.Sprintf("%-19s %s", applied, s.Source.Path))
	}
	return strings.Join(lines, "\n"), nil
}

// EmbeddedVersions lists the migration versions compiled into the binary.
func EmbeddedVersions() ([]int64, error) {
	entries, err := embedded.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}
	versions := make([]int64, 0, len(entries))
	for _, e := range entries {
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version of %q: %w", e.Name(), err)
		}
		versions = append(versions, v)
	}
	return versions, nil
}
