// Package seed parses seed command flags and applies bridge fixtures to the
// asset registry.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/louisbranch/bridgeassets/internal/platform/config"
	"github.com/louisbranch/bridgeassets/internal/services/assets/fixture"
	"github.com/louisbranch/bridgeassets/internal/services/assets/storage/sqlite"
)

const defaultDBPath = "data/assets.db"

// Config holds seed command configuration.
type Config struct {
	DBPath  string
	Fixture string
	List    bool
	Verbose bool
}

// EnvLookup returns the value for a key when present.
type EnvLookup func(string) (string, bool)

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string, lookup EnvLookup) (Config, error) {
	cfg := Config{
		DBPath: envOrDefault(lookup, []string{config.EnvPrefix + "DB_PATH"}, defaultDBPath),
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "asset registry SQLite path")
	fs.StringVar(&cfg.Fixture, "fixture", "", "bridge fixture file (default: fixtures/bridges.yaml)")
	fs.BoolVar(&cfg.List, "list", false, "list fixture bridges without writing")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Fixture == "" {
		root, err := repoRoot()
		if err != nil {
			return Config{}, err
		}
		cfg.Fixture = filepath.Join(root, "fixtures", "bridges.yaml")
	}
	return cfg, nil
}

// Run executes the seed command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	data, err := os.ReadFile(cfg.Fixture)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	file, err := fixture.Parse(data)
	if err != nil {
		return err
	}

	if cfg.List {
		fmt.Fprintln(out, "Fixture bridges:")
		for _, bridge := range file.Bridges {
			fmt.Fprintf(out, "  %s (owner %s)\n", bridge.ID, bridge.UserID)
		}
		return nil
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open asset registry: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(errOut, "close asset registry: %v\n", err)
		}
	}()

	if err := fixture.Apply(ctx, store, file, time.Now()); err != nil {
		return err
	}
	if cfg.Verbose {
		for _, bridge := range file.Bridges {
			fmt.Fprintf(out, "seeded %s\n", bridge.ID)
		}
	}
	fmt.Fprintf(out, "Seeded %d bridges into %s\n", len(file.Bridges), cfg.DBPath)
	return nil
}

func repoRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("failed to resolve runtime caller")
	}

	dir := filepath.Dir(filename)
	for {
		candidate := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("go.mod not found from %s", filename)
}

func envOrDefault(lookup EnvLookup, keys []string, fallback string) string {
	for _, key := range keys {
		if lookup == nil {
			break
		}
		value, ok := lookup(key)
		if ok {
			trimmed := strings.TrimSpace(value)
			if trimmed != "" {
				return trimmed
			}
		}
	}
	return fallback
}
