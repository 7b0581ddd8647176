package services

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rfberaldo/sqlz"
)

//go:embed sql
var migrationFS embed.FS

/*
Migrate runs every embedded commit script in name order. Scripts are
written to be re-runnable; errors about columns or tables that already
exist are ignored.
*/
func Migrate(db *sqlz.DB) error {
	var (
		err     error
		entries []fs.DirEntry
		b       []byte
	)

	if entries, err = migrationFS.ReadDir("sql"); err != nil {
		return fmt.Errorf("error reading migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "commit") {
			continue
		}

		if b, err = migrationFS.ReadFile("sql/" + entry.Name()); err != nil {
			return fmt.Errorf("error reading migration '%s': %w", entry.Name(), err)
		}

		if err = runSqlScript(db, b); err != nil && !IsIgnorableError(err) {
			return fmt.Errorf("error running migration '%s': %w", entry.Name(), err)
		}

		slog.Debug("migration applied", "script", entry.Name())
	}

	return nil
}

func runSqlScript(db *sqlz.DB, b []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	_, err := db.Exec(ctx, string(b))
	return err
}

func IsIgnorableError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}
