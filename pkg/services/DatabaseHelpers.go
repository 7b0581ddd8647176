package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/rfberaldo/sqlz"
	"github.com/rfberaldo/sqlz/binds"
)

var registerBinds sync.Once

func DBContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	return ctx, cancel
}

/*
Connect opens the sqlite database at dsn and applies all migrations.
*/
func Connect(dsn string) (*sqlz.DB, error) {
	var (
		err error
		db  *sqlz.DB
	)

	registerBinds.Do(func() {
		binds.Register("sqlite", binds.BindByDriver("sqlite3"))
	})

	if db, err = sqlz.Connect("sqlite", dsn); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err = Migrate(db); err != nil {
		_ = db.Pool().Close()
		return nil, err
	}

	return db, nil
}
