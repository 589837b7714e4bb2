package main

import (
	"context"
	"errors"

	"github.com/garrettladley/payhook/internal/db"
	"github.com/garrettladley/payhook/internal/storage"
)

var errNoTarget = errors.New("set --database-url or --sqlite")

type recordStore interface {
	storage.IdempotencyStore
	storage.RecordLister
	storage.ExpirySweeper
}

// target is the store selected by the persistent flags. Postgres wins when
// both are given.
type target struct {
	databaseURL string
	sqlitePath  string
}

// open connects and brings the schema up to date.
func (t *target) open(ctx context.Context) (recordStore, error) {
	switch {
	case t.databaseURL != "":
		pool, err := db.OpenPostgres(ctx, t.databaseURL)
		if err != nil {
			return nil, err
		}
		return storage.NewPostgresIdempotencyStore(pool), nil
	case t.sqlitePath != "":
		sqlDB, err := db.OpenSQLite(ctx, t.sqlitePath)
		if err != nil {
			return nil, err
		}
		return storage.NewSQLiteIdempotencyStore(sqlDB), nil
	default:
		return nil, errNoTarget
	}
}
