package store

import (
	"context"
	"database/sql"
	"errors"
)

// ErrStaleRow is returned when a guarded UPDATE matched no row.
var ErrStaleRow = errors.New("row changed or missing")

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

// Tx is the part of *sqlx.Tx the stores write through.
type Tx interface {
	Execer
	Getter
}

func requireOneRow(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows != 1 {
		return ErrStaleRow
	}
	return nil
}
