// SPDX-License-Identifier: ice License 1.0

package query

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

type (
	dbClient struct {
		*sqlx.DB

		stmtCacheMx *sync.RWMutex
		stmtCache   map[string]*sqlx.NamedStmt
	}
)

var (
	//go:embed DDL.sql
	ddl string
)

func openDatabase(target string, runDDL bool) *dbClient {
	client := &dbClient{
		DB:          sqlx.MustConnect("sqlite3", target+"?_journal_mode=WAL&_busy_timeout=5000"),
		stmtCacheMx: new(sync.RWMutex),
		stmtCache:   make(map[string]*sqlx.NamedStmt),
	}
	client.SetMaxOpenConns(1)

	if runDDL {
		for _, statement := range strings.Split(ddl, "--------") {
			client.MustExec(statement)
		}
	}

	return client
}

// exec runs a named-parameter statement, returning the driver result so
// callers can read LastInsertId or RowsAffected as needed. Outside a
// transaction the statement goes through the cache, prepared against db's
// own *sqlx.DB (see prepare). When execer is a transaction it runs directly
// on that transaction, uncached: the pool holds a single connection
// (SetMaxOpenConns(1)) and the transaction owns it until it ends, so
// preparing on the pool from inside it would wait forever; and a statement
// prepared on a Tx is closed by database/sql when that Tx commits or rolls
// back, so it cannot be cached either.
func (db *dbClient) exec(ctx context.Context, execer namedExecer, sqlText string, arg any) (sql.Result, error) {
	if tx, ok := execer.(*sqlx.Tx); ok {
		result, err := tx.NamedExecContext(ctx, sqlText, arg)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to exec sql in transaction: `%v`", sqlText)
		}

		return result, nil
	}

	stmt, err := db.prepare(ctx, sqlText)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to prepare exec sql: `%v`", sqlText)
	}

	result, err := stmt.ExecContext(ctx, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to exec prepared sql: `%v`", sqlText)
	}

	return result, nil
}

// namedExecer is satisfied by both *sqlx.DB and *sqlx.Tx: exec accepts
// either, running directly on the transaction when given one.
type namedExecer interface {
	PrepareNamedContext(ctx context.Context, query string) (*sqlx.NamedStmt, error)
}

func (db *dbClient) prepare(ctx context.Context, sqlText string) (stmt *sqlx.NamedStmt, err error) {
	hash := hashSQL(sqlText)

	db.stmtCacheMx.RLock()
	stmt, found := db.stmtCache[hash]
	db.stmtCacheMx.RUnlock()
	if found {
		return stmt, nil
	}

	db.stmtCacheMx.Lock()
	defer db.stmtCacheMx.Unlock()
	stmt, found = db.stmtCache[hash]
	if found {
		return stmt, nil
	}

	stmt, err = db.PrepareNamedContext(ctx, sqlText)
	if err == nil {
		db.stmtCache[hash] = stmt
	}

	return stmt, err
}

func hashSQL(sqlText string) string {
	sum := sha256.Sum256([]byte(sqlText))

	return string(sum[:])
}
