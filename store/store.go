// Package store persists accounts, forms and responses.
//
// Queries are written with '?' placeholders and rebound for the driver in
// use, so the same code serves SQLite and PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/mbolis/quick-forms/errs"
)

type Store struct {
	db *sqlx.DB

	Accounts  *Accounts
	Tokens    *Tokens
	Forms     *Forms
	Responses *Responses
}

func New(db *sqlx.DB) *Store {
	return &Store{
		db:        db,
		Accounts:  &Accounts{db: db, HashCost: bcrypt.DefaultCost},
		Tokens:    &Tokens{db: db},
		Forms:     &Forms{db: db},
		Responses: &Responses{db: db},
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func now() time.Time {
	return time.Now().UTC()
}

// withTx runs fn in a transaction, committing only if fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// uniqueViolation reports which column a unique constraint failure is about.
// SQLite says "UNIQUE constraint failed: account.email"; PostgreSQL names the
// constraint, "account_email_key".
func uniqueViolation(err error) (column string, ok bool) {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		msg := serr.Error()
		if i := strings.LastIndex(msg, "."); i >= 0 {
			return msg[i+1:], true
		}
		return "", true
	}

	var perr *pq.Error
	if errors.As(err, &perr) && perr.Code == "23505" {
		if perr.Column != "" {
			return perr.Column, true
		}
		name := strings.TrimSuffix(perr.Constraint, "_key")
		if i := strings.Index(name, "_"); i >= 0 {
			name = name[i+1:]
		}
		return name, true
	}

	return "", false
}

// asConflict converts a unique constraint failure into a Conflict error.
func asConflict(err error) (error, bool) {
	column, ok := uniqueViolation(err)
	if !ok {
		return nil, false
	}
	if column == "" {
		return errs.Conflictf("already exists"), true
	}
	return errs.Conflictf("%s already exists", strings.ToUpper(column[:1])+column[1:]), true
}
