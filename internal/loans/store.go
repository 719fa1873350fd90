// Package loans answers the loan: and insights: commands from historical
// application records kept in SQLite.
package loans

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"voice-lending-go/internal/types"
)

// Similarity window for past applications.
const (
	incomeWindow   = 1_000_000
	expensesWindow = 500_000
	cibilWindow    = 50
	similarLimit   = 5
)

type Store struct {
	db  *sql.DB
	log *logrus.Entry
}

// Open creates the database file and schema if needed.
func Open(path string, log *logrus.Entry) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, log: log.WithField("component", "loans.store")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS loans (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		loan_id       TEXT,
		income_annum  INTEGER NOT NULL,
		expenses      INTEGER NOT NULL,
		cibil_score   INTEGER NOT NULL,
		loan_amount   INTEGER DEFAULT 0,
		loan_term     INTEGER DEFAULT 0,
		loan_status   TEXT NOT NULL,
		imported_at   DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_loans_cibil ON loans(cibil_score);
	`)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Similar returns up to five past applications close to the given profile.
func (s *Store) Similar(ctx context.Context, income, expenses int64, cibil int) ([]types.LoanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT COALESCE(loan_id, ''), income_annum, expenses, cibil_score, loan_amount, loan_term, loan_status
	FROM loans
	WHERE ABS(income_annum - ?) < ?
	  AND ABS(expenses - ?) < ?
	  AND ABS(cibil_score - ?) < ?
	LIMIT ?`,
		income, incomeWindow, expenses, expensesWindow, cibil, cibilWindow, similarLimit)
	if err != nil {
		return nil, fmt.Errorf("query similar loans: %w", err)
	}
	defer rows.Close()

	var out []types.LoanRecord
	for rows.Next() {
		var r types.LoanRecord
		if err := rows.Scan(&r.LoanID, &r.Income, &r.Expenses, &r.CIBILScore, &r.LoanAmount, &r.LoanTerm, &r.Status); err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert adds records in one transaction and returns how many were written.
func (s *Store) Insert(ctx context.Context, records []types.LoanRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO loans (loan_id, income_annum, expenses, cibil_score, loan_amount, loan_term, loan_status)
	VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.LoanID, r.Income, r.Expenses, r.CIBILScore, r.LoanAmount, r.LoanTerm, r.Status); err != nil {
			return 0, fmt.Errorf("insert loan %q: %w", r.LoanID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.WithField("rows", len(records)).Info("loan records imported")
	return len(records), nil
}

// All streams every record; used for the summary.
func (s *Store) All(ctx context.Context) ([]types.LoanRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT COALESCE(loan_id, ''), income_annum, expenses, cibil_score, loan_amount, loan_term, loan_status
	FROM loans`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.LoanRecord
	for rows.Next() {
		var r types.LoanRecord
		if err := rows.Scan(&r.LoanID, &r.Income, &r.Expenses, &r.CIBILScore, &r.LoanAmount, &r.LoanTerm, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
