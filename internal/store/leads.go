package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zionic-engine/internal/lead"
)

// StoredLead is a persisted lead row: the normalized lead plus the fields
// storage assigns on insert.
type StoredLead struct {
	ID int64 `json:"id"`

	lead.Lead

	SourceSubject string `json:"source_subject"`
	DuplicateFlag bool   `json:"duplicate_flag"`
	CreatedAt     string `json:"created_at"`
}

type ListLeadsOpts struct {
	Role  string // substring match on roles_advertised
	Town  string // substring match on location
	State string // substring match on location
	Limit int
}

const maxListLimit = 500

func Migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	// ---- Schema v1 ----

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS leads (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  first_name TEXT NOT NULL DEFAULT 'N/A',
  email TEXT NOT NULL DEFAULT 'N/A',
  phone TEXT NOT NULL DEFAULT 'N/A',
  company TEXT NOT NULL DEFAULT 'N/A',
  roles_advertised TEXT NOT NULL DEFAULT 'N/A',
  sector TEXT NOT NULL DEFAULT 'N/A',
  employment_type TEXT NOT NULL DEFAULT 'N/A',
  date_posted TEXT NOT NULL DEFAULT 'N/A',
  entry_date TEXT NOT NULL DEFAULT 'N/A',
  salary_info TEXT NOT NULL DEFAULT 'N/A',
  location TEXT NOT NULL DEFAULT 'N/A',
  ad_url TEXT NOT NULL DEFAULT 'N/A',
  skip TEXT NOT NULL DEFAULT 'N/A',
  skip_reason TEXT NOT NULL DEFAULT 'N/A',
  source_subject TEXT NOT NULL DEFAULT '',
  dedupe_key TEXT NOT NULL,
  qualified INTEGER NOT NULL DEFAULT 0,
  priority INTEGER NOT NULL DEFAULT 0,
  duplicate_flag INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	// The unique index doubles as the compare-and-set guard for concurrent
	// inserts of the same dedupe key.
	if _, err := tx.Exec(`
CREATE UNIQUE INDEX IF NOT EXISTS idx_leads_dedupe_key
ON leads(dedupe_key);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`
CREATE INDEX IF NOT EXISTS idx_leads_created_at
ON leads(created_at DESC);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}

	return tx.Commit()
}

// InsertLeadIgnore inserts a lead row, or does nothing when a row with the
// same dedupe key already exists. inserted reports which happened.
func InsertLeadIgnore(ctx context.Context, db *sql.DB, l lead.Lead, sourceSubject string, now time.Time) (row StoredLead, inserted bool, err error) {
	createdAt := now.UTC().Format(time.RFC3339)

	res, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO leads (
  first_name, email, phone, company, roles_advertised, sector, employment_type,
  date_posted, entry_date, salary_info, location, ad_url, skip, skip_reason,
  source_subject, dedupe_key, qualified, priority, duplicate_flag, created_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,0,?);`,
		l.FirstName, l.Email, l.Phone, l.Company, l.RolesAdvertised, l.Sector, l.EmploymentType,
		l.DatePosted, l.EntryDate, l.SalaryInfo, l.Location, l.AdURL, l.Skip, l.SkipReason,
		sourceSubject, l.DedupeKey, boolToInt(l.Qualified), l.Priority, createdAt,
	)
	if err != nil {
		return StoredLead{}, false, fmt.Errorf("insert lead: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return StoredLead{}, false, fmt.Errorf("insert lead rows affected: %w", err)
	}
	if n == 0 {
		return StoredLead{}, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return StoredLead{}, false, fmt.Errorf("insert lead id: %w", err)
	}

	return StoredLead{
		ID:            id,
		Lead:          l,
		SourceSubject: sourceSubject,
		DuplicateFlag: false,
		CreatedAt:     createdAt,
	}, true, nil
}

// FindByDedupeKey returns the id and duplicate flag of the row holding key.
// found is false when no such row exists.
func FindByDedupeKey(ctx context.Context, db *sql.DB, key string) (id int64, dup bool, found bool, err error) {
	var dupInt int
	err = db.QueryRowContext(ctx,
		`SELECT id, duplicate_flag FROM leads WHERE dedupe_key = ? LIMIT 1;`, key,
	).Scan(&id, &dupInt)
	if err == sql.ErrNoRows {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("find by dedupe key: %w", err)
	}
	return id, dupInt != 0, true, nil
}

// MarkDuplicate flips duplicate_flag on the given row. Re-flagging an
// already-flagged row is a no-op, not an error.
func MarkDuplicate(ctx context.Context, db *sql.DB, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE leads SET duplicate_flag = 1 WHERE id = ? AND duplicate_flag = 0;`, id)
	if err != nil {
		return fmt.Errorf("mark duplicate: %w", err)
	}
	return nil
}

func ListLeads(ctx context.Context, db *sql.DB, opts ListLeadsOpts) ([]StoredLead, error) {
	if opts.Limit <= 0 || opts.Limit > maxListLimit {
		opts.Limit = maxListLimit
	}

	query := `SELECT ` + leadColumns + ` FROM leads WHERE 1=1`
	var args []any
	if opts.Role != "" {
		query += ` AND roles_advertised LIKE ? COLLATE NOCASE`
		args = append(args, "%"+opts.Role+"%")
	}
	if opts.Town != "" {
		query += ` AND location LIKE ? COLLATE NOCASE`
		args = append(args, "%"+opts.Town+"%")
	}
	if opts.State != "" {
		query += ` AND location LIKE ? COLLATE NOCASE`
		args = append(args, "%"+opts.State+"%")
	}
	query += ` ORDER BY created_at DESC LIMIT ?;`
	args = append(args, opts.Limit)

	return queryLeads(ctx, db, query, args...)
}

// AllLeads returns every stored lead, newest first. Used by the CSV export.
func AllLeads(ctx context.Context, db *sql.DB) ([]StoredLead, error) {
	return queryLeads(ctx, db,
		`SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC;`)
}

type Metrics struct {
	TotalLeads        int `json:"total_leads"`
	UniqueLeads       int `json:"unique_leads"`
	HighPriorityLeads int `json:"high_priority_leads"`
	DuplicatesFound   int `json:"duplicates_found"`
}

func LeadMetrics(ctx context.Context, db *sql.DB) (Metrics, error) {
	var m Metrics
	// SUM over zero rows is NULL, hence the COALESCEs.
	err := db.QueryRowContext(ctx, `
SELECT
  COUNT(*),
  COUNT(*) - COALESCE(SUM(duplicate_flag), 0),
  COALESCE(SUM(CASE WHEN priority >= 4 THEN 1 ELSE 0 END), 0),
  COALESCE(SUM(duplicate_flag), 0)
FROM leads;`).Scan(&m.TotalLeads, &m.UniqueLeads, &m.HighPriorityLeads, &m.DuplicatesFound)
	if err != nil {
		return Metrics{}, fmt.Errorf("lead metrics: %w", err)
	}
	return m, nil
}

func CleanupOldLeads(db *sql.DB) (deleted int64, err error) {
	res, err := db.Exec(`
DELETE FROM leads
WHERE created_at < datetime('now', '-3 months');`)
	if err != nil {
		return 0, fmt.Errorf("cleanup old leads: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

const leadColumns = `id, first_name, email, phone, company, roles_advertised, sector, employment_type,
date_posted, entry_date, salary_info, location, ad_url, skip, skip_reason,
source_subject, dedupe_key, qualified, priority, duplicate_flag, created_at`

func queryLeads(ctx context.Context, db *sql.DB, query string, args ...any) ([]StoredLead, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredLead
	for rows.Next() {
		var s StoredLead
		var qualInt, dupInt int
		if err := rows.Scan(
			&s.ID,
			&s.FirstName, &s.Email, &s.Phone, &s.Company, &s.RolesAdvertised,
			&s.Sector, &s.EmploymentType, &s.DatePosted, &s.EntryDate,
			&s.SalaryInfo, &s.Location, &s.AdURL, &s.Skip, &s.SkipReason,
			&s.SourceSubject, &s.DedupeKey, &qualInt, &s.Priority, &dupInt,
			&s.CreatedAt,
		); err != nil {
			return nil, err
		}
		s.Qualified = qualInt != 0
		s.DuplicateFlag = dupInt != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
