// Package store keeps every scraped listing in a SQLite file so repeated
// runs build up a history instead of a pile of CSVs.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"CrawlerJobStreet/internal/model"
)

type Archive struct {
	db  *sql.DB
	now func() time.Time
	log *logrus.Entry
}

// Open creates the archive file and its directory if needed and brings the
// schema up to date. One connection is enough for a single crawl.
func Open(ctx context.Context, path string, log *logrus.Logger) (*Archive, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive %s unreachable: %w", path, err)
	}

	a := &Archive{db: db, now: time.Now, log: log.WithFields(logrus.Fields{"component": "store", "path": path})}
	if err := a.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive %s schema: %w", path, err)
	}
	return a, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

func (a *Archive) migrate(ctx context.Context) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS jobs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  job_key TEXT NOT NULL UNIQUE,
  platform TEXT NOT NULL,
  search_keyword TEXT NOT NULL,
  title TEXT,
  location TEXT,
  classification TEXT,
  job_type TEXT,
  salary_range TEXT,
  posted_date TEXT,
  requirements TEXT,
  apply_link TEXT,
  job_url TEXT,
  company_name TEXT,
  company_rating TEXT,
  company_business_type TEXT,
  company_employees_count TEXT,
  company_benefits TEXT,
  first_seen TEXT NOT NULL,
  last_seen TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_last_seen ON jobs(last_seen DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_keyword ON jobs(search_keyword);
`); err != nil {
		return err
	}
	return tx.Commit()
}

// WritePage upserts a page of records keyed by job URL, keeping the time the
// listing was first seen.
func (a *Archive) WritePage(ctx context.Context, records []model.JobRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO jobs (job_key, platform, search_keyword, title, location, classification, job_type,
  salary_range, posted_date, requirements, apply_link, job_url, company_name, company_rating,
  company_business_type, company_employees_count, company_benefits, first_seen, last_seen)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_key) DO UPDATE SET
  search_keyword = excluded.search_keyword,
  title = excluded.title,
  location = excluded.location,
  classification = excluded.classification,
  job_type = excluded.job_type,
  salary_range = excluded.salary_range,
  posted_date = COALESCE(excluded.posted_date, jobs.posted_date),
  requirements = excluded.requirements,
  apply_link = excluded.apply_link,
  company_name = excluded.company_name,
  company_rating = excluded.company_rating,
  company_business_type = excluded.company_business_type,
  company_employees_count = excluded.company_employees_count,
  company_benefits = excluded.company_benefits,
  last_seen = excluded.last_seen;`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	seen := a.now().UTC().Format(time.RFC3339)
	for _, r := range records {
		benefits, err := benefitsJSON(r.Benefits)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			jobKey(r), r.Platform, r.SearchKeyword,
			r.Title, r.Location, r.Classification, r.Type, r.SalaryRange,
			postedValue(r.PostedDate), r.Requirements, r.ApplyLink, r.URL,
			r.CompanyProfile.Name, r.CompanyProfile.Rating, r.BusinessType, r.EmployeesCount,
			benefits, seen, seen,
		); err != nil {
			return fmt.Errorf("upsert job %d: %w", r.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	a.log.WithField("rows", len(records)).Debug("archived page")
	return nil
}

// Count returns how many distinct listings the archive holds.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs;`).Scan(&n)
	return n, err
}

// jobKey is the canonical URL when there is one; otherwise the listing is
// identified by what the card shows.
func jobKey(r model.JobRecord) string {
	if r.URL != nil && *r.URL != "" {
		return *r.URL
	}
	return strings.Join([]string{
		r.Platform,
		model.Deref(r.Title),
		model.Deref(r.CompanyProfile.Name),
		model.Deref(r.Location),
	}, "|")
}

func postedValue(p model.PostedDate) any {
	if p.Kind == model.PostedUnknown {
		return nil
	}
	return p.String()
}

func benefitsJSON(b []string) (any, error) {
	if b == nil {
		return nil, nil
	}
	out, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encoding benefits: %w", err)
	}
	return string(out), nil
}
