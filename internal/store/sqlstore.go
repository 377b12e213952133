package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"quorum/internal/report"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// boolInt converts a bool to the 0/1 SQLite stores it as.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// currentSchemaVersion is the target schema version for this build.
const currentSchemaVersion = schemaVersionV1

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. .quorum) if it does not exist.
func Open(path string) (*SqlStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	// Check if schema_version table exists to detect database state.
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		// Fresh database.
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		// schema_version exists but is empty; stamp it with the current version.
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != currentSchemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

// SaveReport persists the report and one row per run record, atomically.
func (s *SqlStore) SaveReport(r *report.Report) (int64, error) {
	if r == nil {
		return 0, errors.New("report is nil")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(
		`INSERT INTO reports(verdict, session_id, branch, head, generated_at,
		                     checks, runs_total, runs_completed, runs_live, payload, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(r.Verdict), r.SessionID, r.Branch, r.Head,
		r.GeneratedAt.UTC().Format(time.RFC3339),
		len(r.Results), len(r.Runs), r.CompletedRuns(), r.LiveRuns(),
		payload, nowUTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert report: %w", err)
	}
	reportID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	for _, rr := range r.Runs {
		_, err := tx.Exec(
			`INSERT INTO runs(report_id, check_id, run_index, verdict, attempts,
			                  duration_ns, abandoned, session_in_progress, error)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			reportID, rr.CheckID, rr.RunIndex, string(rr.Verdict), rr.Attempts,
			int64(rr.Duration), boolInt(rr.Abandoned), boolInt(rr.SessionInProgress), rr.Error,
		)
		if err != nil {
			return 0, fmt.Errorf("insert run %s[%d]: %w", rr.CheckID, rr.RunIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return reportID, nil
}

// GetReport returns the report by id, or nil if not found.
func (s *SqlStore) GetReport(reportID int64) (*report.Report, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM reports WHERE id = ?", reportID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return decodeReport(payload)
}

// LatestReport returns the most recently saved report, or nil if the store is empty.
func (s *SqlStore) LatestReport() (*report.Report, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM reports ORDER BY id DESC LIMIT 1").Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest report: %w", err)
	}
	return decodeReport(payload)
}

func decodeReport(payload []byte) (*report.Report, error) {
	var r report.Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}

// ListReports returns summaries of all reports, newest first.
func (s *SqlStore) ListReports() ([]*ReportMeta, error) {
	rows, err := s.db.Query(
		`SELECT id, verdict, session_id, branch, head, generated_at,
		        checks, runs_total, runs_completed, runs_live
		 FROM reports ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	var list []*ReportMeta
	for rows.Next() {
		var m ReportMeta
		var branch, head sql.NullString
		if err := rows.Scan(&m.ID, &m.Verdict, &m.SessionID, &branch, &head,
			&m.GeneratedAt, &m.Checks, &m.RunsTotal, &m.RunsCompleted, &m.RunsLive); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		m.Branch = nullStr(branch)
		m.Head = nullStr(head)
		list = append(list, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return list, nil
}

// RunStats aggregates all stored run records.
func (s *SqlStore) RunStats() (*RunStats, error) {
	var st RunStats
	err := s.db.QueryRow(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN abandoned = 0 AND verdict != '' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(abandoned), 0),
		        COALESCE(SUM(session_in_progress), 0)
		 FROM runs`,
	).Scan(&st.Total, &st.Completed, &st.Abandoned, &st.Live)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	return &st, nil
}
