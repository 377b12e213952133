package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"quorum/internal/report"
)

// MemStore implements Store in memory. Reports are stored as JSON payloads,
// same as the SQLite store, so both round-trip identically.
type MemStore struct {
	mu      sync.Mutex
	nextID  int64
	reports []memReport
}

type memReport struct {
	meta    ReportMeta
	payload []byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// Close implements the same lifecycle as SqlStore; it is a no-op.
func (s *MemStore) Close() error { return nil }

func (s *MemStore) SaveReport(r *report.Report) (int64, error) {
	if r == nil {
		return 0, errors.New("report is nil")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("marshal report: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.reports = append(s.reports, memReport{
		meta: ReportMeta{
			ID:            s.nextID,
			Verdict:       string(r.Verdict),
			SessionID:     r.SessionID,
			Branch:        r.Branch,
			Head:          r.Head,
			GeneratedAt:   r.GeneratedAt.UTC().Format(time.RFC3339),
			Checks:        len(r.Results),
			RunsTotal:     len(r.Runs),
			RunsCompleted: r.CompletedRuns(),
			RunsLive:      r.LiveRuns(),
		},
		payload: payload,
	})
	return s.nextID, nil
}

func (s *MemStore) GetReport(reportID int64) (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.reports {
		if m.meta.ID == reportID {
			return decodeReport(m.payload)
		}
	}
	return nil, nil
}

func (s *MemStore) LatestReport() (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		return nil, nil
	}
	return decodeReport(s.reports[len(s.reports)-1].payload)
}

func (s *MemStore) ListReports() ([]*ReportMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*ReportMeta, 0, len(s.reports))
	for i := len(s.reports) - 1; i >= 0; i-- {
		cp := s.reports[i].meta
		list = append(list, &cp)
	}
	return list, nil
}

func (s *MemStore) RunStats() (*RunStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st RunStats
	for _, m := range s.reports {
		r, err := decodeReport(m.payload)
		if err != nil {
			return nil, err
		}
		for _, rr := range r.Runs {
			st.Total++
			if rr.Completed() {
				st.Completed++
			}
			if rr.Abandoned {
				st.Abandoned++
			}
			if rr.SessionInProgress {
				st.Live++
			}
		}
	}
	return &st, nil
}
