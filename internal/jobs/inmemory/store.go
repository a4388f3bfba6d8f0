package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ledgerly/ledgerly/internal/jobs"
)

// Store keeps job state in memory. Data is lost on restart; a deployment that
// needs durable job history would back this with the relational store.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.RecomputeJob
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*jobs.RecomputeJob)}
}

// SaveJob implements jobs.JobStore.
func (s *Store) SaveJob(ctx context.Context, job *jobs.RecomputeJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

// GetJob implements jobs.JobStore.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.RecomputeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob: job not found: %s", jobID)
	}
	cp := *job
	return &cp, nil
}

// ListJobs implements jobs.JobStore. Results are ordered newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.RecomputeJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.RecomputeJob
	for _, job := range s.jobs {
		if filter.LedgerID != "" && job.LedgerID != filter.LedgerID {
			continue
		}
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		cp := *job
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.RecomputeJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.JobStore = (*Store)(nil)
