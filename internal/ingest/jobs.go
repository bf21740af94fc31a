package ingest

import (
	"sync"

	"go.uber.org/zap"

	"github.com/docqa/backend/pkg/logger"
)

// Job states. A job moves pending -> running -> succeeded or failed; it
// never leaves a terminal state.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// JobStatus is the externally visible snapshot of one ingestion job.
type JobStatus struct {
	JobID     string   `json:"job_id"`
	Status    string   `json:"status"`
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Total     int      `json:"total"`
	Errors    []string `json:"errors"`
	DocIDs    []string `json:"doc_ids,omitempty"`
}

type job struct {
	status    string
	processed int
	skipped   int
	total     int
	errors    []string
	docIDs    []string
}

// JobStore tracks in-flight ingestion jobs in memory. Jobs are transient;
// the durable record of an ingested document is the registry row.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*job)}
}

// Create registers a job in the pending state before its files are queued.
func (s *JobStore) Create(jobID string, total int) {
	s.mu.Lock()
	s.jobs[jobID] = &job{status: JobPending, total: total}
	s.mu.Unlock()

	logger.Info("Ingestion job created", zap.String("job_id", jobID), zap.Int("total", total))
}

func (s *JobStore) Start(jobID string) {
	s.mu.Lock()
	if j, ok := s.jobs[jobID]; ok && j.status == JobPending {
		j.status = JobRunning
	}
	s.mu.Unlock()
}

func (s *JobStore) IncProcessed(jobID string, docID string) {
	s.mu.Lock()
	if j, ok := s.jobs[jobID]; ok {
		j.processed++
		if docID != "" {
			j.docIDs = append(j.docIDs, docID)
		}
	}
	s.mu.Unlock()
}

// IncSkipped counts a file whose content hash already exists in scope.
func (s *JobStore) IncSkipped(jobID string, docID string) {
	s.mu.Lock()
	if j, ok := s.jobs[jobID]; ok {
		j.skipped++
		if docID != "" {
			j.docIDs = append(j.docIDs, docID)
		}
	}
	s.mu.Unlock()
}

func (s *JobStore) AddError(jobID string, msg string) {
	s.mu.Lock()
	if j, ok := s.jobs[jobID]; ok {
		j.errors = append(j.errors, msg)
	}
	s.mu.Unlock()

	logger.Error("Ingestion job error", zap.String("job_id", jobID), zap.String("error", msg))
}

// Finish moves a running job to its terminal state: failed when any file
// produced an error, succeeded otherwise.
func (s *JobStore) Finish(jobID string) {
	s.mu.Lock()
	status := JobFailed
	if j, ok := s.jobs[jobID]; ok {
		if len(j.errors) == 0 {
			j.status = JobSucceeded
			status = JobSucceeded
		} else {
			j.status = JobFailed
		}
	}
	s.mu.Unlock()

	logger.Info("Ingestion job finished", zap.String("job_id", jobID), zap.String("status", status))
}

// Get returns the current snapshot. Unknown job IDs read as pending with no
// progress so that clients polling early see a consistent shape.
func (s *JobStore) Get(jobID string) JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return JobStatus{JobID: jobID, Status: JobPending, Errors: []string{}}
	}

	errs := make([]string, len(j.errors))
	copy(errs, j.errors)
	docIDs := make([]string, len(j.docIDs))
	copy(docIDs, j.docIDs)

	return JobStatus{
		JobID:     jobID,
		Status:    j.status,
		Processed: j.processed,
		Skipped:   j.skipped,
		Total:     j.total,
		Errors:    errs,
		DocIDs:    docIDs,
	}
}
