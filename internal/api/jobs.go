package api

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wpinspect/wpinspect/internal/analyzer"
	consts "github.com/wpinspect/wpinspect/internal/shared/constants"
	apperrors "github.com/wpinspect/wpinspect/internal/shared/errors"
)

// Job states.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobError   = "error"
)

// JobTypeBatch is the only job type: a batch of site analyses.
const JobTypeBatch = "batch"

type Job struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Status     string                 `json:"status"`
	Total      int                    `json:"total"`
	Completed  int                    `json:"completed"`
	Failed     int                    `json:"failed"`
	CreatedAt  time.Time              `json:"created_at"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Results    []analyzer.BatchResult `json:"results,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// BatchRequest is the body of POST /api/v1/batch. Options fields that are
// omitted keep their defaults.
type BatchRequest struct {
	URLs    []string         `json:"urls"`
	Options analyzer.Options `json:"options"`
}

// BatchRunner runs a batch of analyses. *analyzer.BatchRunner satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, urls []string, opts analyzer.Options, onResult analyzer.ResultFunc) ([]analyzer.BatchResult, error)
}

// JobManager runs batch jobs in the background and fans job updates out to
// subscribers.
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[chan Job]struct{}
	maxJobs     int

	runner BatchRunner
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewJobManager(runner BatchRunner, logger *zap.Logger) *JobManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &JobManager{
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     consts.DefaultMaxJobs,
		runner:      runner,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		now:         time.Now,
	}
	m.wg.Add(1)
	go m.cleanupLoop(5 * time.Minute)
	return m
}

// StartBatch validates req, registers a pending job and runs it in the
// background. The returned job is a snapshot.
func (m *JobManager) StartBatch(_ context.Context, req BatchRequest) (*Job, error) {
	if m.runner == nil {
		return nil, fmt.Errorf("jobs: %w: batch runner", apperrors.ErrMissingRequired)
	}
	urls := make([]string, 0, len(req.URLs))
	for _, u := range req.URLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, apperrors.ErrNoTargets
	}
	if err := m.ctx.Err(); err != nil {
		return nil, apperrors.ErrClientClosed
	}

	job := m.createJob(JobTypeBatch, len(urls))
	m.wg.Add(1)
	go m.run(job.ID, urls, req.Options)
	return job, nil
}

func (m *JobManager) run(id string, urls []string, opts analyzer.Options) {
	defer m.wg.Done()
	logger := m.logger.With(zap.String("job_id", id))

	m.UpdateJob(id, func(j *Job) {
		started := m.now()
		j.Status = JobRunning
		j.StartedAt = &started
	})
	logger.Info("batch job started", zap.Int("targets", len(urls)))

	results, err := m.runner.Run(m.ctx, urls, opts, func(r analyzer.BatchResult) {
		m.UpdateJob(id, func(j *Job) {
			j.Completed++
			if r.Error != "" {
				j.Failed++
			}
		})
	})

	job := m.UpdateJob(id, func(j *Job) {
		finished := m.now()
		j.FinishedAt = &finished
		// Duplicates are collapsed by the runner, so the total follows its output.
		j.Total = len(results)
		j.Results = results
		if err != nil {
			j.Status = JobError
			j.Error = err.Error()
			return
		}
		j.Status = JobDone
	})
	if job == nil {
		return
	}
	if err != nil {
		logger.Warn("batch job failed", zap.Error(err), zap.Int("completed", job.Completed))
		return
	}
	logger.Info("batch job finished", zap.Int("completed", job.Completed), zap.Int("failed", job.Failed))
}

func (m *JobManager) createJob(jobType string, total int) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    JobPending,
		Total:     total,
		CreatedAt: m.now(),
	}
	m.jobs[job.ID] = job
	snapshot := job.clone()
	m.broadcast(snapshot)
	return &snapshot
}

// UpdateJob applies update to the job and broadcasts the result. It
// returns nil when the job does not exist.
func (m *JobManager) UpdateJob(id string, update func(*Job)) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	update(job)
	snapshot := job.clone()
	m.broadcast(snapshot)
	return &snapshot
}

func (m *JobManager) GetJob(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, apperrors.ErrJobNotFound
	}
	snapshot := job.clone()
	return &snapshot, nil
}

// ListJobs returns up to limit jobs, newest first, without their results.
func (m *JobManager) ListJobs(_ context.Context, limit int) ([]Job, error) {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		summary := *job
		summary.Results = nil
		jobs = append(jobs, summary)
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *JobManager) Subscribe() (chan Job, func()) {
	ch := make(chan Job, 16)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// Close cancels running jobs and waits for them to record their outcome.
func (m *JobManager) Close() {
	m.cancel()
	m.wg.Wait()
}

// SetMaxJobs configures the maximum number of jobs to retain in memory.
func (m *JobManager) SetMaxJobs(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > 0 {
		m.maxJobs = max
	}
}

// broadcast must be called with m.mu held. Slow subscribers miss updates.
func (m *JobManager) broadcast(job Job) {
	for ch := range m.subscribers {
		select {
		case ch <- job:
		default:
			m.logger.Debug("dropped job update for slow subscriber", zap.String("job_id", job.ID))
		}
	}
}

func (m *JobManager) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.prune()
		case <-m.ctx.Done():
			return
		}
	}
}

// prune drops the oldest finished jobs once more than maxJobs are held.
func (m *JobManager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.jobs) <= m.maxJobs {
		return
	}

	type finished struct {
		id string
		at time.Time
	}
	var done []finished
	for id, job := range m.jobs {
		if job.Status != JobDone && job.Status != JobError {
			continue
		}
		at := job.CreatedAt
		if job.FinishedAt != nil {
			at = *job.FinishedAt
		}
		done = append(done, finished{id: id, at: at})
	}
	sort.Slice(done, func(i, j int) bool { return done[i].at.Before(done[j].at) })

	excess := len(m.jobs) - m.maxJobs
	if excess > len(done) {
		excess = len(done)
	}
	for _, f := range done[:excess] {
		delete(m.jobs, f.id)
	}
}

func (j *Job) clone() Job {
	c := *j
	if j.Results != nil {
		c.Results = append([]analyzer.BatchResult(nil), j.Results...)
	}
	return c
}
