// Package service runs harvest jobs: gather, fetch and import of a source
// against the catalog, with job bookkeeping in the harvest store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/config"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/metrics"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/models"
	"github.com/raphaelgruber/stadtzhharvest-go/internal/store"
	"golang.org/x/sync/errgroup"
)

// Job states.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

var (
	// ErrJobRunning is returned when a source already has a running job.
	ErrJobRunning = errors.New("a job is already running for this source")
	// ErrUnknownSource is returned for sources that were never registered.
	ErrUnknownSource = errors.New("unknown harvest source")
)

// Job is a harvest job tracked in memory while it runs.
type Job struct {
	job  models.HarvestJob
	done chan struct{}

	mu                 sync.RWMutex
	lastProgressUpdate time.Time // For debouncing store writes
}

// Snapshot returns a thread-safe copy of job state.
func (j *Job) Snapshot() models.HarvestJob {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.job
}

// Done is closed when the job has finished.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

type registration struct {
	harvester *Harvester
	ec        ExecutionContext
}

// JobManager starts harvest jobs and tracks them.
type JobManager struct {
	sources     map[string]registration
	jobs        map[string]*Job
	running     map[string]string // source name -> job ID
	mu          sync.RWMutex
	concurrency int
	store       store.Store
	metrics     *metrics.Collector
	logger      *slog.Logger
}

// NewJobManager creates a new job manager importing up to concurrency
// records of a job at the same time.
func NewJobManager(concurrency int, st store.Store, collector *metrics.Collector, logger *slog.Logger) *JobManager {
	if concurrency <= 0 {
		concurrency = 1
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &JobManager{
		sources:     make(map[string]registration),
		jobs:        make(map[string]*Job),
		running:     make(map[string]string),
		concurrency: concurrency,
		store:       st,
		metrics:     collector,
		logger:      logger,
	}
}

// Register makes the harvester's source runnable under its name.
func (m *JobManager) Register(h *Harvester, ec ExecutionContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[h.Source().Name] = registration{harvester: h, ec: ec}
}

// Sources returns the registered sources ordered by name.
func (m *JobManager) Sources() []config.Source {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]config.Source, 0, len(m.sources))
	for _, name := range slices.Sorted(maps.Keys(m.sources)) {
		out = append(out, m.sources[name].harvester.Source())
	}
	return out
}

// create registers a pending job for the source and persists it.
func (m *JobManager) create(ctx context.Context, sourceName, createdBy string) (*Job, registration, error) {
	m.mu.Lock()
	reg, ok := m.sources[sourceName]
	if !ok {
		m.mu.Unlock()
		return nil, reg, fmt.Errorf("%w: %s", ErrUnknownSource, sourceName)
	}
	if id, busy := m.running[sourceName]; busy {
		m.mu.Unlock()
		return nil, reg, fmt.Errorf("%w: %s (job %s)", ErrJobRunning, sourceName, id)
	}

	if createdBy == "" {
		createdBy = reg.ec.SiteUser
	}
	job := &Job{
		job: models.HarvestJob{
			ID:        uuid.New().String()[:8], // Short ID for convenience
			Source:    sourceName,
			Status:    JobStatusPending,
			CreatedBy: createdBy,
			StartedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
	m.jobs[job.job.ID] = job
	m.running[sourceName] = job.job.ID
	m.mu.Unlock()

	if err := m.store.SaveJob(ctx, job.Snapshot()); err != nil {
		m.release(job)
		return nil, reg, fmt.Errorf("save job: %w", err)
	}

	m.logger.Info("job created", "job_id", job.job.ID, "source", sourceName)
	return job, reg, nil
}

func (m *JobManager) release(job *Job) {
	m.mu.Lock()
	if m.running[job.job.Source] == job.job.ID {
		delete(m.running, job.job.Source)
	}
	m.mu.Unlock()
	close(job.done)
}

// Start runs a job for the source in the background and returns at once.
// The job is not bound to ctx.
func (m *JobManager) Start(ctx context.Context, sourceName, createdBy string) (*Job, error) {
	job, reg, err := m.create(ctx, sourceName, createdBy)
	if err != nil {
		return nil, err
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("job goroutine panicked", "job_id", job.job.ID, "panic", r)
				m.fail(context.Background(), job, fmt.Errorf("internal panic: %v", r))
			}
		}()
		_ = m.execute(context.Background(), job, reg)
	}()
	return job, nil
}

// Run runs a job for the source and waits for it.
func (m *JobManager) Run(ctx context.Context, sourceName, createdBy string) (models.HarvestJob, error) {
	job, reg, err := m.create(ctx, sourceName, createdBy)
	if err != nil {
		return models.HarvestJob{}, err
	}
	err = m.execute(ctx, job, reg)
	return job.Snapshot(), err
}

func (m *JobManager) execute(ctx context.Context, job *Job, reg registration) error {
	defer m.release(job)
	m.setRunning(ctx, job)

	start := time.Now()
	ids, err := reg.harvester.Gather(ctx, reg.ec, job.job.ID)
	m.metrics.RecordTiming(metrics.OpGather, time.Since(start))
	if err != nil {
		m.fail(ctx, job, err)
		return err
	}

	job.mu.Lock()
	job.job.Total = len(ids)
	job.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			obj, err := m.store.GetObject(gctx, id)
			if err != nil {
				return fmt.Errorf("load record %s: %w", id, err)
			}
			if obj == nil {
				return fmt.Errorf("record %s not found", id)
			}
			if err := reg.harvester.Fetch(gctx, *obj); err != nil {
				return err
			}

			start := time.Now()
			outcome, err := reg.harvester.Import(gctx, reg.ec, *obj)
			m.metrics.RecordTiming(metrics.OpImport, time.Since(start))
			if err != nil {
				return fmt.Errorf("import %s: %w", obj.GUID, err)
			}
			m.metrics.RecordOutcome(outcome)
			m.updateProgress(gctx, job, outcome)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.fail(ctx, job, err)
		return err
	}

	m.complete(ctx, job)
	return nil
}

// updateProgress counts an outcome with debounced store persistence.
func (m *JobManager) updateProgress(ctx context.Context, job *Job, outcome models.Outcome) {
	job.mu.Lock()
	job.job.Progress++
	job.job.Stats.Add(outcome)
	current, total := job.job.Progress, job.job.Total

	// Debounce store updates - only persist every 5 seconds or every 10 records
	shouldPersist := time.Since(job.lastProgressUpdate) > 5*time.Second ||
		current%10 == 0 || current == total
	if shouldPersist {
		job.lastProgressUpdate = time.Now()
	}
	snap := job.job
	job.mu.Unlock()

	if shouldPersist {
		if err := m.store.SaveJob(ctx, snap); err != nil {
			m.logger.Warn("failed to persist job progress", "job_id", snap.ID, "error", err)
		}
	}
}

func (m *JobManager) setRunning(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.job.Status = JobStatusRunning
	snap := job.job
	job.mu.Unlock()

	if err := m.store.SaveJob(ctx, snap); err != nil {
		m.logger.Warn("failed to set job running", "job_id", snap.ID, "error", err)
	}
}

func (m *JobManager) complete(ctx context.Context, job *Job) {
	job.mu.Lock()
	job.job.Status = JobStatusCompleted
	now := time.Now().UTC()
	job.job.CompletedAt = &now
	snap := job.job
	job.mu.Unlock()

	if err := m.store.SaveJob(context.WithoutCancel(ctx), snap); err != nil {
		m.logger.Warn("failed to persist job completion", "job_id", snap.ID, "error", err)
	}

	m.logger.Info("job completed",
		"job_id", snap.ID,
		"added", snap.Stats.Added,
		"updated", snap.Stats.Updated,
		"deleted", snap.Stats.Deleted,
		"errored", snap.Stats.Errored,
		"not_modified", snap.Stats.NotModified)
}

func (m *JobManager) fail(ctx context.Context, job *Job, err error) {
	job.mu.Lock()
	job.job.Status = JobStatusFailed
	msg := err.Error()
	job.job.Error = &msg
	now := time.Now().UTC()
	job.job.CompletedAt = &now
	snap := job.job
	job.mu.Unlock()

	if dbErr := m.store.SaveJob(context.WithoutCancel(ctx), snap); dbErr != nil {
		m.logger.Warn("failed to persist job failure", "job_id", snap.ID, "error", dbErr)
	}

	m.logger.Error("job failed", "job_id", snap.ID, "error", err)
}

// Job returns a job started by this manager, or nil.
func (m *JobManager) Job(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// GetJob returns a job from memory or from the store.
// Returns nil if not found.
func (m *JobManager) GetJob(ctx context.Context, id string) (*models.HarvestJob, error) {
	if job := m.Job(id); job != nil {
		snap := job.Snapshot()
		return &snap, nil
	}
	return m.store.GetJob(ctx, id)
}

// ListJobs returns the most recent jobs.
func (m *JobManager) ListJobs(ctx context.Context, limit int) ([]models.HarvestJob, error) {
	return m.store.ListJobs(ctx, limit)
}

// Errors returns the gather and object errors of a job.
func (m *JobManager) Errors(ctx context.Context, jobID string) ([]models.HarvestError, error) {
	return m.store.ListErrors(ctx, jobID)
}

// Metrics returns the collector the manager records to.
func (m *JobManager) Metrics() *metrics.Collector {
	return m.metrics
}
