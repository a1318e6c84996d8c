package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/smartcut/internal/core"
	"github.com/jmylchreest/smartcut/internal/database"
	"github.com/jmylchreest/smartcut/internal/job"
	"github.com/jmylchreest/smartcut/internal/models"
)

// JobState is the lifecycle state of a tracked job, mirroring
// database.CutJobStatus for records that have no persistence backing.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// trackedJob is the registry's view of one submitted cut job: its request,
// current progress, outcome, and the abort handle needed to cancel it.
type trackedJob struct {
	mu sync.Mutex

	id         models.ULID
	req        job.Request
	videoPath  string
	outputPath string

	state    JobState
	progress job.Progress
	result   *job.Result
	err      error

	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time

	handle *job.Job

	subMu sync.Mutex
	subs  map[int]chan job.Progress
	nextS int
}

func (t *trackedJob) subscribe() (int, chan job.Progress) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextS
	t.nextS++
	ch := make(chan job.Progress, 16)
	t.subs[id] = ch
	return id, ch
}

func (t *trackedJob) unsubscribe(id int) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
	}
}

func (t *trackedJob) publish(p job.Progress) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- p:
		default:
			// Slow subscriber: drop the event rather than block the job.
		}
	}
}

func (t *trackedJob) snapshot() trackedJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	return trackedJob{
		id:          t.id,
		videoPath:   t.videoPath,
		outputPath:  t.outputPath,
		state:       t.state,
		progress:    t.progress,
		result:      t.result,
		err:         t.err,
		createdAt:   t.createdAt,
		startedAt:   t.startedAt,
		completedAt: t.completedAt,
	}
}

// Registry tracks in-flight and completed cut jobs in memory and mirrors
// their lifecycle into persistent history when a repository is configured.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*trackedJob

	repo *database.CutJobRepository
	log  *slog.Logger
}

// NewRegistry creates an empty job registry. repo may be nil, in which
// case jobs are tracked in memory only.
func NewRegistry(repo *database.CutJobRepository, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		jobs: make(map[string]*trackedJob),
		repo: repo,
		log:  logger,
	}
}

// Submit starts a new cut job and returns its tracking ID immediately;
// the job runs asynchronously under ctx.
func (r *Registry) Submit(ctx context.Context, req job.Request) *trackedJob {
	id := models.NewULID()
	now := time.Now()

	tj := &trackedJob{
		id:         id,
		req:        req,
		videoPath:  req.VideoPath,
		outputPath: req.OutputPath,
		state:      JobStatePending,
		createdAt:  now,
		subs:       make(map[int]chan job.Progress),
	}

	origProgress := req.ProgressFunc
	req.ProgressFunc = func(p job.Progress) {
		tj.mu.Lock()
		tj.progress = p
		if tj.state == JobStatePending {
			tj.state = JobStateRunning
			started := time.Now()
			tj.startedAt = &started
		}
		tj.mu.Unlock()
		tj.publish(p)
		if origProgress != nil {
			origProgress(p)
		}
	}

	tj.handle = job.New(req)

	r.mu.Lock()
	r.jobs[id.String()] = tj
	r.mu.Unlock()

	r.persistCreate(ctx, tj)

	go r.run(ctx, tj)

	return tj
}

func (r *Registry) run(ctx context.Context, tj *trackedJob) {
	result, err := tj.handle.Run(ctx)

	tj.mu.Lock()
	completed := time.Now()
	tj.completedAt = &completed
	tj.result = result
	tj.err = err
	switch {
	case err == nil:
		tj.state = JobStateCompleted
	case err == core.ErrAborted:
		tj.state = JobStateCanceled
	default:
		tj.state = JobStateFailed
	}
	tj.mu.Unlock()

	tj.subMu.Lock()
	for id, ch := range tj.subs {
		delete(tj.subs, id)
		close(ch)
	}
	tj.subMu.Unlock()

	r.persistFinish(ctx, tj)
}

// Get returns the tracked job for id, or false if no such job exists.
func (r *Registry) Get(id string) (*trackedJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tj, ok := r.jobs[id]
	return tj, ok
}

// List returns a snapshot of every tracked job, newest first.
func (r *Registry) List() []trackedJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]trackedJob, 0, len(r.jobs))
	for _, tj := range r.jobs {
		out = append(out, tj.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].createdAt.After(out[j].createdAt) })
	return out
}

// Cancel requests that the given job stop at its next segment boundary.
func (r *Registry) Cancel(id string) (bool, error) {
	tj, ok := r.Get(id)
	if !ok {
		return false, fmt.Errorf("job %s not found", id)
	}
	tj.handle.Abort()
	return true, nil
}

func (r *Registry) persistCreate(ctx context.Context, tj *trackedJob) {
	if r.repo == nil {
		return
	}
	keepListJSON, err := json.Marshal(tj.req.KeepList)
	if err != nil {
		r.log.Warn("failed to encode keep list for cut job record", "job_id", tj.id.String(), "error", err)
	}
	rec := &database.CutJobRecord{
		BaseModel:  models.BaseModel{ID: tj.id},
		VideoPath:  tj.videoPath,
		OutputPath: tj.outputPath,
		KeepList:   string(keepListJSON),
		Status:     database.CutJobStatusPending,
	}
	if err := r.repo.Create(ctx, rec); err != nil {
		r.log.Warn("failed to persist cut job record", "job_id", tj.id.String(), "error", err)
	}
}

func (r *Registry) persistFinish(ctx context.Context, tj *trackedJob) {
	if r.repo == nil {
		return
	}
	rec, err := r.repo.GetByID(ctx, tj.id)
	if err != nil {
		r.log.Warn("failed to load cut job record for update", "job_id", tj.id.String(), "error", err)
		return
	}

	snap := tj.snapshot()
	switch snap.state {
	case JobStateCompleted:
		rec.Status = database.CutJobStatusCompleted
		if snap.result != nil {
			rec.Segments = snap.result.Segments
		}
	case JobStateCanceled:
		rec.Status = database.CutJobStatusCanceled
	default:
		rec.Status = database.CutJobStatusFailed
	}
	if snap.err != nil {
		rec.Error = snap.err.Error()
	}
	rec.StartedAt = snap.startedAt
	rec.CompletedAt = snap.completedAt

	if err := r.repo.Update(ctx, rec); err != nil {
		r.log.Warn("failed to update cut job record", "job_id", tj.id.String(), "error", err)
	}
}
