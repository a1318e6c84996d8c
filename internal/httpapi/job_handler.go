package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/smartcut/internal/config"
	"github.com/jmylchreest/smartcut/internal/cutplan"
	"github.com/jmylchreest/smartcut/internal/job"
)

// JobHandler exposes cut job submission, inspection, and cancellation.
type JobHandler struct {
	registry *Registry
	cfg      config.SessionConfig
	logger   *slog.Logger
}

// NewJobHandler creates a job handler backed by registry, using cfg as the
// default session configuration for submitted jobs.
func NewJobHandler(registry *Registry, cfg config.SessionConfig, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{registry: registry, cfg: cfg, logger: logger}
}

// Register registers the job routes with the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "submitCutJob",
		Method:      "POST",
		Path:        "/api/v1/jobs",
		Summary:     "Submit a cut job",
		Description: "Starts a Smart Cut job against an input elementary stream and returns immediately with the job ID",
		Tags:        []string{"Jobs"},
	}, h.Submit)

	huma.Register(api, huma.Operation{
		OperationID: "listCutJobs",
		Method:      "GET",
		Path:        "/api/v1/jobs",
		Summary:     "List cut jobs",
		Description: "Returns every tracked cut job, newest first",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getCutJob",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get a cut job",
		Description: "Returns the status of a single cut job",
		Tags:        []string{"Jobs"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "cancelCutJob",
		Method:      "POST",
		Path:        "/api/v1/jobs/{id}/cancel",
		Summary:     "Cancel a cut job",
		Description: "Requests that a pending or running cut job stop at its next segment boundary",
		Tags:        []string{"Jobs"},
	}, h.Cancel)

	// Register the SSE endpoint with Huma for OpenAPI documentation. The
	// actual handler is registered separately via RegisterSSE on the chi
	// router, which takes precedence; Huma has no native SSE streaming.
	sse.Register(api, huma.Operation{
		OperationID: "cutJobProgressStream",
		Method:      "GET",
		Path:        "/api/v1/jobs/{id}/events",
		Summary:     "Subscribe to job progress events",
		Description: "Server-Sent Events stream of progress updates for one cut job, closing when the job finishes.",
		Tags:        []string{"Jobs"},
	}, map[string]any{
		"progress": ProgressEvent{},
	}, func(ctx context.Context, input *JobProgressStreamInput, send sse.Sender) {
		<-ctx.Done()
	})
}

// RegisterSSE registers the progress-stream endpoint on a chi router.
func (h *JobHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/jobs/{id}/events", h.handleProgressStream)
}

// KeepPairInput is one keep range in the submitted request body.
type KeepPairInput struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// AudioInputBody describes one audio track to trim alongside the video.
type AudioInputBody struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
}

// SubtitleInputBody describes one subtitle track to trim.
type SubtitleInputBody struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
}

// SubmitJobInput is the request body for submitting a cut job.
type SubmitJobInput struct {
	Body struct {
		VideoPath        string              `json:"video_path" doc:"Path to the input H.264/H.265 elementary stream"`
		OutputPath       string              `json:"output_path" doc:"Path to write the muxed Matroska output"`
		KeepRanges       []KeepPairInput     `json:"keep_ranges" doc:"Inclusive frame ranges to keep, in ascending order"`
		AudioInputs      []AudioInputBody    `json:"audio_inputs,omitempty"`
		SubtitleInputs   []SubtitleInputBody `json:"subtitle_inputs,omitempty"`
		GenerateChapters bool                `json:"generate_chapters,omitempty"`
	}
}

// JobResponse is the JSON representation of one tracked cut job.
type JobResponse struct {
	ID          string     `json:"id"`
	VideoPath   string     `json:"video_path"`
	OutputPath  string     `json:"output_path"`
	State       string     `json:"state"`
	Stage       string     `json:"stage,omitempty"`
	Segment     int        `json:"segment,omitempty"`
	SegmentsTot int        `json:"segments_total,omitempty"`
	Segments    int        `json:"segments,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func jobResponseFromTracked(tj trackedJob) JobResponse {
	resp := JobResponse{
		ID:          tj.id.String(),
		VideoPath:   tj.videoPath,
		OutputPath:  tj.outputPath,
		State:       string(tj.state),
		Stage:       tj.progress.Stage,
		Segment:     tj.progress.SegmentIndex,
		SegmentsTot: tj.progress.SegmentCount,
		CreatedAt:   tj.createdAt,
		StartedAt:   tj.startedAt,
		CompletedAt: tj.completedAt,
	}
	if tj.result != nil {
		resp.Segments = tj.result.Segments
	}
	if tj.err != nil {
		resp.Error = tj.err.Error()
	}
	return resp
}

// SubmitJobOutput is the response to a cut job submission.
type SubmitJobOutput struct {
	Body JobResponse
}

// Submit starts a new cut job and returns immediately.
func (h *JobHandler) Submit(ctx context.Context, input *SubmitJobInput) (*SubmitJobOutput, error) {
	if input.Body.VideoPath == "" || input.Body.OutputPath == "" {
		return nil, huma.Error400BadRequest("video_path and output_path are required")
	}
	if len(input.Body.KeepRanges) == 0 {
		return nil, huma.Error400BadRequest("keep_ranges must not be empty")
	}

	keepList := make(cutplan.KeepList, len(input.Body.KeepRanges))
	for i, kr := range input.Body.KeepRanges {
		keepList[i] = cutplan.KeepPair{Start: kr.Start, End: kr.End}
	}

	req := job.Request{
		VideoPath:        input.Body.VideoPath,
		OutputPath:       input.Body.OutputPath,
		KeepList:         keepList,
		GenerateChapters: input.Body.GenerateChapters,
		Config:           h.cfg,
	}
	for _, a := range input.Body.AudioInputs {
		req.AudioInputs = append(req.AudioInputs, job.AudioInput{Path: a.Path, Language: a.Language})
	}
	for _, s := range input.Body.SubtitleInputs {
		req.SubtitleInputs = append(req.SubtitleInputs, job.SubtitleInput{Path: s.Path, Language: s.Language})
	}

	tj := h.registry.Submit(ctx, req)

	return &SubmitJobOutput{Body: jobResponseFromTracked(tj.snapshot())}, nil
}

// ListJobsInput has no parameters; it lists every tracked job.
type ListJobsInput struct{}

// ListJobsOutput is the response for listing cut jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs []JobResponse `json:"jobs"`
	}
}

// List returns every tracked cut job.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	snapshots := h.registry.List()
	out := &ListJobsOutput{}
	out.Body.Jobs = make([]JobResponse, 0, len(snapshots))
	for _, s := range snapshots {
		out.Body.Jobs = append(out.Body.Jobs, jobResponseFromTracked(s))
	}
	return out, nil
}

// GetJobInput identifies a job by ID.
type GetJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// GetJobOutput is the response for getting a cut job.
type GetJobOutput struct {
	Body JobResponse
}

// Get returns the status of a single cut job.
func (h *JobHandler) Get(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	tj, ok := h.registry.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.ID))
	}
	return &GetJobOutput{Body: jobResponseFromTracked(tj.snapshot())}, nil
}

// CancelJobInput identifies the job to cancel.
type CancelJobInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// CancelJobOutput confirms a cancellation request was accepted.
type CancelJobOutput struct {
	Body struct {
		Canceled bool `json:"canceled"`
	}
}

// Cancel requests that a job stop at its next segment boundary.
func (h *JobHandler) Cancel(ctx context.Context, input *CancelJobInput) (*CancelJobOutput, error) {
	ok, err := h.registry.Cancel(input.ID)
	if err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	out := &CancelJobOutput{}
	out.Body.Canceled = ok
	return out, nil
}

// ProgressEvent is the SSE payload sent for each progress update.
type ProgressEvent struct {
	Stage        string `json:"stage"`
	SegmentIndex int    `json:"segment_index"`
	SegmentCount int    `json:"segment_count"`
}

// JobProgressStreamInput defines the path parameter for the SSE endpoint.
type JobProgressStreamInput struct {
	ID string `path:"id" doc:"Job ID (ULID)"`
}

// handleProgressStream is the raw HTTP handler for SSE progress streaming.
func (h *JobHandler) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tj, ok := h.registry.Get(id)
	if !ok {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subID, events := tj.subscribe()
	defer tj.unsubscribe(subID)

	rc := http.NewResponseController(w)
	ctx := r.Context()

	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	// The job may already be finished by the time the client connects;
	// send the current snapshot once before waiting for further events.
	if err := writeProgressEvent(w, tj.snapshot().progress); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				return
			}
		case p, ok := <-events:
			if !ok {
				fmt.Fprintf(w, "event: done\ndata: {}\n\n")
				rc.Flush()
				return
			}
			if err := writeProgressEvent(w, p); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeProgressEvent(w http.ResponseWriter, p job.Progress) error {
	data, err := json.Marshal(ProgressEvent{
		Stage:        p.Stage,
		SegmentIndex: p.SegmentIndex,
		SegmentCount: p.SegmentCount,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
	return err
}
