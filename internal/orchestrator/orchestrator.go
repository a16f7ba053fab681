package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/cropmargins/internal/cropjob"
	"github.com/local/cropmargins/internal/dispatcher"
	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/metrics"
	"github.com/local/cropmargins/internal/pdfbox"
	"github.com/local/cropmargins/internal/queue"
	"github.com/local/cropmargins/internal/settings"
	"github.com/local/cropmargins/internal/source"
	"github.com/local/cropmargins/internal/statuscheck"
	"github.com/local/cropmargins/internal/store"
)

type Queue interface {
	Enqueue(ctx context.Context, jobID string, payload []byte) error
	CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
	SetStatus(ctx context.Context, jobID string, st store.Status) error
	GetStatus(ctx context.Context, jobID string) (store.Status, bool, error)
	GetResult(ctx context.Context, jobID string) ([]byte, error)
}

type Checker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*source.Local, error)
}

type BoundaryReader interface {
	ReadBoundaries(path, password string) ([]pdfbox.PageBoundaries, error)
}

type Dependencies struct {
	Queue      Queue
	Status     StatusStore
	Checker    Checker
	Sources    Fetcher
	Boundaries BoundaryReader
	// Defaults is the base every request's settings are decoded onto.
	Defaults     settings.Settings
	MaxBodyBytes int64
	// InputRoot bounds local inputs. Empty rejects them.
	InputRoot string
	// OutputRoot bounds local outputs and crop data files.
	OutputRoot string
}

type Orchestrator struct {
	deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = 8 << 20
	}
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /crop/compute", o.handleCompute)
	mux.HandleFunc("POST /crop/inspect", o.handleInspect)
	mux.HandleFunc("POST /crop/jobs", o.handleCreateJob)
	mux.HandleFunc("POST /crop/jobs/cancel", o.handleCancelJob)
	mux.HandleFunc("GET /crop/jobs/{id}", o.handleJobStatus)
	mux.HandleFunc("GET /status", o.handleStatus)
	mux.Handle("GET /metrics", metrics.Handler())
}

type computeReq struct {
	Settings json.RawMessage      `json:"settings"`
	Full     geometry.PageBoxList `json:"full_boxes"`
	Content  geometry.PageBoxList `json:"content_boxes"`
	Blank    []bool               `json:"blank"`
}

func (o *Orchestrator) handleCompute(w http.ResponseWriter, r *http.Request) {
	var req computeReq
	if !o.decode(w, r, &req) {
		return
	}
	s, err := o.settings(req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := cropjob.Compute(cropjob.ComputeRequest{Settings: s, Full: req.Full, Content: req.Content, Blank: req.Blank})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type inspectReq struct {
	Input    string `json:"input"`
	Password string `json:"password,omitempty"`
}

type inspectResp struct {
	Input      string                  `json:"input"`
	Pages      int                     `json:"pages"`
	Full       geometry.PageBoxList    `json:"full_boxes"`
	Boundaries []pdfbox.PageBoundaries `json:"boundaries"`
}

// handleInspect reports a document's page boxes without changing it.
func (o *Orchestrator) handleInspect(w http.ResponseWriter, r *http.Request) {
	var req inspectReq
	if !o.decode(w, r, &req) {
		return
	}
	if req.Input == "" {
		writeError(w, &geometry.ValidationError{Field: "input", Message: "missing input"})
		return
	}
	input, err := o.confineInput(req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	local, err := o.deps.Sources.Fetch(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}
	defer local.Cleanup()
	pbs, err := o.deps.Boundaries.ReadBoundaries(local.Path, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	precedence, err := pdfbox.ParseBoxTypes(o.deps.Defaults.FullPageBox)
	if err != nil || len(precedence) == 0 {
		precedence = []pdfbox.BoxType{pdfbox.MediaBox, pdfbox.CropBox}
	}
	writeJSON(w, http.StatusOK, inspectResp{
		Input:      req.Input,
		Pages:      len(pbs),
		Full:       pdfbox.FullPageBoxes(pbs, precedence),
		Boundaries: pbs,
	})
}

type jobReq struct {
	Input    string          `json:"input"`
	Output   string          `json:"output,omitempty"`
	Settings json.RawMessage `json:"settings"`
}

type jobResp struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (o *Orchestrator) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobReq
	if !o.decode(w, r, &req) {
		return
	}
	if req.Input == "" {
		writeError(w, &geometry.ValidationError{Field: "input", Message: "missing input"})
		return
	}
	s, err := o.settings(req.Settings)
	if err != nil {
		writeError(w, err)
		return
	}

	jobID := uuid.NewString()
	if err := o.confineJob(jobID, &req, &s); err != nil {
		writeError(w, err)
		return
	}
	job := dispatcher.NewJob(cropjob.Request{ID: jobID, Input: req.Input, Output: req.Output, Settings: s})
	data, err := job.Encode()
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	if err := o.deps.Status.SetStatus(r.Context(), jobID, store.Status{
		Status:   store.StatusQueued,
		Message:  "queued",
		Start:    &start,
		Metadata: map[string]any{"input": req.Input, "output": req.Output},
	}); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("status init failed")
		http.Error(w, "status store unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := o.deps.Queue.Enqueue(r.Context(), jobID, data); err != nil {
		if errors.Is(err, queue.ErrDuplicateJob) {
			http.Error(w, "job already queued", http.StatusConflict)
			return
		}
		log.Error().Err(err).Str("job_id", jobID).Msg("enqueue failed")
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	log.Info().Str("job_id", jobID).Str("input", req.Input).Msg("job created")
	writeJSON(w, http.StatusCreated, jobResp{Status: "ok", JobID: jobID, Message: "crop job created"})
}

func (o *Orchestrator) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, ok, err := o.deps.Status.GetStatus(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	resp := map[string]any{
		"success":    st.Status == store.StatusSucceeded,
		"job_id":     id,
		"status":     st.Status,
		"attempt":    st.Attempt,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
		"metadata":   st.Metadata,
	}
	if st.Status == store.StatusSucceeded {
		if b, err := o.deps.Status.GetResult(r.Context(), id); err == nil && b != nil {
			resp["result"] = json.RawMessage(b)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type cancelReq struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if !o.decode(w, r, &req) {
		return
	}
	if req.JobID == "" {
		http.Error(w, "missing job_id", http.StatusBadRequest)
		return
	}
	st, ok, _ := o.deps.Status.GetStatus(r.Context(), req.JobID)
	if ok && st.Terminal() && st.Status != store.StatusCancelled {
		http.Error(w, fmt.Sprintf("job already %s", st.Status), http.StatusConflict)
		return
	}
	if err := o.deps.Queue.CancelJob(r.Context(), req.JobID); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	msg := "Cancelled"
	if req.Reason != "" {
		msg = fmt.Sprintf("Cancelled: %s", req.Reason)
	}
	now := time.Now()
	_ = o.deps.Status.SetStatus(r.Context(), req.JobID, store.Status{Status: store.StatusCancelled, Attempt: st.Attempt, Message: msg, End: &now})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": req.JobID, "status": store.StatusCancelled})
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Checker == nil {
		http.Error(w, "status checks disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, o.deps.Checker.Summary(r.Context()))
}

// confineInput keeps local inputs inside InputRoot.
func (o *Orchestrator) confineInput(input string) (string, error) {
	if source.IsRemote(input) {
		return input, nil
	}
	return source.Confine("input", o.deps.InputRoot, source.LocalPath(input))
}

// confineJob rewrites the job's paths so that nothing it reads or writes on
// local disk falls outside the configured roots. Local and http inputs
// without an output get one under OutputRoot named after the job.
func (o *Orchestrator) confineJob(jobID string, req *jobReq, s *settings.Settings) error {
	input, err := o.confineInput(req.Input)
	if err != nil {
		return err
	}
	req.Input = input

	switch {
	case req.Output == "" && (strings.HasPrefix(input, "s3://") || o.deps.OutputRoot == ""):
	case req.Output == "":
		req.Output = filepath.Join(o.deps.OutputRoot, jobID+"_"+source.CroppedName(input))
	case strings.HasPrefix(req.Output, "s3://"):
	case source.IsRemote(req.Output):
		return &geometry.ValidationError{Field: "output", Message: "http outputs are not supported"}
	default:
		if req.Output, err = source.Confine("output", o.deps.OutputRoot, source.LocalPath(req.Output)); err != nil {
			return err
		}
	}

	if s.WriteCropDataToFile != "" {
		p, err := source.Confine("write_crop_data_to_file", o.deps.OutputRoot, s.WriteCropDataToFile)
		if err != nil {
			return err
		}
		s.WriteCropDataToFile = p
	}
	return nil
}

// decode reads a size-limited JSON body into v, answering 400 itself on
// failure.
func (o *Orchestrator) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	body := http.MaxBytesReader(w, r.Body, o.deps.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// settings decodes raw on top of the service defaults. An absent object
// yields the defaults.
func (o *Orchestrator) settings(raw json.RawMessage) (settings.Settings, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return o.deps.Defaults.Clone(), nil
	}
	s, err := settings.Decode(bytes.NewReader(raw), o.deps.Defaults)
	if err != nil {
		return settings.Settings{}, &geometry.ValidationError{Field: "settings", Message: err.Error()}
	}
	return s, nil
}

type errorResp struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	var (
		ve *geometry.ValidationError
		ce *geometry.ContractError
		ue *source.UnsupportedFileError
		he *source.HTTPError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: ve.Error(), Field: ve.Field})
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, errorResp{Error: ce.Error()})
	case errors.As(err, &ue):
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp{Error: ue.Error()})
	case errors.As(err, &he):
		writeJSON(w, http.StatusBadGateway, errorResp{Error: he.Error()})
	default:
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
