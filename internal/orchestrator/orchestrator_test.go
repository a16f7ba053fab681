package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/local/cropmargins/internal/dispatcher"
	"github.com/local/cropmargins/internal/geometry"
	"github.com/local/cropmargins/internal/pdfbox"
	"github.com/local/cropmargins/internal/queue"
	"github.com/local/cropmargins/internal/settings"
	"github.com/local/cropmargins/internal/source"
	"github.com/local/cropmargins/internal/statuscheck"
	"github.com/local/cropmargins/internal/store"
)

type fakeQueue struct {
	jobs      [][]byte
	ids       []string
	cancelled []string
	err       error
}

func (q *fakeQueue) Enqueue(_ context.Context, jobID string, payload []byte) error {
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, jobID)
	q.jobs = append(q.jobs, payload)
	return nil
}

func (q *fakeQueue) CancelJob(_ context.Context, id string) error {
	q.cancelled = append(q.cancelled, id)
	return nil
}

type fakeStatus struct {
	statuses map[string]store.Status
	results  map[string][]byte
}

func newFakeStatus() *fakeStatus {
	return &fakeStatus{statuses: map[string]store.Status{}, results: map[string][]byte{}}
}

func (s *fakeStatus) SetStatus(_ context.Context, id string, st store.Status) error {
	s.statuses[id] = st
	return nil
}

func (s *fakeStatus) GetStatus(_ context.Context, id string) (store.Status, bool, error) {
	st, ok := s.statuses[id]
	return st, ok, nil
}

func (s *fakeStatus) GetResult(_ context.Context, id string) ([]byte, error) {
	return s.results[id], nil
}

type fakeChecker struct{}

func (fakeChecker) Summary(context.Context) statuscheck.Summary {
	return statuscheck.Summary{Redis: statuscheck.Status{OK: true, Message: "Connected"}}
}

type fakeFetcher struct{}

func (fakeFetcher) Fetch(_ context.Context, ref string) (*source.Local, error) {
	if strings.HasSuffix(ref, "missing.pdf") {
		return nil, &source.HTTPError{StatusCode: 404, URL: ref}
	}
	return &source.Local{Path: ref}, nil
}

type fakeBoundaries struct{}

func (fakeBoundaries) ReadBoundaries(string, string) ([]pdfbox.PageBoundaries, error) {
	media := geometry.NewBox(0, 0, 612, 792)
	crop := geometry.NewBox(10, 10, 600, 780)
	return []pdfbox.PageBoundaries{{Media: &media, Crop: &crop}}, nil
}

func newServer(t *testing.T) (*httptest.Server, *fakeQueue, *fakeStatus) {
	t.Helper()
	srv, q, st, _, _ := newServerWithRoots(t)
	return srv, q, st
}

// newServerWithRoots also returns the input and output roots the server
// confines local paths to.
func newServerWithRoots(t *testing.T) (*httptest.Server, *fakeQueue, *fakeStatus, string, string) {
	t.Helper()
	in, out := t.TempDir(), t.TempDir()
	q := &fakeQueue{}
	st := newFakeStatus()
	o := New(Dependencies{
		Queue:        q,
		Status:       st,
		Checker:      fakeChecker{},
		Sources:      fakeFetcher{},
		Boundaries:   fakeBoundaries{},
		Defaults:     settings.Default(),
		MaxBodyBytes: 1 << 16,
		InputRoot:    in,
		OutputRoot:   out,
	})
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, q, st, in, out
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _, _ := newServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCompute(t *testing.T) {
	srv, _, _ := newServer(t)

	t.Run("ok", func(t *testing.T) {
		resp := post(t, srv.URL+"/crop/compute", `{
			"settings": {"percent_retain": 0, "pages": [1]},
			"full_boxes": [[0,0,100,200],[0,0,100,200]],
			"content_boxes": [[10,20,80,150],[10,20,80,150]]
		}`)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var out struct {
			Crop     geometry.PageBoxList `json:"crop_boxes"`
			Selected []int                `json:"selected_pages"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Crop[0] != geometry.NewBox(10, 20, 80, 150) || out.Crop[1] != geometry.NewBox(0, 0, 100, 200) {
			t.Errorf("crop = %v", out.Crop)
		}
		if len(out.Selected) != 1 || out.Selected[0] != 1 {
			t.Errorf("selected = %v", out.Selected)
		}
	})

	t.Run("defaults apply without settings", func(t *testing.T) {
		resp := post(t, srv.URL+"/crop/compute", `{"full_boxes": [[0,0,100,200]], "content_boxes": [[10,20,80,150]]}`)
		var out struct {
			Crop geometry.PageBoxList `json:"crop_boxes"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatal(err)
		}
		if out.Crop[0] != geometry.NewBox(9, 18, 82, 155) {
			t.Errorf("crop = %v, want default 10%% retain", out.Crop)
		}
	})

	t.Run("mismatch is a bad request", func(t *testing.T) {
		resp := post(t, srv.URL+"/crop/compute", `{"full_boxes": [[0,0,1,1]], "content_boxes": []}`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var e errorResp
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Field != "content_boxes" {
			t.Errorf("field = %q", e.Field)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if resp := post(t, srv.URL+"/crop/compute", `{`); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("too large", func(t *testing.T) {
		body := `{"full_boxes": [` + strings.Repeat("[0,0,1,1],", 10000) + `[0,0,1,1]]}`
		if resp := post(t, srv.URL+"/crop/compute", body); resp.StatusCode != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/crop/compute")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}

func TestInspect(t *testing.T) {
	srv, _, _ := newServer(t)

	resp := post(t, srv.URL+"/crop/inspect", `{"input": "docs/a.pdf"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out inspectResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Pages != 1 || out.Full[0] != geometry.NewBox(10, 10, 600, 780) {
		t.Errorf("inspect = %+v", out)
	}

	for _, c := range []struct {
		name string
		body string
		want int
	}{
		{"missing input", `{"input": "missing.pdf"}`, http.StatusBadGateway},
		{"remote input", `{"input": "s3://in/a.pdf"}`, http.StatusOK},
		{"empty input", `{}`, http.StatusBadRequest},
		{"outside input root", `{"input": "/etc/passwd"}`, http.StatusBadRequest},
		{"parent escape", `{"input": "../../a.pdf"}`, http.StatusBadRequest},
	} {
		t.Run(c.name, func(t *testing.T) {
			if resp := post(t, srv.URL+"/crop/inspect", c.body); resp.StatusCode != c.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, c.want)
			}
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	srv, q, st := newServer(t)

	resp := post(t, srv.URL+"/crop/jobs", `{"input": "s3://in/a.pdf", "settings": {"uniform": true}}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var created jobResp
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.JobID == "" || len(q.jobs) != 1 {
		t.Fatalf("created = %+v, queued = %d", created, len(q.jobs))
	}
	job, err := dispatcher.DecodeJob(q.jobs[0])
	if err != nil {
		t.Fatal(err)
	}
	if job.ID() != created.JobID || !job.Request.Settings.Uniform || job.Request.Settings.PercentRetain != settings.DefaultPercentRetain {
		t.Errorf("queued job = %+v", job)
	}
	if st.statuses[created.JobID].Status != store.StatusQueued {
		t.Errorf("status = %+v", st.statuses[created.JobID])
	}

	get := func() map[string]any {
		t.Helper()
		resp, err := http.Get(srv.URL + "/crop/jobs/" + created.JobID)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var m map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
			t.Fatal(err)
		}
		return m
	}
	if m := get(); m["status"] != store.StatusQueued || m["result"] != nil {
		t.Errorf("queued job view = %v", m)
	}

	now := time.Now()
	st.statuses[created.JobID] = store.Status{Status: store.StatusSucceeded, Attempt: 1, End: &now}
	st.results[created.JobID] = []byte(`{"pages":3}`)
	m := get()
	if m["success"] != true {
		t.Errorf("success = %v", m["success"])
	}
	if r, _ := m["result"].(map[string]any); r["pages"] != float64(3) {
		t.Errorf("result = %v", m["result"])
	}

	resp = post(t, srv.URL+"/crop/jobs/cancel", `{"job_id": "`+created.JobID+`"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel finished job status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/crop/jobs/unknown")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d", resp.StatusCode)
	}
}

func TestCreateJobErrors(t *testing.T) {
	srv, q, _ := newServer(t)

	if resp := post(t, srv.URL+"/crop/jobs", `{"settings": {}}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing input status = %d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/crop/jobs", `{"input": "/a.pdf", "settings": {"res_x": "high"}}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad settings status = %d", resp.StatusCode)
	}

	q.err = errors.New("redis down")
	if resp := post(t, srv.URL+"/crop/jobs", `{"input": "s3://in/a.pdf"}`); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("queue down status = %d", resp.StatusCode)
	}

	q.err = queue.ErrDuplicateJob
	if resp := post(t, srv.URL+"/crop/jobs", `{"input": "s3://in/a.pdf"}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate job status = %d", resp.StatusCode)
	}
}

func TestCreateJobConfinesPaths(t *testing.T) {
	srv, q, _, in, out := newServerWithRoots(t)
	victim := filepath.Join(t.TempDir(), "victim.txt")
	if err := os.WriteFile(victim, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	rejected := []struct {
		name  string
		body  string
		field string
	}{
		{"crop data outside", `{"input": "a.pdf", "settings": {"write_crop_data_to_file": "` + victim + `"}}`, "write_crop_data_to_file"},
		{"crop data escapes", `{"input": "a.pdf", "settings": {"write_crop_data_to_file": "../x.json"}}`, "write_crop_data_to_file"},
		{"crop data absolute", `{"input": "s3://in/a.pdf", "settings": {"write_crop_data_to_file": "/etc/cron.d/x"}}`, "write_crop_data_to_file"},
		{"output outside", `{"input": "a.pdf", "output": "` + victim + `"}`, "output"},
		{"output escapes", `{"input": "a.pdf", "output": "../../a.pdf"}`, "output"},
		{"http output", `{"input": "a.pdf", "output": "https://example.com/a.pdf"}`, "output"},
		{"input outside", `{"input": "/etc/passwd"}`, "input"},
		{"file input outside", `{"input": "file:///etc/passwd"}`, "input"},
	}
	for _, c := range rejected {
		t.Run(c.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/crop/jobs", c.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var e errorResp
			_ = json.NewDecoder(resp.Body).Decode(&e)
			if e.Field != c.field {
				t.Errorf("field = %q, want %q", e.Field, c.field)
			}
		})
	}
	if len(q.jobs) != 0 {
		t.Fatalf("%d rejected jobs were queued", len(q.jobs))
	}
	if b, _ := os.ReadFile(victim); string(b) != "keep" {
		t.Errorf("victim changed: %q", b)
	}

	t.Run("local job resolved under roots", func(t *testing.T) {
		resp := post(t, srv.URL+"/crop/jobs", `{"input": "docs/a.pdf", "settings": {"write_crop_data_to_file": "crop.json"}}`)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var created jobResp
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			t.Fatal(err)
		}
		job, err := dispatcher.DecodeJob(q.jobs[len(q.jobs)-1])
		if err != nil {
			t.Fatal(err)
		}
		if q.ids[len(q.ids)-1] != created.JobID {
			t.Errorf("enqueued id = %q, want %q", q.ids[len(q.ids)-1], created.JobID)
		}
		req := job.Request
		if req.Input != filepath.Join(in, "docs", "a.pdf") {
			t.Errorf("input = %q", req.Input)
		}
		if want := filepath.Join(out, created.JobID+"_a_cropped.pdf"); req.Output != want {
			t.Errorf("output = %q, want %q", req.Output, want)
		}
		if want := filepath.Join(out, "crop.json"); req.Settings.WriteCropDataToFile != want {
			t.Errorf("crop data = %q, want %q", req.Settings.WriteCropDataToFile, want)
		}
	})

	t.Run("s3 job keeps remote refs", func(t *testing.T) {
		resp := post(t, srv.URL+"/crop/jobs", `{"input": "s3://in/a.pdf", "output": "s3://out/a.pdf"}`)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		job, err := dispatcher.DecodeJob(q.jobs[len(q.jobs)-1])
		if err != nil {
			t.Fatal(err)
		}
		if job.Request.Input != "s3://in/a.pdf" || job.Request.Output != "s3://out/a.pdf" {
			t.Errorf("request = %+v", job.Request)
		}
	})
}

func TestCancelJob(t *testing.T) {
	srv, q, st := newServer(t)
	st.statuses["j1"] = store.Status{Status: store.StatusRunning, Attempt: 2}

	resp := post(t, srv.URL+"/crop/jobs/cancel", `{"job_id": "j1", "reason": "user request"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(q.cancelled) != 1 || q.cancelled[0] != "j1" {
		t.Errorf("cancelled = %v", q.cancelled)
	}
	got := st.statuses["j1"]
	if got.Status != store.StatusCancelled || got.Message != "Cancelled: user request" || got.Attempt != 2 {
		t.Errorf("status = %+v", got)
	}

	if resp := post(t, srv.URL+"/crop/jobs/cancel", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing id status = %d", resp.StatusCode)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sum statuscheck.Summary
	if err := json.NewDecoder(resp.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if !sum.Redis.OK {
		t.Errorf("summary = %+v", sum)
	}

	mresp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	mresp.Body.Close()
	if mresp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d", mresp.StatusCode)
	}
}

func TestCleanupTemps(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-2 * time.Hour)
	for _, name := range []string{"pdfdl-1.pdf", "cropped-2.pdf", "keep.pdf", "s3pdf-3.pdf"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if name != "s3pdf-3.pdf" {
			_ = os.Chtimes(p, old, old)
		}
	}

	if n := CleanupTemps(dir, time.Hour); n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	for name, want := range map[string]bool{"pdfdl-1.pdf": false, "cropped-2.pdf": false, "keep.pdf": true, "s3pdf-3.pdf": true} {
		_, err := os.Stat(filepath.Join(dir, name))
		if (err == nil) != want {
			t.Errorf("%s present = %v, want %v", name, err == nil, want)
		}
	}
}

type depthReader struct{ calls int }

func (d *depthReader) Depths(context.Context) (int64, int64, int64, error) {
	d.calls++
	return 3, 1, 0, nil
}

func TestMonitorQueue(t *testing.T) {
	d := &depthReader{}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	MonitorQueue(ctx, d, 10*time.Millisecond)
	if d.calls == 0 {
		t.Error("depths never sampled")
	}
}
