package e2e

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/InfinityFocus/Deebop-sub002/internal/model"
	"github.com/InfinityFocus/Deebop-sub002/internal/service"
)

func TestHealth(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/health", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["status"] != "ok" {
		t.Errorf("status = %v", result["status"])
	}
}

func TestCreateJob_Accepted(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"kind": "video",
		"tier": "creator",
		"rawFileUrl": "https://cdn.example.com/raw/upload.mov"
	}`
	resp, err := doRequest(ta.app, http.MethodPost, "/api/media/jobs", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	if result["id"] == nil || result["id"] == "" {
		t.Error("expected 'id' in response")
	}
	if result["status"] != string(model.JobStatusQueued) {
		t.Errorf("status = %v, want queued", result["status"])
	}
	// creator is an accepted alias that maps onto the standard plan
	if result["tier"] != string(model.TierStandard) {
		t.Errorf("tier = %v, want standard", result["tier"])
	}

	if len(ta.enqueued.tasks) != 1 {
		t.Fatalf("enqueued tasks = %d, want 1", len(ta.enqueued.tasks))
	}
	if got := ta.enqueued.tasks[0].Type(); got != service.TaskTypeMediaJob {
		t.Errorf("task type = %q, want %q", got, service.TaskTypeMediaJob)
	}
}

func TestCreateJob_InvalidKind(t *testing.T) {
	ta := setupApp(t)

	body := `{
		"kind": "hologram",
		"tier": "free",
		"rawFileUrl": "https://cdn.example.com/raw/upload.mov"
	}`
	resp, err := doRequest(ta.app, http.MethodPost, "/api/media/jobs", body)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	if len(ta.enqueued.tasks) != 0 {
		t.Error("invalid request must not enqueue")
	}
}

func TestCreateJob_MissingURL(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/media/jobs", `{"kind": "audio", "tier": "free"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCreateJob_MalformedBody(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/media/jobs", "{not json")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestJobStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/api/media/jobs/"+uuid.New().String(), "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestJobStatus_Found(t *testing.T) {
	ta := setupApp(t)

	out := "https://cdn.example.com/video/done.mp4"
	ta.jobs.jobs["j1"] = &model.Job{
		ID:        "j1",
		Kind:      model.MediaKindVideo,
		Tier:      model.TierFree,
		Status:    model.JobStatusCompleted,
		Progress:  100,
		OutputURL: &out,
	}

	resp, err := doRequest(ta.app, http.MethodGet, "/api/media/jobs/j1", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["jobId"] != "j1" {
		t.Errorf("jobId = %v", result["jobId"])
	}
	if result["progress"] != float64(100) {
		t.Errorf("progress = %v, want 100", result["progress"])
	}
	if result["outputUrl"] != out {
		t.Errorf("outputUrl = %v", result["outputUrl"])
	}
}

func TestTriggerJob(t *testing.T) {
	ta := setupApp(t)
	ta.jobs.jobs["j1"] = &model.Job{ID: "j1", Status: model.JobStatusQueued}

	resp, err := doRequest(ta.app, http.MethodPost, "/api/media/jobs/j1/process", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	if len(ta.enqueued.tasks) != 1 {
		t.Errorf("enqueued tasks = %d, want 1", len(ta.enqueued.tasks))
	}
}

func TestTriggerJob_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/media/jobs/missing/process", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusNotFound)
}

func TestProjectStatus(t *testing.T) {
	ta := setupApp(t)
	ta.projects.projects["p1"] = &model.Project{
		ID:       "p1",
		Status:   model.JobStatusProcessing,
		Progress: 65,
	}

	resp, err := doRequest(ta.app, http.MethodGet, "/api/media/projects/p1", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	result := parseJSON(t, resp)
	if result["projectId"] != "p1" || result["progress"] != float64(65) {
		t.Errorf("result = %v", result)
	}
}

func TestTriggerProject(t *testing.T) {
	ta := setupApp(t)
	ta.projects.projects["p1"] = &model.Project{
		ID:    "p1",
		Tier:  model.TierStandard,
		Clips: []model.Clip{{ID: "c1", RawFileURL: "https://cdn.example.com/raw/c1.mov", Speed: 1}},
	}

	resp, err := doRequest(ta.app, http.MethodPost, "/api/media/projects/p1/process", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusAccepted)

	if len(ta.enqueued.tasks) != 1 {
		t.Fatalf("enqueued tasks = %d, want 1", len(ta.enqueued.tasks))
	}
	if got := ta.enqueued.tasks[0].Type(); got != service.TaskTypeMediaProject {
		t.Errorf("task type = %q, want %q", got, service.TaskTypeMediaProject)
	}
}

func TestTriggerProject_NoClips(t *testing.T) {
	ta := setupApp(t)
	ta.projects.projects["p1"] = &model.Project{ID: "p1", Tier: model.TierFree}

	resp, err := doRequest(ta.app, http.MethodPost, "/api/media/projects/p1/process", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusBadRequest)

	if len(ta.enqueued.tasks) != 0 {
		t.Error("empty project must not enqueue")
	}
}

func TestCreateJob_AllTiersAccepted(t *testing.T) {
	ta := setupApp(t)

	for _, tier := range []string{"free", "creator", "standard", "pro", "teams"} {
		body := fmt.Sprintf(`{"kind": "audio", "tier": "%s", "rawFileUrl": "https://cdn.example.com/raw/a.wav"}`, tier)
		resp, err := doRequest(ta.app, http.MethodPost, "/api/media/jobs", body)
		if err != nil {
			t.Fatalf("tier %s: request failed: %v", tier, err)
		}
		if resp.StatusCode != http.StatusAccepted {
			t.Errorf("tier %s: status = %d, want 202", tier, resp.StatusCode)
		}
	}
}
