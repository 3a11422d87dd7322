package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/InfinityFocus/Deebop-sub002/internal/handler"
	"github.com/InfinityFocus/Deebop-sub002/internal/middleware"
	"github.com/InfinityFocus/Deebop-sub002/internal/model"
	"github.com/InfinityFocus/Deebop-sub002/internal/service"
	"github.com/InfinityFocus/Deebop-sub002/internal/store"
)

// testApp wires the HTTP surface over in-memory stores and a capturing
// queue, so the handler stack runs without Redis, Postgres or storage.
type testApp struct {
	app      *fiber.App
	jobs     *memJobStore
	projects *memProjectStore
	enqueued *capturingEnqueuer
}

type memJobStore struct {
	jobs map[string]*model.Job
}

func (m *memJobStore) Create(ctx context.Context, job *model.Job) error {
	m.jobs[job.ID] = job
	return nil
}

func (m *memJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return j, nil
}

func (m *memJobStore) Update(ctx context.Context, id string, u store.JobUpdate) error {
	if _, ok := m.jobs[id]; !ok {
		return store.ErrNotFound
	}
	return nil
}

type memProjectStore struct {
	projects map[string]*model.Project
}

func (m *memProjectStore) Get(ctx context.Context, id string) (*model.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (m *memProjectStore) Update(ctx context.Context, id string, u store.ProjectUpdate) error {
	if _, ok := m.projects[id]; !ok {
		return store.ErrNotFound
	}
	return nil
}

type capturingEnqueuer struct {
	tasks []*asynq.Task
}

func (c *capturingEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	c.tasks = append(c.tasks, task)
	return &asynq.TaskInfo{}, nil
}

// setupApp builds the same route layout as main.go. The rate limiter points
// at a dead Redis address; it allows all traffic when Redis is unreachable,
// which is exactly the degraded behavior production has.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobs := &memJobStore{jobs: make(map[string]*model.Job)}
	projects := &memProjectStore{projects: make(map[string]*model.Project)}
	enqueued := &capturingEnqueuer{}

	validate := validator.New()
	jobService := service.NewJobService(jobs, nil, enqueued)
	projectService := service.NewProjectService(projects, enqueued)
	mediaHandler := handler.NewMediaHandler(jobService, projectService, validate)

	deadRedis := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	rateLimiter := middleware.NewRateLimiter(deadRedis)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	media := api.Group("/media")
	media.Post("/jobs", rateLimiter.JobLimit(10000), mediaHandler.CreateJob)
	media.Get("/jobs/:jobId", rateLimiter.StatusLimit(10000), mediaHandler.GetJobStatus)
	media.Post("/jobs/:jobId/process", rateLimiter.JobLimit(10000), mediaHandler.TriggerJob)
	media.Get("/projects/:projectId", rateLimiter.StatusLimit(10000), mediaHandler.GetProjectStatus)
	media.Post("/projects/:projectId/process", rateLimiter.ProjectLimit(10000), mediaHandler.TriggerProject)

	return &testApp{app: app, jobs: jobs, projects: projects, enqueued: enqueued}
}

// doRequest performs an HTTP request against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return app.Test(req, -1)
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, b)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
