package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/InfinityFocus/Deebop-sub002/internal/model"
	"github.com/InfinityFocus/Deebop-sub002/internal/service"
	"github.com/InfinityFocus/Deebop-sub002/internal/store"
	"github.com/InfinityFocus/Deebop-sub002/pkg/response"
)

type MediaHandler struct {
	jobs      *service.JobService
	projects  *service.ProjectService
	validator *validator.Validate
}

func NewMediaHandler(jobs *service.JobService, projects *service.ProjectService, v *validator.Validate) *MediaHandler {
	return &MediaHandler{
		jobs:      jobs,
		projects:  projects,
		validator: v,
	}
}

// CreateJob handles POST /api/media/jobs
func (h *MediaHandler) CreateJob(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	job, err := h.jobs.CreateAndEnqueue(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, job)
}

// GetJobStatus handles GET /api/media/jobs/:jobId
func (h *MediaHandler) GetJobStatus(c *fiber.Ctx) error {
	status, err := h.jobs.GetStatus(c.Context(), c.Params("jobId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, status)
}

// TriggerJob handles POST /api/media/jobs/:jobId/process
func (h *MediaHandler) TriggerJob(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if _, err := h.jobs.Get(c.Context(), jobID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	if err := h.jobs.Enqueue(c.Context(), jobID); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, fiber.Map{"jobId": jobID, "status": model.JobStatusQueued})
}

// GetProjectStatus handles GET /api/media/projects/:projectId
func (h *MediaHandler) GetProjectStatus(c *fiber.Ctx) error {
	status, err := h.projects.GetStatus(c.Context(), c.Params("projectId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, status)
}

// TriggerProject handles POST /api/media/projects/:projectId/process
func (h *MediaHandler) TriggerProject(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	project, err := h.projects.Get(c.Context(), projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return response.NotFound(c, "Project not found")
		}
		return response.ServiceError(c, err.Error())
	}
	if len(project.Clips) == 0 {
		return response.ValidationError(c, "Project has no clips", nil)
	}

	if err := h.projects.Enqueue(c.Context(), projectID); err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.Accepted(c, fiber.Map{"projectId": projectID, "status": model.JobStatusQueued})
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
