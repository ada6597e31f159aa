package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/rfworker/internal/job"
)

type (
	RunRequestDTO struct {
		ID    string         `json:"id,omitempty"    doc:"Job id; generated when empty"`
		Input map[string]any `json:"input,omitempty" doc:"Job input with pdb_file, commands and model_directory_path"`
	}

	RunInput struct {
		Body RunRequestDTO
	}

	RunOutput struct {
		Body *job.Response
	}
)

type (
	HealthDTO struct {
		Status         string `json:"status"`
		JobsInProgress int64  `json:"jobs_in_progress"`
	}

	HealthOutput struct {
		Body HealthDTO
	}
)

// JobHandler handles HTTP requests for jobs.
type JobHandler struct {
	server *Server
}

// NewJobHandler registers the job operations on api.
func NewJobHandler(api huma.API, server *Server) *JobHandler {
	h := &JobHandler{server: server}

	huma.Register(api, huma.Operation{
		OperationID:   "runsync",
		Method:        http.MethodPost,
		Path:          "/runsync",
		Summary:       "Run a structure generation job and wait for the result",
		Tags:          []string{"jobs"},
		DefaultStatus: http.StatusOK,
	}, h.handleRunSync)

	return h
}

// handleRunSync handles the runsync operation. Job failures are reported in
// the response body, not as HTTP errors.
func (h *JobHandler) handleRunSync(ctx context.Context, input *RunInput) (*RunOutput, error) {
	resp, err := h.server.run(ctx, &job.Job{
		ID:    input.Body.ID,
		Input: input.Body.Input,
	})
	if err != nil {
		return nil, huma.Error503ServiceUnavailable("worker busy", err)
	}

	return &RunOutput{Body: resp}, nil
}

// HealthHandler reports liveness.
type HealthHandler struct {
	server *Server
}

// NewHealthHandler registers the health operation on api.
func NewHealthHandler(api huma.API, server *Server) *HealthHandler {
	h := &HealthHandler{server: server}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Report worker health",
		Tags:        []string{"health"},
	}, h.handleHealth)

	return h
}

func (h *HealthHandler) handleHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	return &HealthOutput{
		Body: HealthDTO{
			Status:         "ok",
			JobsInProgress: h.server.InFlight(),
		},
	}, nil
}
