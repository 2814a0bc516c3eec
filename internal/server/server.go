package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"offload/internal/engine"
	"offload/internal/proposal"
	"offload/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine        engine.Engine
	BasePath      string
	AdminPassword string
	Logger        *log.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"email is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Offload API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Offload API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerSubmissions(group, cfg.Engine, logger)
	registerProposals(group, cfg.Engine)
	registerAdmin(group, cfg.Engine, cfg.AdminPassword)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, proposal.ErrPrecondition) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	}
	if errors.Is(err, proposal.ErrContractViolation) {
		return newAPIError(http.StatusBadGateway, "generation_contract_violation", err.Error(), nil)
	}
	var se *proposal.ServiceError
	if errors.As(err, &se) {
		status := se.StatusCode()
		if status < 400 {
			status = http.StatusBadGateway
		}
		return newAPIError(status, "generation_service_failure", err.Error(), nil)
	}
	var pe *engine.PersistenceError
	if errors.As(err, &pe) {
		return newAPIError(http.StatusInternalServerError, "persistence_failure", err.Error(), map[string]any{"op": pe.Op})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadGateway:
		return "generation_service_failure"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSubmissions(api huma.API, e engine.Engine, logger *log.Logger) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-submission",
		Method:        http.MethodPost,
		Path:          "/submissions",
		Summary:       "Submit an avoided task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SubmitRequest `json:"body"`
	}) (*struct {
		Body SubmitResponse `json:"body"`
	}, error) {
		t, err := e.Submit(ctx, engine.SubmitOptions{
			Task:      input.Body.Task,
			Name:      input.Body.Name,
			FirstName: input.Body.FirstName,
			LastName:  input.Body.LastName,
			Email:     input.Body.Email,
			Phone:     input.Body.Phone,
			Worth:     input.Body.Worth,
		})
		if err != nil {
			return nil, handleError(err)
		}

		// The submitter already has their answer; generation runs on
		// its own error channel and never backpressures the response.
		go func() {
			if _, _, genErr := e.GenerateProposal(context.Background(), t.ID, t.Task, t.Worth); genErr != nil {
				logger.Printf("background generation for task %s failed: %v", t.ID, genErr)
			}
		}()

		return &struct {
			Body SubmitResponse `json:"body"`
		}{Body: SubmitResponse{Success: true, TaskID: t.ID}}, nil
	})
}

func registerProposals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-proposal",
		Method:        http.MethodPost,
		Path:          "/proposals",
		Summary:       "Generate a proposal for a stored task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusBadGateway,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body GenerateRequest `json:"body"`
	}) (*struct {
		Body GenerateResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.TaskID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "task_id is required", nil)
		}
		if strings.TrimSpace(input.Body.Task) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "task is required", nil)
		}
		idea, env, err := e.GenerateProposal(ctx, input.Body.TaskID, input.Body.Task, input.Body.Worth)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GenerateResponse `json:"body"`
		}{Body: GenerateResponse{Success: true, ProposalID: idea.ID, Output: env}}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine, password string) {
	huma.Register(api, huma.Operation{
		OperationID: "admin-feed",
		Method:      http.MethodGet,
		Path:        "/admin/feed",
		Summary:     "Tasks merged with their latest proposal",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		PW string `query:"pw"`
		Q  string `query:"q"`
	}) (*struct {
		Body FeedResponse `json:"body"`
	}, error) {
		if !credentialMatches(password, input.PW) {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "invalid admin credential", nil)
		}
		rows, err := e.AdminFeed(ctx, input.Q)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FeedResponse `json:"body"`
		}{Body: FeedResponse{Rows: mapFeedRows(rows)}}, nil
	})
}
