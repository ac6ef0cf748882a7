package server

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"machinepulse/internal/domain"
	"machinepulse/internal/engine"
	"machinepulse/internal/fanout"
	"machinepulse/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Hub      *fanout.Hub
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_status"`
	Message string         `json:"message" example:"invalid machine status: bogus"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the MachinePulse API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema/request validation errors are 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	wsPath := path.Join(basePath, "ws")
	router.Use(newAuthMiddleware(basePath, wsPath, cfg.Auth))

	hcfg := huma.DefaultConfig("MachinePulse API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerMachines(group, cfg.Engine)
	registerProduction(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerEvents(group, cfg.Engine)

	if cfg.Hub != nil {
		router.Get(wsPath, wsHandler(cfg.Hub, logger))
	}
	router.Handle("/metrics", promhttp.Handler())

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
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, engine.ErrInvalidStatus) {
		return newAPIError(http.StatusBadRequest, "invalid_status", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusForbidden:
		return "forbidden"
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

func registerMachines(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-machine",
		Method:        http.MethodPost,
		Path:          "/machines",
		Summary:       "Create machine",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateMachineRequest `json:"body"`
	}) (*struct {
		Body domain.Machine `json:"body"`
	}, error) {
		if err := requireRole(ctx, "admin", "manager"); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateMachine(ctx, input.Body.Name, input.Body.Line, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Machine `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-machines",
		Method:      http.MethodGet,
		Path:        "/machines",
		Summary:     "List machines",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Machine `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListMachines(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Machine `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-machine-status",
		Method:      http.MethodPut,
		Path:        "/machines/{machine_id}/status",
		Summary:     "Set machine status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		MachineID string                     `path:"machine_id"`
		Body      UpdateMachineStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Machine `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SetMachineStatus(ctx, input.MachineID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Machine `json:"body"`
		}{Body: m}, nil
	})
}

func registerProduction(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-production",
		Method:        http.MethodPost,
		Path:          "/production",
		Summary:       "Record production output",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateProductionRequest `json:"body"`
	}) (*struct {
		Body domain.ProductionView `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ProductionOptions{
			MachineID:    input.Body.MachineID,
			OperatorID:   principal.ActorID,
			OperatorName: principal.Name,
			Quantity:     input.Body.Quantity,
			StartTime:    input.Body.StartTime,
			EndTime:      input.Body.EndTime,
			ActorID:      principal.ActorID,
		}
		if input.Body.Defects != nil {
			opts.Defects = *input.Body.Defects
		}
		v, err := e.RecordProduction(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProductionView `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-production",
		Method:      http.MethodGet,
		Path:        "/production",
		Summary:     "List production records",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ProductionView `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProduction(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ProductionView `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "production-stats",
		Method:      http.MethodGet,
		Path:        "/production/stats",
		Summary:     "Production KPIs over all records",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MetricsResponse `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		m, err := e.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MetricsResponse `json:"body"`
		}{Body: metricsResponse(m)}, nil
	})
}

func registerReports(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "Aggregated production report",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		StartDate string `query:"start_date" required:"false" doc:"Inclusive lower bound, YYYY-MM-DD or RFC3339"`
		EndDate   string `query:"end_date" required:"false" doc:"Inclusive upper bound, YYYY-MM-DD or RFC3339"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, "admin", "manager"); err != nil {
			return nil, err
		}
		rep, err := e.Report(ctx, input.StartDate, input.EndDate)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(rep)}, nil
	})
}

func registerEvents(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Tail the audit event log",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" required:"false" minimum:"1" maximum:"500"`
		Type       string `query:"type" required:"false"`
		EntityKind string `query:"entity_kind" required:"false"`
		EntityID   string `query:"entity_id" required:"false"`
	}) (*struct {
		Body []domain.Event `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		limit := input.Limit
		if limit == 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Event `json:"body"`
		}{Body: items}, nil
	})
}
