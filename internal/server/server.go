package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"taskanchor/internal/domain"
	"taskanchor/internal/engine"
	"taskanchor/internal/ledger"
	"taskanchor/internal/repo"
	"taskanchor/internal/rolesync"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Roles    *rolesync.Synchronizer
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"duplicate_task"`
	Message string         `json:"message" example:"task with this transaction id already exists"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the TaskAnchor API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("TaskAnchor API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerTasks(group, cfg.Engine)
	registerRoles(group, cfg.Engine, cfg.Roles)
	registerUsers(group, cfg.Engine)
	registerLedger(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

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

// handleError maps the engine's error taxonomy onto the envelope. Ledger RPC
// failures surface as 502 so callers can tell a gateway outage from their own
// bad request.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var perr *engine.InvalidPayloadError
	if errors.As(err, &perr) {
		return newAPIError(http.StatusBadRequest, "invalid_payload", err.Error(), map[string]any{
			"task_type": perr.TaskType,
			"field":     perr.Field,
		})
	}
	switch {
	case errors.Is(err, engine.ErrDuplicateTask):
		return newAPIError(http.StatusConflict, "duplicate_task", err.Error(), nil)
	case errors.Is(err, engine.ErrDuplicateAddress):
		return newAPIError(http.StatusConflict, "duplicate_address", err.Error(), nil)
	case errors.Is(err, ledger.ErrAlreadyCommitted):
		return newAPIError(http.StatusConflict, "already_committed", err.Error(), nil)
	case errors.Is(err, engine.ErrTaskNotFound), errors.Is(err, engine.ErrUserNotFound), errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidStateForExecution), errors.Is(err, engine.ErrInvalidModerationState):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_state", err.Error(), nil)
	case errors.Is(err, engine.ErrNoProofsProvided):
		return newAPIError(http.StatusBadRequest, "no_proofs", err.Error(), nil)
	case errors.Is(err, ledger.ErrBatchTooLarge), errors.Is(err, ledger.ErrEmptyBatch),
		errors.Is(err, rolesync.ErrBatchTooLarge), errors.Is(err, rolesync.ErrEmptyBatch):
		return newAPIError(http.StatusBadRequest, "batch_limit", err.Error(), nil)
	}
	var lerr *ledger.Error
	if errors.As(err, &lerr) {
		return newAPIError(http.StatusBadGateway, "ledger_unavailable", err.Error(), map[string]any{"op": lerr.Op})
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "invalid_state"
	case http.StatusBadGateway:
		return "ledger_unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// requireAdmin resolves the principal to a user row and checks the admin
// role. Moderation and role assignment are admin surfaces.
func requireAdmin(ctx context.Context, r repo.Repo) huma.StatusError {
	actorID, authErr := actorIDFromContext(ctx)
	if authErr != nil {
		return authErr
	}
	u, err := r.GetUser(ctx, actorID)
	if err != nil || u.Role != domain.RoleAdmin {
		return newAPIError(http.StatusForbidden, "forbidden", "admin role required", nil)
	}
	return nil
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

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create and anchor a task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.CreateTask(ctx, engine.CreateTaskInput{
			OwnerID: actorID,
			Payload: input.Body.payloadInput(),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		State  string `query:"state"`
		Search string `query:"search"`
		From   string `query:"from"`
		To     string `query:"to"`
		Page   int    `query:"page"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body TaskPageResponse `json:"body"`
	}, error) {
		page, err := e.ListTasks(ctx, engine.TaskListOptions{
			Type:   input.Type,
			State:  input.State,
			Search: input.Search,
			From:   input.From,
			To:     input.To,
			Page:   input.Page,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskPageResponse `json:"body"`
		}{Body: pageResponse(page)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}",
		Summary:     "Get task",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		task, err := e.GetTask(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-task-proofs",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/proofs",
		Summary:     "List execution proofs",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body []domain.ExecutionProof `json:"body"`
	}, error) {
		proofs, err := e.GetTaskProofs(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ExecutionProof `json:"body"`
		}{Body: proofs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{task_id}/verify",
		Summary:     "Verify a task's canonical hash and ledger anchor",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TaskID string `path:"task_id"`
	}) (*struct {
		Body engine.Verification `json:"body"`
	}, error) {
		v, err := e.Verify(ctx, input.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Verification `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/execute",
		Summary:     "Execute a task with proofs",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string         `path:"task_id"`
		Body   ExecuteRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.ExecuteTask(ctx, input.TaskID, actorID, proofInputs(input.Body.Proofs))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "execute-batch",
		Method:      http.MethodPost,
		Path:        "/tasks/execute-batch",
		Summary:     "Execute up to the batch ceiling of tasks, item by item",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body BatchExecuteRequest `json:"body"`
	}) (*struct {
		Body engine.BatchResult `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items := make([]engine.BatchItem, len(input.Body.Items))
		for i, it := range input.Body.Items {
			items[i] = engine.BatchItem{TaskID: it.TaskID, Proofs: proofInputs(it.Proofs)}
		}
		res, err := e.ExecuteBatch(ctx, actorID, items)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.BatchResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "moderate-task",
		Method:      http.MethodPost,
		Path:        "/tasks/{task_id}/moderate",
		Summary:     "Block or cancel a stored task",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		TaskID string          `path:"task_id"`
		Body   ModerateRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		actorID, _ := actorIDFromContext(ctx)
		task, err := e.Moderate(ctx, input.TaskID, actorID, input.Body.State, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(task)}, nil
	})
}

func registerRoles(api huma.API, e *engine.Engine, s *rolesync.Synchronizer) {
	huma.Register(api, huma.Operation{
		OperationID: "assign-roles",
		Method:      http.MethodPost,
		Path:        "/roles/assign",
		Summary:     "Assign roles and sync the on-chain ACL",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Body struct {
			Assignments []rolesync.Assignment `json:"assignments"`
		} `json:"body"`
	}) (*struct {
		Body rolesync.Result `json:"body"`
	}, error) {
		if authErr := requireAdmin(ctx, e.Repo); authErr != nil {
			return nil, authErr
		}
		actorID, _ := actorIDFromContext(ctx)
		res, err := s.AssignRoles(ctx, actorID, input.Body.Assignments)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body rolesync.Result `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-role-drift",
		Method:      http.MethodGet,
		Path:        "/roles/drift",
		Summary:     "Report users whose database role disagrees with the ACL",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body struct {
			Drift []rolesync.Drift `json:"drift"`
		} `json:"body"`
	}, error) {
		drifts, err := s.Check(ctx, nil)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Drift []rolesync.Drift `json:"drift"`
			} `json:"body"`
		}{}
		out.Body.Drift = drifts
		return out, nil
	})
}

func registerUsers(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		if input.Body.Address == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "address is required", nil)
		}
		if !domain.ValidRole(input.Body.Role) {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown role %q", input.Body.Role), nil)
		}
		u, err := e.CreateUser(ctx, input.Body.Address, input.Body.Role, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
	}, func(ctx context.Context, input *struct {
		Role string `query:"role"`
	}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		users, err := e.Repo.ListUsers(ctx, input.Role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: users}, nil
	})
}

func registerLedger(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "ledger-balance",
		Method:      http.MethodGet,
		Path:        "/ledger/balance",
		Summary:     "Signing account balance",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		Account string `query:"account"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		account := input.Account
		if account == "" && e.Config != nil {
			account = e.Config.Ledger.Account
		}
		balance, err := e.Ledger.Balance(ctx, account)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"account": account, "balance": balance}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ledger-constants",
		Method:      http.MethodGet,
		Path:        "/ledger/constants",
		Summary:     "Contract constants",
		Errors:      []int{http.StatusBadGateway},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ledger.Constants `json:"body"`
	}, error) {
		consts, err := e.Ledger.Constants(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ledger.Constants `json:"body"`
		}{Body: consts}, nil
	})
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>TaskAnchor API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
