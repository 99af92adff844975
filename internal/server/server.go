package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"dealline/internal/domain"
	"dealline/internal/engine"
	"dealline/internal/gate"
	"dealline/internal/payments"
	"dealline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine         engine.Engine
	Coordinator    *payments.Coordinator
	Gate           *gate.Gate
	BasePath       string
	Auth           AuthConfig
	CallbackSecret string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"version_conflict"`
	Message string         `json:"message" example:"version conflict on eng-1: expected 2, have 3"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Dealline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400 bad_request;
			// 422 is reserved for domain validation.
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
	hcfg := huma.DefaultConfig("Dealline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerCampaigns(group, cfg.Engine)
	registerEngagements(group, cfg)
	registerTransitions(group, cfg)
	registerLedger(group, cfg.Engine)
	registerPayments(group, cfg)
	registerAPIKeys(group, cfg.Engine)
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

func handleError(err error) error {
	if err == nil {
		return nil
	}
	var it engine.InvalidTransitionError
	if errors.As(err, &it) {
		return newAPIError(http.StatusConflict, "invalid_transition", err.Error(),
			map[string]any{"state": it.State, "transition": it.Transition})
	}
	var vc engine.VersionConflictError
	if errors.As(err, &vc) {
		return newAPIError(http.StatusConflict, "version_conflict", err.Error(),
			map[string]any{"expected": vc.Expected, "actual": vc.Actual})
	}
	var ad engine.AuthorizationDeniedError
	if errors.As(err, &ad) {
		return newAPIError(http.StatusForbidden, "authorization_denied", err.Error(),
			map[string]any{"required": ad.Required})
	}
	var ve engine.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(),
			map[string]any{"field": ve.Field})
	}
	var rl gate.RateLimitedError
	if errors.As(err, &rl) {
		retry := strconv.Itoa(int(rl.RetryAfter.Seconds()) + 1)
		return huma.ErrorWithHeaders(
			newAPIError(http.StatusTooManyRequests, "rate_limited", err.Error(), map[string]any{"retry_after_seconds": retry}),
			http.Header{"Retry-After": []string{retry}},
		)
	}
	if errors.Is(err, gate.ErrAlreadyInFlight) {
		return newAPIError(http.StatusConflict, "already_in_flight", err.Error(), nil)
	}
	var pu payments.ProcessorUnavailableError
	if errors.As(err, &pu) {
		return newAPIError(http.StatusBadGateway, "processor_unavailable", err.Error(), nil)
	}
	var re payments.ReconciliationExhaustedError
	if errors.As(err, &re) {
		return newAPIError(http.StatusConflict, "reconciliation_exhausted", err.Error(),
			map[string]any{"attempts": re.Attempts})
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
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusTooManyRequests:
		return "rate_limited"
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

func registerCampaigns(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-campaign",
		Method:        http.MethodPost,
		Path:          "/campaigns",
		Summary:       "Create campaign",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateCampaignRequest `json:"body"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateCampaign(ctx, input.Body.ID, actorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-campaigns",
		Method:      http.MethodGet,
		Path:        "/campaigns",
		Summary:     "List campaigns",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Campaign `json:"body"`
	}, error) {
		items, err := e.Repo.ListCampaigns(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Campaign `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-campaign",
		Method:      http.MethodGet,
		Path:        "/campaigns/{campaign_id}",
		Summary:     "Get campaign",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		CampaignID string `path:"campaign_id"`
	}) (*struct {
		Body domain.Campaign `json:"body"`
	}, error) {
		c, err := e.Repo.GetCampaign(ctx, input.CampaignID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Campaign `json:"body"`
		}{Body: c}, nil
	})
}

func registerEngagements(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID:   "create-engagement",
		Method:        http.MethodPost,
		Path:          "/campaigns/{campaign_id}/engagements",
		Summary:       "Apply to a campaign",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusTooManyRequests,
		},
	}, func(ctx context.Context, input *struct {
		CampaignID string                  `path:"campaign_id"`
		Body       CreateEngagementRequest `json:"body"`
	}) (*struct {
		Body domain.Engagement `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := cfg.Gate.Admit(ctx, actorID, ""); err != nil {
			return nil, handleError(err)
		}
		eng, err := e.CreateEngagement(ctx, input.CampaignID, input.Body.CreatorID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Engagement `json:"body"`
		}{Body: eng}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-engagement",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}",
		Summary:     "Get engagement",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body domain.Engagement `json:"body"`
	}, error) {
		eng, err := e.Repo.GetEngagement(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Engagement `json:"body"`
		}{Body: eng}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-engagements",
		Method:      http.MethodGet,
		Path:        "/engagements",
		Summary:     "List engagements",
	}, func(ctx context.Context, input *struct {
		CampaignID string `query:"campaign_id"`
		CreatorID  string `query:"creator_id"`
		State      string `query:"state"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []domain.Engagement `json:"body"`
	}, error) {
		items, err := e.Repo.ListEngagements(ctx, repo.EngagementFilters{
			CampaignID: input.CampaignID,
			CreatorID:  input.CreatorID,
			State:      input.State,
			Limit:      input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Engagement `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-deliverables",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/deliverables",
		Summary:     "List deliverables",
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body []domain.Deliverable `json:"body"`
	}, error) {
		items, err := e.Repo.ListDeliverables(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Deliverable `json:"body"`
		}{Body: items}, nil
	})
}

func registerTransitions(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID: "apply-transition",
		Method:      http.MethodPost,
		Path:        "/engagements/{engagement_id}/transitions",
		Summary:     "Apply a lifecycle transition",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusTooManyRequests,
		},
	}, func(ctx context.Context, input *struct {
		EngagementID string            `path:"engagement_id"`
		Body         TransitionRequest `json:"body"`
	}) (*struct {
		Body domain.Engagement `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Transition == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "transition is required", nil)
		}
		if err := cfg.Gate.Admit(ctx, actorID, input.EngagementID); err != nil {
			return nil, handleError(err)
		}
		defer cfg.Gate.Release(actorID, input.EngagementID)
		eng, err := e.Apply(ctx, engine.ApplyOptions{
			EngagementID:    input.EngagementID,
			Transition:      input.Body.Transition,
			ActorID:         actorID,
			ExpectedVersion: input.Body.ExpectedVersion,
			ContentRef:      input.Body.ContentRef,
			AmountCents:     input.Body.AmountCents,
			Notes:           input.Body.Notes,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Transition == engine.TransitionApprove && cfg.Coordinator != nil {
			// Submission happens after the approval commits; the sweep
			// covers a crash between the two.
			intentID := domain.IntentID(eng.ID, eng.Version)
			go func() {
				_, _ = cfg.Coordinator.Release(context.Background(), intentID)
			}()
		}
		return &struct {
			Body domain.Engagement `json:"body"`
		}{Body: eng}, nil
	})
}

func registerLedger(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "engagement-events",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/events",
		Summary:     "Engagement transition history",
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		events, err := e.Reader.ByEngagement(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(events)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "replay-engagement",
		Method:      http.MethodGet,
		Path:        "/engagements/{engagement_id}/replay",
		Summary:     "Replay the ledger and verify the projection",
		Errors:      []int{http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EngagementID string `path:"engagement_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		stored, err := e.Repo.GetEngagement(ctx, input.EngagementID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.Reader.Verify(ctx, stored); err != nil {
			return nil, newAPIError(http.StatusConflict, "projection_drift", err.Error(), nil)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"engagement_id": stored.ID,
			"state":         stored.State,
			"version":       stored.Version,
			"consistent":    true,
		}}, nil
	})
}

func registerPayments(api huma.API, cfg Config) {
	e := cfg.Engine
	huma.Register(api, huma.Operation{
		OperationID: "list-intents",
		Method:      http.MethodGet,
		Path:        "/intents",
		Summary:     "List payment intents",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,submitted,confirmed,failed,"`
		Limit  int    `query:"limit"`
	}) (*struct {
		Body []domain.PaymentIntent `json:"body"`
	}, error) {
		items, err := e.Repo.ListIntents(ctx, input.Status, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.PaymentIntent `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-intent",
		Method:      http.MethodGet,
		Path:        "/intents/{intent_id}",
		Summary:     "Get payment intent",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IntentID string `path:"intent_id"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		intent, err := e.Repo.GetIntent(ctx, input.IntentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: intent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "release-intent",
		Method:      http.MethodPost,
		Path:        "/intents/{intent_id}/release",
		Summary:     "Submit a pending intent to the processor",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		IntentID string `path:"intent_id"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		intent, err := cfg.Coordinator.Release(ctx, input.IntentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: intent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-intent",
		Method:      http.MethodPost,
		Path:        "/intents/{intent_id}/reconcile",
		Summary:     "Reconcile an intent against the processor",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusBadGateway},
	}, func(ctx context.Context, input *struct {
		IntentID string `path:"intent_id"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		intent, err := cfg.Coordinator.Reconcile(ctx, input.IntentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: intent}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "payment-callback",
		Method:      http.MethodPost,
		Path:        "/payments/callback",
		Summary:     "Processor status callback",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Secret string                 `header:"X-Processor-Secret"`
		Body   PaymentCallbackRequest `json:"body"`
	}) (*struct {
		Body domain.PaymentIntent `json:"body"`
	}, error) {
		if cfg.CallbackSecret != "" && input.Secret != cfg.CallbackSecret {
			return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid processor secret", nil)
		}
		if input.Body.IntentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "intent_id is required", nil)
		}
		if input.Body.Status != domain.IntentConfirmed && input.Body.Status != domain.IntentFailed {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status must be confirmed or failed", nil)
		}
		intent, err := cfg.Coordinator.HandleCallback(ctx, input.Body.IntentID, input.Body.Status, input.Body.ProcessorRef)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentIntent `json:"body"`
		}{Body: intent}, nil
	})
}

func registerAPIKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/auth/keys",
		Summary:       "Issue an API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body struct {
			ID      string `json:"id"`
			ActorID string `json:"actor_id"`
			Name    string `json:"name,omitempty"`
			Key     string `json:"key"`
		} `json:"body"`
	}) (*struct {
		Body domain.APIKey `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Body.Key == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "key is required", nil)
		}
		key := domain.APIKey{
			ID:      input.Body.ID,
			ActorID: input.Body.ActorID,
			Name:    input.Body.Name,
			KeyHash: repo.HashAPIKey(input.Body.Key),
		}
		if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
			return nil, handleError(err)
		}
		stored, err := e.Repo.GetAPIKeyByHash(ctx, key.KeyHash)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.APIKey `json:"body"`
		}{Body: stored}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/auth/keys/{key_id}",
		Summary:     "Revoke an API key",
	}, func(ctx context.Context, input *struct {
		KeyID string `path:"key_id"`
	}) (*struct{}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := e.Repo.DeleteAPIKey(ctx, input.KeyID); err != nil {
			return nil, handleError(err)
		}
		return nil, nil
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
	open := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):            true,
		"/" + strings.TrimPrefix(path.Join(basePath, "payments/callback"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
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
    <title>Dealline API Docs</title>
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
