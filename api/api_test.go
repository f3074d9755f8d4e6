package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/musewave/maestro"
	"github.com/musewave/maestro/api"
	"github.com/musewave/maestro/auth"
	"github.com/musewave/maestro/engine"
	"github.com/musewave/maestro/id"
	"github.com/musewave/maestro/job"
	"github.com/musewave/maestro/musegen"
	"github.com/musewave/maestro/store/memory"
)

func newTestAPI(t *testing.T, opts ...api.Option) (*fiber.App, *engine.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	t.Cleanup(func() { s.Close() })

	o, err := maestro.New(maestro.WithStore(s))
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	eng, err := engine.Build(o)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	engine.Register(eng, job.NewDefinition("audio", "riffusion",
		func(_ context.Context, p struct {
			Prompt string `json:"prompt"`
		}, _ job.ProgressFunc) (struct {
			URL string `json:"url"`
		}, error) {
			return struct {
				URL string `json:"url"`
			}{URL: "assets/track.wav"}, nil
		},
	))

	return api.New(eng, opts...).App(), eng, s
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, int(5*time.Second/time.Millisecond))
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func TestEnqueueAndStatus(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, body := doJSON(t, app, http.MethodPost, "/v1/jobs", api.EnqueueRequest{
		Type:   "audio",
		Params: json.RawMessage(`{"prompt":"lofi"}`),
	}, nil)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}

	var out api.EnqueueResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Job == nil || out.Reused {
		t.Fatalf("unexpected response: %s", body)
	}

	resp, body = doJSON(t, app, http.MethodGet, "/v1/jobs/"+out.Job.ID.String(), nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("get status = %d, body %s", resp.StatusCode, body)
	}
	var view job.StatusView
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Status != job.StatusQueued {
		t.Errorf("job status = %q", view.Status)
	}
}

func TestEnqueue_UnknownType(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/v1/jobs", api.EnqueueRequest{
		Type:   "mastering",
		Params: json.RawMessage(`{}`),
	}, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetJob_Errors(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/v1/jobs/not-an-id", nil, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodGet, "/v1/jobs/"+id.NewJobID().String(), nil, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("missing job status = %d, want 404", resp.StatusCode)
	}
}

func TestCancelJob_Conflict(t *testing.T) {
	app, _, _ := newTestAPI(t)

	_, body := doJSON(t, app, http.MethodPost, "/v1/jobs", api.EnqueueRequest{
		Type:   "audio",
		Params: json.RawMessage(`{"prompt":"x"}`),
	}, nil)
	var out api.EnqueueResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	path := fmt.Sprintf("/v1/jobs/%s/cancel", out.Job.ID)
	resp, _ := doJSON(t, app, http.MethodPost, path, nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodPost, path, nil, nil)
	if resp.StatusCode != fiber.StatusConflict {
		t.Errorf("second cancel status = %d, want 409", resp.StatusCode)
	}
}

func TestAuthentication(t *testing.T) {
	cred := &auth.Credential{
		Entity: maestro.NewEntity(),
		ID:     id.NewCredentialID(),
		Tier:   auth.TierStudio,
	}
	resolver := auth.NewStaticResolver(map[string]*auth.Credential{"sekrit": cred})

	app, _, s := newTestAPI(t, api.WithResolver(resolver))
	if err := s.CreateCredential(context.Background(), cred); err != nil {
		t.Fatalf("create credential: %v", err)
	}

	resp, _ := doJSON(t, app, http.MethodPost, "/v1/jobs", api.EnqueueRequest{
		Type:   "audio",
		Params: json.RawMessage(`{"prompt":"x"}`),
	}, nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}

	resp, body := doJSON(t, app, http.MethodPost, "/v1/jobs", api.EnqueueRequest{
		Type:   "audio",
		Params: json.RawMessage(`{"prompt":"x"}`),
	}, map[string]string{fiber.HeaderAuthorization: "Bearer sekrit"})
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("authenticated status = %d, body %s", resp.StatusCode, body)
	}

	var out api.EnqueueResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Job.CredentialID != cred.ID {
		t.Errorf("job credential = %v, want %v", out.Job.CredentialID, cred.ID)
	}

	// Health stays open.
	resp, _ = doJSON(t, app, http.MethodGet, "/healthz", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func TestListDLQ_Empty(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, body := doJSON(t, app, http.MethodGet, "/v1/dlq", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestStats(t *testing.T) {
	app, _, _ := newTestAPI(t)

	doJSON(t, app, http.MethodPost, "/v1/jobs", api.EnqueueRequest{
		Type:   "audio",
		Params: json.RawMessage(`{"prompt":"x"}`),
	}, nil)

	resp, body := doJSON(t, app, http.MethodGet, "/v1/stats", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var stats api.StatsResponse
	if err := json.Unmarshal(body, &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Jobs["queued"] != 1 {
		t.Errorf("queued = %d, want 1", stats.Jobs["queued"])
	}
}

func TestJobCounts(t *testing.T) {
	app, _, _ := newTestAPI(t)

	doJSON(t, app, http.MethodPost, "/v1/jobs", api.EnqueueRequest{
		Type:   "audio",
		Params: json.RawMessage(`{"prompt":"x"}`),
	}, nil)

	resp, body := doJSON(t, app, http.MethodGet, "/v1/jobs/counts", nil, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var counts map[string]int64
	if err := json.Unmarshal(body, &counts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if counts["queued"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestSuggest(t *testing.T) {
	app, _, _ := newTestAPI(t, api.WithSuggestClient(musegen.NewClient("http://127.0.0.1:0")))

	resp, body := doJSON(t, app, http.MethodPost, "/v1/suggest",
		musegen.SuggestRequest{Field: musegen.FieldGenres}, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var out struct {
		Suggestions []string `json:"suggestions"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Suggestions) == 0 {
		t.Error("expected suggestions")
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/v1/suggest",
		musegen.SuggestRequest{Field: "tempos"}, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", resp.StatusCode)
	}
}

func TestSuggest_NotConfigured(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, _ := doJSON(t, app, http.MethodPost, "/v1/suggest",
		musegen.SuggestRequest{Field: musegen.FieldGenres}, nil)
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestListJobs_BadStatus(t *testing.T) {
	app, _, _ := newTestAPI(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/v1/jobs?status=bogus", nil, nil)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
