package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/metrics"
	"github.com/dusk-indust/adqueue/internal/orchestrator"
	"github.com/dusk-indust/adqueue/internal/reasoning"
	"github.com/dusk-indust/adqueue/internal/request"
)

type stubReasoner struct {
	mu   sync.Mutex
	fail error
}

func (s *stubReasoner) Analyze(context.Context, reasoning.Call) (reasoning.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return reasoning.Result{}, s.fail
	}
	return reasoning.Result{Rationale: "understood", Complexity: request.ComplexityNotApplicable}, nil
}

func (s *stubReasoner) SuggestPrompts(_ context.Context, rough string, _ []byte) ([]string, error) {
	return []string{rough + " 1", rough + " 2", rough + " 3"}, nil
}

type stubMerger struct {
	err error
}

func (s *stubMerger) Merge(_ context.Context, call reasoning.MergeCall) (reasoning.MergeReply, error) {
	if s.err != nil {
		return reasoning.MergeReply{}, s.err
	}
	next := call.Current.Clone()
	next.Visual.BackgroundColor = "#101010"
	data, err := json.Marshal(next)
	if err != nil {
		return reasoning.MergeReply{}, err
	}
	return reasoning.MergeReply{Config: data, Summary: "darker background"}, nil
}

type fixture struct {
	wb       *orchestrator.Workbench
	srv      *Server
	handler  http.Handler
	reasoner *stubReasoner
	merger   *stubMerger
	reg      *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{reasoner: &stubReasoner{}, merger: &stubMerger{}, reg: prometheus.NewRegistry()}
	wb, err := orchestrator.Open(context.Background(), orchestrator.Config{
		Reasoner: f.reasoner,
		Merger:   f.merger,
		Archive:  archive.NewMemoryStore(),
		Metrics:  metrics.New(f.reg),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(wb.Close)

	srv, err := NewServer(wb, nil, WithGatherer(f.reg))
	require.NoError(t, err)
	f.wb = wb
	f.srv = srv
	f.handler = srv.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func draft(category request.Category, text string) orchestrator.DraftInput {
	return orchestrator.DraftInput{Category: category, Inputs: request.Inputs{Text: text}}
}

// readyRequest creates, submits and waits for a request to become ready.
func (f *fixture) readyRequest(t *testing.T, in orchestrator.DraftInput) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/drafts", in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[request.ChangeRequest](t, rec).ID

	rec = f.do(t, http.MethodPost, "/api/v1/requests/"+id+"/submit", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	f.wb.Wait()
	return id
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDraftLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/drafts", draft(request.CategoryLevelDesign, "level 4 is too hard"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[request.ChangeRequest](t, rec)
	assert.Equal(t, request.StateDrafting, created.State)
	require.NotNil(t, created.Level)
	assert.Equal(t, 4, *created.Level)

	rec = f.do(t, http.MethodPatch, "/api/v1/drafts/"+created.ID, draft(request.CategoryLevelDesign, "level 6 instead"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 6, *decode[request.ChangeRequest](t, rec).Level)

	rec = f.do(t, http.MethodPost, "/api/v1/requests/"+created.ID+"/submit", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	f.wb.Wait()

	rec = f.do(t, http.MethodGet, "/api/v1/requests/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[request.ChangeRequest](t, rec)
	assert.Equal(t, request.StateReady, got.State)
	assert.Equal(t, "understood", got.Rationale)

	rec = f.do(t, http.MethodPatch, "/api/v1/drafts/"+created.ID, draft(request.CategoryLevelDesign, "too late"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	q := decode[QueueResponse](t, rec)
	require.Len(t, q.Requests, 1)
	assert.Equal(t, created.ID, q.Requests[0].ID)
	assert.Empty(t, q.Conflicts)

	rec = f.do(t, http.MethodDelete, "/api/v1/requests/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/requests/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
		field  string
	}{
		{
			name:   "unknown category",
			method: http.MethodPost,
			path:   "/api/v1/drafts",
			body:   draft("sound_design", "louder"),
			want:   http.StatusBadRequest,
			field:  "category",
		},
		{
			name:   "empty inputs",
			method: http.MethodPost,
			path:   "/api/v1/drafts",
			body:   draft(request.CategoryGraphicsUI, ""),
			want:   http.StatusBadRequest,
			field:  "inputs",
		},
		{
			name:   "malformed body",
			method: http.MethodPost,
			path:   "/api/v1/drafts",
			body:   "not an object",
			want:   http.StatusBadRequest,
		},
		{
			name:   "unknown request",
			method: http.MethodPost,
			path:   "/api/v1/requests/missing/submit",
			want:   http.StatusNotFound,
		},
		{
			name:   "unknown build",
			method: http.MethodGet,
			path:   "/api/v1/builds/build_19700101_000000_deadbeef",
			want:   http.StatusNotFound,
		},
		{
			name:   "bad qa status",
			method: http.MethodPut,
			path:   "/api/v1/requests/any/qa",
			body:   QARequest{Status: "maybe"},
			want:   http.StatusBadRequest,
			field:  "status",
		},
		{
			name:   "nothing to build",
			method: http.MethodPost,
			path:   "/api/v1/build",
			want:   http.StatusConflict,
		},
		{
			name:   "empty suggestion prompt",
			method: http.MethodPost,
			path:   "/api/v1/prompts/suggest",
			body:   SuggestRequest{},
			want:   http.StatusBadRequest,
			field:  "rough_prompt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			body := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, tt.field, body.Field)
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&request.ValidationError{Field: "x", Reason: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("queue: %w", request.ErrNotFound), http.StatusNotFound},
		{request.ErrBuildInProgress, http.StatusConflict},
		{request.ErrInvalidTransition, http.StatusConflict},
		{fmt.Errorf("%w: timeout", request.ErrMergeService), http.StatusBadGateway},
		{request.ErrService, http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestRetryAfterServiceFailure(t *testing.T) {
	f := newFixture(t)
	f.reasoner.mu.Lock()
	f.reasoner.fail = fmt.Errorf("%w: quota exceeded", request.ErrService)
	f.reasoner.mu.Unlock()

	id := f.readyRequest(t, draft(request.CategoryGraphicsUI, "brighter cards"))
	got, err := f.wb.Get(id)
	require.NoError(t, err)
	assert.Equal(t, request.StateProcessing, got.State)
	assert.Contains(t, got.LastError, "quota exceeded")

	f.reasoner.mu.Lock()
	f.reasoner.fail = nil
	f.reasoner.mu.Unlock()

	rec := f.do(t, http.MethodPost, "/api/v1/requests/"+id+"/retry", nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	f.wb.Wait()

	got, err = f.wb.Get(id)
	require.NoError(t, err)
	assert.Equal(t, request.StateReady, got.State)

	rec = f.do(t, http.MethodPost, "/api/v1/requests/"+id+"/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBuildRequiresConfirmationForCriticalConflicts(t *testing.T) {
	f := newFixture(t)
	f.readyRequest(t, draft(request.CategoryLevelDesign, "level 2 fewer cards"))
	f.readyRequest(t, draft(request.CategoryLevelDesign, "level 2 more columns"))

	rec := f.do(t, http.MethodGet, "/api/v1/build/preflight", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pre := decode[PreflightResponse](t, rec)
	assert.Equal(t, 2, pre.Ready)
	assert.True(t, pre.NeedsConfirmation)
	require.Len(t, pre.Conflicts, 1)
	assert.Len(t, pre.Conflicts[0].RequestIDs, 2)

	rec = f.do(t, http.MethodPost, "/api/v1/build", BuildRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, f.wb.ListQueue(), 2, "unconfirmed build leaves the queue alone")

	rec = f.do(t, http.MethodPost, "/api/v1/build", BuildRequest{Confirm: true})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	built := decode[archive.BuildRecord](t, rec)
	assert.Len(t, built.Requests, 2)
	assert.Empty(t, f.wb.ListQueue())
}

func TestBuildsAndQA(t *testing.T) {
	f := newFixture(t)
	id := f.readyRequest(t, draft(request.CategoryGraphicsUI, "darker background"))

	rec := f.do(t, http.MethodPost, "/api/v1/build", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	built := decode[archive.BuildRecord](t, rec)
	assert.Equal(t, "darker background", built.Summary)

	rec = f.do(t, http.MethodGet, "/api/v1/builds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]BuildSummary](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, built.ID, list[0].ID)
	assert.Equal(t, 1, list[0].Applied)

	rec = f.do(t, http.MethodGet, "/api/v1/builds/"+built.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "#101010")

	rec = f.do(t, http.MethodPut, "/api/v1/requests/"+id+"/qa", QARequest{Status: "resolved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, request.QAResolved, decode[request.Summary](t, rec).QA)

	rec = f.do(t, http.MethodPut, "/api/v1/requests/"+id+"/qa", QARequest{Status: "resolved"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, request.QAUnset, decode[request.Summary](t, rec).QA)

	rec = f.do(t, http.MethodPost, "/api/v1/requests/"+id+"/duplicate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	dup := decode[request.ChangeRequest](t, rec)
	assert.NotEqual(t, id, dup.ID)
	assert.Equal(t, request.StateDrafting, dup.State)
}

func TestMergeFailureIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.merger.err = errors.New("upstream unavailable")
	f.readyRequest(t, draft(request.CategoryAnimation, "faster deal"))

	rec := f.do(t, http.MethodPost, "/api/v1/build", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
	require.Len(t, f.wb.ListQueue(), 1)
	assert.Equal(t, request.StateReady, f.wb.ListQueue()[0].State)
}

func TestSuggestPrompts(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/v1/prompts/suggest", SuggestRequest{RoughPrompt: "neon cards"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"neon cards 1", "neon cards 2", "neon cards 3"},
		decode[SuggestResponse](t, rec).Prompts)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.readyRequest(t, draft(request.CategoryGameDesign, "more lives"))

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `adqueue_requests_submitted_total{category="game_design"} 1`)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	created, err := f.wb.CreateDraft(draft(request.CategoryGraphicsUI, "softer shadows"))
	require.NoError(t, err)

	scanner := bufio.NewScanner(resp.Body)
	var ev orchestrator.Event
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			require.NoError(t, json.Unmarshal([]byte(data), &ev))
			break
		}
	}
	assert.Equal(t, orchestrator.StepDraft, ev.Step)
	assert.Equal(t, created.ID, ev.RequestID)
}

func TestShutdownEndsEventStreams(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.srv.Shutdown(ctx))

	drained := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, resp.Body)
		drained <- err
	}()
	select {
	case err := <-drained:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("event stream still open after shutdown")
	}
}
