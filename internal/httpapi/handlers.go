package httpapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/orchestrator"
	"github.com/dusk-indust/adqueue/internal/queue"
	"github.com/dusk-indust/adqueue/internal/request"
)

// keepAlive is how often an idle event stream gets a comment line.
const keepAlive = 25 * time.Second

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// QueueResponse is the body of GET /api/v1/queue.
type QueueResponse struct {
	Requests  []request.Summary `json:"requests"`
	Conflicts []queue.Conflict  `json:"conflicts"`
}

// SelectRequest is the body of POST /api/v1/requests/:id/select.
type SelectRequest struct {
	Index int `json:"index"`
}

// AnnotateRequest is the body of POST /api/v1/requests/:id/annotate.
// Annotations is a base64 PNG drawn over the selected variation.
type AnnotateRequest struct {
	Annotations []byte `json:"annotations,omitempty"`
}

// QARequest is the body of PUT /api/v1/requests/:id/qa.
type QARequest struct {
	Status string `json:"status"`
}

// PreflightResponse is the body of GET /api/v1/build/preflight.
type PreflightResponse struct {
	orchestrator.Preflight
	NeedsConfirmation bool `json:"needs_confirmation"`
}

// BuildRequest is the body of POST /api/v1/build. Confirm must be set when
// the preflight reports critical conflicts.
type BuildRequest struct {
	Confirm bool `json:"confirm"`
}

// BuildSummary is one entry of GET /api/v1/builds.
type BuildSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Summary   string    `json:"summary"`
	Applied   int       `json:"applied"`
	Skipped   int       `json:"skipped"`
}

// SuggestRequest is the body of POST /api/v1/prompts/suggest.
type SuggestRequest struct {
	RoughPrompt string `json:"rough_prompt"`
	Screenshot  []byte `json:"screenshot,omitempty"`
}

// SuggestResponse lists refined image prompts.
type SuggestResponse struct {
	Prompts []string `json:"prompts"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleListQueue(c echo.Context) error {
	reqs := s.wb.ListQueue()
	resp := QueueResponse{
		Requests:  make([]request.Summary, 0, len(reqs)),
		Conflicts: queue.Analyze(reqs),
	}
	for _, r := range reqs {
		resp.Requests = append(resp.Requests, r.Summarize())
	}
	if resp.Conflicts == nil {
		resp.Conflicts = []queue.Conflict{}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateDraft(c echo.Context) error {
	var in orchestrator.DraftInput
	if err := bind(c, &in); err != nil {
		return err
	}
	r, err := s.wb.CreateDraft(in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (s *Server) handleUpdateDraft(c echo.Context) error {
	var in orchestrator.DraftInput
	if err := bind(c, &in); err != nil {
		return err
	}
	r, err := s.wb.UpdateDraft(c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleGetRequest(c echo.Context) error {
	r, err := s.wb.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleDeleteRequest(c echo.Context) error {
	if err := s.wb.DeleteRequest(c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSubmit(c echo.Context) error {
	r, err := s.wb.SubmitDraft(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, r.Summarize())
}

func (s *Server) handleRetry(c echo.Context) error {
	r, err := s.wb.Retry(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, r.Summarize())
}

func (s *Server) handleDuplicate(c echo.Context) error {
	r, err := s.wb.Duplicate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, r)
}

func (s *Server) handleSelect(c echo.Context) error {
	var body SelectRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	r, err := s.wb.SelectVariation(c.Param("id"), body.Index)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r.Summarize())
}

func (s *Server) handleAnnotate(c echo.Context) error {
	var body AnnotateRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	r, err := s.wb.FinishAnnotation(c.Param("id"), body.Annotations)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, r.Summarize())
}

func (s *Server) handleSetQA(c echo.Context) error {
	var body QARequest
	if err := bind(c, &body); err != nil {
		return err
	}
	status, err := request.ParseQAStatus(body.Status)
	if err != nil {
		return err
	}
	r, err := s.wb.SetQAStatus(c.Request().Context(), c.Param("id"), status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, r.Summarize())
}

func (s *Server) handlePreflight(c echo.Context) error {
	p := s.wb.Preflight()
	return c.JSON(http.StatusOK, PreflightResponse{Preflight: p, NeedsConfirmation: p.NeedsConfirmation()})
}

func (s *Server) handleBuild(c echo.Context) error {
	var body BuildRequest
	if c.Request().ContentLength != 0 {
		if err := bind(c, &body); err != nil {
			return err
		}
	}
	if p := s.wb.Preflight(); p.NeedsConfirmation() && !body.Confirm {
		return c.JSON(http.StatusConflict, PreflightResponse{Preflight: p, NeedsConfirmation: true})
	}

	rec, err := s.wb.TriggerBuild(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (s *Server) handleListBuilds(c echo.Context) error {
	recs, err := s.wb.Builds(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]BuildSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, summarizeBuild(rec))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleGetBuild(c echo.Context) error {
	rec, err := s.wb.Build(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, s.wb.CurrentConfig())
}

func (s *Server) handleSuggest(c echo.Context) error {
	var body SuggestRequest
	if err := bind(c, &body); err != nil {
		return err
	}
	prompts, err := s.wb.SuggestPrompts(c.Request().Context(), body.RoughPrompt, body.Screenshot)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SuggestResponse{Prompts: prompts})
}

// handleEvents streams workbench events until the client disconnects, the
// server shuts down or the workbench closes.
func (s *Server) handleEvents(c echo.Context) error {
	events, cancel := s.wb.Subscribe()
	defer cancel()

	sw := newSSEWriter(c.Response())
	sw.init()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return nil
		case <-ticker.C:
			if err := sw.comment("keep-alive"); err != nil {
				return nil
			}
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := sw.writeEvent(ev); err != nil {
				s.logger.Debug("event stream closed", zap.Error(err))
				return nil
			}
		}
	}
}

func summarizeBuild(rec *archive.BuildRecord) BuildSummary {
	applied, skipped := rec.Counts()
	return BuildSummary{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt,
		Summary:   rec.Summary,
		Applied:   applied,
		Skipped:   skipped,
	}
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
	}
	return nil
}
