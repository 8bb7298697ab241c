package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/metrics"
	"github.com/dusk-indust/adqueue/internal/queue"
	"github.com/dusk-indust/adqueue/internal/reasoning"
	"github.com/dusk-indust/adqueue/internal/request"
)

// DraftInput is what the operator supplies when creating or editing a
// draft.
type DraftInput struct {
	Category request.Category `json:"category"`
	Inputs   request.Inputs   `json:"inputs"`
}

// Preflight summarizes the queue before a build.
type Preflight struct {
	Ready   int `json:"ready"`
	Pending int `json:"pending"`
	// Conflicts are critical findings the operator should confirm.
	Conflicts []queue.Conflict `json:"conflicts"`
	// Notes are informational findings that always merge cleanly.
	Notes    []queue.Conflict `json:"notes,omitempty"`
	Building bool             `json:"building"`
}

// NeedsConfirmation reports whether the build should be confirmed first.
func (p Preflight) NeedsConfirmation() bool {
	return len(p.Conflicts) > 0
}

// Workbench is the queue API used by the HTTP, MCP and CLI surfaces. It
// owns the active queue, launches processing steps in the background and
// runs builds.
type Workbench struct {
	queue    *queue.Queue
	archive  archive.Store
	router   *Router
	builder  *Builder
	reasoner reasoning.Reasoner
	events   *Broadcaster
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	cfgMu   sync.RWMutex
	current *gameconfig.Snapshot

	// inflight maps a request id to the attempt whose step is running.
	flightMu sync.Mutex
	inflight map[string]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open creates a Workbench. The starting configuration is cfg.Initial, the
// newest archived result, or the built-in default, in that order.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Workbench, error) {
	if cfg.Reasoner == nil || cfg.Merger == nil {
		return nil, fmt.Errorf("orchestrator: reasoner and merger are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	store := cfg.Archive
	if store == nil {
		store = archive.NewMemoryStore()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	current := cfg.Initial
	if current == nil {
		latest, err := store.Latest(ctx)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: load latest build: %w", err)
		}
		if latest != nil && latest.Result != nil {
			current = latest.Result
			logger.Info("resuming from archived configuration", zap.String("build_id", latest.ID))
		}
	}
	if current == nil {
		def, err := gameconfig.Default()
		if err != nil {
			return nil, fmt.Errorf("orchestrator: load default configuration: %w", err)
		}
		current = def
	}

	variations := cfg.Variations
	if variations <= 0 {
		variations = DefaultVariations
	}
	variations = min(variations, MaxVariations)

	var imager reasoning.Imager = unavailableImager{}
	if cfg.Imager != nil {
		imager = cfg.Imager
	}

	w := &Workbench{
		queue:    queue.New(queue.WithClock(now)),
		archive:  store,
		builder:  NewBuilder(cfg.Merger, cfg.MergeTimeout, logger.Named("build")),
		reasoner: cfg.Reasoner,
		events:   NewBroadcaster(),
		metrics:  cfg.Metrics,
		logger:   logger,
		now:      now,
		current:  current.Clone(),
		inflight: make(map[string]int),
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())

	router := NewRouter()
	router.RegisterExecutor(StepVariations, &variationStep{
		fanout:   NewFanOut(imager, w.emit),
		fallback: variations,
	})
	router.RegisterExecutor(StepAnalyze, &analyzeStep{
		reasoner: cfg.Reasoner,
		config:   w.CurrentConfig,
		logger:   logger.Named("analyze"),
	})
	w.router = router

	w.observeQueue()
	return w, nil
}

// CreateDraft validates in and adds a new drafting request.
func (w *Workbench) CreateDraft(in DraftInput) (*request.ChangeRequest, error) {
	r := &request.ChangeRequest{
		ID:        request.NewID(),
		State:     request.StateDrafting,
		CreatedAt: w.now(),
	}
	if err := applyDraft(r, in); err != nil {
		return nil, err
	}

	stored, err := w.queue.Add(r)
	if err != nil {
		return nil, err
	}
	w.logger.Debug("draft created",
		zap.String("request_id", stored.ID),
		zap.String("category", string(stored.Category)),
		zap.String("level_source", string(stored.LevelSource)))
	w.emit(Event{Step: StepDraft, RequestID: stored.ID, Status: ProgressComplete, Message: "created"})
	w.observeQueue()
	return stored, nil
}

// UpdateDraft replaces the category and inputs of a drafting request.
func (w *Workbench) UpdateDraft(id string, in DraftInput) (*request.ChangeRequest, error) {
	updated, err := w.queue.Update(id, func(cur *request.ChangeRequest) error {
		if cur.State != request.StateDrafting {
			return fmt.Errorf("%w: request %q is %s; delete and recreate it to change inputs",
				request.ErrInvalidTransition, id, cur.State)
		}
		return applyDraft(cur, in)
	})
	if err != nil {
		return nil, err
	}
	w.emit(Event{Step: StepDraft, RequestID: id, Status: ProgressComplete, Message: "updated"})
	return updated, nil
}

// SubmitDraft locks the draft and starts processing it in the background.
// It returns as soon as the request is in processing.
func (w *Workbench) SubmitDraft(id string) (*request.ChangeRequest, error) {
	r, err := w.startStep(id, func(cur *request.ChangeRequest) error {
		if cur.State != request.StateDrafting {
			return fmt.Errorf("%w: request %q was already submitted", request.ErrInvalidTransition, id)
		}
		if err := applyDraft(cur, DraftInput{Category: cur.Category, Inputs: cur.Inputs}); err != nil {
			return err
		}
		cur.State = request.StateProcessing
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.metrics.Submitted(string(r.Category))
	return r, nil
}

// Submit creates a draft from in and submits it in one call.
func (w *Workbench) Submit(in DraftInput) (*request.ChangeRequest, error) {
	draft, err := w.CreateDraft(in)
	if err != nil {
		return nil, err
	}
	return w.SubmitDraft(draft.ID)
}

// Retry re-runs the step that failed for a request. It is never called
// automatically.
func (w *Workbench) Retry(id string) (*request.ChangeRequest, error) {
	return w.startStep(id, func(cur *request.ChangeRequest) error {
		if cur.LastError == "" {
			return fmt.Errorf("%w: request %q has no failed step to retry", request.ErrInvalidTransition, id)
		}
		if cur.State != request.StateProcessing && cur.State != request.StateAnnotating {
			return fmt.Errorf("%w: request %q is %s", request.ErrInvalidTransition, id, cur.State)
		}
		return nil
	})
}

// SelectVariation picks one generated image and moves the request to
// annotating.
func (w *Workbench) SelectVariation(id string, index int) (*request.ChangeRequest, error) {
	updated, err := w.queue.Update(id, func(cur *request.ChangeRequest) error {
		if cur.State != request.StateAwaitingSelection {
			return fmt.Errorf("%w: request %q is %s, not %s",
				request.ErrInvalidTransition, id, cur.State, request.StateAwaitingSelection)
		}
		if index < 0 || index >= len(cur.Variations) {
			return &request.ValidationError{
				Field:  "index",
				Reason: fmt.Sprintf("must be between 0 and %d", len(cur.Variations)-1),
			}
		}
		cur.Selected = index
		cur.State = request.StateAnnotating
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.emit(Event{Step: StepVariations, RequestID: id, Status: ProgressComplete,
		Message: fmt.Sprintf("variation %d selected", index+1)})
	w.observeQueue()
	return updated, nil
}

// FinishAnnotation records the optional drawing made on the selected
// variation and starts the reasoning call. The request stays annotating
// until the call completes.
func (w *Workbench) FinishAnnotation(id string, annotations []byte) (*request.ChangeRequest, error) {
	return w.startStep(id, func(cur *request.ChangeRequest) error {
		if cur.State != request.StateAnnotating {
			return fmt.Errorf("%w: request %q is %s, not %s",
				request.ErrInvalidTransition, id, cur.State, request.StateAnnotating)
		}
		if len(annotations) > 0 {
			cur.SelectionAnnotations = append([]byte(nil), annotations...)
		}
		return nil
	})
}

// startStep applies fn, bumps the attempt and launches the next step. A
// request whose step is already running cannot be started again.
func (w *Workbench) startStep(id string, fn func(*request.ChangeRequest) error) (*request.ChangeRequest, error) {
	w.flightMu.Lock()
	defer w.flightMu.Unlock()

	if _, busy := w.inflight[id]; busy {
		return nil, fmt.Errorf("%w: request %q is still processing", request.ErrInvalidTransition, id)
	}
	r, err := w.queue.Update(id, func(cur *request.ChangeRequest) error {
		if err := fn(cur); err != nil {
			return err
		}
		cur.Attempt++
		cur.LastError = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.inflight[r.ID] = r.Attempt
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.process(r)
	}()
	w.observeQueue()
	return r, nil
}

// process runs one step for r and applies its outcome if r still exists
// and has not been resubmitted.
func (w *Workbench) process(r *request.ChangeRequest) {
	defer w.land(r.ID, r.Attempt)

	start := w.now()
	if step, err := StepFor(r); err == nil {
		w.emit(Event{Step: step, RequestID: r.ID, Status: ProgressWorking})
	}

	step, done, err := w.router.Route(w.ctx, r)
	if err != nil {
		msg := err.Error()
		done = func(cur *request.ChangeRequest) error {
			cur.LastError = msg
			return nil
		}
	}

	applied, cerr := w.queue.Complete(r.ID, r.Attempt, done)
	elapsed := w.now().Sub(start)
	log := w.logger.With(
		zap.String("request_id", r.ID),
		zap.Int("attempt", r.Attempt),
		zap.Stringer("step", step))

	switch {
	case cerr != nil:
		log.Error("completion rejected", zap.Error(cerr))
		w.metrics.Step(step.String(), "error", elapsed)
		w.emit(Event{Step: step, RequestID: r.ID, Status: ProgressFailed, Message: cerr.Error()})
	case !applied:
		log.Debug("discarding stale completion")
		w.metrics.Step(step.String(), "stale", elapsed)
	case err != nil:
		log.Warn("step failed", zap.Error(err))
		w.metrics.Step(step.String(), "error", elapsed)
		w.emit(Event{Step: step, RequestID: r.ID, Status: ProgressFailed, Message: err.Error()})
	default:
		log.Info("step complete", zap.Duration("elapsed", elapsed))
		w.metrics.Step(step.String(), "success", elapsed)
		w.emit(Event{Step: step, RequestID: r.ID, Status: ProgressComplete})
	}
	w.observeQueue()
}

// land clears the in-flight marker left by startStep.
func (w *Workbench) land(id string, attempt int) {
	w.flightMu.Lock()
	defer w.flightMu.Unlock()
	if w.inflight[id] == attempt {
		delete(w.inflight, id)
	}
}

// DeleteRequest removes an active request. A step still running for it
// finishes without effect.
func (w *Workbench) DeleteRequest(id string) error {
	if _, err := w.queue.Delete(id); err != nil {
		return err
	}
	w.logger.Debug("request deleted", zap.String("request_id", id))
	w.emit(Event{Step: StepDelete, RequestID: id, Status: ProgressComplete})
	w.observeQueue()
	return nil
}

// ListQueue returns the active requests in creation order.
func (w *Workbench) ListQueue() []*request.ChangeRequest {
	return w.queue.List()
}

// Get returns one active request.
func (w *Workbench) Get(id string) (*request.ChangeRequest, error) {
	return w.queue.Get(id)
}

// Duplicate creates a new draft with the category, level and inputs of an
// active or archived request. The source is not modified.
func (w *Workbench) Duplicate(ctx context.Context, id string) (*request.ChangeRequest, error) {
	src, err := w.queue.Get(id)
	if errors.Is(err, request.ErrNotFound) {
		src, err = w.archive.FindRequest(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	dup := &request.ChangeRequest{
		ID:          request.NewID(),
		Category:    src.Category,
		Level:       src.Level,
		LevelSource: src.LevelSource,
		Inputs:      src.Inputs.Clone(),
		State:       request.StateDrafting,
		CreatedAt:   w.now(),
	}
	stored, err := w.queue.Add(dup)
	if err != nil {
		return nil, err
	}
	w.emit(Event{Step: StepDraft, RequestID: stored.ID, Status: ProgressComplete,
		Message: "duplicated from " + id})
	w.observeQueue()
	return stored, nil
}

// SetQAStatus toggles the QA label of an archived request. Selecting the
// active label clears it.
func (w *Workbench) SetQAStatus(ctx context.Context, id string, status request.QAStatus) (*request.ChangeRequest, error) {
	if status != request.QAResolved && status != request.QANotResolved {
		return nil, &request.ValidationError{Field: "status", Reason: "must be resolved or not_resolved"}
	}
	if _, err := w.queue.Get(id); err == nil {
		return nil, fmt.Errorf("%w: request %q has not been built", request.ErrInvalidTransition, id)
	}
	return w.archive.SetQA(ctx, id, func(cur request.QAStatus) request.QAStatus {
		return request.ToggleQA(cur, status)
	})
}

// Preflight reports what a build would consume and the critical conflicts
// the operator should confirm.
func (w *Workbench) Preflight() Preflight {
	var p Preflight
	for _, r := range w.queue.List() {
		if r.State == request.StateReady {
			p.Ready++
		} else {
			p.Pending++
		}
	}
	for _, c := range w.queue.Conflicts() {
		if c.Critical() {
			p.Conflicts = append(p.Conflicts, c)
		} else {
			p.Notes = append(p.Notes, c)
		}
	}
	p.Building = w.queue.Building()
	return p
}

// TriggerBuild merges every ready request into the current configuration.
// On success the record is archived, the requests leave the queue and the
// new configuration becomes current. On failure nothing changes.
func (w *Workbench) TriggerBuild(ctx context.Context) (*archive.BuildRecord, error) {
	start := w.now()
	ready, err := w.queue.Reserve()
	if err != nil {
		return nil, err
	}

	buildID := NewBuildID(start)
	log := w.logger.With(zap.String("build_id", buildID), zap.Int("requests", len(ready)))
	log.Info("build started")
	w.emit(Event{Step: StepBuild, BuildID: buildID, Status: ProgressWorking,
		Message: fmt.Sprintf("merging %d requests", len(ready))})

	rec, err := w.build(ctx, buildID, ready)
	if err != nil {
		w.queue.Release()
		log.Error("build failed", zap.Error(err))
		w.metrics.Build("error", 0, 0, w.now().Sub(start))
		w.emit(Event{Step: StepBuild, BuildID: buildID, Status: ProgressFailed, Message: err.Error()})
		return nil, err
	}

	applied, skipped := rec.Counts()
	log.Info("build complete", zap.Int("applied", applied), zap.Int("skipped", skipped))
	w.metrics.Build("success", applied, skipped, w.now().Sub(start))
	w.emit(Event{Step: StepBuild, BuildID: buildID, Status: ProgressComplete,
		Message: fmt.Sprintf("%d applied, %d skipped", applied, skipped)})
	w.observeQueue()
	return rec, nil
}

// build runs the merge, archives the record and commits the queue. The
// archive is written before the queue changes so a failed write leaves the
// queue intact.
func (w *Workbench) build(ctx context.Context, buildID string, ready []*request.ChangeRequest) (*archive.BuildRecord, error) {
	current := w.CurrentConfig()
	res, err := w.builder.MergeBuild(ctx, current, ready)
	if err != nil {
		return nil, err
	}

	now := w.now()
	byID := make(map[string]*request.ChangeRequest, len(ready))
	for _, r := range ready {
		byID[r.ID] = r
	}
	archived := make([]*request.ChangeRequest, 0, len(res.Order))
	for _, id := range res.Order {
		r := byID[id].Clone()
		out := res.Outcomes[id]
		r.State = request.StateBuilt
		r.BuildID = buildID
		r.Outcome = &out
		r.Conflict = false
		r.UpdatedAt = now
		archived = append(archived, r)
	}

	rec := &archive.BuildRecord{
		ID:        buildID,
		CreatedAt: now,
		Config:    current,
		Result:    res.Config,
		Summary:   res.Summary,
		Changes:   res.Changes,
		Requests:  archived,
	}
	if err := w.archive.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("orchestrator: archive build %s: %w", buildID, err)
	}
	if _, err := w.queue.Commit(buildID, res.Outcomes); err != nil {
		return nil, fmt.Errorf("orchestrator: commit build %s: %w", buildID, err)
	}
	w.setCurrent(res.Config)
	return rec, nil
}

// Builds returns archived builds, newest first.
func (w *Workbench) Builds(ctx context.Context) ([]*archive.BuildRecord, error) {
	return w.archive.List(ctx)
}

// Build returns one archived build.
func (w *Workbench) Build(ctx context.Context, id string) (*archive.BuildRecord, error) {
	return w.archive.Get(ctx, id)
}

// CurrentConfig returns a copy of the configuration the next build starts
// from.
func (w *Workbench) CurrentConfig() *gameconfig.Snapshot {
	w.cfgMu.RLock()
	defer w.cfgMu.RUnlock()
	return w.current.Clone()
}

func (w *Workbench) setCurrent(s *gameconfig.Snapshot) {
	w.cfgMu.Lock()
	defer w.cfgMu.Unlock()
	w.current = s.Clone()
}

// SuggestPrompts asks the reasoning service for refined image prompts.
func (w *Workbench) SuggestPrompts(ctx context.Context, rough string, screenshot []byte) ([]string, error) {
	if strings.TrimSpace(rough) == "" {
		return nil, &request.ValidationError{Field: "rough_prompt", Reason: "is required"}
	}
	return w.reasoner.SuggestPrompts(ctx, rough, screenshot)
}

// Subscribe returns a channel of workbench events and its cancel function.
func (w *Workbench) Subscribe() (<-chan Event, func()) {
	return w.events.Subscribe()
}

// Wait blocks until every running step has finished.
func (w *Workbench) Wait() {
	w.wg.Wait()
}

// Close cancels running steps, waits for them and closes event streams.
// The archive is owned by the caller.
func (w *Workbench) Close() {
	w.cancel()
	w.wg.Wait()
	w.events.Close()
}

func (w *Workbench) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = w.now()
	}
	w.events.Emit(ev)
}

// queueStates are the states reported by the queue gauge.
var queueStates = []string{
	string(request.StateDrafting),
	string(request.StateProcessing),
	string(request.StateAwaitingSelection),
	string(request.StateAnnotating),
	string(request.StateReady),
}

func (w *Workbench) observeQueue() {
	if w.metrics == nil {
		return
	}
	counts := make(map[string]int, len(queueStates))
	for _, r := range w.queue.List() {
		counts[string(r.State)]++
	}
	w.metrics.SetQueue(queueStates, counts)
}

// applyDraft validates in and writes it onto r. The level is resolved only
// for categories that need one.
func applyDraft(r *request.ChangeRequest, in DraftInput) error {
	if !in.Category.Valid() {
		return &request.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", in.Category)}
	}
	policy := request.PolicyFor(in.Category)

	if in.Inputs.Variations < 0 || in.Inputs.Variations > MaxVariations {
		return &request.ValidationError{
			Field:  "variations",
			Reason: fmt.Sprintf("must be between 0 and %d", MaxVariations),
		}
	}
	if in.Inputs.WantsVariations() && !policy.AllowsVariations {
		return &request.ValidationError{
			Field:  "variation_prompt",
			Reason: policy.Label + " requests do not support image variations",
		}
	}
	if !hasContent(in.Inputs) {
		return &request.ValidationError{
			Field:  "inputs",
			Reason: "provide text, a screenshot, annotations or a reference image",
		}
	}

	r.Category = in.Category
	r.Inputs = in.Inputs.Clone()
	r.Level = nil
	r.LevelSource = request.LevelSourceNone
	if !policy.RequiresLevel {
		return nil
	}

	res := request.ResolveOrDefault(in.Inputs.LevelSelection, in.Inputs.Metadata, in.Inputs.Text)
	if res.Ambiguous {
		return &request.ValidationError{
			Field:  "level",
			Reason: fmt.Sprintf("text mentions levels %s; select one explicitly", joinInts(res.Candidates)),
		}
	}
	if res.Level < 1 {
		return &request.ValidationError{Field: "level", Reason: "must be 1 or greater"}
	}
	r.Level = request.IntPtr(res.Level)
	r.LevelSource = res.Source
	return nil
}

func hasContent(in request.Inputs) bool {
	return strings.TrimSpace(in.Text) != "" ||
		len(in.Screenshot) > 0 ||
		len(in.Annotations) > 0 ||
		len(in.ReferenceImage) > 0 ||
		len(in.ReferenceImages) > 0 ||
		in.VariationPrompt != ""
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}

// unavailableImager stands in when no image model is configured.
type unavailableImager struct{}

func (unavailableImager) Generate(context.Context, string, []byte) ([]byte, error) {
	return nil, fmt.Errorf("%w: image generation is not configured", request.ErrService)
}
