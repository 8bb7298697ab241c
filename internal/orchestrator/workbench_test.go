package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/logging"
	"github.com/dusk-indust/adqueue/internal/reasoning"
	"github.com/dusk-indust/adqueue/internal/request"
)

func TestWorkbench_CreateDraftResolvesLevel(t *testing.T) {
	tests := []struct {
		name       string
		in         DraftInput
		wantLevel  *int
		wantSource request.LevelSource
	}{
		{
			name:       "explicit selection beats text",
			in:         levelInput(2, "fix level 5 please"),
			wantLevel:  request.IntPtr(2),
			wantSource: request.LevelSourceExplicit,
		},
		{
			name:       "text beats default",
			in:         textInput(request.CategoryLevelDesign, "level 5 needs fewer cards"),
			wantLevel:  request.IntPtr(5),
			wantSource: request.LevelSourceText,
		},
		{
			name: "metadata beats text",
			in: DraftInput{
				Category: request.CategoryLevelDesign,
				Inputs: request.Inputs{
					Text:     "make level 5 harder",
					Metadata: &request.CaptureMetadata{LevelNumber: request.IntPtr(3)},
				},
			},
			wantLevel:  request.IntPtr(3),
			wantSource: request.LevelSourceMetadata,
		},
		{
			name:       "nothing resolves to an inferred default",
			in:         textInput(request.CategoryLevelDesign, "add a column"),
			wantLevel:  request.IntPtr(request.DefaultLevel),
			wantSource: request.LevelSourceInferred,
		},
		{
			name: "global categories carry no level",
			in: DraftInput{
				Category: request.CategoryGraphicsUI,
				Inputs:   request.Inputs{Text: "darker level 2 background", LevelSelection: request.IntPtr(2)},
			},
			wantLevel:  nil,
			wantSource: request.LevelSourceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorkbench(t, Config{})
			r, err := w.CreateDraft(tt.in)
			require.NoError(t, err)
			assert.Equal(t, request.StateDrafting, r.State)
			assert.Equal(t, tt.wantLevel, r.Level)
			assert.Equal(t, tt.wantSource, r.LevelSource)
			assert.NotEmpty(t, r.ID)
		})
	}
}

func TestWorkbench_CreateDraftRejects(t *testing.T) {
	tests := []struct {
		name  string
		in    DraftInput
		field string
	}{
		{"unknown category", textInput("sound_design", "louder"), "category"},
		{"no content", DraftInput{Category: request.CategoryGameDesign}, "inputs"},
		{"ambiguous levels", textInput(request.CategoryLevelDesign, "move level 2 cards into level 4"), "level"},
		{"variations not allowed", DraftInput{
			Category: request.CategoryGameDesign,
			Inputs:   request.Inputs{Text: "faster", VariationPrompt: "speed lines"},
		}, "variation_prompt"},
		{"too many variations", DraftInput{
			Category: request.CategoryGraphicsUI,
			Inputs:   request.Inputs{VariationPrompt: "neon", Variations: 9},
		}, "variations"},
		{"level zero", levelInput(0, "tweak"), "level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorkbench(t, Config{})
			_, err := w.CreateDraft(tt.in)
			require.ErrorIs(t, err, request.ErrValidation)

			var verr *request.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Empty(t, w.ListQueue())
		})
	}
}

func TestWorkbench_UpdateDraftOnlyWhileDrafting(t *testing.T) {
	w := newWorkbench(t, Config{})

	r, err := w.CreateDraft(textInput(request.CategoryGraphicsUI, "darker"))
	require.NoError(t, err)

	r, err = w.UpdateDraft(r.ID, levelInput(3, "fewer cards"))
	require.NoError(t, err)
	assert.Equal(t, request.CategoryLevelDesign, r.Category)
	assert.Equal(t, request.IntPtr(3), r.Level)

	_, err = w.SubmitDraft(r.ID)
	require.NoError(t, err)
	w.Wait()

	_, err = w.UpdateDraft(r.ID, textInput(request.CategoryAnimation, "bouncier"))
	assert.ErrorIs(t, err, request.ErrInvalidTransition)

	got, err := w.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.CategoryLevelDesign, got.Category)

	_, err = w.SubmitDraft(r.ID)
	assert.ErrorIs(t, err, request.ErrInvalidTransition)
}

func TestWorkbench_SubmitProcessesToReady(t *testing.T) {
	reasoner := &fakeReasoner{}
	w := newWorkbench(t, Config{Reasoner: reasoner})

	r, err := w.Submit(levelInput(2, "fewer cards"))
	require.NoError(t, err)
	assert.Equal(t, request.StateProcessing, r.State)
	assert.Equal(t, 1, r.Attempt)

	w.Wait()
	got, err := w.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StateReady, got.State)
	assert.Equal(t, "I understand you want to change level_design", got.Rationale)
	assert.Empty(t, got.LastError)

	calls := reasoner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, request.CategoryLevelDesign, calls[0].Category)
	assert.Equal(t, request.IntPtr(2), calls[0].Level)
	assert.Contains(t, string(calls[0].Section), `"levels"`)
}

func TestWorkbench_ServiceFailureIsRetryable(t *testing.T) {
	failing := true
	reasoner := &fakeReasoner{}
	reasoner.analyze = func(_ context.Context, call reasoning.Call) (reasoning.Result, error) {
		if failing {
			return reasoning.Result{}, errors.Join(request.ErrService, errors.New("deadline exceeded"))
		}
		return reasoning.Result{Rationale: "ok", Complexity: request.ComplexityEasy}, nil
	}
	w := newWorkbench(t, Config{Reasoner: reasoner})

	r, err := w.Submit(textInput(request.CategoryGameDesign, "faster cards"))
	require.NoError(t, err)
	w.Wait()

	got, err := w.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StateProcessing, got.State)
	assert.Contains(t, got.LastError, "deadline exceeded")
	assert.Len(t, reasoner.Calls(), 1, "failures are never retried automatically")

	failing = false
	_, err = w.Retry(r.ID)
	require.NoError(t, err)
	w.Wait()

	got, err = w.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StateReady, got.State)
	assert.Equal(t, 2, got.Attempt)
	assert.Empty(t, got.LastError)

	_, err = w.Retry(r.ID)
	assert.ErrorIs(t, err, request.ErrInvalidTransition)
}

func TestWorkbench_DeleteDuringProcessing(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	reasoner := &fakeReasoner{}
	reasoner.analyze = func(ctx context.Context, call reasoning.Call) (reasoning.Result, error) {
		close(started)
		<-release
		return reasoning.Result{Rationale: "late"}, nil
	}
	logger, logs := logging.NewObserved()
	w, err := Open(context.Background(), Config{Reasoner: reasoner, Merger: &fakeMerger{}}, logger)
	require.NoError(t, err)
	defer w.Close()

	r, err := w.Submit(levelInput(1, "swap columns"))
	require.NoError(t, err)
	waitFor(t, started, "reasoning call")

	other, err := w.CreateDraft(textInput(request.CategoryGraphicsUI, "darker"))
	require.NoError(t, err, "the queue stays usable while a request is processing")

	require.NoError(t, w.DeleteRequest(r.ID))
	close(release)
	w.Wait()

	_, err = w.Get(r.ID)
	assert.ErrorIs(t, err, request.ErrNotFound)
	queue := w.ListQueue()
	require.Len(t, queue, 1)
	assert.Equal(t, other.ID, queue[0].ID)
	assert.Equal(t, 1, logs.FilterMessage("discarding stale completion").Len())
	assert.Zero(t, logs.FilterMessage("completion rejected").Len())
}

func TestWorkbench_VariationFlow(t *testing.T) {
	reasoner := &fakeReasoner{}
	imager := &countingImager{}
	w := newWorkbench(t, Config{Reasoner: reasoner, Imager: imager})

	r, err := w.Submit(DraftInput{
		Category: request.CategoryGraphicsUI,
		Inputs:   request.Inputs{Text: "new card back", VariationPrompt: "art deco card back", Variations: 3},
	})
	require.NoError(t, err)
	w.Wait()

	got, err := w.Get(r.ID)
	require.NoError(t, err)
	require.Equal(t, request.StateAwaitingSelection, got.State, got.LastError)
	assert.Len(t, got.Variations, 3)
	assert.Empty(t, reasoner.Calls(), "reasoning waits for the selection")

	_, err = w.SelectVariation(r.ID, 5)
	assert.ErrorIs(t, err, request.ErrValidation)

	got, err = w.SelectVariation(r.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, request.StateAnnotating, got.State)

	_, err = w.SelectVariation(r.ID, 0)
	assert.ErrorIs(t, err, request.ErrInvalidTransition)

	drawing := []byte("circle around the ace")
	_, err = w.FinishAnnotation(r.ID, drawing)
	require.NoError(t, err)
	w.Wait()

	got, err = w.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StateReady, got.State)

	calls := reasoner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, got.Variations[1], calls[0].Reference)
	assert.Equal(t, drawing, calls[0].Annotations)
	assert.True(t, calls[0].HasDrawing)
}

func TestWorkbench_VariationsWithoutImager(t *testing.T) {
	w := newWorkbench(t, Config{})

	r, err := w.Submit(DraftInput{
		Category: request.CategoryAnimation,
		Inputs:   request.Inputs{VariationPrompt: "sparkle trail"},
	})
	require.NoError(t, err)
	w.Wait()

	got, err := w.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StateProcessing, got.State)
	assert.Contains(t, got.LastError, "not configured")
}

func TestWorkbench_ConflictsAndPreflight(t *testing.T) {
	w := newWorkbench(t, Config{})

	a := submitReady(t, w, levelInput(3, "fewer cards"))
	b := submitReady(t, w, levelInput(3, "more cards"))
	c := submitReady(t, w, textInput(request.CategoryGraphicsUI, "darker"))
	_, err := w.CreateDraft(textInput(request.CategoryAnimation, "bouncier"))
	require.NoError(t, err)

	flags := map[string]bool{}
	for _, r := range w.ListQueue() {
		flags[r.ID] = r.Conflict
	}
	assert.True(t, flags[a.ID])
	assert.True(t, flags[b.ID])
	assert.False(t, flags[c.ID])

	p := w.Preflight()
	assert.Equal(t, 3, p.Ready)
	assert.Equal(t, 1, p.Pending)
	assert.False(t, p.Building)
	require.True(t, p.NeedsConfirmation())
	require.Len(t, p.Conflicts, 1)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, p.Conflicts[0].RequestIDs)

	require.NoError(t, w.DeleteRequest(b.ID))
	assert.False(t, w.Preflight().NeedsConfirmation())
}

func TestWorkbench_PartialFailureBuild(t *testing.T) {
	merger := &fakeMerger{}
	w := newWorkbench(t, Config{Merger: merger})

	graphics := submitReady(t, w, textInput(request.CategoryGraphicsUI, "darker background"))
	missing := submitReady(t, w, levelInput(9, "level that was removed"))
	layout := submitReady(t, w, levelInput(2, "fewer cards"))
	before := w.CurrentConfig()

	rec, err := w.TriggerBuild(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^build_\d{8}_\d{6}_[0-9a-f]{8}$`, rec.ID)

	applied, skipped := rec.Counts()
	assert.Equal(t, 2, applied)
	assert.Equal(t, 1, skipped)
	require.Len(t, rec.Requests, 3)
	for _, r := range rec.Requests {
		assert.Equal(t, request.StateBuilt, r.State)
		assert.Equal(t, rec.ID, r.BuildID)
	}
	skippedReq, ok := rec.Request(missing.ID)
	require.True(t, ok)
	assert.Equal(t, request.Skipped("level 9 does not exist"), *skippedReq.Outcome)

	// The missing level never reaches the service; level design merges
	// before graphics.
	calls := merger.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Requests, 2)
	assert.Equal(t, layout.ID, calls[0].Requests[0].Ref)
	assert.Equal(t, graphics.ID, calls[0].Requests[1].Ref)

	assert.Empty(t, w.ListQueue())
	assert.Equal(t, "#000000", w.CurrentConfig().Visual.BackgroundColor)
	assert.Equal(t, before.Visual.BackgroundColor, rec.Config.Visual.BackgroundColor)
	require.Len(t, rec.Changes, 1)
	assert.Equal(t, "/visual/background_color", rec.Changes[0].Path)

	builds, err := w.Builds(context.Background())
	require.NoError(t, err)
	require.Len(t, builds, 1)
	assert.Equal(t, rec.ID, builds[0].ID)
}

func TestWorkbench_TotalFailureLeavesQueueUnchanged(t *testing.T) {
	replies := map[string]func(context.Context, reasoning.MergeCall) (reasoning.MergeReply, error){
		"service error": func(context.Context, reasoning.MergeCall) (reasoning.MergeReply, error) {
			return reasoning.MergeReply{}, errors.New("connection reset")
		},
		"invalid config": func(context.Context, reasoning.MergeCall) (reasoning.MergeReply, error) {
			return reasoning.MergeReply{Config: []byte(`{"mechanics":{}}`)}, nil
		},
		"timeout": func(ctx context.Context, _ reasoning.MergeCall) (reasoning.MergeReply, error) {
			<-ctx.Done()
			return reasoning.MergeReply{}, ctx.Err()
		},
	}

	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			merger := &fakeMerger{merge: reply}
			w := newWorkbench(t, Config{Merger: merger, MergeTimeout: 50 * time.Millisecond})

			submitReady(t, w, levelInput(1, "fewer cards"))
			submitReady(t, w, textInput(request.CategoryGameDesign, "faster"))
			_, err := w.CreateDraft(textInput(request.CategoryLegacy, "misc"))
			require.NoError(t, err)

			queueBefore := w.ListQueue()
			configBefore := w.CurrentConfig()

			_, err = w.TriggerBuild(context.Background())
			require.ErrorIs(t, err, request.ErrMergeService)

			assert.Empty(t, cmp.Diff(queueBefore, w.ListQueue()))
			assert.Empty(t, cmp.Diff(configBefore, w.CurrentConfig()))
			builds, err := w.Builds(context.Background())
			require.NoError(t, err)
			assert.Empty(t, builds)
			assert.False(t, w.Preflight().Building, "the reservation is released")

			merger.merge = nil
			_, err = w.TriggerBuild(context.Background())
			require.NoError(t, err, "a later build can still run")
		})
	}
}

func TestWorkbench_BuildNothingReady(t *testing.T) {
	w := newWorkbench(t, Config{})
	_, err := w.CreateDraft(textInput(request.CategoryLegacy, "misc"))
	require.NoError(t, err)

	_, err = w.TriggerBuild(context.Background())
	assert.ErrorIs(t, err, request.ErrNothingToBuild)
}

func TestWorkbench_BuildReservesReadyRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	merger := &fakeMerger{}
	merger.merge = func(_ context.Context, call reasoning.MergeCall) (reasoning.MergeReply, error) {
		close(entered)
		<-release
		return recolor(call.Current, "#111111"), nil
	}
	w := newWorkbench(t, Config{Merger: merger})
	r := submitReady(t, w, textInput(request.CategoryGraphicsUI, "darker"))

	done := make(chan error, 1)
	go func() {
		_, err := w.TriggerBuild(context.Background())
		done <- err
	}()
	waitFor(t, entered, "merge call")

	assert.ErrorIs(t, w.DeleteRequest(r.ID), request.ErrBuildInProgress)
	_, err := w.TriggerBuild(context.Background())
	assert.ErrorIs(t, err, request.ErrBuildInProgress)
	assert.True(t, w.Preflight().Building)

	draft, err := w.CreateDraft(textInput(request.CategoryAnimation, "bouncier"))
	require.NoError(t, err, "drafting continues during a build")

	close(release)
	require.NoError(t, <-done)

	queue := w.ListQueue()
	require.Len(t, queue, 1)
	assert.Equal(t, draft.ID, queue[0].ID)
}

func TestWorkbench_DuplicateBuiltRequest(t *testing.T) {
	w := newWorkbench(t, Config{})
	src := submitReady(t, w, DraftInput{
		Category: request.CategoryLevelDesign,
		Inputs: request.Inputs{
			Text:       "level 2 with a bigger draw pile",
			Screenshot: []byte("png"),
		},
	})
	rec, err := w.TriggerBuild(context.Background())
	require.NoError(t, err)

	dup, err := w.Duplicate(context.Background(), src.ID)
	require.NoError(t, err)
	assert.NotEqual(t, src.ID, dup.ID)
	assert.Equal(t, request.StateDrafting, dup.State)
	assert.Equal(t, src.Category, dup.Category)
	assert.Equal(t, src.Level, dup.Level)
	assert.Empty(t, cmp.Diff(src.Inputs, dup.Inputs))
	assert.Zero(t, dup.Attempt)
	assert.Empty(t, dup.Rationale)

	archived, err := w.archive.FindRequest(context.Background(), src.ID)
	require.NoError(t, err)
	assert.Equal(t, request.StateBuilt, archived.State)
	assert.Equal(t, rec.ID, archived.BuildID)

	active, err := w.Duplicate(context.Background(), dup.ID)
	require.NoError(t, err)
	assert.Len(t, w.ListQueue(), 2)
	assert.Equal(t, dup.Level, active.Level)

	_, err = w.Duplicate(context.Background(), "nope")
	assert.ErrorIs(t, err, request.ErrNotFound)
}

func TestWorkbench_SetQAStatusToggles(t *testing.T) {
	w := newWorkbench(t, Config{})
	r := submitReady(t, w, textInput(request.CategoryGameDesign, "faster"))
	_, err := w.SetQAStatus(context.Background(), r.ID, request.QAResolved)
	assert.ErrorIs(t, err, request.ErrInvalidTransition, "active requests carry no QA label")

	_, err = w.TriggerBuild(context.Background())
	require.NoError(t, err)

	got, err := w.SetQAStatus(context.Background(), r.ID, request.QAResolved)
	require.NoError(t, err)
	assert.Equal(t, request.QAResolved, got.QA)

	got, err = w.SetQAStatus(context.Background(), r.ID, request.QAResolved)
	require.NoError(t, err)
	assert.Equal(t, request.QAUnset, got.QA)

	got, err = w.SetQAStatus(context.Background(), r.ID, request.QANotResolved)
	require.NoError(t, err)
	assert.Equal(t, request.QANotResolved, got.QA)

	_, err = w.SetQAStatus(context.Background(), r.ID, "maybe")
	assert.ErrorIs(t, err, request.ErrValidation)
	_, err = w.SetQAStatus(context.Background(), "nope", request.QAResolved)
	assert.ErrorIs(t, err, request.ErrNotFound)
}

func TestOpen_ResumesFromArchive(t *testing.T) {
	ctx := context.Background()
	store := archive.NewMemoryStore()

	first := newWorkbench(t, Config{Archive: store})
	submitReady(t, first, textInput(request.CategoryGraphicsUI, "darker"))
	_, err := first.TriggerBuild(ctx)
	require.NoError(t, err)

	second := newWorkbench(t, Config{Archive: store})
	assert.Equal(t, "#000000", second.CurrentConfig().Visual.BackgroundColor)
	assert.Empty(t, second.ListQueue(), "the active queue is not persisted")
}

func TestOpen_RequiresCollaborators(t *testing.T) {
	_, err := Open(context.Background(), Config{Reasoner: &fakeReasoner{}}, nil)
	assert.Error(t, err)
}

func TestWorkbench_Events(t *testing.T) {
	w := newWorkbench(t, Config{})
	events, cancel := w.Subscribe()
	defer cancel()

	r, err := w.Submit(textInput(request.CategoryGameDesign, "faster"))
	require.NoError(t, err)
	w.Wait()

	var got []Event
	for len(events) > 0 {
		got = append(got, <-events)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, StepDraft, got[0].Step)
	assert.Equal(t, r.ID, got[0].RequestID)

	last := got[len(got)-1]
	assert.Equal(t, StepAnalyze, last.Step)
	assert.Equal(t, ProgressComplete, last.Status)
	assert.False(t, last.Time.IsZero())
}

func TestWorkbench_SuggestPrompts(t *testing.T) {
	w := newWorkbench(t, Config{})

	got, err := w.SuggestPrompts(context.Background(), "gold cards", nil)
	require.NoError(t, err)
	assert.Len(t, got, reasoning.SuggestionCount)

	_, err = w.SuggestPrompts(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, request.ErrValidation)
}
