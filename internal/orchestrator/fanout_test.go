package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// imagerFunc adapts a function to reasoning.Imager.
type imagerFunc func(ctx context.Context, prompt string, reference []byte) ([]byte, error)

func (f imagerFunc) Generate(ctx context.Context, prompt string, reference []byte) ([]byte, error) {
	return f(ctx, prompt, reference)
}

// eventLog collects progress events from concurrent goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(status ProgressStatus) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Status == status {
			n++
		}
	}
	return n
}

func TestFanOut_AllSucceed(t *testing.T) {
	var calls atomic.Int32
	imager := imagerFunc(func(_ context.Context, prompt string, reference []byte) ([]byte, error) {
		calls.Add(1)
		assert.Equal(t, "gold trim", prompt)
		assert.Equal(t, []byte("ref"), reference)
		return []byte(prompt), nil
	})
	log := &eventLog{}
	f := NewFanOut(imager, log.add)

	images, err := f.Run(context.Background(), "r1", "gold trim", []byte("ref"), 3)
	require.NoError(t, err)
	assert.Len(t, images, 3)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 3, log.count(ProgressPending))
	assert.Equal(t, 3, log.count(ProgressWorking))
	assert.Equal(t, 3, log.count(ProgressComplete))
	assert.Zero(t, log.count(ProgressFailed))
}

func TestFanOut_FirstErrorCancelsOthers(t *testing.T) {
	var calls atomic.Int32
	imager := imagerFunc(func(ctx context.Context, _ string, _ []byte) ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("quota exhausted")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return []byte("late"), nil
		}
	})
	log := &eventLog{}
	f := NewFanOut(imager, log.add)

	start := time.Now()
	images, err := f.Run(context.Background(), "r1", "neon", nil, 4)
	require.Error(t, err)
	assert.Nil(t, images)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.GreaterOrEqual(t, log.count(ProgressFailed), 1)
}

func TestFanOut_EmptyImageFails(t *testing.T) {
	f := NewFanOut(imagerFunc(func(context.Context, string, []byte) ([]byte, error) {
		return nil, nil
	}), nil)

	_, err := f.Run(context.Background(), "r1", "neon", nil, 1)
	assert.ErrorContains(t, err, "came back empty")
}

func TestFanOut_RejectsCount(t *testing.T) {
	f := NewFanOut(imagerFunc(func(context.Context, string, []byte) ([]byte, error) {
		t.Fatal("no call expected")
		return nil, nil
	}), nil)

	for _, n := range []int{0, MaxVariations + 1} {
		_, err := f.Run(context.Background(), "r1", "neon", nil, n)
		assert.Error(t, err)
	}
}
