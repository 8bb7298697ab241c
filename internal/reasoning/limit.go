package reasoning

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/dusk-indust/adqueue/internal/request"
)

// Limited wraps a Reasoner and an Imager so every outbound call waits on a
// shared token bucket and runs under a per-call timeout. Merge calls are not
// limited; the build applies its own timeout.
type Limited struct {
	reasoner Reasoner
	imager   Imager
	limiter  *rate.Limiter
	timeout  time.Duration
}

// Compile-time interface checks.
var (
	_ Reasoner = (*Limited)(nil)
	_ Imager   = (*Limited)(nil)
)

// NewLimited allows perMinute calls per minute with a burst of a tenth of
// that, at least one. A zero perMinute disables limiting and a zero timeout
// disables the per-call deadline.
func NewLimited(reasoner Reasoner, imager Imager, perMinute int, timeout time.Duration) *Limited {
	limit := rate.Inf
	burst := 1
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60.0)
		burst = max(1, perMinute/10)
	}
	return &Limited{
		reasoner: reasoner,
		imager:   imager,
		limiter:  rate.NewLimiter(limit, burst),
		timeout:  timeout,
	}
}

func (l *Limited) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: rate limiter: %w", request.ErrService, err)
	}
	if l.timeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	return ctx, cancel, nil
}

// Analyze implements Reasoner.
func (l *Limited) Analyze(ctx context.Context, call Call) (Result, error) {
	ctx, cancel, err := l.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	defer cancel()
	return l.reasoner.Analyze(ctx, call)
}

// SuggestPrompts implements Reasoner.
func (l *Limited) SuggestPrompts(ctx context.Context, rough string, screenshot []byte) ([]string, error) {
	ctx, cancel, err := l.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return l.reasoner.SuggestPrompts(ctx, rough, screenshot)
}

// Generate implements Imager.
func (l *Limited) Generate(ctx context.Context, prompt string, reference []byte) ([]byte, error) {
	if l.imager == nil {
		return nil, fmt.Errorf("%w: image generation is not configured", request.ErrService)
	}
	ctx, cancel, err := l.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()
	return l.imager.Generate(ctx, prompt, reference)
}
