// Package archive persists build records: the configuration a build
// consumed, the configuration it produced and the requests it consumed with
// their outcomes and QA labels.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/request"
)

// BuildRecord is one archived build, keyed by build id.
type BuildRecord struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"created_at"`
	Config    *gameconfig.Snapshot     `json:"config"`
	Result    *gameconfig.Snapshot     `json:"result"`
	Summary   string                   `json:"summary"`
	Changes   []gameconfig.Change      `json:"changes,omitempty"`
	Requests  []*request.ChangeRequest `json:"requests"`
}

// Counts returns how many requests were applied and skipped.
func (b *BuildRecord) Counts() (applied, skipped int) {
	for _, r := range b.Requests {
		if r.Outcome == nil {
			continue
		}
		switch r.Outcome.Kind {
		case request.OutcomeApplied:
			applied++
		case request.OutcomeSkipped:
			skipped++
		}
	}
	return applied, skipped
}

// Request returns the archived request with the given id.
func (b *BuildRecord) Request(id string) (*request.ChangeRequest, bool) {
	for _, r := range b.Requests {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of b.
func (b *BuildRecord) Clone() *BuildRecord {
	dst := *b
	if b.Config != nil {
		dst.Config = b.Config.Clone()
	}
	if b.Result != nil {
		dst.Result = b.Result.Clone()
	}
	if b.Changes != nil {
		dst.Changes = make([]gameconfig.Change, len(b.Changes))
		copy(dst.Changes, b.Changes)
	}
	if b.Requests != nil {
		dst.Requests = make([]*request.ChangeRequest, len(b.Requests))
		for i, r := range b.Requests {
			dst.Requests[i] = r.Clone()
		}
	}
	return &dst
}

// Store holds archived builds. Implementations are safe for concurrent use.
type Store interface {
	// Save stores a new record. Saving an existing id is an error.
	Save(ctx context.Context, rec *BuildRecord) error
	// Get returns the record with the given id or an error wrapping
	// request.ErrNotFound.
	Get(ctx context.Context, id string) (*BuildRecord, error)
	// List returns every record, newest first.
	List(ctx context.Context) ([]*BuildRecord, error)
	// Latest returns the newest record, or nil when the archive is empty.
	Latest(ctx context.Context) (*BuildRecord, error)
	// FindRequest returns an archived request by id.
	FindRequest(ctx context.Context, requestID string) (*request.ChangeRequest, error)
	// SetQA applies fn to the QA label of an archived request and returns
	// the updated request.
	SetQA(ctx context.Context, requestID string, fn func(request.QAStatus) request.QAStatus) (*request.ChangeRequest, error)
	Close() error
}

func recordNotFound(id string) error {
	return fmt.Errorf("%w: build %q", request.ErrNotFound, id)
}

func requestNotFound(id string) error {
	return fmt.Errorf("%w: archived request %q", request.ErrNotFound, id)
}

func validateRecord(rec *BuildRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("archive: record has no id")
	}
	for _, r := range rec.Requests {
		if r.State != request.StateBuilt {
			return fmt.Errorf("archive: request %q is %s, not %s", r.ID, r.State, request.StateBuilt)
		}
	}
	return nil
}
