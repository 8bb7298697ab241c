// Package queue owns the active set of change requests. All mutations go
// through a single mutex and recompute conflict flags over the full
// contents before the lock is released.
package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/dusk-indust/adqueue/internal/request"
)

// Queue is a concurrency-safe in-memory store of active change requests.
// Requests are kept in a map keyed by ID with a separate slice maintaining
// insertion order for deterministic listings.
type Queue struct {
	mu        sync.Mutex
	items     map[string]*request.ChangeRequest
	order     []string
	conflicts []Conflict

	// reserved holds the ids of requests a running build has claimed.
	reserved map[string]bool
	building bool

	now func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New returns an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		items:    make(map[string]*request.ChangeRequest),
		order:    make([]string, 0),
		reserved: make(map[string]bool),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Add stores a new drafting request. The queue keeps its own copy.
func (q *Queue) Add(r *request.ChangeRequest) (*request.ChangeRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if r.ID == "" {
		return nil, fmt.Errorf("queue: request has no id")
	}
	if _, exists := q.items[r.ID]; exists {
		return nil, fmt.Errorf("queue: request %q already exists", r.ID)
	}
	if r.State != request.StateDrafting {
		return nil, fmt.Errorf("%w: new requests start in %s, got %s",
			request.ErrInvalidTransition, request.StateDrafting, r.State)
	}
	if err := checkInvariants(r, r); err != nil {
		return nil, err
	}

	stored := r.Clone()
	now := q.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	q.items[stored.ID] = stored
	q.order = append(q.order, stored.ID)
	q.recompute()
	return stored.Clone(), nil
}

// Get returns a deep copy of the request with the given ID.
func (q *Queue) Get(id string) (*request.ChangeRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.items[id]
	if !ok {
		return nil, notFound(id)
	}
	return r.Clone(), nil
}

// List returns deep copies of every active request in insertion order.
func (q *Queue) List() []*request.ChangeRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*request.ChangeRequest, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.items[id].Clone())
	}
	return out
}

// Len returns the number of active requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Conflicts returns the findings of the last recompute.
func (q *Queue) Conflicts() []Conflict {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Conflict, len(q.conflicts))
	copy(out, q.conflicts)
	return out
}

// Update applies fn to a copy of the request under the lock. The copy
// replaces the stored request only when fn succeeds and the result passes
// the lifecycle checks, so a failed update leaves the queue untouched.
func (q *Queue) Update(id string, fn func(*request.ChangeRequest) error) (*request.ChangeRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.items[id]
	if !ok {
		return nil, notFound(id)
	}
	return q.apply(cur, fn)
}

// Complete applies the result of an asynchronous call. It is a no-op,
// reporting false, when the request was deleted or resubmitted after the
// call started.
func (q *Queue) Complete(id string, attempt int, fn func(*request.ChangeRequest) error) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.items[id]
	if !ok || cur.Attempt != attempt {
		return false, nil
	}
	if _, err := q.apply(cur, fn); err != nil {
		return false, err
	}
	return true, nil
}

// apply must be called with q.mu held.
func (q *Queue) apply(cur *request.ChangeRequest, fn func(*request.ChangeRequest) error) (*request.ChangeRequest, error) {
	if q.reserved[cur.ID] {
		return nil, fmt.Errorf("%w: request %q is part of a running build", request.ErrBuildInProgress, cur.ID)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := checkInvariants(cur, next); err != nil {
		return nil, err
	}
	if next.State == request.StateBuilt {
		return nil, fmt.Errorf("%w: requests reach %s only through a build", request.ErrInvalidTransition, request.StateBuilt)
	}
	next.UpdatedAt = q.now()
	q.items[cur.ID] = next
	q.recompute()
	return next.Clone(), nil
}

// Delete removes a request from the active queue and returns it. Requests
// claimed by a running build cannot be deleted.
func (q *Queue) Delete(id string) (*request.ChangeRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.items[id]
	if !ok {
		return nil, notFound(id)
	}
	if q.reserved[id] {
		return nil, fmt.Errorf("%w: request %q is part of a running build", request.ErrBuildInProgress, id)
	}
	delete(q.items, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	q.recompute()
	return r, nil
}

// Reserve claims every ready request for a build and returns copies in
// insertion order. Only one build may hold a reservation at a time.
func (q *Queue) Reserve() ([]*request.ChangeRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.building {
		return nil, request.ErrBuildInProgress
	}
	var ready []*request.ChangeRequest
	for _, id := range q.order {
		r := q.items[id]
		if r.State == request.StateReady {
			ready = append(ready, r.Clone())
		}
	}
	if len(ready) == 0 {
		return nil, request.ErrNothingToBuild
	}
	q.building = true
	for _, r := range ready {
		q.reserved[r.ID] = true
	}
	return ready, nil
}

// Release drops the current reservation without changing any request.
func (q *Queue) Release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.building = false
	clear(q.reserved)
}

// Commit moves every reserved request to built, tags it with its build id
// and outcome, removes it from the active queue and returns the archived
// copies. Reserved requests missing from outcomes are reported as skipped.
func (q *Queue) Commit(buildID string, outcomes map[string]request.Outcome) ([]*request.ChangeRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.building {
		return nil, fmt.Errorf("queue: commit without a reservation")
	}

	for id := range q.reserved {
		r, ok := q.items[id]
		if !ok {
			return nil, fmt.Errorf("queue: reserved request %q vanished", id)
		}
		if err := checkTransition(r.State, request.StateBuilt); err != nil {
			return nil, err
		}
	}

	now := q.now()
	var built []*request.ChangeRequest
	kept := q.order[:0]
	for _, id := range q.order {
		if !q.reserved[id] {
			kept = append(kept, id)
			continue
		}
		r := q.items[id]
		out, ok := outcomes[id]
		if !ok {
			out = request.Skipped("no outcome reported")
		}
		r.State = request.StateBuilt
		r.BuildID = buildID
		r.Outcome = &out
		r.Conflict = false
		r.UpdatedAt = now
		built = append(built, r)
		delete(q.items, id)
	}
	q.order = kept
	q.building = false
	clear(q.reserved)
	q.recompute()
	return built, nil
}

// Building reports whether a build currently holds a reservation.
func (q *Queue) Building() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.building
}

// recompute refreshes conflict flags and findings. Must be called with
// q.mu held.
func (q *Queue) recompute() {
	all := make([]*request.ChangeRequest, 0, len(q.order))
	for _, id := range q.order {
		all = append(all, q.items[id])
	}
	flags := DetectConflicts(all)
	for _, r := range all {
		r.Conflict = flags[r.ID]
	}
	q.conflicts = Analyze(all)
}

func notFound(id string) error {
	return fmt.Errorf("%w: request %q", request.ErrNotFound, id)
}
