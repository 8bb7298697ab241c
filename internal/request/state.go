package request

// State is the lifecycle state of a change request.
type State string

const (
	StateDrafting          State = "drafting"
	StateProcessing        State = "processing"
	StateAwaitingSelection State = "awaiting_selection"
	StateAnnotating        State = "annotating"
	StateReady             State = "ready"
	StateBuilt             State = "built"
)

// IsTerminal returns true once the request has been consumed by a build.
func (s State) IsTerminal() bool {
	return s == StateBuilt
}

// CategoryLocked reports whether the category may no longer change.
func (s State) CategoryLocked() bool {
	return s != StateDrafting
}

// Complexity is the advisory difficulty hint returned by the reasoning service.
type Complexity string

const (
	ComplexityEasy          Complexity = "easy"
	ComplexityModerate      Complexity = "moderate"
	ComplexityRisky         Complexity = "risky"
	ComplexityNotApplicable Complexity = "n/a"
)

// ParseComplexity maps a service-supplied string to a Complexity, falling
// back to n/a for anything unrecognised.
func ParseComplexity(s string) Complexity {
	switch Complexity(s) {
	case ComplexityEasy, ComplexityModerate, ComplexityRisky:
		return Complexity(s)
	}
	return ComplexityNotApplicable
}

// QAStatus is the operator's post-build review label.
type QAStatus string

const (
	QAUnset       QAStatus = ""
	QAResolved    QAStatus = "resolved"
	QANotResolved QAStatus = "not_resolved"
)

// ParseQAStatus validates an operator-supplied QA label.
func ParseQAStatus(s string) (QAStatus, error) {
	switch QAStatus(s) {
	case QAResolved, QANotResolved:
		return QAStatus(s), nil
	}
	return QAUnset, &ValidationError{Field: "status", Reason: "must be resolved or not_resolved"}
}

// ToggleQA returns the label after the operator selects next. Selecting the
// active label clears it.
func ToggleQA(current, next QAStatus) QAStatus {
	if current == next {
		return QAUnset
	}
	return next
}

// OutcomeKind is the per-request result of a build.
type OutcomeKind string

const (
	OutcomeApplied OutcomeKind = "applied"
	OutcomeSkipped OutcomeKind = "skipped"
)

// Outcome records what a build did with one request.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

// Applied returns an applied outcome.
func Applied() Outcome { return Outcome{Kind: OutcomeApplied} }

// Skipped returns a skipped outcome with a human-readable reason.
func Skipped(reason string) Outcome { return Outcome{Kind: OutcomeSkipped, Reason: reason} }
