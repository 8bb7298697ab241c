// Package orchestrator drives change requests through their asynchronous
// processing steps and merges ready requests into a new configuration at
// build time.
package orchestrator

import (
	"fmt"
	"time"
)

// Step identifies one stage of request handling that reports progress.
type Step int

const (
	StepDraft Step = iota
	StepVariations
	StepAnalyze
	StepBuild
	StepDelete
)

var stepNames = [...]string{
	"draft",
	"variations",
	"analyze",
	"build",
	"delete",
}

func (s Step) String() string {
	if s >= 0 && int(s) < len(stepNames) {
		return stepNames[s]
	}
	return "unknown"
}

// MarshalText renders the step by name in JSON event payloads.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a step name.
func (s *Step) UnmarshalText(text []byte) error {
	for i, name := range stepNames {
		if name == string(text) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("orchestrator: unknown step %q", text)
}

// Event is emitted to subscribers whenever a request or build moves.
type Event struct {
	Step      Step           `json:"step"`
	RequestID string         `json:"request_id,omitempty"`
	BuildID   string         `json:"build_id,omitempty"`
	Section   string         `json:"section,omitempty"`
	Status    ProgressStatus `json:"status"`
	Message   string         `json:"message,omitempty"`
	Time      time.Time      `json:"time"`
}

// ProgressStatus is the state of a step.
type ProgressStatus string

const (
	ProgressPending  ProgressStatus = "pending"
	ProgressWorking  ProgressStatus = "working"
	ProgressComplete ProgressStatus = "complete"
	ProgressFailed   ProgressStatus = "failed"
)
