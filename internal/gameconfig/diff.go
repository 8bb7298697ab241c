package gameconfig

import (
	"fmt"

	"github.com/wI2L/jsondiff"
)

// Change is one JSON-patch style operation between two snapshots.
type Change struct {
	Op    string `json:"op" yaml:"op"`
	Path  string `json:"path" yaml:"path"`
	From  string `json:"from,omitempty" yaml:"from,omitempty"`
	Value any    `json:"value,omitempty" yaml:"value,omitempty"`
}

// Diff lists the changes that turn before into after.
func Diff(before, after *Snapshot) ([]Change, error) {
	patch, err := jsondiff.Compare(before, after)
	if err != nil {
		return nil, fmt.Errorf("gameconfig: diff snapshots: %w", err)
	}
	changes := make([]Change, 0, len(patch))
	for _, op := range patch {
		changes = append(changes, Change{
			Op:    op.Type,
			Path:  op.Path,
			From:  op.From,
			Value: op.Value,
		})
	}
	return changes, nil
}
