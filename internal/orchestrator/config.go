package orchestrator

import (
	"time"

	"github.com/dusk-indust/adqueue/internal/archive"
	"github.com/dusk-indust/adqueue/internal/gameconfig"
	"github.com/dusk-indust/adqueue/internal/metrics"
	"github.com/dusk-indust/adqueue/internal/reasoning"
)

// DefaultVariations is used when a request asks for variations without a
// count.
const DefaultVariations = 2

// Config holds the collaborators and limits of a Workbench.
type Config struct {
	// Reasoner analyzes requests and suggests prompts. Required.
	Reasoner reasoning.Reasoner

	// Merger synthesizes the configuration at build time. Required.
	Merger reasoning.Merger

	// Imager generates variations. When nil, the variation step fails
	// with a service error.
	Imager reasoning.Imager

	// Archive stores build records. Defaults to a MemoryStore.
	Archive archive.Store

	// Initial is the configuration used until the first build. When nil,
	// the newest archived result is used, then the built-in default.
	Initial *gameconfig.Snapshot

	// Variations is the default variation count.
	Variations int

	// MergeTimeout bounds the merge call. Zero means no deadline.
	MergeTimeout time.Duration

	// Metrics may be nil.
	Metrics *metrics.Metrics

	// Clock overrides time.Now.
	Clock func() time.Time
}
