package fetch

import (
	"context"
	"encoding/json"

	"allenpipe/internal/metadata"
)

// API is the capability set the project cache needs from a metadata source.
type API interface {
	BehaviorSessionTable(ctx context.Context) ([]metadata.BehaviorSession, error)
	OphysSessionTable(ctx context.Context) ([]metadata.OphysSession, error)
	OphysExperimentTable(ctx context.Context) ([]metadata.OphysExperiment, error)
	// SessionData returns the opaque session document for id.
	SessionData(ctx context.Context, id int64) (json.RawMessage, error)
	// BehaviorStageParameters returns stage parameters keyed by foraging id.
	// Unknown ids map to empty parameter sets.
	BehaviorStageParameters(ctx context.Context, foragingIDs []string) (map[string]metadata.StageParameters, error)
}

// Closer is implemented by sources holding connections.
type Closer interface {
	Close() error
}
