package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"allenpipe/internal/logging"
	"allenpipe/internal/metadata"
	"allenpipe/internal/services"
)

// Release document keys.
const (
	BehaviorSessionsKey = "project_metadata/behavior_session_table.json"
	OphysSessionsKey    = "project_metadata/ophys_session_table.json"
	OphysExperimentsKey = "project_metadata/ophys_experiment_table.json"
	StageParametersKey  = "project_metadata/behavior_stage_parameters.json"
)

// SessionDataKey is the key of the session data document for id.
func SessionDataKey(id int64) string {
	return fmt.Sprintf("session_data/%d.json", id)
}

// Source reads metadata tables from a Bucket.
type Source struct {
	bucket Bucket
	logger *slog.Logger
}

// New wraps bucket as a metadata source.
func New(bucket Bucket, logger *slog.Logger) *Source {
	return &Source{
		bucket: bucket,
		logger: logging.NewComponentLogger(logger, "release"),
	}
}

// BehaviorSessionTable loads the behavior session table.
func (s *Source) BehaviorSessionTable(ctx context.Context) ([]metadata.BehaviorSession, error) {
	var rows []metadata.BehaviorSession
	if err := s.decode(ctx, BehaviorSessionsKey, &rows); err != nil {
		return nil, err
	}
	if err := metadata.ValidateBehaviorSessions(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// OphysSessionTable loads the ophys session table.
func (s *Source) OphysSessionTable(ctx context.Context) ([]metadata.OphysSession, error) {
	var rows []metadata.OphysSession
	if err := s.decode(ctx, OphysSessionsKey, &rows); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOphysSessions(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// OphysExperimentTable loads the ophys experiment table.
func (s *Source) OphysExperimentTable(ctx context.Context) ([]metadata.OphysExperiment, error) {
	var rows []metadata.OphysExperiment
	if err := s.decode(ctx, OphysExperimentsKey, &rows); err != nil {
		return nil, err
	}
	if err := metadata.ValidateOphysExperiments(rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SessionData returns the raw session document for id.
func (s *Source) SessionData(ctx context.Context, id int64) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := s.decode(ctx, SessionDataKey(id), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// BehaviorStageParameters returns stage parameters for the requested foraging
// ids. Releases without a stage parameter document yield empty parameters.
func (s *Source) BehaviorStageParameters(ctx context.Context, foragingIDs []string) (map[string]metadata.StageParameters, error) {
	var all map[string]metadata.StageParameters
	if err := s.decode(ctx, StageParametersKey, &all); err != nil && !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}
	out := make(map[string]metadata.StageParameters, len(foragingIDs))
	for _, id := range foragingIDs {
		params, ok := all[id]
		if !ok || params == nil {
			params = metadata.StageParameters{}
		}
		out[id] = params
	}
	return out, nil
}

func (s *Source) decode(ctx context.Context, key string, target any) error {
	start := time.Now()
	body, err := s.bucket.Open(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(target); err != nil {
		return services.Wrap(services.ErrFetch, "release", "decode", key, err)
	}
	s.logger.Debug("release document loaded",
		logging.String("location", s.bucket.Location()),
		logging.String("key", key),
		logging.Duration("elapsed", time.Since(start)),
	)
	return nil
}
