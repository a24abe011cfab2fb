package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"allenpipe/internal/fetch/warehouse"
	"allenpipe/internal/metadata"
	"allenpipe/internal/services"
)

// Snapshot reads every table of src, the stage parameters of every foraging
// id, and the session document of every ophys session. Sessions without a
// document and foraging ids without parameters are left out.
func Snapshot(ctx context.Context, src API) (warehouse.Tables, error) {
	var tables warehouse.Tables
	var err error
	if tables.Behavior, err = src.BehaviorSessionTable(ctx); err != nil {
		return warehouse.Tables{}, err
	}
	if tables.Sessions, err = src.OphysSessionTable(ctx); err != nil {
		return warehouse.Tables{}, err
	}
	if tables.Experiments, err = src.OphysExperimentTable(ctx); err != nil {
		return warehouse.Tables{}, err
	}

	var foragingIDs []string
	for _, row := range tables.Behavior {
		if row.ForagingID != nil && *row.ForagingID != "" {
			foragingIDs = append(foragingIDs, *row.ForagingID)
		}
	}
	slices.Sort(foragingIDs)
	foragingIDs = slices.Compact(foragingIDs)

	tables.StageParameters = map[string]metadata.StageParameters{}
	if len(foragingIDs) > 0 {
		params, err := src.BehaviorStageParameters(ctx, foragingIDs)
		if err != nil {
			return warehouse.Tables{}, err
		}
		for id, p := range params {
			if len(p) > 0 {
				tables.StageParameters[id] = p
			}
		}
	}

	tables.SessionData = map[int64]json.RawMessage{}
	for _, s := range tables.Sessions {
		doc, err := src.SessionData(ctx, s.OphysSessionID)
		if errors.Is(err, services.ErrNotFound) {
			continue
		}
		if err != nil {
			return warehouse.Tables{}, err
		}
		tables.SessionData[s.OphysSessionID] = doc
	}
	return tables, nil
}
