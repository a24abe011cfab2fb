package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"allenpipe/internal/metadata"
	"allenpipe/internal/services"
)

// Tables is a complete set of project metadata for Import.
type Tables struct {
	Behavior        []metadata.BehaviorSession
	Sessions        []metadata.OphysSession
	Experiments     []metadata.OphysExperiment
	StageParameters map[string]metadata.StageParameters
	SessionData     map[int64]json.RawMessage
}

// Import replaces the warehouse contents with tables in one transaction.
func (s *Store) Import(ctx context.Context, tables Tables) error {
	if err := metadata.ValidateBehaviorSessions(tables.Behavior); err != nil {
		return err
	}
	if err := metadata.ValidateOphysSessions(tables.Sessions); err != nil {
		return err
	}
	if err := metadata.ValidateOphysExperiments(tables.Experiments); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrWrite, "warehouse", "import", "begin tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range []string{"ophys_experiment_containers", "ophys_experiments", "ophys_sessions", "behavior_sessions", "behavior_stage_parameters", "session_data"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return services.Wrap(services.ErrWrite, "warehouse", "import", "clear "+table, err)
		}
	}

	if err := s.insertBehavior(ctx, tx, tables.Behavior); err != nil {
		return err
	}
	if err := s.insertSessions(ctx, tx, tables.Sessions); err != nil {
		return err
	}
	if err := s.insertExperiments(ctx, tx, tables.Experiments); err != nil {
		return err
	}
	if err := s.insertStageParameters(ctx, tx, tables.StageParameters); err != nil {
		return err
	}
	if err := s.insertSessionData(ctx, tx, tables.SessionData); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrWrite, "warehouse", "import", "commit", err)
	}
	s.logger.Info("warehouse import complete",
		"behavior_sessions", len(tables.Behavior),
		"ophys_sessions", len(tables.Sessions),
		"ophys_experiments", len(tables.Experiments),
	)
	return nil
}

func (s *Store) insertBehavior(ctx context.Context, tx *sql.Tx, rows []metadata.BehaviorSession) error {
	query := s.rebind("INSERT INTO behavior_sessions (" + behaviorColumns + ") VALUES (" + placeholders(14) + ")")
	for _, row := range rows {
		reporters, err := nullableLines(row.ReporterLine)
		if err != nil {
			return services.Wrap(services.ErrWrite, "warehouse", "import", "encode reporter_line", err)
		}
		drivers, err := nullableLines(row.DriverLine)
		if err != nil {
			return services.Wrap(services.ErrWrite, "warehouse", "import", "encode driver_line", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			row.BehaviorSessionID,
			nullableString(row.SessionName),
			nullableTime(row.DateOfAcquisition),
			nullableInt64(row.SpecimenID),
			nullableString(row.SessionType),
			nullableString(row.EquipmentName),
			nullableInt64(row.DonorID),
			nullableString(row.FullGenotype),
			nullableString(row.Sex),
			nullableInt64(row.AgeInDays),
			nullableString(row.ForagingID),
			nullableString(row.MouseID),
			reporters,
			drivers,
		); err != nil {
			return services.Wrap(services.ErrWrite, "warehouse", "import", fmt.Sprintf("behavior session %d", row.BehaviorSessionID), err)
		}
	}
	return nil
}

func (s *Store) insertSessions(ctx context.Context, tx *sql.Tx, rows []metadata.OphysSession) error {
	query := s.rebind("INSERT INTO ophys_sessions (" + ophysSessionColumns + ") VALUES (" + placeholders(7) + ")")
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, query,
			row.OphysSessionID,
			row.BehaviorSessionID,
			nullableString(row.ProjectCode),
			nullableTime(row.DateOfAcquisition),
			nullableString(row.SessionName),
			nullableString(row.SessionType),
			nullableInt64(row.SpecimenID),
		); err != nil {
			return services.Wrap(services.ErrWrite, "warehouse", "import", fmt.Sprintf("ophys session %d", row.OphysSessionID), err)
		}
	}
	return nil
}

func (s *Store) insertExperiments(ctx context.Context, tx *sql.Tx, rows []metadata.OphysExperiment) error {
	query := s.rebind("INSERT INTO ophys_experiments (" + experimentColumns + ") VALUES (" + placeholders(11) + ")")
	containerQuery := s.rebind("INSERT INTO ophys_experiment_containers (ophys_experiment_id, ophys_container_id, container_workflow_state, position) VALUES (?, ?, ?, ?)")
	for _, row := range rows {
		if _, err := tx.ExecContext(ctx, query,
			row.OphysExperimentID,
			row.OphysSessionID,
			row.BehaviorSessionID,
			nullableString(row.SessionType),
			nullableString(row.SessionName),
			nullableTime(row.DateOfAcquisition),
			row.ExperimentWorkflowState,
			nullableInt64(row.ISIExperimentID),
			nullableInt64(row.ImagingDepth),
			nullableString(row.TargetedStructure),
			nullableTime(row.PublishedAt),
		); err != nil {
			return services.Wrap(services.ErrWrite, "warehouse", "import", fmt.Sprintf("ophys experiment %d", row.OphysExperimentID), err)
		}
		for position, c := range row.Containers {
			if _, err := tx.ExecContext(ctx, containerQuery, row.OphysExperimentID, c.OphysContainerID, c.ContainerWorkflowState, position); err != nil {
				return services.Wrap(services.ErrWrite, "warehouse", "import", fmt.Sprintf("container %d of experiment %d", c.OphysContainerID, row.OphysExperimentID), err)
			}
		}
	}
	return nil
}

func (s *Store) insertStageParameters(ctx context.Context, tx *sql.Tx, params map[string]metadata.StageParameters) error {
	query := s.rebind("INSERT INTO behavior_stage_parameters (foraging_id, parameters) VALUES (?, ?)")
	ids := make([]string, 0, len(params))
	for id := range params {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		data, err := json.Marshal(params[id])
		if err != nil {
			return services.Wrap(services.ErrWrite, "warehouse", "import", "encode stage parameters "+id, err)
		}
		if _, err := tx.ExecContext(ctx, query, id, string(data)); err != nil {
			return services.Wrap(services.ErrWrite, "warehouse", "import", "stage parameters "+id, err)
		}
	}
	return nil
}

func (s *Store) insertSessionData(ctx context.Context, tx *sql.Tx, docs map[int64]json.RawMessage) error {
	query := s.rebind("INSERT INTO session_data (session_id, document) VALUES (?, ?)")
	ids := make([]int64, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, query, id, string(docs[id])); err != nil {
			return services.Wrap(services.ErrWrite, "warehouse", "import", fmt.Sprintf("session data %d", id), err)
		}
	}
	return nil
}
