package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"allenpipe/internal/logging"
	"allenpipe/internal/metadata"
	"allenpipe/internal/services"
)

const behaviorColumns = "behavior_session_id, session_name, date_of_acquisition, specimen_id, session_type, equipment_name, donor_id, full_genotype, sex, age_in_days, foraging_id, mouse_id, reporter_line, driver_line"

const ophysSessionColumns = "ophys_session_id, behavior_session_id, project_code, date_of_acquisition, session_name, session_type, specimen_id"

const experimentColumns = "ophys_experiment_id, ophys_session_id, behavior_session_id, session_type, session_name, date_of_acquisition, experiment_workflow_state, isi_experiment_id, imaging_depth, targeted_structure, published_at"

// BehaviorSessionTable loads every behavior session.
func (s *Store) BehaviorSessionTable(ctx context.Context) ([]metadata.BehaviorSession, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, "SELECT "+behaviorColumns+" FROM behavior_sessions ORDER BY behavior_session_id")
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "behavior sessions", "query", err)
	}
	defer rows.Close()

	var out []metadata.BehaviorSession
	for rows.Next() {
		row, err := scanBehaviorSession(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrFetch, "warehouse", "behavior sessions", "scan", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "behavior sessions", "iterate", err)
	}
	s.logTable("behavior_sessions", len(out), start)
	if err := metadata.ValidateBehaviorSessions(out); err != nil {
		return nil, err
	}
	return out, nil
}

// OphysSessionTable loads every ophys session with its experiments in
// ophys_experiment_id order.
func (s *Store) OphysSessionTable(ctx context.Context) ([]metadata.OphysSession, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, "SELECT "+ophysSessionColumns+" FROM ophys_sessions ORDER BY ophys_session_id")
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys sessions", "query", err)
	}
	defer rows.Close()

	var out []metadata.OphysSession
	index := map[int64]int{}
	for rows.Next() {
		row, err := scanOphysSession(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys sessions", "scan", err)
		}
		index[row.OphysSessionID] = len(out)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys sessions", "iterate", err)
	}
	rows.Close()

	links, err := s.db.QueryContext(ctx, "SELECT ophys_session_id, ophys_experiment_id FROM ophys_experiments ORDER BY ophys_session_id, ophys_experiment_id")
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys sessions", "query experiments", err)
	}
	defer links.Close()
	for links.Next() {
		var sessionID, experimentID int64
		if err := links.Scan(&sessionID, &experimentID); err != nil {
			return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys sessions", "scan experiments", err)
		}
		if i, ok := index[sessionID]; ok {
			out[i].OphysExperimentIDs = append(out[i].OphysExperimentIDs, experimentID)
		}
	}
	if err := links.Err(); err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys sessions", "iterate experiments", err)
	}
	s.logTable("ophys_sessions", len(out), start)
	if err := metadata.ValidateOphysSessions(out); err != nil {
		return nil, err
	}
	return out, nil
}

// OphysExperimentTable loads every ophys experiment with its containers.
func (s *Store) OphysExperimentTable(ctx context.Context) ([]metadata.OphysExperiment, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, "SELECT "+experimentColumns+" FROM ophys_experiments ORDER BY ophys_experiment_id")
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys experiments", "query", err)
	}
	defer rows.Close()

	var out []metadata.OphysExperiment
	index := map[int64]int{}
	for rows.Next() {
		row, err := scanExperiment(rows)
		if err != nil {
			return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys experiments", "scan", err)
		}
		index[row.OphysExperimentID] = len(out)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys experiments", "iterate", err)
	}
	rows.Close()

	containers, err := s.db.QueryContext(ctx, "SELECT ophys_experiment_id, ophys_container_id, container_workflow_state FROM ophys_experiment_containers ORDER BY ophys_experiment_id, position")
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys experiments", "query containers", err)
	}
	defer containers.Close()
	for containers.Next() {
		var experimentID int64
		var c metadata.Container
		if err := containers.Scan(&experimentID, &c.OphysContainerID, &c.ContainerWorkflowState); err != nil {
			return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys experiments", "scan containers", err)
		}
		if i, ok := index[experimentID]; ok {
			out[i].Containers = append(out[i].Containers, c)
		}
	}
	if err := containers.Err(); err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "ophys experiments", "iterate containers", err)
	}
	s.logTable("ophys_experiments", len(out), start)
	if err := metadata.ValidateOphysExperiments(out); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionData returns the stored session document for id.
func (s *Store) SessionData(ctx context.Context, id int64) (json.RawMessage, error) {
	var document string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT document FROM session_data WHERE session_id = ?"), id).Scan(&document)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "warehouse", "session data", fmt.Sprintf("session %d", id), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "session data", fmt.Sprintf("session %d", id), err)
	}
	if !json.Valid([]byte(document)) {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "session data", fmt.Sprintf("session %d holds invalid JSON", id), nil)
	}
	return json.RawMessage(document), nil
}

// BehaviorStageParameters returns the stage parameters of the requested
// foraging sessions. Ids without a row map to empty parameters.
func (s *Store) BehaviorStageParameters(ctx context.Context, foragingIDs []string) (map[string]metadata.StageParameters, error) {
	out := make(map[string]metadata.StageParameters, len(foragingIDs))
	for _, id := range foragingIDs {
		out[id] = metadata.StageParameters{}
	}
	if len(foragingIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(foragingIDs))
	for i, id := range foragingIDs {
		args[i] = id
	}
	query := s.rebind("SELECT foraging_id, parameters FROM behavior_stage_parameters WHERE foraging_id IN (" + placeholders(len(args)) + ")")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "stage parameters", "query", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, services.Wrap(services.ErrFetch, "warehouse", "stage parameters", "scan", err)
		}
		var params metadata.StageParameters
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return nil, services.Wrap(services.ErrFetch, "warehouse", "stage parameters", fmt.Sprintf("foraging %s", id), err)
		}
		if params == nil {
			params = metadata.StageParameters{}
		}
		out[id] = params
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrFetch, "warehouse", "stage parameters", "iterate", err)
	}
	return out, nil
}

func (s *Store) logTable(table string, rows int, start time.Time) {
	s.logger.Debug("warehouse table loaded",
		logging.String(logging.FieldTable, table),
		logging.Int("rows", rows),
		logging.Duration("elapsed", time.Since(start)),
	)
}

func scanBehaviorSession(row scanner) (metadata.BehaviorSession, error) {
	var (
		id            int64
		sessionName   sql.NullString
		date          sql.NullString
		specimenID    sql.NullInt64
		sessionType   sql.NullString
		equipmentName sql.NullString
		donorID       sql.NullInt64
		genotype      sql.NullString
		sex           sql.NullString
		ageInDays     sql.NullInt64
		foragingID    sql.NullString
		mouseID       sql.NullString
		reporterLine  sql.NullString
		driverLine    sql.NullString
	)
	if err := row.Scan(
		&id,
		&sessionName,
		&date,
		&specimenID,
		&sessionType,
		&equipmentName,
		&donorID,
		&genotype,
		&sex,
		&ageInDays,
		&foragingID,
		&mouseID,
		&reporterLine,
		&driverLine,
	); err != nil {
		return metadata.BehaviorSession{}, err
	}

	acquired, err := timePtr("date_of_acquisition", date)
	if err != nil {
		return metadata.BehaviorSession{}, err
	}
	reporters, err := linesFrom("reporter_line", reporterLine)
	if err != nil {
		return metadata.BehaviorSession{}, err
	}
	drivers, err := linesFrom("driver_line", driverLine)
	if err != nil {
		return metadata.BehaviorSession{}, err
	}
	return metadata.BehaviorSession{
		BehaviorSessionID: id,
		SessionName:       stringPtr(sessionName),
		DateOfAcquisition: acquired,
		SpecimenID:        int64Ptr(specimenID),
		SessionType:       stringPtr(sessionType),
		EquipmentName:     stringPtr(equipmentName),
		DonorID:           int64Ptr(donorID),
		FullGenotype:      stringPtr(genotype),
		Sex:               stringPtr(sex),
		AgeInDays:         int64Ptr(ageInDays),
		ForagingID:        stringPtr(foragingID),
		MouseID:           stringPtr(mouseID),
		ReporterLine:      reporters,
		DriverLine:        drivers,
	}, nil
}

func scanOphysSession(row scanner) (metadata.OphysSession, error) {
	var (
		id          int64
		behaviorID  int64
		projectCode sql.NullString
		date        sql.NullString
		sessionName sql.NullString
		sessionType sql.NullString
		specimenID  sql.NullInt64
	)
	if err := row.Scan(&id, &behaviorID, &projectCode, &date, &sessionName, &sessionType, &specimenID); err != nil {
		return metadata.OphysSession{}, err
	}
	acquired, err := timePtr("date_of_acquisition", date)
	if err != nil {
		return metadata.OphysSession{}, err
	}
	return metadata.OphysSession{
		OphysSessionID:    id,
		BehaviorSessionID: behaviorID,
		ProjectCode:       stringPtr(projectCode),
		DateOfAcquisition: acquired,
		SessionName:       stringPtr(sessionName),
		SessionType:       stringPtr(sessionType),
		SpecimenID:        int64Ptr(specimenID),
	}, nil
}

func scanExperiment(row scanner) (metadata.OphysExperiment, error) {
	var (
		id              int64
		sessionID       int64
		behaviorID      int64
		sessionType     sql.NullString
		sessionName     sql.NullString
		date            sql.NullString
		state           string
		isiExperimentID sql.NullInt64
		imagingDepth    sql.NullInt64
		structure       sql.NullString
		publishedAt     sql.NullString
	)
	if err := row.Scan(
		&id,
		&sessionID,
		&behaviorID,
		&sessionType,
		&sessionName,
		&date,
		&state,
		&isiExperimentID,
		&imagingDepth,
		&structure,
		&publishedAt,
	); err != nil {
		return metadata.OphysExperiment{}, err
	}
	acquired, err := timePtr("date_of_acquisition", date)
	if err != nil {
		return metadata.OphysExperiment{}, err
	}
	published, err := timePtr("published_at", publishedAt)
	if err != nil {
		return metadata.OphysExperiment{}, err
	}
	return metadata.OphysExperiment{
		OphysExperimentID:       id,
		OphysSessionID:          sessionID,
		BehaviorSessionID:       behaviorID,
		SessionType:             stringPtr(sessionType),
		SessionName:             stringPtr(sessionName),
		DateOfAcquisition:       acquired,
		ExperimentWorkflowState: state,
		ISIExperimentID:         int64Ptr(isiExperimentID),
		ImagingDepth:            int64Ptr(imagingDepth),
		TargetedStructure:       stringPtr(structure),
		PublishedAt:             published,
	}, nil
}
