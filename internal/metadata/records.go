package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"allenpipe/internal/services"
)

// Workflow states reported for experiments and containers.
const (
	StatePassed    = "passed"
	StateFailed    = "failed"
	StatePublished = "published"
)

// Lines holds a genotype line column (reporter_line, driver_line). Sources
// publish it either as a JSON string or as an array of strings.
type Lines []string

// UnmarshalJSON accepts null, a single string, or an array of strings.
func (l *Lines) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	if trimmed[0] == '"' {
		var single string
		if err := json.Unmarshal(trimmed, &single); err != nil {
			return err
		}
		*l = Lines{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return fmt.Errorf("lines: %w", err)
	}
	*l = Lines(many)
	return nil
}

// BehaviorSession is one row of the behavior session table.
type BehaviorSession struct {
	BehaviorSessionID int64      `json:"behavior_session_id"`
	SessionName       *string    `json:"session_name"`
	DateOfAcquisition *time.Time `json:"date_of_acquisition"`
	SpecimenID        *int64     `json:"specimen_id"`
	SessionType       *string    `json:"session_type"`
	EquipmentName     *string    `json:"equipment_name"`
	DonorID           *int64     `json:"donor_id"`
	FullGenotype      *string    `json:"full_genotype"`
	Sex               *string    `json:"sex"`
	AgeInDays         *int64     `json:"age_in_days"`
	ForagingID        *string    `json:"foraging_id"`
	MouseID           *string    `json:"mouse_id"`
	ReporterLine      Lines      `json:"reporter_line"`
	DriverLine        Lines      `json:"driver_line"`
}

// OphysSession is one row of the ophys session table.
type OphysSession struct {
	OphysSessionID     int64      `json:"ophys_session_id"`
	BehaviorSessionID  int64      `json:"behavior_session_id"`
	ProjectCode        *string    `json:"project_code"`
	DateOfAcquisition  *time.Time `json:"date_of_acquisition"`
	SessionName        *string    `json:"session_name"`
	SessionType        *string    `json:"session_type"`
	OphysExperimentIDs []int64    `json:"ophys_experiment_id"`
	SpecimenID         *int64     `json:"specimen_id"`
}

// Container is an ophys container an experiment contributes to, with its
// publication state.
type Container struct {
	OphysContainerID       int64  `json:"ophys_container_id"`
	ContainerWorkflowState string `json:"container_workflow_state"`
}

// OphysExperiment is one row of the ophys experiment table.
type OphysExperiment struct {
	OphysExperimentID       int64       `json:"ophys_experiment_id"`
	OphysSessionID          int64       `json:"ophys_session_id"`
	BehaviorSessionID       int64       `json:"behavior_session_id"`
	SessionType             *string     `json:"session_type"`
	SessionName             *string     `json:"session_name"`
	DateOfAcquisition       *time.Time  `json:"date_of_acquisition"`
	ExperimentWorkflowState string      `json:"experiment_workflow_state"`
	Containers              []Container `json:"containers"`
	ISIExperimentID         *int64      `json:"isi_experiment_id"`
	ImagingDepth            *int64      `json:"imaging_depth"`
	TargetedStructure       *string     `json:"targeted_structure"`
	PublishedAt             *time.Time  `json:"published_at"`
}

// StageParameters is the free-form behavior stage parameter document of one
// foraging session.
type StageParameters map[string]any

// FlashOmitProbability reports the flash_omit_probability parameter when it is
// present and numeric.
func (p StageParameters) FlashOmitProbability() (float64, bool) {
	if p == nil {
		return 0, false
	}
	raw, ok := p["flash_omit_probability"]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// Passed reports whether the experiment itself passed QC.
func (e OphysExperiment) Passed() bool {
	return e.ExperimentWorkflowState == StatePassed
}

// PublishedContainers returns the containers in the published state, in
// their original order.
func (e OphysExperiment) PublishedContainers() []Container {
	var out []Container
	for _, c := range e.Containers {
		if c.ContainerWorkflowState == StatePublished {
			out = append(out, c)
		}
	}
	return out
}

// ValidateBehaviorSessions rejects tables with repeated behavior_session_id values.
func ValidateBehaviorSessions(rows []BehaviorSession) error {
	seen := make(map[int64]struct{}, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.BehaviorSessionID]; dup {
			return services.Wrap(services.ErrValidation, "metadata", "behavior sessions",
				fmt.Sprintf("duplicate behavior_session_id %d", row.BehaviorSessionID), nil)
		}
		seen[row.BehaviorSessionID] = struct{}{}
	}
	return nil
}

// ValidateOphysSessions rejects repeated ophys_session_id values and
// experiments claimed by more than one session.
func ValidateOphysSessions(rows []OphysSession) error {
	sessions := make(map[int64]struct{}, len(rows))
	owner := make(map[int64]int64)
	for _, row := range rows {
		if _, dup := sessions[row.OphysSessionID]; dup {
			return services.Wrap(services.ErrValidation, "metadata", "ophys sessions",
				fmt.Sprintf("duplicate ophys_session_id %d", row.OphysSessionID), nil)
		}
		sessions[row.OphysSessionID] = struct{}{}
		for _, expID := range row.OphysExperimentIDs {
			if prev, ok := owner[expID]; ok && prev != row.OphysSessionID {
				return services.Wrap(services.ErrValidation, "metadata", "ophys sessions",
					fmt.Sprintf("ophys_experiment_id %d claimed by sessions %d and %d", expID, prev, row.OphysSessionID), nil)
			}
			owner[expID] = row.OphysSessionID
		}
	}
	return nil
}

// ValidateOphysExperiments rejects repeated ophys_experiment_id values.
func ValidateOphysExperiments(rows []OphysExperiment) error {
	seen := make(map[int64]int64, len(rows))
	for _, row := range rows {
		if prev, dup := seen[row.OphysExperimentID]; dup {
			msg := fmt.Sprintf("duplicate ophys_experiment_id %d", row.OphysExperimentID)
			if prev != row.OphysSessionID {
				msg = fmt.Sprintf("ophys_experiment_id %d claimed by sessions %d and %d", row.OphysExperimentID, prev, row.OphysSessionID)
			}
			return services.Wrap(services.ErrValidation, "metadata", "ophys experiments", msg, nil)
		}
		seen[row.OphysExperimentID] = row.OphysSessionID
	}
	return nil
}
