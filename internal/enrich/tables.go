package enrich

import (
	"slices"
	"sort"
	"time"

	"allenpipe/internal/metadata"
)

// PriorExposures holds the three prior-exposure columns.
type PriorExposures struct {
	ToSessionType *int `json:"prior_exposures_to_session_type"`
	ToImageSet    *int `json:"prior_exposures_to_image_set"`
	ToOmissions   *int `json:"prior_exposures_to_omissions"`
}

// Subject holds the behavior session columns that are joined onto ophys
// sessions and experiments.
type Subject struct {
	EquipmentName *string  `json:"equipment_name"`
	DonorID       *int64   `json:"donor_id"`
	FullGenotype  *string  `json:"full_genotype"`
	ReporterLine  *string  `json:"reporter_line"`
	DriverLine    []string `json:"driver_line"`
	CreLine       *string  `json:"cre_line"`
	Indicator     *string  `json:"indicator"`
	Sex           *string  `json:"sex"`
	AgeInDays     *int64   `json:"age_in_days"`
	MouseID       *string  `json:"mouse_id"`
	ForagingID    *string  `json:"foraging_id"`
	PriorExposures
}

// BehaviorSession is one row of the enriched behavior session table.
type BehaviorSession struct {
	BehaviorSessionID   int64      `json:"behavior_session_id"`
	SessionNameBehavior *string    `json:"session_name_behavior"`
	DateOfAcquisition   *time.Time `json:"date_of_acquisition"`
	SpecimenIDBehavior  *int64     `json:"specimen_id_behavior"`
	SessionType         *string    `json:"session_type"`
	SessionNumber       *int       `json:"session_number"`
	ProjectCode         *string    `json:"project_code"`
	OphysSessionID      *int64     `json:"ophys_session_id"`
	SessionNameOphys    *string    `json:"session_name_ophys"`
	OphysExperimentIDs  []int64    `json:"ophys_experiment_id"`
	OphysContainerIDs   []int64    `json:"ophys_container_id"`
	SpecimenIDOphys     *int64     `json:"specimen_id_ophys"`
	Subject
}

// Exposure projects an enriched row back onto its exposure fields.
func (s BehaviorSession) Exposure() Exposure {
	return Exposure{
		BehaviorSessionID: s.BehaviorSessionID,
		MouseID:           s.MouseID,
		DateOfAcquisition: s.DateOfAcquisition,
		SessionType:       s.SessionType,
		ForagingID:        s.ForagingID,
	}
}

// OphysSession is one row of the enriched ophys session table.
type OphysSession struct {
	OphysSessionID     int64      `json:"ophys_session_id"`
	BehaviorSessionID  int64      `json:"behavior_session_id"`
	ProjectCode        *string    `json:"project_code"`
	DateOfAcquisition  *time.Time `json:"date_of_acquisition"`
	SessionName        *string    `json:"session_name"`
	SessionType        *string    `json:"session_type"`
	SessionNumber      *int       `json:"session_number"`
	OphysExperimentIDs []int64    `json:"ophys_experiment_id"`
	OphysContainerIDs  []int64    `json:"ophys_container_id"`
	SpecimenID         *int64     `json:"specimen_id"`
	Subject
}

// OphysSessionByExperiment is an ophys session row indexed by one of its
// experiments.
type OphysSessionByExperiment struct {
	OphysExperimentID int64 `json:"ophys_experiment_id"`
	OphysSession
}

// OphysExperiment is one row of the enriched ophys experiment table.
type OphysExperiment struct {
	metadata.OphysExperiment
	Subject
	SessionNumber   *int    `json:"session_number"`
	ExperienceLevel string  `json:"experience_level"`
	Passive         *bool   `json:"passive"`
	ImageSet        *string `json:"image_set"`
}

// Subjects computes the joinable behavior columns for every behavior
// session, keyed by behavior_session_id.
func Subjects(rows []metadata.BehaviorSession, params map[string]metadata.StageParameters) map[int64]Subject {
	exposures := make([]Exposure, len(rows))
	for i, row := range rows {
		exposures[i] = ExposureOf(row)
	}
	toSessionType := PriorExposuresToSessionType(exposures)
	toImageSet := PriorExposuresToImageSet(exposures)
	toOmissions := PriorExposuresToOmissions(exposures, params)

	out := make(map[int64]Subject, len(rows))
	for i, row := range rows {
		reporter := metadata.ParseReporterLine(row.ReporterLine)
		out[row.BehaviorSessionID] = Subject{
			EquipmentName: row.EquipmentName,
			DonorID:       row.DonorID,
			FullGenotype:  row.FullGenotype,
			ReporterLine:  reporter,
			DriverLine:    slices.Clone([]string(row.DriverLine)),
			CreLine:       metadata.ParseCreLine(row.FullGenotype),
			Indicator:     metadata.ParseIndicator(reporter),
			Sex:           row.Sex,
			AgeInDays:     row.AgeInDays,
			MouseID:       row.MouseID,
			ForagingID:    row.ForagingID,
			PriorExposures: PriorExposures{
				ToSessionType: toSessionType[i],
				ToImageSet:    toImageSet[i],
				ToOmissions:   toOmissions[i],
			},
		}
	}
	return out
}

// BehaviorSessions builds the enriched behavior session table, ordered by
// behavior_session_id. Sessions with an imaging counterpart carry its ophys
// columns; the container list only names published containers of passed
// experiments.
func BehaviorSessions(behavior []metadata.BehaviorSession, sessions []metadata.OphysSession, experiments []metadata.OphysExperiment, params map[string]metadata.StageParameters) []BehaviorSession {
	subjects := Subjects(behavior, params)
	byBehavior := make(map[int64]metadata.OphysSession, len(sessions))
	for _, s := range sessions {
		byBehavior[s.BehaviorSessionID] = s
	}
	experimentsByID := indexExperiments(experiments)

	out := make([]BehaviorSession, 0, len(behavior))
	for _, row := range behavior {
		enriched := BehaviorSession{
			BehaviorSessionID:   row.BehaviorSessionID,
			SessionNameBehavior: row.SessionName,
			DateOfAcquisition:   row.DateOfAcquisition,
			SpecimenIDBehavior:  row.SpecimenID,
			SessionType:         row.SessionType,
			SessionNumber:       metadata.SessionNumber(row.SessionType),
			Subject:             subjects[row.BehaviorSessionID],
		}
		if ophys, ok := byBehavior[row.BehaviorSessionID]; ok {
			ophysID := ophys.OphysSessionID
			enriched.ProjectCode = ophys.ProjectCode
			enriched.OphysSessionID = &ophysID
			enriched.SessionNameOphys = ophys.SessionName
			enriched.OphysExperimentIDs = sortedUnique(ophys.OphysExperimentIDs)
			enriched.OphysContainerIDs = publishedContainerIDs(ophys.OphysExperimentIDs, experimentsByID)
			enriched.SpecimenIDOphys = ophys.SpecimenID
		}
		out = append(out, enriched)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BehaviorSessionID < out[j].BehaviorSessionID })
	return out
}

// OphysSessions builds the enriched ophys session table, ordered by
// ophys_session_id.
func OphysSessions(sessions []metadata.OphysSession, behavior []metadata.BehaviorSession, experiments []metadata.OphysExperiment, params map[string]metadata.StageParameters) []OphysSession {
	subjects := Subjects(behavior, params)
	experimentsByID := indexExperiments(experiments)

	out := make([]OphysSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, OphysSession{
			OphysSessionID:     s.OphysSessionID,
			BehaviorSessionID:  s.BehaviorSessionID,
			ProjectCode:        s.ProjectCode,
			DateOfAcquisition:  s.DateOfAcquisition,
			SessionName:        s.SessionName,
			SessionType:        s.SessionType,
			SessionNumber:      metadata.SessionNumber(s.SessionType),
			OphysExperimentIDs: slices.Clone(s.OphysExperimentIDs),
			OphysContainerIDs:  publishedContainerIDs(s.OphysExperimentIDs, experimentsByID),
			SpecimenID:         s.SpecimenID,
			Subject:            subjects[s.BehaviorSessionID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OphysSessionID < out[j].OphysSessionID })
	return out
}

// OphysSessionsByExperiment explodes an ophys session table into one row per
// experiment, ordered by ophys_experiment_id.
func OphysSessionsByExperiment(rows []OphysSession) []OphysSessionByExperiment {
	var out []OphysSessionByExperiment
	for _, row := range rows {
		for _, expID := range row.OphysExperimentIDs {
			out = append(out, OphysSessionByExperiment{OphysExperimentID: expID, OphysSession: row})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OphysExperimentID < out[j].OphysExperimentID })
	return out
}

// OphysExperiments builds the enriched ophys experiment table, ordered by
// ophys_experiment_id. The full table is returned; use PassedOnly for the
// released view.
func OphysExperiments(experiments []metadata.OphysExperiment, behavior []metadata.BehaviorSession, params map[string]metadata.StageParameters) []OphysExperiment {
	subjects := Subjects(behavior, params)
	out := make([]OphysExperiment, 0, len(experiments))
	for _, e := range experiments {
		raw := e
		raw.Containers = slices.Clone(e.Containers)
		out = append(out, OphysExperiment{
			OphysExperiment: raw,
			Subject:         subjects[e.BehaviorSessionID],
		})
	}
	out = AddSessionColumns(out)
	sort.Slice(out, func(i, j int) bool { return out[i].OphysExperimentID < out[j].OphysExperimentID })
	return out
}

// AddSessionColumns returns a copy of rows with session_number,
// experience_level, passive, and image_set recomputed from each row's session
// type and prior exposures.
func AddSessionColumns(rows []OphysExperiment) []OphysExperiment {
	out := make([]OphysExperiment, len(rows))
	for i, row := range rows {
		row.SessionNumber = metadata.SessionNumber(row.SessionType)
		row.ExperienceLevel = ExperienceLevel(row.SessionNumber, row.ToImageSet)
		row.Passive = Passive(row.SessionType)
		row.ImageSet = metadata.ImageSet(row.SessionType)
		out[i] = row
	}
	return out
}

// InPassedView reports whether an experiment belongs in the passed-only view:
// it passed and at least one of its containers is published.
func InPassedView(e metadata.OphysExperiment) bool {
	return e.Passed() && len(e.PublishedContainers()) > 0
}

// PassedOnly keeps the experiments in the passed-only view and narrows each
// one's containers to the published ones.
func PassedOnly(rows []OphysExperiment) []OphysExperiment {
	out := make([]OphysExperiment, 0, len(rows))
	for _, row := range rows {
		if !InPassedView(row.OphysExperiment) {
			continue
		}
		row.Containers = row.PublishedContainers()
		out = append(out, row)
	}
	return out
}

func indexExperiments(experiments []metadata.OphysExperiment) map[int64]metadata.OphysExperiment {
	out := make(map[int64]metadata.OphysExperiment, len(experiments))
	for _, e := range experiments {
		out[e.OphysExperimentID] = e
	}
	return out
}

func publishedContainerIDs(experimentIDs []int64, experiments map[int64]metadata.OphysExperiment) []int64 {
	ids := make([]int64, 0)
	for _, expID := range experimentIDs {
		e, ok := experiments[expID]
		if !ok || !e.Passed() {
			continue
		}
		for _, c := range e.PublishedContainers() {
			ids = append(ids, c.OphysContainerID)
		}
	}
	return sortedUnique(ids)
}

func sortedUnique(ids []int64) []int64 {
	out := slices.Clone(ids)
	if out == nil {
		out = make([]int64, 0)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
