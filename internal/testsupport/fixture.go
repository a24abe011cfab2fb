package testsupport

import (
	"encoding/json"
	"fmt"
	"time"

	"allenpipe/internal/fetch/warehouse"
	"allenpipe/internal/metadata"
)

// Fixture is a small, fully deterministic project: eight behavior sessions
// across two mice, five of them imaged, two experiments per imaging session
// and three containers per experiment.
type Fixture struct {
	Behavior        []metadata.BehaviorSession
	Sessions        []metadata.OphysSession
	Experiments     []metadata.OphysExperiment
	StageParameters map[string]metadata.StageParameters
	SessionData     map[int64]json.RawMessage
}

var fixtureSessionTypes = map[int64]string{
	1: "TRAINING_1_gratings",
	2: "OPHYS_1_images_A",
	3: "OPHYS_1_images_B",
	4: "OPHYS_1_images_A",
	5: "OPHYS_0_images_A_habituation",
	6: "OPHYS_4_images_B",
	7: "OPHYS_1_images_B",
	8: "OPHYS_5_images_B",
}

var fixtureGenotypes = []string{
	"foo-SlcCre",
	"Vip-IRES-Cre/wt;Ai148(TIT2L-GC6f-ICL-tTA2)/wt",
	"bar",
	"foobar",
}

var fixtureDrivers = []metadata.Lines{
	{"aa"},
	{"aa", "bb"},
	{"cc"},
	{"cc", "dd"},
}

// HabituationForagingID is the foraging id of the habituation session whose
// stage parameters enable flash omissions.
const HabituationForagingID = "35"

// NewFixture builds the deterministic project fixture.
func NewFixture() Fixture {
	fx := Fixture{
		StageParameters: map[string]metadata.StageParameters{
			HabituationForagingID: {"flash_omit_probability": 0.05},
		},
		SessionData: map[int64]json.RawMessage{},
	}

	behaviorToOphys := map[int64]int64{}
	ophysID := int64(88)
	for id := int64(1); id <= 8; id++ {
		date := FixtureDate(id)
		fx.Behavior = append(fx.Behavior, metadata.BehaviorSession{
			BehaviorSessionID: id,
			SessionName:       ptr(fmt.Sprintf("session_%d", id)),
			DateOfAcquisition: &date,
			SpecimenID:        ptr(1111 * id),
			SessionType:       ptr(fixtureSessionTypes[id]),
			EquipmentName:     ptr("MESO2.0"),
			DonorID:           ptr(20 + id),
			FullGenotype:      ptr(fixtureGenotypes[id%4]),
			Sex:               ptr([]string{"m", "f"}[id%2]),
			AgeInDays:         ptr(id * 7),
			ForagingID:        ptr(fmt.Sprint(id + 30)),
			MouseID:           ptr(FixtureMouse(id)),
			ReporterLine:      metadata.Lines{fmt.Sprintf("Ai%d(TITL-GCaMP6f)", 90+id)},
			DriverLine:        fixtureDrivers[id%4],
		})
		if (id-1)%3 == 0 {
			continue
		}
		behaviorToOphys[id] = ophysID
		ophysID++
	}

	expID := int64(1000)
	containerID := int64(4000)
	k := int64(0)
	for beh := int64(1); beh <= 8; beh++ {
		oid, ok := behaviorToOphys[beh]
		if !ok {
			continue
		}
		date := FixtureDate(beh)
		session := metadata.OphysSession{
			OphysSessionID:    oid,
			BehaviorSessionID: beh,
			ProjectCode:       ptr("VisualBehaviorMultiscope"),
			DateOfAcquisition: &date,
			SessionName:       ptr(fmt.Sprintf("session_%d", beh)),
			SessionType:       ptr(fixtureSessionTypes[beh]),
			SpecimenID:        ptr(9 * beh),
		}
		for range 2 {
			exp := metadata.OphysExperiment{
				OphysExperimentID:       expID,
				OphysSessionID:          oid,
				BehaviorSessionID:       beh,
				SessionType:             session.SessionType,
				SessionName:             session.SessionName,
				DateOfAcquisition:       &date,
				ExperimentWorkflowState: metadata.StateFailed,
				ISIExperimentID:         ptr(4000 + k),
				ImagingDepth:            ptr(50 + 10*k),
				TargetedStructure:       ptr("VISp"),
				PublishedAt:             &date,
			}
			if k%2 == 0 {
				exp.ExperimentWorkflowState = metadata.StatePassed
			}
			for c := int64(0); c < 3; c++ {
				containerID++
				state := "junk"
				if c == k%3 {
					state = metadata.StatePublished
				}
				exp.Containers = append(exp.Containers, metadata.Container{OphysContainerID: containerID, ContainerWorkflowState: state})
			}
			session.OphysExperimentIDs = append(session.OphysExperimentIDs, expID)
			fx.Experiments = append(fx.Experiments, exp)
			expID++
			k++
		}
		fx.Sessions = append(fx.Sessions, session)
		fx.SessionData[oid] = json.RawMessage(fmt.Sprintf(`{"ophys_session_id":%d}`, oid))
	}
	return fx
}

// FixtureDate is the acquisition date of fixture behavior session id.
func FixtureDate(id int64) time.Time {
	return time.Date(2020, time.February, int(id), 0, 0, 0, 0, time.UTC)
}

// FixtureMouse is the mouse that ran fixture behavior session id.
func FixtureMouse(id int64) string {
	return fmt.Sprint(40 + id%2)
}

func ptr[T any](v T) *T { return &v }

// Tables converts the fixture for warehouse.Import.
func (fx Fixture) Tables() warehouse.Tables {
	return warehouse.Tables{
		Behavior:        fx.Behavior,
		Sessions:        fx.Sessions,
		Experiments:     fx.Experiments,
		StageParameters: fx.StageParameters,
		SessionData:     fx.SessionData,
	}
}
