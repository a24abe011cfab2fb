package metadata_test

import (
	"encoding/json"
	"errors"
	"testing"

	"allenpipe/internal/metadata"
	"allenpipe/internal/services"
)

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func TestParseCreLine(t *testing.T) {
	tests := []struct {
		name     string
		genotype *string
		want     string
	}{
		{name: "single component", genotype: strPtr("foo-SlcCre"), want: "<nil>"},
		{name: "strips wt", genotype: strPtr("Vip-IRES-Cre/wt;Ai148(TIT2L-GC6f-ICL-tTA2)/wt"), want: "Vip-IRES-Cre"},
		{name: "first component kept as is", genotype: strPtr("wt/wt;Ai148(TIT2L-GC6f-ICL-tTA2)/wt"), want: "wt"},
		{name: "no separator", genotype: strPtr("bar"), want: "<nil>"},
		{name: "missing", genotype: nil, want: "<nil>"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := deref(metadata.ParseCreLine(tc.genotype)); got != tc.want {
				t.Fatalf("ParseCreLine = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseReporterAndIndicator(t *testing.T) {
	tests := []struct {
		name          string
		lines         metadata.Lines
		wantReporter  string
		wantIndicator string
	}{
		{name: "gcamp6f", lines: metadata.Lines{"Ai93(TITL-GCaMP6f)"}, wantReporter: "Ai93(TITL-GCaMP6f)", wantIndicator: "GCaMP6f"},
		{name: "short alias", lines: metadata.Lines{"Ai148(TIT2L-GC6f-ICL-tTA2)"}, wantReporter: "Ai148(TIT2L-GC6f-ICL-tTA2)", wantIndicator: "GCaMP6f"},
		{name: "first of several", lines: metadata.Lines{"Ai94(TITL-GCaMP6s)", "Ai93(TITL-GCaMP6f)"}, wantReporter: "Ai94(TITL-GCaMP6s)", wantIndicator: "GCaMP6s"},
		{name: "unknown indicator", lines: metadata.Lines{"Ai14"}, wantReporter: "Ai14", wantIndicator: "<nil>"},
		{name: "empty", lines: nil, wantReporter: "<nil>", wantIndicator: "<nil>"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reporter := metadata.ParseReporterLine(tc.lines)
			if got := deref(reporter); got != tc.wantReporter {
				t.Fatalf("reporter = %q, want %q", got, tc.wantReporter)
			}
			if got := deref(metadata.ParseIndicator(reporter)); got != tc.wantIndicator {
				t.Fatalf("indicator = %q, want %q", got, tc.wantIndicator)
			}
		})
	}
}

func TestSessionTypeParsers(t *testing.T) {
	tests := []struct {
		sessionType  *string
		wantNumber   int
		wantImageSet string
		wantOphys    bool
	}{
		{sessionType: strPtr("OPHYS_1_images_A"), wantNumber: 1, wantImageSet: "A", wantOphys: true},
		{sessionType: strPtr("OPHYS_4_images_B"), wantNumber: 4, wantImageSet: "B", wantOphys: true},
		{sessionType: strPtr("TRAINING_1_gratings"), wantNumber: -1, wantImageSet: "<nil>"},
		{sessionType: strPtr("OPHYS_7_receptive_field_mapping"), wantNumber: 7, wantImageSet: "<nil>", wantOphys: true},
		{sessionType: nil, wantNumber: -1, wantImageSet: "<nil>"},
	}
	for _, tc := range tests {
		t.Run(deref(tc.sessionType), func(t *testing.T) {
			number := -1
			if n := metadata.SessionNumber(tc.sessionType); n != nil {
				number = *n
			}
			if number != tc.wantNumber {
				t.Fatalf("SessionNumber = %d, want %d", number, tc.wantNumber)
			}
			if got := deref(metadata.ImageSet(tc.sessionType)); got != tc.wantImageSet {
				t.Fatalf("ImageSet = %q, want %q", got, tc.wantImageSet)
			}
			if got := metadata.IsOphysSessionType(tc.sessionType); got != tc.wantOphys {
				t.Fatalf("IsOphysSessionType = %v, want %v", got, tc.wantOphys)
			}
		})
	}
	if !metadata.IsHabituationSessionType(strPtr("OPHYS_0_images_A_habituation")) {
		t.Fatal("expected habituation session to be recognized")
	}
	if !metadata.IsReceptiveFieldSessionType(strPtr("ophys_7_Receptive_Field_mapping")) {
		t.Fatal("expected receptive field check to ignore case")
	}
}

func TestLinesUnmarshal(t *testing.T) {
	var row metadata.BehaviorSession
	payload := `{"behavior_session_id": 1, "reporter_line": "Ai93(TITL-GCaMP6f)", "driver_line": ["Slc17a7-IRES2-Cre", "Camk2a-tTA"]}`
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(row.ReporterLine) != 1 || row.ReporterLine[0] != "Ai93(TITL-GCaMP6f)" {
		t.Fatalf("unexpected reporter line: %v", row.ReporterLine)
	}
	if len(row.DriverLine) != 2 {
		t.Fatalf("unexpected driver line: %v", row.DriverLine)
	}
	if row.SessionType != nil {
		t.Fatalf("expected missing session_type to stay nil, got %q", *row.SessionType)
	}
}

func TestFlashOmitProbability(t *testing.T) {
	var params metadata.StageParameters
	if err := json.Unmarshal([]byte(`{"flash_omit_probability": 0.05}`), &params); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p, ok := params.FlashOmitProbability(); !ok || p != 0.05 {
		t.Fatalf("unexpected probability %v (%v)", p, ok)
	}
	if _, ok := (metadata.StageParameters{}).FlashOmitProbability(); ok {
		t.Fatal("expected missing parameter to report false")
	}
	if _, ok := (metadata.StageParameters{"flash_omit_probability": "high"}).FlashOmitProbability(); ok {
		t.Fatal("expected non-numeric parameter to report false")
	}
}

func TestValidateRejectsDuplicates(t *testing.T) {
	err := metadata.ValidateBehaviorSessions([]metadata.BehaviorSession{{BehaviorSessionID: 1}, {BehaviorSessionID: 1}})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	err = metadata.ValidateOphysSessions([]metadata.OphysSession{
		{OphysSessionID: 88, OphysExperimentIDs: []int64{1000, 1001}},
		{OphysSessionID: 89, OphysExperimentIDs: []int64{1001}},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for shared experiment, got %v", err)
	}

	err = metadata.ValidateOphysExperiments([]metadata.OphysExperiment{
		{OphysExperimentID: 1000, OphysSessionID: 88},
		{OphysExperimentID: 1000, OphysSessionID: 89},
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for duplicate experiment, got %v", err)
	}

	if err := metadata.ValidateBehaviorSessions([]metadata.BehaviorSession{{BehaviorSessionID: 1}, {BehaviorSessionID: 2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestExperimentStates(t *testing.T) {
	exp := metadata.OphysExperiment{
		ExperimentWorkflowState: metadata.StatePassed,
		Containers: []metadata.Container{
			{OphysContainerID: 1, ContainerWorkflowState: "junk"},
			{OphysContainerID: 2, ContainerWorkflowState: metadata.StatePublished},
		},
	}
	if !exp.Passed() {
		t.Fatal("expected passed")
	}
	published := exp.PublishedContainers()
	if len(published) != 1 || published[0].OphysContainerID != 2 {
		t.Fatalf("unexpected published containers: %+v", published)
	}
}
