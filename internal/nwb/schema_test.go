package nwb_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"allenpipe/internal/nwb"
	"allenpipe/internal/services"
	"allenpipe/internal/testsupport"
)

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *nwb.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *nwb.ValidationError, got %T (%v)", err, err)
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("validation error does not match services.ErrValidation: %v", err)
	}
	return verr.Fields()
}

func TestDecodeInputRejectsWrongTypes(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"numeric output path", `{"output_path": 5, "session_data": {}, "skip_probes": []}`, "output_path"},
		{"skip probes not a list", `{"output_path": "x.nwb", "session_data": {}, "skip_probes": "probeA"}`, "skip_probes"},
		{"nested type error", `{"output_path": "x.nwb", "session_data": {"ecephys_session_id": "abc"}}`, "session_data.ecephys_session_id"},
		{"unknown field", `{"output_path": "x.nwb", "probes_to_skip": []}`, "probes_to_skip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := nwb.DecodeInput(strings.NewReader(tt.doc))
			fields := validationFields(t, err)
			if !slices.Contains(fields, tt.field) {
				t.Fatalf("expected field %q in %v (%v)", tt.field, fields, err)
			}
		})
	}
}

func TestDecodeInputMalformed(t *testing.T) {
	for _, doc := range []string{"", "{", `{"output_path": "a"} {"output_path": "b"}`} {
		if _, err := nwb.DecodeInput(strings.NewReader(doc)); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("document %q: expected validation error, got %v", doc, err)
		}
	}
}

func TestValidateReportsEachField(t *testing.T) {
	in := testsupport.NewNWBInput("")
	in.LogLevel = "LOUD"
	in.SkipProbes = []string{" "}
	in.SessionData.EcephysSessionID = 0
	in.SessionData.Probes[0].Units[0].PeakChannelID = 999
	in.SessionData.Probes[1].Name = "probeA"

	fields := validationFields(t, in.Validate())
	want := []string{
		"output_path",
		"skip_probes.0",
		"log_level",
		"session_data.ecephys_session_id",
		"session_data.probes.0.units.0.peak_channel_id",
		"session_data.probes.1.name",
	}
	for _, field := range want {
		if !slices.Contains(fields, field) {
			t.Errorf("missing field %q in %v", field, fields)
		}
	}
}

func TestValidateRejectsUnsafeProbeNames(t *testing.T) {
	for _, name := range []string{"probe/A", "electrodes", "..", "/"} {
		t.Run(name, func(t *testing.T) {
			in := testsupport.NewNWBInput(filepath.Join(t.TempDir(), "session.nwb"))
			in.SessionData.Probes[1].Name = name
			fields := validationFields(t, in.Validate())
			if !slices.Equal(fields, []string{"session_data.probes.1.name"}) {
				t.Fatalf("unexpected fields %v", fields)
			}
		})
	}
}

func TestValidateOutputPathDirectory(t *testing.T) {
	dir := t.TempDir()
	in := testsupport.NewNWBInput(dir)
	fields := validationFields(t, in.Validate())
	if !slices.Equal(fields, []string{"output_path"}) {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestValidInputPasses(t *testing.T) {
	in := testsupport.NewNWBInput(filepath.Join(t.TempDir(), "session.nwb"))
	in.LogLevel = "info"
	if err := in.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadInputAndWriteOutput(t *testing.T) {
	dir := t.TempDir()
	in := testsupport.NewNWBInput(filepath.Join(dir, "session.nwb"))
	inputPath := filepath.Join(dir, "input.json")
	testsupport.WriteJSON(t, inputPath, in)

	loaded, err := nwb.LoadInput(inputPath)
	if err != nil {
		t.Fatalf("LoadInput: %v", err)
	}
	if loaded.OutputPath != in.OutputPath || len(loaded.SessionData.Probes) != 2 {
		t.Fatalf("unexpected input %+v", loaded)
	}
	if !loaded.SessionData.SessionStartTime.Equal(in.SessionData.SessionStartTime) {
		t.Fatalf("start time mismatch: %v", loaded.SessionData.SessionStartTime)
	}

	outputPath := filepath.Join(dir, "output.json")
	if err := nwb.WriteOutput(outputPath, nwb.Output{InputParameters: loaded, OutputPath: loaded.OutputPath}); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}
	data, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"input_parameters"`) || !strings.Contains(string(data), `"output_path"`) {
		t.Fatalf("unexpected output document %s", data)
	}

	if _, err := nwb.LoadInput(filepath.Join(dir, "missing.json")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing input, got %v", err)
	}
}
