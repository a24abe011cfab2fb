package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"allenpipe/internal/metrics"
	"allenpipe/internal/nwb"
	"allenpipe/internal/testsupport"
)

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--log_format", "json"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func logMessages(t *testing.T, stderr string) []string {
	t.Helper()
	var msgs []string
	for _, line := range strings.Split(strings.TrimSpace(stderr), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("log line is not json: %q", line)
		}
		msg, _ := record["msg"].(string)
		msgs = append(msgs, msg)
	}
	return msgs
}

func requireMessage(t *testing.T, msgs []string, want string) {
	t.Helper()
	for _, msg := range msgs {
		if msg == want {
			return
		}
	}
	t.Fatalf("expected log message %q in %v", want, msgs)
}

func writeInput(t *testing.T, dir string, in nwb.Input) string {
	t.Helper()
	path := filepath.Join(dir, "input.json")
	testsupport.WriteJSON(t, path, in)
	return path
}

func TestWriteSucceeds(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out", "session.nwb")
	inputPath := writeInput(t, dir, testsupport.NewNWBInput(target))
	outputJSON := filepath.Join(dir, "output.json")
	metricsPath := filepath.Join(dir, "metrics.prom")

	_, stderr, err := runCLI(t, "--input_json", inputPath, "--output_json", outputJSON, "--metrics_textfile", metricsPath)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}
	msgs := logMessages(t, stderr)
	requireMessage(t, msgs, "Input successfully parsed")
	requireMessage(t, msgs, "File successfully created")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("nwb file missing: %v", err)
	}

	data, err := os.ReadFile(outputJSON)
	if err != nil {
		t.Fatalf("output json missing: %v", err)
	}
	var out nwb.Output
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode output json: %v", err)
	}
	if out.OutputPath != target {
		t.Fatalf("output_path = %q, want %q", out.OutputPath, target)
	}
	if out.InputParameters.SessionData.EcephysSessionID != 1051155866 {
		t.Fatalf("unexpected input parameters %+v", out.InputParameters.SessionData)
	}

	text, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("metrics missing: %v", err)
	}
	if !strings.Contains(string(text), `allenpipe_nwb_writes_total{result="success"} 1`) {
		t.Fatalf("metrics missing write outcome:\n%s", text)
	}
}

func TestFlagsOverrideInput(t *testing.T) {
	dir := t.TempDir()
	inputPath := writeInput(t, dir, testsupport.NewNWBInput(filepath.Join(dir, "ignored.nwb")))
	target := filepath.Join(dir, "override.nwb")

	_, stderr, err := runCLI(t, "--input_json", inputPath, "--output_path", target, "--skip_probes", "probeB")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "ignored.nwb")); !os.IsNotExist(err) {
		t.Fatalf("input output_path should be overridden, stat err=%v", err)
	}
	c, err := nwb.ReadContainer(context.Background(), target)
	if err != nil {
		t.Fatalf("read container: %v", err)
	}
	if _, ok := c.Lookup("/general/devices/probeA"); !ok {
		t.Fatal("probeA missing")
	}
	if _, ok := c.Lookup("/general/devices/probeB"); ok {
		t.Fatal("probeB should be skipped")
	}
}

func TestParsingFailure(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.json")
	if err := os.WriteFile(inputPath, []byte(`{"output_path": 12, "session_data": {}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := runCLI(t, "--input_json", inputPath)
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireMessage(t, logMessages(t, stderr), "Parsing failure")
	if !strings.Contains(err.Error(), "output_path") {
		t.Fatalf("error should name output_path: %v", err)
	}
}

func TestMissingInputIsParsingFailure(t *testing.T) {
	_, stderr, err := runCLI(t, "--output_path", filepath.Join(t.TempDir(), "x.nwb"))
	if err == nil {
		t.Fatal("expected validation error without session data")
	}
	requireMessage(t, logMessages(t, stderr), "Parsing failure")
}

func TestWriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(blocker, "session.nwb")
	inputPath := writeInput(t, dir, testsupport.NewNWBInput(target))
	metricsPath := filepath.Join(dir, "metrics.prom")

	_, stderr, err := runCLI(t, "--input_json", inputPath, "--metrics_textfile", metricsPath)
	if err == nil {
		t.Fatal("expected write failure")
	}
	text, readErr := os.ReadFile(metricsPath)
	if readErr != nil {
		t.Fatalf("metrics missing: %v", readErr)
	}
	if !strings.Contains(string(text), `allenpipe_nwb_writes_total{result="`+metrics.WriteFailure+`"} 1`) {
		t.Fatalf("metrics missing failure outcome:\n%s", text)
	}
	msgs := logMessages(t, stderr)
	requireMessage(t, msgs, "Input successfully parsed")
	requireMessage(t, msgs, "NWB write failure")
	if _, statErr := os.Stat(target); statErr == nil {
		t.Fatal("no file should be written on failure")
	}
}
