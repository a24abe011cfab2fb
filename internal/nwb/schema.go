package nwb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"allenpipe/internal/fileutil"
	"allenpipe/internal/services"
)

// Input is the writer's argument schema.
type Input struct {
	OutputPath  string      `json:"output_path"`
	SessionData SessionData `json:"session_data"`
	SkipProbes  []string    `json:"skip_probes"`
	LogLevel    string      `json:"log_level,omitempty"`
}

// Output is written after a successful run.
type Output struct {
	InputParameters Input  `json:"input_parameters"`
	OutputPath      string `json:"output_path"`
}

// FieldError is a validation failure on one input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError collects the field errors of one input document.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		if fe.Field == "" {
			parts = append(parts, fe.Message)
			continue
		}
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "input validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return services.ErrValidation }

// Fields returns the names of the invalid fields.
func (e *ValidationError) Fields() []string {
	out := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		out = append(out, fe.Field)
	}
	return out
}

var validLogLevels = map[string]bool{
	"": true, "DEBUG": true, "INFO": true, "WARNING": true, "ERROR": true, "CRITICAL": true,
}

// DecodeInput parses an input document strictly: unknown fields and values of
// the wrong JSON type are validation errors naming the field.
func DecodeInput(r io.Reader) (Input, error) {
	var in Input
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return Input{}, decodeError(err)
	}
	if dec.More() {
		return Input{}, &ValidationError{Errors: []FieldError{{Message: "trailing data after input document"}}}
	}
	return in, nil
}

// LoadInput reads and decodes the input document at path.
func LoadInput(path string) (Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Input{}, &ValidationError{Errors: []FieldError{{Field: "input_json", Message: err.Error()}}}
	}
	return DecodeInput(bytes.NewReader(data))
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "<root>"
		}
		return &ValidationError{Errors: []FieldError{{
			Field:   field,
			Message: fmt.Sprintf("not a valid %s (got JSON %s)", typeErr.Type, typeErr.Value),
		}}}
	case errors.As(err, &syntaxErr):
		return &ValidationError{Errors: []FieldError{{Message: fmt.Sprintf("malformed JSON at offset %d: %v", syntaxErr.Offset, err)}}}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return &ValidationError{Errors: []FieldError{{Field: field, Message: "unknown field"}}}
	case errors.Is(err, io.EOF):
		return &ValidationError{Errors: []FieldError{{Message: "empty input document"}}}
	default:
		return &ValidationError{Errors: []FieldError{{Message: err.Error()}}}
	}
}

// Validate checks the semantic rules that decoding cannot express.
func (in Input) Validate() error {
	var errs []FieldError
	switch {
	case strings.TrimSpace(in.OutputPath) == "":
		errs = append(errs, FieldError{Field: "output_path", Message: "missing data for required field"})
	case strings.HasSuffix(in.OutputPath, string(os.PathSeparator)):
		errs = append(errs, FieldError{Field: "output_path", Message: "must name a file, not a directory"})
	default:
		if info, err := os.Stat(in.OutputPath); err == nil && info.IsDir() {
			errs = append(errs, FieldError{Field: "output_path", Message: "must name a file, not a directory"})
		}
	}
	for i, name := range in.SkipProbes {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("skip_probes.%d", i), Message: "probe name must not be empty"})
		}
	}
	if !validLogLevels[strings.ToUpper(in.LogLevel)] {
		errs = append(errs, FieldError{Field: "log_level", Message: fmt.Sprintf("unsupported level %q", in.LogLevel)})
	}
	errs = append(errs, in.SessionData.Validate("session_data.")...)
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// WriteOutput stores the output document at path.
func WriteOutput(path string, out Output) error {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrWrite, "nwb", "output json", "marshal", err)
	}
	if err := fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrWrite, "nwb", "output json", path, err)
	}
	return nil
}
