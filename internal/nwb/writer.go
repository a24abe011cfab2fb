package nwb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"allenpipe/internal/fileutil"
	"allenpipe/internal/logging"
	"allenpipe/internal/services"
)

// Writer serializes one session and writes it atomically to the input's
// output path.
type Writer struct {
	Serializer Serializer
	Encoder    Encoder
	Logger     *slog.Logger
}

// NewWriter returns a writer using the dynamic-gating serializer and the
// SQLite encoder.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{
		Serializer: DynamicGatingSerializer{},
		Encoder:    SQLiteEncoder{},
		Logger:     logger,
	}
}

// Write validates in, then serializes and encodes the session into a temp
// file beside the output path and renames it into place. On any failure the
// temp file is removed and no file appears at the output path.
func (w *Writer) Write(ctx context.Context, in Input) (Output, error) {
	logger := logging.NewComponentLogger(w.Logger, "nwb")
	if err := in.Validate(); err != nil {
		return Output{}, err
	}

	target, err := filepath.Abs(in.OutputPath)
	if err != nil {
		return Output{}, services.Wrap(services.ErrWrite, "nwb", "resolve output", in.OutputPath, err)
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Output{}, services.Wrap(services.ErrWrite, "nwb", "create output directory", dir, err)
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return Output{}, services.Wrap(services.ErrWrite, "nwb", "check output directory", fmt.Sprintf("%s is not writable", dir), err)
	}

	start := time.Now()
	container, err := w.Serializer.Serialize(in.SessionData, in.SkipProbes)
	if err != nil {
		return Output{}, services.Wrap(services.ErrWrite, "nwb", "serialize", fmt.Sprintf("session %d", in.SessionData.EcephysSessionID), err)
	}

	err = fileutil.ReplaceAtomic(target, 0o644, func(tmpPath string) error {
		return w.Encoder.Encode(ctx, container, tmpPath)
	})
	if err != nil {
		return Output{}, services.Wrap(services.ErrWrite, "nwb", "encode", target, err)
	}

	logger.Debug("nwb container written",
		logging.Int64("ecephys_session_id", in.SessionData.EcephysSessionID),
		logging.String("path", target),
		logging.Int("probes", len(in.SessionData.Probes)-countSkipped(in.SessionData.Probes, in.SkipProbes)),
		logging.Duration("elapsed", time.Since(start)))

	return Output{InputParameters: in, OutputPath: target}, nil
}

func countSkipped(probes []Probe, skip []string) int {
	names := make(map[string]bool, len(skip))
	for _, name := range skip {
		names[name] = true
	}
	n := 0
	for _, p := range probes {
		if names[p.Name] {
			n++
		}
	}
	return n
}
