package main

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"allenpipe/internal/logging"
	"allenpipe/internal/metrics"
	"allenpipe/internal/nwb"
	"allenpipe/internal/services"
)

type writerOptions struct {
	inputJSON       string
	outputJSON      string
	outputPath      string
	skipProbes      []string
	logLevel        string
	logFormat       string
	metricsTextfile string
}

func newRootCommand() *cobra.Command {
	var opts writerOptions

	cmd := &cobra.Command{
		Use:           "vbn-opto-nwb",
		Short:         "Write an ecephys optotagging session to an NWB file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.inputJSON, "input_json", "", "Input parameter document")
	flags.StringVar(&opts.outputJSON, "output_json", "", "Write the run's output document here on success")
	flags.StringVar(&opts.outputPath, "output_path", "", "NWB file to write (overrides input_json)")
	flags.StringSliceVar(&opts.skipProbes, "skip_probes", nil, "Probe names to leave out (overrides input_json)")
	flags.StringVar(&opts.logLevel, "log_level", "", "DEBUG, INFO, WARNING, ERROR or CRITICAL (overrides input_json)")
	flags.StringVar(&opts.logFormat, "log_format", "console", "Log format: console or json")
	flags.StringVar(&opts.metricsTextfile, "metrics_textfile", "", "Write run metrics in Prometheus text format to this path")

	return cmd
}

func run(cmd *cobra.Command, opts writerOptions) (err error) {
	recorder := metrics.New()
	defer func() {
		if flushErr := recorder.WriteTextfile(opts.metricsTextfile); flushErr != nil && err == nil {
			err = flushErr
		}
	}()

	runID := uuid.NewString()
	ctx := services.WithRunID(cmd.Context(), runID)

	in, parseErr := resolveInput(cmd, opts)
	logger, err := newLogger(cmd, opts, in.LogLevel)
	if err != nil {
		return err
	}
	logger = logging.WithContext(ctx, logger)

	if parseErr == nil {
		parseErr = in.Validate()
	}
	if parseErr != nil {
		logging.ErrorWithContext(logger, "Parsing failure", "input_invalid",
			logging.Error(parseErr),
			logging.String(logging.FieldErrorHint, "fix the named input fields and rerun"))
		recorder.NWBWrite(metrics.WriteValidation)
		return parseErr
	}
	logger.Info("Input successfully parsed",
		logging.Int64("ecephys_session_id", in.SessionData.EcephysSessionID),
		logging.String("output_path", in.OutputPath))

	out, err := nwb.NewWriter(logger).Write(ctx, in)
	if err != nil {
		logging.ErrorWithContext(logger, "NWB write failure", "nwb_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no NWB file was written"))
		recorder.NWBWrite(metrics.WriteFailure)
		return err
	}
	recorder.NWBWrite(metrics.WriteSuccess)

	if path := strings.TrimSpace(opts.outputJSON); path != "" {
		if err := nwb.WriteOutput(path, out); err != nil {
			logging.ErrorWithContext(logger, "failed to write output json", "output_json_failed",
				logging.Error(err),
				logging.String("path", path))
			return err
		}
	}
	logger.Info("File successfully created", logging.String("path", out.OutputPath))
	return nil
}

// resolveInput loads --input_json when given and applies flag overrides. A
// parse error is returned alongside whatever input could be built so the
// logger can still honor the requested level.
func resolveInput(cmd *cobra.Command, opts writerOptions) (nwb.Input, error) {
	var in nwb.Input
	var err error
	if path := strings.TrimSpace(opts.inputJSON); path != "" {
		in, err = nwb.LoadInput(path)
	}
	flags := cmd.Flags()
	if flags.Changed("output_path") {
		in.OutputPath = opts.outputPath
	}
	if flags.Changed("skip_probes") {
		in.SkipProbes = opts.skipProbes
	}
	if flags.Changed("log_level") {
		in.LogLevel = strings.ToUpper(strings.TrimSpace(opts.logLevel))
	}
	return in, err
}

func newLogger(cmd *cobra.Command, opts writerOptions, level string) (*slog.Logger, error) {
	logger, err := logging.NewWithWriter(cmd.ErrOrStderr(), logging.Options{
		Level:  level,
		Format: opts.logFormat,
	})
	if err != nil {
		return nil, err
	}
	return logging.NewComponentLogger(logger, "vbn-opto-nwb"), nil
}
