package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/diaasq-bench/diaasq"
	"github.com/theimaginaryfoundation/diaasq-bench/diaasq/fileutils"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	report, err := evaluateFile(cfg, &logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if err := writeOutputs(os.Stdout, cfg, report); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	logger.Info().
		Int("samples", report.Samples).
		Float64("f1", report.F1).
		Int("malformed_payloads", len(report.MalformedSamples)).
		Int("skipped_lines", len(report.SkippedLines)).
		Msg("evaluation done")
}

func evaluateFile(cfg Config, logger *zerolog.Logger) (diaasq.Report, error) {
	mode, err := diaasq.ParseMode(cfg.Mode)
	if err != nil {
		return diaasq.Report{}, err
	}

	samples, skipped, err := diaasq.ReadResults(cfg.InputPath)
	if err != nil {
		return diaasq.Report{}, err
	}
	for _, line := range skipped {
		logger.Warn().Int("line", line).Msg("skipping malformed JSON record")
	}

	ev := diaasq.Evaluator{
		Mode:             mode,
		Taxonomy:         cfg.Taxonomy,
		ResolveSentiment: cfg.ResolveSentiment,
		Logger:           logger,
	}
	res, err := ev.ScoreSamples(samples)
	if err != nil {
		return diaasq.Report{}, err
	}
	return diaasq.Report{Result: res, SkippedLines: skipped}, nil
}

func writeOutputs(stdout io.Writer, cfg Config, report diaasq.Report) error {
	if err := report.WriteText(stdout); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if cfg.ReportPath != "" {
		if err := fileutils.WriteJSONFileAtomic(cfg.ReportPath, report, cfg.Pretty); err != nil {
			return fmt.Errorf("write -report: %w", err)
		}
	}
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to the model-response JSONL file")
	fs.StringVar(&cfg.ReportPath, "report", "", "Optional path for a JSON report (written atomically)")
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Payload format: json or legacy (colon-delimited shorthand)")
	fs.BoolVar(&cfg.Taxonomy, "taxonomy", false, "Compute the per-field error taxonomy")
	fs.BoolVar(&cfg.ResolveSentiment, "resolve-sentiment", false, "Map free-text sentiments to pos/neg/other before matching (json mode)")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the JSON report")
	fs.BoolVar(&cfg.Verbose, "v", false, "Debug logging (logs every malformed payload)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/quad-eval -in result/en/zero-shot.jsonl -taxonomy")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/quad-eval -in result/en/set2.jsonl -mode legacy -report result/en/set2.report.json")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InputPath = filepath.Clean(cfg.InputPath)
	if cfg.ReportPath != "" {
		cfg.ReportPath = filepath.Clean(cfg.ReportPath)
	}
	return cfg, nil
}
