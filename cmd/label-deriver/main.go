package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

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

	logger := newLogger(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	grouping, _ := diaasq.ParseGrouping(cfg.Grouping)
	policy, _ := diaasq.ParseAssignPolicy(cfg.Policy)

	if !fileutils.FileExists(cfg.InputPath) {
		fmt.Fprintf(os.Stderr, "input not found: %s\n", cfg.InputPath)
		os.Exit(2)
	}

	w, err := fileutils.OpenJSONL(cfg.OutputPath, cfg.Append)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	res, err := diaasq.DeriveCorpus(ctx, cfg.InputPath, w, diaasq.DeriveOptions{
		ArrayField:      cfg.ArrayField,
		Grouping:        grouping,
		Policy:          policy,
		ContinueOnError: cfg.ContinueOnError,
		Logger:          &logger,
	})
	if cerr := w.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		logger.Error().Err(err).Int("dialogues", res.Dialogues).Int("samples_written", res.SamplesWritten).Msg("derivation aborted")
		os.Exit(1)
	}

	logger.Info().
		Int("dialogues", res.Dialogues).
		Int("samples", res.SamplesWritten).
		Int("corrupt", res.CorruptDialogues).
		Str("grouping", string(grouping)).
		Str("policy", string(policy)).
		Msg("labels derived")
	fmt.Fprintf(os.Stdout, "dialogues=%d samples_written=%d corrupt_dialogues=%d out=%s\n", res.Dialogues, res.SamplesWritten, res.CorruptDialogues, cfg.OutputPath)
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to the annotated dialogue corpus (JSON array)")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Path to the labeled-sample JSONL output")
	fs.StringVar(&cfg.ArrayField, "array-field", "", "If top-level JSON is an object, name of field containing the dialogue array")
	fs.StringVar(&cfg.Grouping, "grouping", cfg.Grouping, "Output grouping: chain (one record per reply chain) or utterance")
	fs.StringVar(&cfg.Policy, "policy", cfg.Policy, "Span assignment: max-index or same-utterance")
	fs.BoolVar(&cfg.Append, "append", false, "Append to -out instead of overwriting it")
	fs.BoolVar(&cfg.ContinueOnError, "continue-on-error", false, "Log and skip corrupt dialogues instead of aborting")
	fs.BoolVar(&cfg.Verbose, "v", false, "Debug logging")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/label-deriver -in data/dataset/jsons_en/valid.json -out data/labeled/en/valid.jsonl")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/label-deriver -grouping utterance -out data/zero_shot/en/test.jsonl")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	return cfg, nil
}
