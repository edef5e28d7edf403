package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/theimaginaryfoundation/diaasq-bench/diaasq"
	"github.com/theimaginaryfoundation/diaasq-bench/diaasq/fileutils"
	"github.com/theimaginaryfoundation/diaasq-bench/diaasq/provider"
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

	n, err := export(cfg, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	logger.Info().Str("format", cfg.Format).Int("records", n).Msg("export done")
	fmt.Fprintf(os.Stdout, "format=%s records_written=%d out=%s\n", cfg.Format, n, cfg.OutputPath)
}

// export converts the labeled samples at cfg.InputPath into cfg.Format.
func export(cfg Config, progress io.Writer) (int, error) {
	switch cfg.Format {
	case formatShorthandCSV:
		samples, err := diaasq.ReadUtteranceSamples(cfg.InputPath)
		if err != nil {
			return 0, err
		}
		return len(samples), writeCSV(cfg.OutputPath, samples)
	case formatChainChat:
		chains, err := diaasq.ReadChainSamples(cfg.InputPath)
		if err != nil {
			return 0, err
		}
		return writeJSONL(cfg.OutputPath, len(chains), progress, func(i int) (any, error) {
			return diaasq.ChainChat(chains[i])
		})
	case formatChat:
		samples, err := diaasq.ReadUtteranceSamples(cfg.InputPath)
		if err != nil {
			return 0, err
		}
		return writeJSONL(cfg.OutputPath, len(samples), progress, func(i int) (any, error) {
			return diaasq.UtteranceChat(samples[i]), nil
		})
	case formatBatch:
		samples, err := diaasq.ReadUtteranceSamples(cfg.InputPath)
		if err != nil {
			return 0, err
		}
		return writeJSONL(cfg.OutputPath, len(samples), progress, func(i int) (any, error) {
			s := samples[i]
			params := provider.ChatParams(cfg.Model, cfg.MaxTokens, diaasq.TaskInstruction, diaasq.BuildUserPrompt(nil, s.Input))
			return provider.NewBatchRequest(s.SampleID, params)
		})
	default:
		return 0, fmt.Errorf("unknown format %q", cfg.Format)
	}
}

func writeJSONL(path string, n int, progress io.Writer, record func(i int) (any, error)) (int, error) {
	w, err := fileutils.OpenJSONL(path, false)
	if err != nil {
		return 0, err
	}
	if progress == nil {
		progress = io.Discard
	}
	bar := progressbar.NewOptions(n,
		progressbar.OptionSetDescription("exporting"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)
	for i := 0; i < n; i++ {
		rec, err := record(i)
		if err != nil {
			_ = w.Close()
			return w.Count(), err
		}
		if err := w.WriteRecord(rec); err != nil {
			_ = w.Close()
			return w.Count(), err
		}
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return w.Count(), w.Close()
}

func writeCSV(path string, samples []diaasq.UtteranceSample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir -out: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create -out: %w", err)
	}
	if err := diaasq.WriteShorthandCSV(f, samples); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to labeled samples (utterance JSONL, or chain JSONL for -format chain-chat)")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Output path (overwritten)")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Output format: chat, chain-chat, shorthand-csv or batch")
	fs.StringVar(&cfg.Model, "model", cfg.Model, "Model name written into batch request bodies")
	fs.Int64Var(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "max_tokens written into batch request bodies (0 omits it)")
	fs.BoolVar(&cfg.Verbose, "v", false, "Debug logging")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/dataset-export -format chat -in data/zero_shot/en/train.jsonl -out fine_tune/en/train.jsonl")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/dataset-export -format chain-chat -in data/reply_chain/en/valid.jsonl -out fine_tune/reply_chain/valid.jsonl")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/dataset-export -format shorthand-csv -in data/zero_shot/en/test.jsonl -out llm-api/test.csv")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/dataset-export -format batch -in data/zero_shot/en/test.jsonl -out batch/en/test.jsonl")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	return cfg, nil
}
