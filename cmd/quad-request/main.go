package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
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

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	if cfg.Verbose {
		logger = logger.Level(zerolog.DebugLevel)
	}

	var envFiles []string
	if cfg.EnvFile != "" {
		envFiles = append(envFiles, cfg.EnvFile)
	}
	pcfg, err := provider.LoadConfig(envFiles...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	pcfg = applyProviderOverrides(pcfg, cfg)

	completer, err := provider.NewOpenAICompleter(pcfg, &logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	samples, err := diaasq.ReadUtteranceSamples(cfg.InputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if cfg.MaxSamples > 0 && len(samples) > cfg.MaxSamples {
		samples = samples[:cfg.MaxSamples]
	}

	var examples []diaasq.UtteranceSample
	if cfg.Shots > 0 {
		pool, err := diaasq.ReadUtteranceSamples(cfg.TrainPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		examples, err = diaasq.SampleExamples(pool, cfg.Shots, cfg.Seed)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		logger.Info().Int("shots", len(examples)).Uint64("seed", cfg.Seed).Msg("few-shot examples loaded")
	}

	builder, err := diaasq.NewPromptBuilder(diaasq.PromptStyle(cfg.Style), examples)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := fileutils.OpenJSONL(cfg.OutputPath, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer w.Close()

	runID := uuid.NewString()
	logger.Info().Str("run_id", runID).Str("model", pcfg.Model).Str("style", cfg.Style).Int("samples", len(samples)).Msg("requesting")

	n, err := runRequests(ctx, completer, builder, samples, w, requestOptions{
		RunID:    runID,
		Progress: os.Stderr,
		Logger:   &logger,
	})
	if err != nil {
		logger.Error().Err(err).Int("written", n).Msg("request run aborted")
		_ = w.Close()
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "run_id=%s samples_written=%d model=%s out=%s\n", runID, n, pcfg.Model, cfg.OutputPath)
}

func applyProviderOverrides(p provider.Config, cfg Config) provider.Config {
	if cfg.APIKey != "" {
		p.APIKey = cfg.APIKey
	}
	if cfg.BaseURL != "" {
		p.BaseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		p.Model = cfg.Model
	}
	if cfg.MaxTokens > 0 {
		p.MaxTokens = cfg.MaxTokens
	}
	if cfg.Structured {
		p.StructuredOutput = true
	}
	return p
}

type requestOptions struct {
	RunID    string
	Progress io.Writer
	Logger   *zerolog.Logger
}

// runRequests asks the completer once per sample and writes one result record per answer.
// The first failed call stops the run; records written before it stay on disk.
func runRequests(ctx context.Context, c provider.Completer, builder diaasq.PromptBuilder, samples []diaasq.UtteranceSample, w diaasq.RecordWriter, opts requestOptions) (int, error) {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	progress := opts.Progress
	if progress == nil {
		progress = io.Discard
	}

	bar := progressbar.NewOptions(len(samples),
		progressbar.OptionSetDescription("requesting"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetWidth(30),
		progressbar.OptionClearOnFinish(),
	)

	system := builder.System()
	written := 0
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		gold := s.Target
		if builder.Style().Shorthand() {
			short, err := diaasq.ShorthandTarget(gold)
			if err != nil {
				return written, fmt.Errorf("sample %s: %w", s.SampleID, err)
			}
			gold = short
		}

		user := builder.User(s.Input)
		response, err := c.Complete(ctx, system, user)
		if err != nil {
			return written, fmt.Errorf("sample %s: %w", s.SampleID, err)
		}
		logger.Debug().
			Str("sample_id", s.SampleID).
			Str("response", fileutils.Truncate(fileutils.SanitizeNewlines(response), 160)).
			Msg("response")

		if err := w.WriteRecord(diaasq.ResultRecord{
			RunID:    opts.RunID,
			SampleID: s.SampleID,
			Input:    user,
			Gold:     gold,
			Response: strings.TrimSpace(response),
		}); err != nil {
			return written, err
		}
		written++
		_ = bar.Add(1)
	}
	_ = bar.Finish()
	return written, nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to utterance-grouped labeled samples (JSONL)")
	fs.StringVar(&cfg.OutputPath, "out", cfg.OutputPath, "Path to the model-response JSONL output (overwritten)")
	fs.StringVar(&cfg.Style, "style", cfg.Style, "Prompt style: json, shorthand-1 or shorthand-2")
	fs.IntVar(&cfg.Shots, "shots", 0, "Number of few-shot examples drawn from -train (json style only)")
	fs.StringVar(&cfg.TrainPath, "train", "", "Path to utterance-grouped training samples for few-shot examples")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "Seed for few-shot example selection")
	fs.IntVar(&cfg.MaxSamples, "max-samples", 0, "Process only the first N samples (0 = all)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "API key (overrides OPENAI_API_KEY env var)")
	fs.StringVar(&cfg.BaseURL, "base-url", "", "OpenAI-compatible base URL (overrides OPENAI_BASE_URL)")
	fs.StringVar(&cfg.Model, "model", "", "Model name (overrides DIAASQ_MODEL)")
	fs.Int64Var(&cfg.MaxTokens, "max-tokens", 0, "Max completion tokens (overrides DIAASQ_MAX_TOKENS)")
	fs.BoolVar(&cfg.Structured, "structured", false, "Request a strict JSON schema response (json style only)")
	fs.StringVar(&cfg.EnvFile, "env-file", "", "Optional dotenv file (default: .env when present)")
	fs.BoolVar(&cfg.Verbose, "v", false, "Debug logging")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/quad-request -in data/zero_shot/en/test.jsonl -out result/en/zero-shot.jsonl")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/quad-request -shots 5 -train data/zero_shot/en/train.jsonl -model deepseek-ai/DeepSeek-V3")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/quad-request -style shorthand-2 -out result/en/set2.jsonl")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.InputPath = filepath.Clean(cfg.InputPath)
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	if cfg.TrainPath != "" {
		cfg.TrainPath = filepath.Clean(cfg.TrainPath)
	}
	return cfg, nil
}
