package main

import (
	"errors"
	"fmt"
	"path/filepath"
)

const (
	formatChat         = "chat"
	formatChainChat    = "chain-chat"
	formatShorthandCSV = "shorthand-csv"
	formatBatch        = "batch"
)

type Config struct {
	InputPath  string
	OutputPath string
	Format     string

	// Batch request settings.
	Model     string
	MaxTokens int64

	Verbose bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputPath == "" {
		return errors.New("missing -out")
	}
	switch c.Format {
	case formatChat, formatChainChat, formatShorthandCSV:
	case formatBatch:
		if c.Model == "" {
			return errors.New("missing -model (required for -format batch)")
		}
	default:
		return fmt.Errorf("unknown -format %q (want chat, chain-chat, shorthand-csv or batch)", c.Format)
	}
	if c.MaxTokens < 0 {
		return errors.New("max-tokens must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath:  filepath.FromSlash("data/zero_shot/en/train.jsonl"),
		OutputPath: filepath.FromSlash("fine_tune/en/train.jsonl"),
		Format:     formatChat,
		Model:      "deepseek-ai/DeepSeek-V3.2",
		MaxTokens:  1583,
	}
}
