package main

import (
	"errors"
	"path/filepath"

	"github.com/theimaginaryfoundation/diaasq-bench/diaasq"
)

type Config struct {
	InputPath  string
	OutputPath string
	Style      string
	Shots      int
	TrainPath  string
	Seed       uint64
	MaxSamples int

	// Provider overrides; empty values fall back to the environment.
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int64
	Structured bool
	EnvFile    string

	Verbose bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputPath == "" {
		return errors.New("missing -out")
	}
	switch diaasq.PromptStyle(c.Style) {
	case diaasq.StyleJSON, diaasq.StyleShorthand1, diaasq.StyleShorthand2:
	default:
		return errors.New("style must be json, shorthand-1 or shorthand-2")
	}
	if c.Shots < 0 {
		return errors.New("shots must be >= 0")
	}
	if c.Shots > 0 && c.TrainPath == "" {
		return errors.New("missing -train (required when -shots > 0)")
	}
	if c.Shots > 0 && diaasq.PromptStyle(c.Style).Shorthand() {
		return errors.New("-shots applies only to -style json")
	}
	if c.Structured && diaasq.PromptStyle(c.Style).Shorthand() {
		return errors.New("-structured applies only to -style json")
	}
	if c.MaxSamples < 0 {
		return errors.New("max-samples must be >= 0")
	}
	if c.MaxTokens < 0 {
		return errors.New("max-tokens must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath:  filepath.FromSlash("data/zero_shot/en/test.jsonl"),
		OutputPath: filepath.FromSlash("result/en/result.jsonl"),
		Style:      string(diaasq.StyleJSON),
		Seed:       1,
	}
}
