package main

import (
	"errors"
	"path/filepath"

	"github.com/theimaginaryfoundation/diaasq-bench/diaasq"
)

type Config struct {
	InputPath        string
	ReportPath       string
	Mode             string
	Taxonomy         bool
	ResolveSentiment bool
	Pretty           bool
	Verbose          bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if _, err := diaasq.ParseMode(c.Mode); err != nil {
		return err
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath: filepath.FromSlash("result/en/result.jsonl"),
		Mode:      string(diaasq.ModeJSON),
	}
}
