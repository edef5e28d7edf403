package main

import (
	"errors"
	"path/filepath"

	"github.com/theimaginaryfoundation/diaasq-bench/diaasq"
)

type Config struct {
	InputPath       string
	OutputPath      string
	ArrayField      string
	Grouping        string
	Policy          string
	Append          bool
	ContinueOnError bool
	Verbose         bool
}

func (c Config) Validate() error {
	if c.InputPath == "" {
		return errors.New("missing -in")
	}
	if c.OutputPath == "" {
		return errors.New("missing -out")
	}
	if _, err := diaasq.ParseGrouping(c.Grouping); err != nil {
		return err
	}
	if _, err := diaasq.ParseAssignPolicy(c.Policy); err != nil {
		return err
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		InputPath:  filepath.FromSlash("data/dataset/jsons_en/train.json"),
		OutputPath: filepath.FromSlash("data/labeled/en/train.jsonl"),
		Grouping:   string(diaasq.GroupByChain),
		Policy:     string(diaasq.PolicyMaxIndex),
	}
}
