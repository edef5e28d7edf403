package diaasq

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ResultRecord is one line of a model-response file.
type ResultRecord struct {
	RunID    string `json:"run_id,omitempty"`
	SampleID string `json:"sample_id"`
	Input    string `json:"input"`
	Gold     string `json:"gold"`
	Response string `json:"response"`
}

// Sample is one evaluation unit read back from a model-response file.
type Sample struct {
	// Line is the 1-based line number in the source file.
	Line     int
	SampleID string
	Response string
	Gold     string
}

// ReadResults loads every JSON object line of a model-response file.
//
// Blank lines are ignored. Lines that are not a JSON object are skipped and their 1-based
// line numbers returned in malformedLines. The gold label is read from "gold", falling back
// to "labels". A missing file is an error wrapping fs.ErrNotExist.
func ReadResults(path string) (samples []Sample, malformedLines []int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("ReadResults: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	malformedLines = []int{}
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &obj); err != nil || obj == nil {
			malformedLines = append(malformedLines, line)
			continue
		}

		gold, ok := obj["gold"]
		if !ok {
			gold = obj["labels"]
		}
		samples = append(samples, Sample{
			Line:     line,
			SampleID: rawText(obj["sample_id"]),
			Response: rawText(obj["response"]),
			Gold:     rawText(gold),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("ReadResults: scan line %d: %w", line+1, err)
	}
	return samples, malformedLines, nil
}

// rawText returns a JSON string's value, or the raw JSON text of any other value.
func rawText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
