package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("dataset-export", flag.ContinueOnError)
	cfg, err := parseFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Format != "chat" {
		t.Fatalf("Format=%q, want %q", cfg.Format, "chat")
	}
	if cfg.MaxTokens != 1583 {
		t.Fatalf("MaxTokens=%d, want 1583", cfg.MaxTokens)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	base := defaultConfig()
	if err := base.Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}

	c := base
	c.Format = "parquet"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown format")
	}

	c = base
	c.Format = "batch"
	c.Model = ""
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for batch without model")
	}
}

const utteranceSamples = `{"sample_id":"0_0","input":"The iPhone battery is low","target":"{\"quadruples\":[{\"target\":\"iPhone\",\"aspect\":\"battery\",\"opinion\":\"low\",\"sentiment\":\"neg\"}]}"}
{"sample_id":"0_1","input":"ok, thanks","target":"statement-non-opinion"}
`

func writeInput(t *testing.T, body string) (dir, path string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "in.jsonl")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return dir, path
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("output line is not JSON: %v: %s", err, sc.Text())
		}
		out = append(out, m)
	}
	return out
}

func TestExport_Chat(t *testing.T) {
	t.Parallel()

	dir, in := writeInput(t, utteranceSamples)
	out := filepath.Join(dir, "chat.jsonl")
	n, err := export(Config{InputPath: in, OutputPath: out, Format: formatChat}, io.Discard)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if n != 2 {
		t.Fatalf("records=%d, want 2", n)
	}

	lines := readLines(t, out)
	msgs := lines[1]["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("messages=%d, want 3", len(msgs))
	}
	assistant := msgs[2].(map[string]any)
	if assistant["role"] != "assistant" || assistant["content"] != "{quadruples: []}" {
		t.Fatalf("assistant turn=%v", assistant)
	}
}

func TestExport_Batch(t *testing.T) {
	t.Parallel()

	dir, in := writeInput(t, utteranceSamples)
	out := filepath.Join(dir, "batch.jsonl")
	if _, err := export(Config{InputPath: in, OutputPath: out, Format: formatBatch, Model: "m", MaxTokens: 1583}, io.Discard); err != nil {
		t.Fatalf("export: %v", err)
	}

	lines := readLines(t, out)
	if len(lines) != 2 {
		t.Fatalf("lines=%d, want 2", len(lines))
	}
	first := lines[0]
	if first["custom_id"] != "0_0" || first["method"] != "POST" || first["url"] != "/v1/chat/completions" {
		t.Fatalf("envelope=%v", first)
	}
	body := first["body"].(map[string]any)
	if body["model"] != "m" || body["stream"] != false {
		t.Fatalf("body=%v", body)
	}
	if body["max_tokens"] != float64(1583) {
		t.Fatalf("max_tokens=%v, want 1583", body["max_tokens"])
	}
	msgs := body["messages"].([]any)
	user := msgs[1].(map[string]any)
	if user["content"] != "###Input:\nThe iPhone battery is low\n###Output:" {
		t.Fatalf("user content=%q", user["content"])
	}
}

func TestExport_ShorthandCSV(t *testing.T) {
	t.Parallel()

	dir, in := writeInput(t, utteranceSamples)
	out := filepath.Join(dir, "test.csv")
	if _, err := export(Config{InputPath: in, OutputPath: out, Format: formatShorthandCSV}, io.Discard); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	got := string(b)
	want := "sample_id,input,target\n0_0,The iPhone battery is low,iPhone:battery:low:neg\n0_1,\"ok, thanks\",notarget:none:none:none\n"
	if got != want {
		t.Fatalf("csv=\n%s\nwant\n%s", got, want)
	}
}

func TestExport_ChainChat(t *testing.T) {
	t.Parallel()

	chain := `{"sample_id":"0_0","chain_length":2,"data":[{"utterance":"<u0>Huawei system is not good(reply_to:u-1)","quadruples":[{"target":"Huawei","target_sentence_id":0,"aspect":"system","aspect_sentence_id":0,"opinion":"not good","opinion_sentence_id":0,"sentiment":"neg"}]},{"utterance":"<u1>agree(reply_to:u0)","quadruples":[]}]}` + "\n"
	dir, in := writeInput(t, chain)
	out := filepath.Join(dir, "chain.jsonl")
	if _, err := export(Config{InputPath: in, OutputPath: out, Format: formatChainChat}, io.Discard); err != nil {
		t.Fatalf("export: %v", err)
	}

	lines := readLines(t, out)
	msgs := lines[0]["messages"].([]any)
	if len(msgs) != 5 {
		t.Fatalf("messages=%d, want 5", len(msgs))
	}
	first := msgs[2].(map[string]any)["content"].(string)
	if !strings.HasPrefix(first, `[{"target":"Huawei"`) {
		t.Fatalf("first assistant turn=%q", first)
	}
	if last := msgs[4].(map[string]any)["content"]; last != "[]" {
		t.Fatalf("last assistant turn=%q, want []", last)
	}
}
