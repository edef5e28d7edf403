package diaasq

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadResults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "result.jsonl")
	body := strings.Join([]string{
		`{"sample_id":"0_0","input":"x","gold":"statement-non-opinion","response":"statement-non-opinion"}`,
		``,
		`{"sample_id":"0_1","labels":"a:b:c:pos","response":"a:b:c:pos"}`,
		`{"sample_id":"0_2","response":`,
		`[1, 2, 3]`,
		`null`,
		`{"sample_id":17,"gold":{"quadruples":[]},"response":["x"]}`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	samples, malformed, err := ReadResults(path)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 5, 6}, malformed)
	require.Len(t, samples, 3)

	assert.Equal(t, Sample{Line: 1, SampleID: "0_0", Response: "statement-non-opinion", Gold: "statement-non-opinion"}, samples[0])
	assert.Equal(t, Sample{Line: 3, SampleID: "0_1", Response: "a:b:c:pos", Gold: "a:b:c:pos"}, samples[1])
	assert.Equal(t, Sample{Line: 7, SampleID: "17", Response: `["x"]`, Gold: `{"quadruples":[]}`}, samples[2])
}

func TestReadResults_GoldWinsOverLabels(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "result.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"gold":"g","labels":"l","response":"r"}`+"\n"), 0o644))

	samples, malformed, err := ReadResults(path)
	require.NoError(t, err)
	assert.Empty(t, malformed)
	require.Len(t, samples, 1)
	assert.Equal(t, "g", samples[0].Gold)
}

func TestReadResults_MissingFile(t *testing.T) {
	t.Parallel()

	_, _, err := ReadResults(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.True(t, errors.Is(err, fs.ErrNotExist), "err=%v", err)
}
