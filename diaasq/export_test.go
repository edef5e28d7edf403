package diaasq

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUtteranceChat(t *testing.T) {
	t.Parallel()

	rec := UtteranceChat(UtteranceSample{Input: "hi there", Target: NonOpinionSentinel})
	require.Len(t, rec.Messages, 3)
	assert.Equal(t, ChatMessage{Role: "system", Content: UtteranceChatSystemPrompt}, rec.Messages[0])
	assert.Equal(t, ChatMessage{Role: "user", Content: "hi there"}, rec.Messages[1])
	assert.Equal(t, ChatMessage{Role: "assistant", Content: "{quadruples: []}"}, rec.Messages[2])

	// The empty answer still parses back to zero quadruples.
	records, _ := ParseResponse(rec.Messages[2].Content)
	assert.Empty(t, records)

	target := `{"quadruples":[{"target":"A","aspect":"b","opinion":"c","sentiment":"pos"}]}`
	rec = UtteranceChat(UtteranceSample{Input: "x", Target: target})
	assert.Equal(t, target, rec.Messages[2].Content)
}

func TestChainChat(t *testing.T) {
	t.Parallel()

	c := ChainSample{
		SampleID:    "0_0",
		ChainLength: 2,
		Data: []ChainUtterance{
			{Utterance: "<u0>root(reply_to:u-1)"},
			{Utterance: "<u1>the system is not good(reply_to:u0)", Quadruples: []UtteranceQuadruple{{
				Target: "Huawei", TargetUtterance: 0,
				Aspect: "system", AspectUtterance: 1,
				Opinion: "not good", OpinionUtterance: 1,
				Sentiment: "neg",
			}}},
		},
	}
	rec, err := ChainChat(c)
	require.NoError(t, err)
	require.Len(t, rec.Messages, 5)
	assert.Equal(t, ChainChatSystemPrompt, rec.Messages[0].Content)
	assert.Equal(t, "[]", rec.Messages[2].Content)
	assert.Equal(t, "user", rec.Messages[3].Role)
	assert.JSONEq(t, `[{"target":"Huawei","target_sentence_id":0,"aspect":"system","aspect_sentence_id":1,"opinion":"not good","opinion_sentence_id":1,"sentiment":"neg"}]`, rec.Messages[4].Content)
}

func TestShorthandTarget(t *testing.T) {
	t.Parallel()

	got, err := ShorthandTarget(NonOpinionSentinel)
	require.NoError(t, err)
	assert.Equal(t, ShorthandSentinel, got)

	got, err = ShorthandTarget(`{"quadruples":[{"target":"Z","aspect":"b","opinion":"c","sentiment":"pos"},{"target":"A","aspect":"e","opinion":"f","sentiment":"neg"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "Z:b:c:pos, A:e:f:neg", got)

	_, err = ShorthandTarget("not json at all")
	assert.Error(t, err)
}

func TestWriteShorthandCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteShorthandCSV(&buf, []UtteranceSample{
		{SampleID: "0_0", Input: "hello, world", Target: NonOpinionSentinel},
		{SampleID: "0_1", Input: "screen", Target: `{"quadruples":[{"target":"A","aspect":"screen","opinion":"great","sentiment":"pos"}]}`},
	})
	require.NoError(t, err)
	assert.Equal(t, "sample_id,input,target\n0_0,\"hello, world\",notarget:none:none:none\n0_1,screen,A:screen:great:pos\n", buf.String())
}

func TestReadUtteranceSamples(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "train.jsonl")
	body := `{"sample_id":"0_0","input":"a","target":"statement-non-opinion"}` + "\n\n" +
		`{"sample_id":"0_1","input":"b","target":"statement-non-opinion"}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	samples, err := ReadUtteranceSamples(path)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	assert.Equal(t, "0_1", samples[1].SampleID)

	require.NoError(t, os.WriteFile(path, []byte(body+"{broken\n"), 0o644))
	_, err = ReadUtteranceSamples(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 4")
}

func TestReadChainSamples(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chains.jsonl")
	body := `{"sample_id":"0_0","chain_length":1,"data":[{"utterance":"<u0>x(reply_to:u-1)","quadruples":[]}]}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	chains, err := ReadChainSamples(path)
	require.NoError(t, err)
	require.Len(t, chains, 1)
	assert.Equal(t, 1, chains[0].ChainLength)
	assert.Equal(t, "<u0>x(reply_to:u-1)", chains[0].Data[0].Utterance)
}
