package diaasq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse_Sentinels(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"statement-non-opinion", "  statement-non-opinion\n", "notarget:none:none:none"} {
		records, ok := ParseResponse(in)
		assert.True(t, ok, "input %q", in)
		assert.Empty(t, records, "input %q", in)
	}
}

func TestParseResponse_QuadruplesObject(t *testing.T) {
	t.Parallel()

	records, ok := ParseResponse(`{"quadruples": [{"target":"a","aspect":"b","opinion":"c","sentiment":"pos"}]}`)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, Quadruple{"a", "b", "c", "pos"}, Normalize(records[0]))
}

func TestParseResponse_TopLevelList(t *testing.T) {
	t.Parallel()

	records, ok := ParseResponse(`[{"target":"a","aspect":"b","opinion":"c","sentiment":"pos"},{"target":"x","aspect":"y","opinion":"z","sentiment":"neg"}]`)
	require.True(t, ok)
	assert.Len(t, records, 2)
}

func TestParseResponse_CodeFence(t *testing.T) {
	t.Parallel()

	in := "```json\n{\"quadruples\": [{\"target\":\"a\",\"aspect\":\"b\",\"opinion\":\"c\",\"sentiment\":\"neg\"}]}\n```"
	records, ok := ParseResponse(in)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, Quadruple{"a", "b", "c", "neg"}, Normalize(records[0]))

	records, ok = ParseResponse("```\n[]\n```")
	assert.True(t, ok)
	assert.Empty(t, records)
}

func TestParseResponse_UnquotedKeys(t *testing.T) {
	t.Parallel()

	records, ok := ParseResponse(`{target:"a",aspect:"b",opinion:"c",sentiment:"neg"}`)
	assert.False(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, Quadruple{"a", "b", "c", "neg"}, Normalize(records[0]))

	records, ok = ParseResponse(`{quadruples: [{target: "a", aspect: "b", opinion: "c", sentiment: "pos"}]}`)
	assert.False(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, Quadruple{"a", "b", "c", "pos"}, Normalize(records[0]))
}

func TestParseResponse_EmptyChatAnswerIsRecoverable(t *testing.T) {
	t.Parallel()

	records, ok := ParseResponse("{quadruples: []}")
	assert.False(t, ok)
	assert.Empty(t, records)
}

func TestParseResponse_TrailingCommaRepaired(t *testing.T) {
	t.Parallel()

	records, ok := ParseResponse(`{"quadruples": [{"target":"a","aspect":"b","opinion":"c","sentiment":"pos"},]}`)
	assert.False(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, Quadruple{"a", "b", "c", "pos"}, Normalize(records[0]))
}

func TestParseResponse_RecordFilter(t *testing.T) {
	t.Parallel()

	records, ok := ParseResponse(`{"quadruples": [
		{"target":"a","aspect":"b","opinion":"c","sentiment":"pos"},
		{"target":"a","aspect":"b","opinion":"c"},
		{"target":null,"aspect":"b","opinion":"c","sentiment":"pos"},
		"a:b:c:pos",
		42
	]}`)
	assert.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "a", records[0].Field("target"))
}

func TestParseResponse_UnacceptedShapes(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		`{"foo": 1}`,
		`{"quadruples": "none"}`,
		`42`,
		`"statement"`,
	} {
		records, ok := ParseResponse(in)
		assert.False(t, ok, "input %q", in)
		assert.Empty(t, records, "input %q", in)
	}
}

func TestParseResponse_Garbage(t *testing.T) {
	t.Parallel()

	records, ok := ParseResponse("")
	assert.False(t, ok)
	assert.Empty(t, records)
}

func TestParseLegacy(t *testing.T) {
	t.Parallel()

	records, ok := ParseLegacy("Definition ... input: foo \noutput: iPhone:processor:better:pos, Xiaomi Civi:looks:invincible:Positive")
	require.True(t, ok)
	require.Len(t, records, 2)
	assert.Equal(t, Quadruple{"iPhone", "processor", "better", "pos"}, Normalize(records[0]))
	assert.Equal(t, Quadruple{"Xiaomi Civi", "looks", "invincible", "pos"}, Normalize(records[1]))
}

func TestParseLegacy_Separators(t *testing.T) {
	t.Parallel()

	records, ok := ParseLegacy("a:b:c:neg ; x:y:z:other | p:q:r:neutral")
	require.True(t, ok)
	assert.True(t, SetFromRecords(records).Equal(NewSet(
		Quadruple{"a", "b", "c", "neg"},
		Quadruple{"x", "y", "z", "other"},
		Quadruple{"p", "q", "r", "other"},
	)))
}

func TestParseLegacy_Sentinels(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"notarget:none:none:none", "statement-non-opinion"} {
		records, ok := ParseLegacy(in)
		assert.True(t, ok)
		assert.Empty(t, records)
	}
}

func TestParseLegacy_PolicyDropsKeepWellFormed(t *testing.T) {
	t.Parallel()

	records, ok := ParseLegacy("notarget:screen:bad:neg, a::c:pos, a:b:c:pos")
	assert.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, Quadruple{"a", "b", "c", "pos"}, Normalize(records[0]))
}

func TestParseLegacy_MalformedSegments(t *testing.T) {
	t.Parallel()

	records, ok := ParseLegacy("a:b:c, x:y:z:neg")
	assert.False(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, Quadruple{"x", "y", "z", "neg"}, Normalize(records[0]))

	records, ok = ParseLegacy("a:b:c:great")
	assert.False(t, ok)
	assert.Empty(t, records)

	records, ok = ParseLegacy("   ")
	assert.False(t, ok)
	assert.Empty(t, records)
}
