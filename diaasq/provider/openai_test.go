package provider

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scoredItem struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

type scoredList struct {
	Items []scoredItem `json:"items" jsonschema:"required"`
}

func TestGenerateSchemaIsStrict(t *testing.T) {
	t.Parallel()

	schema := GenerateSchema[scoredList]()

	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, false, schema["additionalProperties"])
	assert.Equal(t, []string{"items"}, schema["required"])

	items := schema["properties"].(map[string]interface{})["items"].(map[string]interface{})
	assert.Equal(t, "array", items["type"])

	elem := items["items"].(map[string]interface{})
	assert.Equal(t, false, elem["additionalProperties"])
	assert.Equal(t, []string{"name", "score"}, elem["required"])
}

func TestQuadrupleResponseFormat(t *testing.T) {
	t.Parallel()

	rf := QuadrupleResponseFormat()
	require.NotNil(t, rf.OfJSONSchema)
	assert.Equal(t, "quadruples", rf.OfJSONSchema.JSONSchema.Name)

	elem := quadrupleSchema["properties"].(map[string]interface{})["quadruples"].(map[string]interface{})["items"].(map[string]interface{})
	assert.Equal(t, []string{"aspect", "opinion", "sentiment", "target"}, elem["required"])
	assert.Equal(t, false, elem["additionalProperties"])
}

func TestNewBatchRequest(t *testing.T) {
	t.Parallel()

	req, err := NewBatchRequest("0_3", ChatParams("deepseek-ai/DeepSeek-V3.2", 1583, "sys", "user text"))
	require.NoError(t, err)

	assert.Equal(t, "0_3", req.CustomID)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "/v1/chat/completions", req.URL)

	var body struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Stream    *bool  `json:"stream"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "deepseek-ai/DeepSeek-V3.2", body.Model)
	assert.Equal(t, 1583, body.MaxTokens)
	require.NotNil(t, body.Stream)
	assert.False(t, *body.Stream)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, "sys", body.Messages[0].Content)
	assert.Equal(t, "user", body.Messages[1].Role)
	assert.Equal(t, "user text", body.Messages[1].Content)
}

func TestChatParams_ZeroMaxTokensOmitted(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(ChatParams("m", 0, "s", "u"))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "max_tokens")
}

func TestNewOpenAICompleter_RequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAICompleter(Config{Model: "m"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")

	c, err := NewOpenAICompleter(Config{APIKey: "k", Model: "m", BaseURL: "http://127.0.0.1:1/v1"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestOpenAICompleter_NilClient(t *testing.T) {
	t.Parallel()

	_, err := (&OpenAICompleter{}).Complete(context.Background(), "s", "u")
	assert.Error(t, err)
}
