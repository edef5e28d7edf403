package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/theimaginaryfoundation/diaasq-bench/diaasq"
)

// Completer is the opaque language-model call: one system prompt and one user prompt in, text out.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAICompleter calls an OpenAI-compatible chat completions endpoint once per request.
// Failures are returned to the caller as-is; there is no retry.
type OpenAICompleter struct {
	client     *openai.Client
	model      string
	maxTokens  int64
	structured bool
	log        *zerolog.Logger
}

var quadrupleSchema = GenerateSchema[diaasq.QuadrupleList]()

// NewOpenAICompleter builds a client from cfg. The logger may be nil.
func NewOpenAICompleter(cfg Config, logger *zerolog.Logger) (*OpenAICompleter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("NewOpenAICompleter: %w", err)
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	client := openai.NewClient(opts...)
	return &OpenAICompleter{
		client:     &client,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		structured: cfg.StructuredOutput,
		log:        logger,
	}, nil
}

func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	if c.client == nil {
		return "", errors.New("OpenAICompleter: client is nil")
	}

	params := ChatParams(c.model, c.maxTokens, system, user)
	if c.structured {
		params.ResponseFormat = QuadrupleResponseFormat()
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("OpenAICompleter: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAICompleter: response has no choices")
	}
	c.log.Debug().
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("chat completion")
	return resp.Choices[0].Message.Content, nil
}

// ChatParams builds a two-message chat completion request.
func ChatParams(model string, maxTokens int64, system, user string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(maxTokens)
	}
	return params
}

// QuadrupleResponseFormat constrains answers to the {"quadruples":[...]} shape.
func QuadrupleResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        "quadruples",
				Description: openai.String("Aspect sentiment quadruples found in the input text"),
				Schema:      quadrupleSchema,
				Strict:      openai.Bool(true),
			},
		},
	}
}

// BatchRequest is one line of an offline batch-inference file.
type BatchRequest struct {
	CustomID string          `json:"custom_id"`
	Method   string          `json:"method"`
	URL      string          `json:"url"`
	Body     json.RawMessage `json:"body"`
}

// NewBatchRequest wraps a chat completion request for the batch endpoint.
func NewBatchRequest(customID string, params openai.ChatCompletionNewParams) (BatchRequest, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return BatchRequest{}, fmt.Errorf("NewBatchRequest: marshal body: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(b, &body); err != nil {
		return BatchRequest{}, fmt.Errorf("NewBatchRequest: decode body: %w", err)
	}
	body["stream"] = false
	raw, err := json.Marshal(body)
	if err != nil {
		return BatchRequest{}, fmt.Errorf("NewBatchRequest: encode body: %w", err)
	}
	return BatchRequest{
		CustomID: customID,
		Method:   "POST",
		URL:      "/v1/chat/completions",
		Body:     raw,
	}, nil
}

func GenerateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

// ensureOpenAICompliance makes every object strict: no additional properties and every
// property required.
func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				sort.Strings(requiredFields)
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(additionalProps)
	}
}
