package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/RBarbieri13/decant/internal/common"
	"github.com/RBarbieri13/decant/internal/interfaces"
	"github.com/RBarbieri13/decant/internal/resilience"
)

const (
	ProviderGemini = "gemini"
	ProviderClaude = "claude"

	defaultTemperature = 0.3
	defaultMaxTokens   = 2000
)

// Provider routes completions to Gemini or Claude based on the requested
// model, caching one client per backend. Calls run inside a per-provider
// circuit breaker with the rate-limit retry preset.
type Provider struct {
	logger   arbor.ILogger
	config   *common.LLMConfig
	breakers *resilience.BreakerRegistry

	mu           sync.Mutex
	geminiClient *genai.Client
	claudeClient anthropic.Client
	claudeReady  bool
}

// NewProvider creates the provider. Clients are created lazily on first use
// so a missing key only fails the calls that need it.
func NewProvider(logger arbor.ILogger, config *common.LLMConfig, breakers *resilience.BreakerRegistry) *Provider {
	return &Provider{
		logger:   logger,
		config:   config,
		breakers: breakers,
	}
}

// DetectProvider picks the backend from the model name, falling back to the
// configured default when the model is empty or unrecognized.
func (p *Provider) DetectProvider(model string) string {
	switch {
	case strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "claude-"):
		return ProviderClaude
	case strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "gemini-"):
		return ProviderGemini
	}
	if p.config.DefaultProvider == ProviderClaude {
		return ProviderClaude
	}
	return ProviderGemini
}

// NormalizeModel strips a provider prefix ("gemini/gemini-2.0-flash") and
// substitutes the configured default when no model was requested.
func (p *Provider) NormalizeModel(model string) string {
	if idx := strings.IndexByte(model, '/'); idx >= 0 {
		model = model[idx+1:]
	}
	if model != "" {
		return model
	}
	if p.DetectProvider("") == ProviderClaude {
		return p.config.Claude.Model
	}
	return p.config.Gemini.Model
}

// Available reports whether the default provider has credentials.
func (p *Provider) Available() bool {
	if p.config == nil {
		return false
	}
	if p.config.DefaultProvider == ProviderClaude {
		return p.config.Claude.APIKey != ""
	}
	return p.config.Gemini.APIKey != ""
}

// Complete runs a plain chat completion.
func (p *Provider) Complete(ctx context.Context, messages []interfaces.Message, opts interfaces.CompletionOptions) (*interfaces.Completion, error) {
	provider := p.DetectProvider(opts.Model)
	model := p.NormalizeModel(opts.Model)

	p.logger.Debug().
		Str("provider", provider).
		Str("model", model).
		Int("messages", len(messages)).
		Msg("Generating completion")

	result, err := p.breakers.Execute("llm:"+provider, func() (interface{}, error) {
		return resilience.RetryValue(ctx, resilience.RateLimitRetry(), func(ctx context.Context) (*interfaces.Completion, error) {
			if provider == ProviderClaude {
				return p.completeClaude(ctx, messages, model, opts, nil)
			}
			return p.completeGemini(ctx, messages, model, opts, nil)
		})
	})
	if err != nil {
		return nil, err
	}
	return result.(*interfaces.Completion), nil
}

// CompleteWithSchema runs a structured completion. Gemini enforces the
// schema natively via ResponseSchema; Claude gets the schema rendered into
// the system prompt and must return bare JSON. The response is parsed and
// checked against the schema's required fields.
func (p *Provider) CompleteWithSchema(ctx context.Context, messages []interfaces.Message, schema map[string]interface{}, opts interfaces.CompletionOptions) (*interfaces.SchemaCompletion, error) {
	provider := p.DetectProvider(opts.Model)
	model := p.NormalizeModel(opts.Model)

	result, err := p.breakers.Execute("llm:"+provider, func() (interface{}, error) {
		return resilience.RetryValue(ctx, resilience.RateLimitRetry(), func(ctx context.Context) (*interfaces.Completion, error) {
			if provider == ProviderClaude {
				return p.completeClaude(ctx, messages, model, opts, schema)
			}
			return p.completeGemini(ctx, messages, model, opts, schema)
		})
	})
	if err != nil {
		return nil, err
	}
	completion := result.(*interfaces.Completion)

	value, err := parseJSONResponse(completion.Content)
	if err != nil {
		return nil, common.NewError(common.ErrLLMParseError, "model response is not valid JSON").WithCause(err)
	}
	if missing := missingRequired(value, schema); len(missing) > 0 {
		return nil, common.NewError(common.ErrLLMSchemaError,
			fmt.Sprintf("model response missing required fields: %s", strings.Join(missing, ", ")))
	}

	return &interfaces.SchemaCompletion{
		Value: value,
		Raw:   completion.Content,
		Model: completion.Model,
		Usage: completion.Usage,
	}, nil
}

func (p *Provider) completeClaude(ctx context.Context, messages []interfaces.Message, model string, opts interfaces.CompletionOptions, schema map[string]interface{}) (*interfaces.Completion, error) {
	client, err := p.getClaudeClient()
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = p.config.Claude.Model
	}

	claudeMessages, systemText, err := convertMessagesToClaude(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}
	if schema != nil {
		systemText = appendJSONInstruction(systemText, schema)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.Claude.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  claudeMessages,
	}
	if temp := p.temperature(opts, p.config.Claude.Temperature); temp > 0 {
		params.Temperature = anthropic.Float(float64(temp))
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude api call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, common.NewError(common.ErrLLMEmptyResponse, "empty response from claude")
	}

	return &interfaces.Completion{
		Content: text.String(),
		Model:   model,
		Usage: interfaces.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

func (p *Provider) completeGemini(ctx context.Context, messages []interfaces.Message, model string, opts interfaces.CompletionOptions, schema map[string]interface{}) (*interfaces.Completion, error) {
	client, err := p.getGeminiClient(ctx)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = p.config.Gemini.Model
	}

	contents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.temperature(opts, p.config.Gemini.Temperature)),
	}
	if maxTokens := opts.MaxTokens; maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	} else if p.config.Gemini.MaxTokens > 0 {
		config.MaxOutputTokens = int32(p.config.Gemini.MaxTokens)
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	if schema != nil {
		genaiSchema, err := convertToGenaiSchema(schema)
		if err != nil {
			// Degrade to free-form JSON rather than failing the call.
			p.logger.Warn().Err(err).Msg("Failed to convert output schema")
			config.ResponseMIMEType = "application/json"
		} else if genaiSchema != nil {
			config.ResponseMIMEType = "application/json"
			config.ResponseSchema = genaiSchema
		}
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini api call failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, common.NewError(common.ErrLLMEmptyResponse, "empty response from gemini")
	}
	text := resp.Text()
	if text == "" {
		return nil, common.NewError(common.ErrLLMEmptyResponse, "empty text in gemini response")
	}

	completion := &interfaces.Completion{Content: text, Model: model}
	if resp.UsageMetadata != nil {
		completion.Usage = interfaces.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return completion, nil
}

func (p *Provider) getGeminiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.geminiClient != nil {
		return p.geminiClient, nil
	}

	if p.config.Gemini.APIKey == "" {
		return nil, common.NewError(common.ErrInvalidAPIKey, "gemini api key is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.config.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	p.geminiClient = client
	return client, nil
}

func (p *Provider) getClaudeClient() (anthropic.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claudeReady {
		return p.claudeClient, nil
	}

	if p.config.Claude.APIKey == "" {
		return anthropic.Client{}, common.NewError(common.ErrInvalidAPIKey, "claude api key is not configured")
	}
	p.claudeClient = anthropic.NewClient(option.WithAPIKey(p.config.Claude.APIKey))
	p.claudeReady = true
	return p.claudeClient, nil
}

func (p *Provider) temperature(opts interfaces.CompletionOptions, configured float32) float32 {
	if opts.Temperature > 0 {
		return opts.Temperature
	}
	if configured > 0 {
		return configured
	}
	return defaultTemperature
}

// appendJSONInstruction renders the schema into the system prompt for
// providers without native structured output.
func appendJSONInstruction(systemText string, schema map[string]interface{}) string {
	encoded, err := json.Marshal(schema)
	if err != nil {
		encoded = []byte("{}")
	}
	instruction := "Respond with a single JSON object matching this JSON Schema, with no surrounding text or markdown fences:\n" + string(encoded)
	if systemText == "" {
		return instruction
	}
	return systemText + "\n\n" + instruction
}

// parseJSONResponse decodes a model response, tolerating markdown fences
// and leading prose around the JSON object.
func parseJSONResponse(raw string) (map[string]interface{}, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	// Fall back to the outermost braces when the model added prose.
	if !strings.HasPrefix(text, "{") {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("no JSON object found in response")
		}
		text = text[start : end+1]
	}

	var value map[string]interface{}
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, err
	}
	return value, nil
}
