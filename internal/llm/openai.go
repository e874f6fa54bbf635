package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider interface for OpenAI-compatible
// APIs, including Azure OpenAI deployments.
type OpenAIProvider struct {
	name  string
	api   *openai.Client
	model string
}

// OpenAIConfig holds configuration for the OpenAI provider
type OpenAIConfig struct {
	Name    string // default: "openai", or "azure" when Azure is set
	APIKey  string
	BaseURL string // default: https://api.openai.com/v1
	Model   string // default: gpt-4o-mini; the deployment name for Azure
	// Azure switches to Azure OpenAI auth and URL layout. BaseURL is then
	// the resource endpoint, e.g. https://myres.openai.azure.com.
	Azure      bool
	APIVersion string
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		if cfg.Azure {
			cfg.Model = "gpt-4.1-nano"
		} else {
			cfg.Model = "gpt-4o-mini"
		}
	}

	var config openai.ClientConfig
	if cfg.Azure {
		config = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			config.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Model
		config.AzureModelMapperFunc = func(string) string { return deployment }
	} else {
		config = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			config.BaseURL = cfg.BaseURL
		}
	}
	config.HTTPClient = newLLMHTTPClient()

	name := cfg.Name
	if name == "" {
		name = "openai"
		if cfg.Azure {
			name = "azure"
		}
	}

	return &OpenAIProvider{
		name:  name,
		api:   openai.NewClientWithConfig(config),
		model: cfg.Model,
	}
}

func (p *OpenAIProvider) Name() string {
	return p.name
}

func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
	}
	if req.JSONOutput {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, translateOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &DecodeError{Err: errors.New("no choices returned")}
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// translateOpenAIError exposes the HTTP status of client errors as a
// StatusError so classification does not depend on the client library.
func translateOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{StatusCode: reqErr.HTTPStatusCode, Body: fmt.Sprint(reqErr.Err)}
	}
	return fmt.Errorf("chat completion: %w", err)
}
