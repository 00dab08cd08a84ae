// internal/llm/providers/openai/openai.go
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corphon/AnimeStoryboard/internal/llm"
	goopenai "github.com/sashabaranov/go-openai"
)

func init() {
	llm.Register("openai", func() llm.Provider {
		return &Provider{
			models: []string{
				goopenai.GPT4oMini,
				goopenai.GPT4o,
			},
		}
	})
}

// Provider OpenAI 兼容接口的文本提供者，base_url 可指向任意兼容服务
type Provider struct {
	client       *goopenai.Client
	defaultModel string
	models       []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New("openai_api密钥未提供")
	}

	clientConfig := goopenai.DefaultConfig(apiKey)
	if baseURL := config["base_url"]; baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	p.client = goopenai.NewClientWithConfig(clientConfig)

	p.defaultModel = goopenai.GPT4oMini
	if model := config["default_model"]; model != "" {
		p.defaultModel = model
	}
	return nil
}

func (p *Provider) GetName() string {
	return "openai"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]goopenai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai API错误: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai未返回任何结果")
	}

	return &llm.CompletionResponse{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		TokensUsed:   resp.Usage.TotalTokens,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}
