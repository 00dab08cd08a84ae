// internal/llm/providers/google/google.go
package google

import (
	"context"
	"errors"
	"fmt"

	"github.com/Corphon/AnimeStoryboard/internal/llm"
	"google.golang.org/genai"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-2.5-flash",
				"gemini-2.5-pro",
				"gemini-3-pro-preview",
			},
		}
	})
}

// Provider 基于 genai SDK 的 Gemini 文本提供者
type Provider struct {
	client       *genai.Client
	defaultModel string
	models       []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New("google_api密钥未提供")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("创建 genai 客户端失败: %w", err)
	}
	p.client = client

	p.defaultModel = "gemini-2.5-flash"
	if model := config["default_model"]; model != "" {
		p.defaultModel = model
	}
	return nil
}

// NewWithClient 使用已有的 genai 客户端，网关与文本提供者共用一个连接
func NewWithClient(client *genai.Client, defaultModel string) *Provider {
	if defaultModel == "" {
		defaultModel = "gemini-2.5-flash"
	}
	return &Provider{client: client, defaultModel: defaultModel}
}

func (p *Provider) GetName() string {
	return "google gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := p.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, fmt.Errorf("google gemini API错误: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New("google gemini未返回任何结果")
	}

	out := &llm.CompletionResponse{
		Text:         resp.Text(),
		FinishReason: string(resp.Candidates[0].FinishReason),
		ModelName:    model,
		ProviderName: p.GetName(),
	}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}
