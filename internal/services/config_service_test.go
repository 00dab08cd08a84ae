package services

import (
	"testing"

	"github.com/Corphon/AnimeStoryboard/internal/config"
	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/llm"
	_ "github.com/Corphon/AnimeStoryboard/internal/llm/providers/openai"
)

type fakeHost struct {
	apiKey   bool
	provider llm.Provider
}

func (h *fakeHost) SetTextProvider(p llm.Provider) { h.provider = p }
func (h *fakeHost) HasTextProvider() bool          { return h.provider != nil }
func (h *fakeHost) HasAPIKey() bool                { return h.apiKey }

// newTestConfigService 配置保存在内存中，Update 会修改 Current 的返回值
func newTestConfigService(host *fakeHost) (*ConfigService, *config.AppConfig) {
	cfg := &config.AppConfig{
		LLMProvider:     "google",
		LLMConfig:       map[string]string{"api_key": "secret", "default_model": "gemini-2.5-flash"},
		GeminiAPIKey:    "secret",
		AutosaveBackend: config.AutosaveBackendFile,
	}
	svc := NewConfigService(host, nil)
	svc.Current = func() *config.AppConfig {
		copied := *cfg
		return &copied
	}
	svc.Update = func(provider string, llmConfig map[string]string) error {
		cfg.LLMProvider = provider
		cfg.LLMConfig = llmConfig
		return nil
	}
	return svc, cfg
}

func TestConfigStatus(t *testing.T) {
	svc, _ := newTestConfigService(&fakeHost{apiKey: true})

	status := svc.Status()
	if !status.HasGeminiKey || status.TextTransforms {
		t.Fatalf("密钥与文本提供者状态错误: %+v", status)
	}
	if status.LLMProvider != "google" || status.Model != "gemini-2.5-flash" {
		t.Fatalf("提供者信息错误: %+v", status)
	}
	found := false
	for _, name := range status.Providers {
		if name == "openai" {
			found = true
		}
	}
	if !found {
		t.Fatalf("应列出已注册的提供者: %v", status.Providers)
	}
}

func TestUpdateTextProviderValidation(t *testing.T) {
	host := &fakeHost{}
	svc, cfg := newTestConfigService(host)

	if _, err := svc.UpdateTextProvider(TextProviderUpdate{Provider: "anthropic"}); !apperrors.IsValidationError(err) {
		t.Fatalf("未注册的提供者应返回校验错误: %v", err)
	}
	// 切换到 openai 时不会沿用 Gemini 密钥
	if _, err := svc.UpdateTextProvider(TextProviderUpdate{Provider: "openai"}); !apperrors.IsValidationError(err) {
		t.Fatalf("缺少密钥应返回校验错误: %v", err)
	}
	if host.provider != nil || cfg.LLMProvider != "google" {
		t.Fatal("失败时不应修改配置")
	}
}

func TestUpdateTextProviderSwitches(t *testing.T) {
	host := &fakeHost{}
	svc, cfg := newTestConfigService(host)

	status, err := svc.UpdateTextProvider(TextProviderUpdate{
		Provider: "openai",
		Model:    "gpt-4o",
		APIKey:   "sk-test",
		BaseURL:  "https://openrouter.example/v1",
	})
	if err != nil {
		t.Fatalf("切换提供者失败: %v", err)
	}
	if host.provider == nil || host.provider.GetName() != "openai" {
		t.Fatal("网关应使用新的提供者")
	}
	if cfg.LLMConfig["api_key"] != "sk-test" || cfg.LLMConfig["default_model"] != "gpt-4o" {
		t.Fatalf("保存的配置错误: %v", cfg.LLMConfig)
	}
	if status.LLMProvider != "openai" || status.Model != "gpt-4o" || !status.TextTransforms {
		t.Fatalf("返回的状态错误: %+v", status)
	}

	// 同一提供者只改模型时保留其余配置
	if _, err := svc.UpdateTextProvider(TextProviderUpdate{Model: "gpt-4o-mini"}); err != nil {
		t.Fatalf("修改模型失败: %v", err)
	}
	if cfg.LLMConfig["api_key"] != "sk-test" || cfg.LLMConfig["base_url"] != "https://openrouter.example/v1" {
		t.Fatalf("修改模型不应丢失密钥与地址: %v", cfg.LLMConfig)
	}
}
