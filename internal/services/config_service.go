// internal/services/config_service.go
package services

import (
	"strings"
	"sync"

	"github.com/Corphon/AnimeStoryboard/internal/config"
	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/llm"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
)

// TextProviderHost 网关中与配置相关的部分
type TextProviderHost interface {
	SetTextProvider(p llm.Provider)
	HasTextProvider() bool
	HasAPIKey() bool
}

// ConfigStatus 对外展示的配置状态，不包含任何密钥
type ConfigStatus struct {
	LLMProvider     string   `json:"llmProvider"`
	Model           string   `json:"model"`
	BaseURL         string   `json:"baseUrl,omitempty"`
	HasGeminiKey    bool     `json:"hasGeminiKey"`
	TextTransforms  bool     `json:"textTransforms"`
	AutosaveBackend string   `json:"autosaveBackend"`
	Providers       []string `json:"providers"`
}

// TextProviderUpdate 切换文本改写提供者的参数；APIKey 只保存在内存中
type TextProviderUpdate struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"apiKey"`
	BaseURL  string `json:"baseUrl"`
}

// ConfigService 查询与修改运行时配置
type ConfigService struct {
	host   TextProviderHost
	logger *utils.Logger
	mu     sync.Mutex

	// 默认读写全局配置，测试中可替换
	Current func() *config.AppConfig
	Update  func(provider string, cfg map[string]string) error
}

// NewConfigService 创建配置服务
func NewConfigService(host TextProviderHost, logger *utils.Logger) *ConfigService {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &ConfigService{
		host:    host,
		logger:  logger,
		Current: config.GetCurrentConfig,
		Update:  config.UpdateLLMConfig,
	}
}

// Status 当前配置状态
func (s *ConfigService) Status() ConfigStatus {
	cfg := s.Current()
	return ConfigStatus{
		LLMProvider:     cfg.LLMProvider,
		Model:           cfg.LLMConfig["default_model"],
		BaseURL:         cfg.LLMConfig["base_url"],
		HasGeminiKey:    s.host.HasAPIKey(),
		TextTransforms:  s.host.HasTextProvider(),
		AutosaveBackend: cfg.AutosaveBackend,
		Providers:       llm.ListProviders(),
	}
}

// UpdateTextProvider 切换提供者或模型。新提供者初始化成功后才会保存并生效
func (s *ConfigService) UpdateTextProvider(req TextProviderUpdate) (ConfigStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.Current()
	name := strings.TrimSpace(req.Provider)
	if name == "" {
		name = cfg.LLMProvider
	}
	if !isRegisteredProvider(name) {
		return ConfigStatus{}, apperrors.NewValidationError("不支持的提供者: "+name, nil)
	}

	llmConfig := make(map[string]string)
	if name == cfg.LLMProvider {
		for k, v := range cfg.LLMConfig {
			llmConfig[k] = v
		}
	}
	if name == "google" && llmConfig["api_key"] == "" {
		llmConfig["api_key"] = cfg.GeminiAPIKey
	}
	if req.APIKey != "" {
		llmConfig["api_key"] = req.APIKey
	}
	if req.Model != "" {
		llmConfig["default_model"] = req.Model
	}
	if req.BaseURL != "" {
		llmConfig["base_url"] = req.BaseURL
	}

	provider, err := llm.GetProvider(name, llmConfig)
	if err != nil {
		return ConfigStatus{}, apperrors.NewValidationError("初始化提供者失败", err)
	}
	if err := s.Update(name, llmConfig); err != nil {
		return ConfigStatus{}, apperrors.NewProcessingError("保存配置失败", err)
	}
	s.host.SetTextProvider(provider)

	s.logger.Info("Text provider updated", map[string]interface{}{
		"provider": name,
		"model":    llmConfig["default_model"],
	})
	return s.Status(), nil
}

func isRegisteredProvider(name string) bool {
	for _, registered := range llm.ListProviders() {
		if registered == name {
			return true
		}
	}
	return false
}
