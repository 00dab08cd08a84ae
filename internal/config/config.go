// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 当前配置的单例实例
var (
	currentConfig *AppConfig
	configMutex   sync.RWMutex
	configFile    string
)

// 自动保存后端
const (
	AutosaveBackendFile  = "file"
	AutosaveBackendRedis = "redis"
)

// AppConfig 持久化到 config.json 的配置，密钥不落盘
type AppConfig struct {
	// 基础配置
	Port      string `json:"port"`
	DataDir   string `json:"data_dir"`
	LogDir    string `json:"log_dir"`
	LogLevel  string `json:"log_level"`
	DebugMode bool   `json:"debug_mode"`

	// 生成服务
	GeminiAPIKey string `json:"-"`
	StylesFile   string `json:"styles_file,omitempty"`

	// 文本改写使用的 LLM
	LLMProvider string            `json:"llm_provider"`
	LLMConfig   map[string]string `json:"llm_config"`

	// 自动保存
	AutosaveBackend  string        `json:"autosave_backend"`
	AutosaveDebounce time.Duration `json:"autosave_debounce"`
	RedisAddr        string        `json:"redis_addr,omitempty"`
	RedisPassword    string        `json:"-"`
	RedisDB          int           `json:"redis_db"`
}

// Config 从环境变量读取的基础配置
type Config struct {
	Port             string
	DataDir          string
	LogDir           string
	LogLevel         string
	DebugMode        bool
	GeminiAPIKey     string
	LLMProvider      string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AutosaveBackend  string
	AutosaveDebounce time.Duration
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	StylesFile       string
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	config := &Config{
		Port:             getEnv("PORT", "8080"),
		DataDir:          getEnvPath("DATA_DIR", "data"),
		LogDir:           getEnvPath("LOG_DIR", "logs"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DebugMode:        getEnvBool("DEBUG_MODE", false),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", os.Getenv("API_KEY")),
		LLMProvider:      getEnv("LLM_PROVIDER", "google"),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		AutosaveBackend:  getEnv("AUTOSAVE_BACKEND", AutosaveBackendFile),
		AutosaveDebounce: getEnvDuration("AUTOSAVE_DEBOUNCE", time.Second),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		StylesFile:       getEnv("STYLES_FILE", ""),
	}

	switch config.AutosaveBackend {
	case AutosaveBackendFile, AutosaveBackendRedis:
	default:
		return nil, fmt.Errorf("不支持的自动保存后端: %s", config.AutosaveBackend)
	}

	if config.GeminiAPIKey == "" {
		// 只记录警告，生成接口会返回网关错误
		log.Println("警告: 未设置 GEMINI_API_KEY，分析与媒体生成将不可用")
	}

	return config, nil
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvPath 获取路径并确保目录存在
func getEnvPath(key, defaultValue string) string {
	path := getEnv(key, defaultValue)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0755); err != nil {
			fmt.Printf("警告: 创建目录失败 %s: %v\n", path, err)
		}
	}

	return path
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("警告: %s=%q 不是整数，使用默认值 %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration 支持 "1500ms" 这类写法，纯数字按毫秒处理
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		log.Printf("警告: %s=%q 无法解析，使用默认值 %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func fromBase(base *Config) *AppConfig {
	llmConfig := map[string]string{}
	switch base.LLMProvider {
	case "openai":
		llmConfig["api_key"] = base.OpenAIAPIKey
		llmConfig["base_url"] = base.OpenAIBaseURL
		llmConfig["default_model"] = "gpt-4o-mini"
	default:
		llmConfig["api_key"] = base.GeminiAPIKey
		llmConfig["default_model"] = "gemini-2.5-flash"
	}

	return &AppConfig{
		Port:             base.Port,
		DataDir:          base.DataDir,
		LogDir:           base.LogDir,
		LogLevel:         base.LogLevel,
		DebugMode:        base.DebugMode,
		GeminiAPIKey:     base.GeminiAPIKey,
		StylesFile:       base.StylesFile,
		LLMProvider:      base.LLMProvider,
		LLMConfig:        llmConfig,
		AutosaveBackend:  base.AutosaveBackend,
		AutosaveDebounce: base.AutosaveDebounce,
		RedisAddr:        base.RedisAddr,
		RedisPassword:    base.RedisPassword,
		RedisDB:          base.RedisDB,
	}
}

// InitConfig 初始化配置管理器
func InitConfig(dataDir string) error {
	configFile = filepath.Join(dataDir, "config.json")

	baseConfig, err := Load()
	if err != nil {
		return err
	}

	configMutex.Lock()
	defer configMutex.Unlock()

	currentConfig = fromBase(baseConfig)

	// 文件中只保留 LLM 的模型选择，环境变量始终优先
	if data, err := os.ReadFile(configFile); err == nil {
		var saved AppConfig
		if json.Unmarshal(data, &saved) == nil && saved.LLMProvider == currentConfig.LLMProvider {
			if model := saved.LLMConfig["default_model"]; model != "" {
				currentConfig.LLMConfig["default_model"] = model
			}
		}
	}

	return saveLocked()
}

// GetCurrentConfig 返回当前配置的副本
func GetCurrentConfig() *AppConfig {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		baseConfig, err := Load()
		if err != nil {
			baseConfig = &Config{Port: "8080", DataDir: "data", LogDir: "logs", LLMProvider: "google",
				AutosaveBackend: AutosaveBackendFile, AutosaveDebounce: time.Second}
		}
		return fromBase(baseConfig)
	}

	configCopy := *currentConfig
	configCopy.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		configCopy.LLMConfig[k] = v
	}
	return &configCopy
}

// UpdateLLMConfig 更新LLM配置
func UpdateLLMConfig(provider string, config map[string]string) error {
	configMutex.Lock()
	defer configMutex.Unlock()

	if currentConfig == nil {
		return fmt.Errorf("配置系统未初始化")
	}

	currentConfig.LLMProvider = provider
	currentConfig.LLMConfig = config

	return saveLocked()
}

func saveLocked() error {
	if currentConfig == nil {
		return fmt.Errorf("没有配置可保存")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	persisted := *currentConfig
	persisted.LLMConfig = make(map[string]string, len(currentConfig.LLMConfig))
	for k, v := range currentConfig.LLMConfig {
		if k != "api_key" {
			persisted.LLMConfig[k] = v
		}
	}

	data, err := json.MarshalIndent(&persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	return os.WriteFile(configFile, data, 0644)
}

// stylesFile YAML 画风文件结构
type stylesFile struct {
	Styles []models.ArtStyle `yaml:"styles"`
}

// LoadStyles 读取 YAML 画风预设，路径为空时返回 nil
func LoadStyles(path string) ([]models.ArtStyle, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取画风文件失败: %w", err)
	}

	var file stylesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("解析画风文件失败: %w", err)
	}
	return file.Styles, nil
}
