package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setEnv(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "fallback-key")
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("AUTOSAVE_BACKEND", "")
	t.Setenv("AUTOSAVE_DEBOUNCE", "")
	t.Setenv("REDIS_DB", "")
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.GeminiAPIKey != "fallback-key" {
		t.Fatalf("应回退到 API_KEY, 实际 %q", cfg.GeminiAPIKey)
	}
	if cfg.AutosaveBackend != AutosaveBackendFile {
		t.Fatalf("默认后端应为 file: %s", cfg.AutosaveBackend)
	}
	if cfg.AutosaveDebounce != time.Second {
		t.Fatalf("默认防抖应为 1s: %s", cfg.AutosaveDebounce)
	}
	if _, err := os.Stat(cfg.DataDir); err != nil {
		t.Fatalf("数据目录应被创建: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	setEnv(t, t.TempDir())
	t.Setenv("AUTOSAVE_DEBOUNCE", "250")
	t.Setenv("AUTOSAVE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.AutosaveDebounce != 250*time.Millisecond {
		t.Fatalf("纯数字应按毫秒解析: %s", cfg.AutosaveDebounce)
	}
	if cfg.RedisDB != 3 || cfg.AutosaveBackend != AutosaveBackendRedis {
		t.Fatalf("Redis 配置错误: %+v", cfg)
	}

	t.Setenv("AUTOSAVE_BACKEND", "s3")
	if _, err := Load(); err == nil {
		t.Fatal("未知后端应返回错误")
	}
}

func TestInitConfigDoesNotPersistKeys(t *testing.T) {
	dir := t.TempDir()
	setEnv(t, dir)

	if err := InitConfig(dir); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}
	cfg := GetCurrentConfig()
	if cfg.LLMConfig["api_key"] != "fallback-key" {
		t.Fatal("内存中的配置应带有密钥")
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("配置文件未写入: %v", err)
	}
	if strings.Contains(string(data), "fallback-key") {
		t.Fatal("密钥不应写入 config.json")
	}

	var saved AppConfig
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("配置文件格式错误: %v", err)
	}
	if saved.LLMProvider != "google" {
		t.Fatalf("默认 LLM 应为 google: %s", saved.LLMProvider)
	}
}

func TestUpdateLLMConfigPersistsModelOnly(t *testing.T) {
	dir := t.TempDir()
	setEnv(t, dir)
	if err := InitConfig(dir); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	err := UpdateLLMConfig("openai", map[string]string{
		"api_key":       "sk-runtime",
		"default_model": "gpt-4o",
	})
	if err != nil {
		t.Fatalf("更新配置失败: %v", err)
	}

	cfg := GetCurrentConfig()
	if cfg.LLMProvider != "openai" || cfg.LLMConfig["api_key"] != "sk-runtime" {
		t.Fatalf("内存配置未更新: %+v", cfg)
	}
	cfg.LLMConfig["default_model"] = "changed"
	if GetCurrentConfig().LLMConfig["default_model"] != "gpt-4o" {
		t.Fatal("GetCurrentConfig 应返回副本")
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("配置文件未写入: %v", err)
	}
	if strings.Contains(string(data), "sk-runtime") || !strings.Contains(string(data), "gpt-4o") {
		t.Fatalf("配置文件内容错误: %s", data)
	}
}

func TestLoadStyles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "styles.yaml")
	content := `styles:
  - id: cinematic
    label: Custom Cinematic
    prompt_modifier: "film grain, 9:16 vertical"
  - id: pastel
    label: Pastel
    prompt_modifier: "soft pastel palette"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	styles, err := LoadStyles(path)
	if err != nil {
		t.Fatalf("读取画风失败: %v", err)
	}
	if len(styles) != 2 || styles[1].ID != "pastel" || styles[0].PromptModifier != "film grain, 9:16 vertical" {
		t.Fatalf("画风解析错误: %+v", styles)
	}

	if styles, err := LoadStyles(""); err != nil || styles != nil {
		t.Fatal("空路径应返回 nil")
	}
	if _, err := LoadStyles(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("文件不存在应返回错误")
	}
}
