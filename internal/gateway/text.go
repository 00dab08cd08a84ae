// internal/gateway/text.go
package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/AnimeStoryboard/internal/llm"
	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
	"github.com/patrickmn/go-cache"
)

// TextTransformer 通过 llm.Provider 完成文本改写与音效设计，结果缓存 10 分钟
type TextTransformer struct {
	mu       sync.RWMutex
	provider llm.Provider
	cache    *cache.Cache
	logger   *utils.Logger
}

// NewTextTransformer provider 为 nil 时所有操作直接回退
func NewTextTransformer(provider llm.Provider, logger *utils.Logger) *TextTransformer {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &TextTransformer{
		provider: provider,
		cache:    cache.New(10*time.Minute, 5*time.Minute),
		logger:   logger,
	}
}

// SetProvider 替换提供者并清空缓存
func (t *TextTransformer) SetProvider(provider llm.Provider) {
	t.mu.Lock()
	t.provider = provider
	t.mu.Unlock()
	t.cache.Flush()
}

// HasTextProvider 是否配置了可用的提供者
func (t *TextTransformer) HasTextProvider() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.provider != nil
}

func (t *TextTransformer) complete(ctx context.Context, op string, req llm.CompletionRequest) (string, bool) {
	key := op + "\x00" + req.Prompt
	if cached, ok := t.cache.Get(key); ok {
		return cached.(string), true
	}

	t.mu.RLock()
	provider := t.provider
	t.mu.RUnlock()
	if provider == nil {
		return "", false
	}

	resp, err := provider.CompleteText(ctx, req)
	if err != nil {
		t.logger.Warn("Text transform failed", map[string]interface{}{
			"op":    op,
			"error": err.Error(),
		})
		return "", false
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", false
	}
	t.cache.SetDefault(key, text)
	return text, true
}

// RefineText 按指令改写文本，失败或空结果时返回原文
func (t *TextTransformer) RefineText(ctx context.Context, current, instruction string) string {
	if out, ok := t.complete(ctx, "refine", llm.CompletionRequest{Prompt: refinePrompt(current, instruction)}); ok {
		return out
	}
	return current
}

// OptimizeMotionPrompt 把描述改写成英文竖屏视频提示词
func (t *TextTransformer) OptimizeMotionPrompt(ctx context.Context, current, instruction string) string {
	if out, ok := t.complete(ctx, "optimize", llm.CompletionRequest{Prompt: optimizeMotionPrompt(current, instruction)}); ok {
		return out
	}
	return current
}

// DesignSound 生成配乐提示与音效列表
func (t *TextTransformer) DesignSound(ctx context.Context, desc, mood string) models.SoundDesign {
	fallback := models.SoundDesign{MusicPrompt: mood, SFXList: []string{}}

	raw, ok := t.complete(ctx, "sound", llm.CompletionRequest{
		Prompt:   soundDesignPrompt(desc, mood),
		JSONMode: true,
	})
	if !ok {
		return fallback
	}

	var design models.SoundDesign
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &design); err != nil {
		t.logger.Warn("Sound design returned invalid JSON", map[string]interface{}{"error": err.Error()})
		return fallback
	}

	if strings.TrimSpace(design.MusicPrompt) == "" {
		design.MusicPrompt = mood
		if design.MusicPrompt == "" {
			design.MusicPrompt = defaultMusicPrompt
		}
	}
	if design.SFXList == nil {
		design.SFXList = []string{}
	}
	return design
}

// stripCodeFence 去掉部分模型包裹在 JSON 外的 ``` 代码块
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
