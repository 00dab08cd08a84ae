// internal/models/style.go
package models

import "sync"

// DefaultStyleID 未设置或无法识别时使用的画风
const DefaultStyleID = "cinematic"

// ArtStyle 画风预设
type ArtStyle struct {
	ID             string `json:"id" yaml:"id"`
	Label          string `json:"label" yaml:"label"`
	PromptModifier string `json:"promptModifier" yaml:"prompt_modifier"`
}

// BuiltinStyles 内置的六种动漫画风
var BuiltinStyles = []ArtStyle{
	{
		ID:             "cinematic",
		Label:          "劇場版動畫 (Cinematic Anime)",
		PromptModifier: "cinematic anime movie still, 9:16 vertical, makoto shinkai lighting, detailed background, 8k, wallpaper quality",
	},
	{
		ID:             "cyberpunk_anime",
		Label:          "賽博龐克 (Cyberpunk Edge)",
		PromptModifier: "cyberpunk edgerunners style, 9:16 vertical, neon lights, high contrast, chromatic aberration, trigger studio style, dynamic angle",
	},
	{
		ID:             "ghibli",
		Label:          "吉卜力手繪 (Ghibli Style)",
		PromptModifier: "studio ghibli style, 9:16 vertical, watercolor background, cel shaded, lush details, hayao miyazaki, picturesque",
	},
	{
		ID:             "manga_action",
		Label:          "熱血漫 (Shonen Action)",
		PromptModifier: "shonen jump anime style, 9:16 vertical, intense action, effect lines, bold outlines, vivid colors, mappa style",
	},
	{
		ID:             "vintage_90s",
		Label:          "90年代賽璐珞 (90s Cel)",
		PromptModifier: "90s anime aesthetic, cowboy bebop style, cel animation, 9:16 vertical, retro vhs grain, lo-fi anime",
	},
	{
		ID:             "manhwa",
		Label:          "韓漫條漫 (Webtoon/Manhwa)",
		PromptModifier: "high quality manhwa style, solo leveling art style, 9:16 vertical, digital art, glowing effects, sharp details",
	},
}

// CameraAngles 运镜预设
var CameraAngles = []string{
	"標準豎屏 (Standard Vertical)",
	"動漫式大特寫 (Anime Extreme Close Up)",
	"荷蘭式傾斜 (Dutch Angle / Tilt)",
	"誇張透視 (Exaggerated Perspective)",
	"速度線背景 (Speed Lines Action)",
	"滑動變焦 (Dolly Zoom / Vertigo)",
	"對角線構圖 (Diagonal Composition)",
	"角色全身 (Full Body Vertical)",
	"仰視霸氣視角 (Low Angle Hero)",
	"俯視壓迫視角 (High Angle Vulnerable)",
	"分鏡特寫 (Panel Close Up)",
	"動態跟隨 (Dynamic Tracking)",
}

// StyleCatalog 画风目录，内置预设可被配置覆盖
type StyleCatalog struct {
	mu     sync.RWMutex
	styles []ArtStyle
}

// NewStyleCatalog 创建画风目录，overrides 按ID覆盖内置预设，未知ID追加到末尾
func NewStyleCatalog(overrides []ArtStyle) *StyleCatalog {
	styles := append([]ArtStyle{}, BuiltinStyles...)
	for _, o := range overrides {
		if o.ID == "" || o.PromptModifier == "" {
			continue
		}
		replaced := false
		for i := range styles {
			if styles[i].ID == o.ID {
				if o.Label == "" {
					o.Label = styles[i].Label
				}
				styles[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			if o.Label == "" {
				o.Label = o.ID
			}
			styles = append(styles, o)
		}
	}
	return &StyleCatalog{styles: styles}
}

// List 返回全部画风
func (c *StyleCatalog) List() []ArtStyle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ArtStyle{}, c.styles...)
}

// Resolve 按ID解析画风，找不到时回退到 cinematic
func (c *StyleCatalog) Resolve(id string) ArtStyle {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var fallback ArtStyle
	for _, s := range c.styles {
		if s.ID == id && id != "" {
			return s
		}
		if s.ID == DefaultStyleID {
			fallback = s
		}
	}
	return fallback
}

// Has 检查画风是否存在
func (c *StyleCatalog) Has(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.styles {
		if s.ID == id {
			return true
		}
	}
	return false
}
