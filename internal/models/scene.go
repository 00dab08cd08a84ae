// internal/models/scene.go
package models

import (
	"fmt"
	"strings"
)

// Scene 表示竖屏分镜中的一个镜头
type Scene struct {
	ID                 string   `json:"id"`
	Order              int      `json:"order"`             // 展示用序号，真实顺序以列表位置为准
	Script             string   `json:"script"`            // 原始文本片段
	VisualDescription  string   `json:"visualDescription"` // 画面提示词
	VideoPrompt        string   `json:"videoPrompt"`       // 运动提示词
	Narration          string   `json:"narration"`         // 旁白/字幕
	Duration           float64  `json:"duration"`          // 秒
	CameraAngle        string   `json:"cameraAngle"`
	BGM                string   `json:"bgm"`
	SoundEffects       []string `json:"soundEffects"`
	ImageURL           string   `json:"imageUrl,omitempty"`
	VideoURL           string   `json:"videoUrl,omitempty"`
	AudioURL           string   `json:"audioUrl,omitempty"`
	ArtStyle           string   `json:"artStyle,omitempty"` // 单镜头风格覆盖
	ActiveCharacterIDs []string `json:"activeCharacterIds"`
}

// Clone 深拷贝场景
func (s Scene) Clone() Scene {
	c := s
	if s.SoundEffects != nil {
		c.SoundEffects = append([]string{}, s.SoundEffects...)
	}
	if s.ActiveCharacterIDs != nil {
		c.ActiveCharacterIDs = append([]string{}, s.ActiveCharacterIDs...)
	}
	return c
}

// EffectiveVideoPrompt 返回视频提示词，缺省时回退到画面描述
func (s Scene) EffectiveVideoPrompt() string {
	if strings.TrimSpace(s.VideoPrompt) != "" {
		return s.VideoPrompt
	}
	return s.VisualDescription
}

// HasCharacter 检查角色是否出现在该镜头中
func (s Scene) HasCharacter(characterID string) bool {
	for _, id := range s.ActiveCharacterIDs {
		if id == characterID {
			return true
		}
	}
	return false
}

// ScenePatch 场景的局部更新，nil 字段保持不变
type ScenePatch struct {
	Order              *int      `json:"order,omitempty"`
	Script             *string   `json:"script,omitempty"`
	VisualDescription  *string   `json:"visualDescription,omitempty"`
	VideoPrompt        *string   `json:"videoPrompt,omitempty"`
	Narration          *string   `json:"narration,omitempty"`
	Duration           *float64  `json:"duration,omitempty"`
	CameraAngle        *string   `json:"cameraAngle,omitempty"`
	BGM                *string   `json:"bgm,omitempty"`
	SoundEffects       *[]string `json:"soundEffects,omitempty"`
	ImageURL           *string   `json:"imageUrl,omitempty"`
	VideoURL           *string   `json:"videoUrl,omitempty"`
	AudioURL           *string   `json:"audioUrl,omitempty"`
	ArtStyle           *string   `json:"artStyle,omitempty"`
	ActiveCharacterIDs *[]string `json:"activeCharacterIds,omitempty"`
}

// Apply 将补丁应用到场景上
func (p ScenePatch) Apply(s *Scene) {
	if p.Order != nil {
		s.Order = *p.Order
	}
	if p.Script != nil {
		s.Script = *p.Script
	}
	if p.VisualDescription != nil {
		s.VisualDescription = *p.VisualDescription
	}
	if p.VideoPrompt != nil {
		s.VideoPrompt = *p.VideoPrompt
	}
	if p.Narration != nil {
		s.Narration = *p.Narration
	}
	if p.Duration != nil {
		s.Duration = *p.Duration
	}
	if p.CameraAngle != nil {
		s.CameraAngle = *p.CameraAngle
	}
	if p.BGM != nil {
		s.BGM = *p.BGM
	}
	if p.SoundEffects != nil {
		s.SoundEffects = append([]string{}, (*p.SoundEffects)...)
	}
	if p.ImageURL != nil {
		s.ImageURL = *p.ImageURL
	}
	if p.VideoURL != nil {
		s.VideoURL = *p.VideoURL
	}
	if p.AudioURL != nil {
		s.AudioURL = *p.AudioURL
	}
	if p.ArtStyle != nil {
		s.ArtStyle = *p.ArtStyle
	}
	if p.ActiveCharacterIDs != nil {
		s.ActiveCharacterIDs = append([]string{}, (*p.ActiveCharacterIDs)...)
	}
}

// IsEmpty 补丁是否不包含任何字段
func (p ScenePatch) IsEmpty() bool {
	return p == ScenePatch{}
}

// String 返回字符串指针，用于构造补丁
func String(v string) *string {
	return &v
}

// TimelineEntry 时间轴图表的一项
type TimelineEntry struct {
	Name     string  `json:"name"`
	Order    int     `json:"order"`
	Duration float64 `json:"duration"`
}

// BuildTimeline 按列表顺序生成时间轴数据
func BuildTimeline(scenes []Scene) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(scenes))
	for i, s := range scenes {
		entries = append(entries, TimelineEntry{
			Name:     fmt.Sprintf("S%d", i+1),
			Order:    s.Order,
			Duration: s.Duration,
		})
	}
	return entries
}
