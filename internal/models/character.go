// internal/models/character.go
package models

// Character 角色设定，用于保持跨镜头的一致性
type Character struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`        // 外貌与性格
	ImageURL    string `json:"imageUrl,omitempty"` // 参考图 data URL
}

// WorldSetting 世界观设定
type WorldSetting struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"` // 氛围、光线、关键元素
}

// CharacterPatch 角色的部分更新，nil 字段保持不变
type CharacterPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"imageUrl,omitempty"`
}

// Apply 将补丁应用到角色上
func (p CharacterPatch) Apply(c *Character) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.ImageURL != nil {
		c.ImageURL = *p.ImageURL
	}
}

// SettingPatch 设定的部分更新
type SettingPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Apply 将补丁应用到设定上
func (p SettingPatch) Apply(w *WorldSetting) {
	if p.Name != nil {
		w.Name = *p.Name
	}
	if p.Description != nil {
		w.Description = *p.Description
	}
}

// 新建条目的默认名称
const (
	DefaultCharacterName = "新角色"
	DefaultSettingName   = "新場景"
)
