// internal/models/context.go
package models

// ProjectContext 项目的角色与世界观设定集合
type ProjectContext struct {
	Characters []Character    `json:"characters"`
	Settings   []WorldSetting `json:"settings"`
	ArtStyleID string         `json:"artStyleId,omitempty"`
}

// DefaultProjectContext 新项目的空上下文
func DefaultProjectContext() ProjectContext {
	return ProjectContext{
		Characters: []Character{},
		Settings:   []WorldSetting{},
		ArtStyleID: DefaultStyleID,
	}
}

// Clone 深拷贝上下文
func (pc ProjectContext) Clone() ProjectContext {
	c := pc
	if pc.Characters != nil {
		c.Characters = append([]Character{}, pc.Characters...)
	}
	if pc.Settings != nil {
		c.Settings = append([]WorldSetting{}, pc.Settings...)
	}
	return c
}

// FindCharacter 按ID查找角色
func (pc ProjectContext) FindCharacter(id string) (Character, bool) {
	for _, c := range pc.Characters {
		if c.ID == id {
			return c, true
		}
	}
	return Character{}, false
}

// IsEmpty 上下文中没有任何角色和设定
func (pc ProjectContext) IsEmpty() bool {
	return len(pc.Characters) == 0 && len(pc.Settings) == 0
}
