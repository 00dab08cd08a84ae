// internal/models/export.go
package models

import "strings"

// ExportVersion 导出文件的格式版本
const ExportVersion = "1.1"

// ViewMode 当前视图模式
type ViewMode string

const (
	ViewModeInput ViewMode = "INPUT"
	ViewModeBoard ViewMode = "BOARD"
)

// ModeFor 根据场景列表推导视图模式
func ModeFor(scenes []Scene) ViewMode {
	if len(scenes) > 0 {
		return ViewModeBoard
	}
	return ViewModeInput
}

// ProjectData 导出/导入的项目文件
type ProjectData struct {
	Context    ProjectContext `json:"context"`
	Scenes     []Scene        `json:"scenes"`
	ScriptText string         `json:"scriptText"`
	Version    string         `json:"version"`
}

// Snapshot 自动保存快照
type Snapshot struct {
	Scenes     []Scene        `json:"scenes"`
	Context    ProjectContext `json:"context"`
	ScriptText string         `json:"scriptText"`
	ViewMode   ViewMode       `json:"viewMode"`
	Timestamp  int64          `json:"timestamp"` // epoch 毫秒
}

// IsNonEmpty 快照是否包含值得恢复的内容
func (s Snapshot) IsNonEmpty() bool {
	return IsNonEmpty(s.Scenes, s.Context, s.ScriptText)
}

// RestoreInfo 可恢复的自动保存信息
type RestoreInfo struct {
	Timestamp int64 `json:"timestamp"`
}

// ProjectState 项目状态的只读副本
type ProjectState struct {
	Scenes          []Scene        `json:"scenes"`
	Context         ProjectContext `json:"context"`
	ScriptText      string         `json:"scriptText"`
	ViewMode        ViewMode       `json:"viewMode"`
	SelectedSceneID string         `json:"selectedSceneId,omitempty"`
}

// IsNonEmpty 判断项目是否有未保存的进度：
// 至少一个场景、角色或设定，或者脚本文本非空且不同于示例脚本
func IsNonEmpty(scenes []Scene, ctx ProjectContext, scriptText string) bool {
	if len(scenes) > 0 || !ctx.IsEmpty() {
		return true
	}
	trimmed := strings.TrimSpace(scriptText)
	return trimmed != "" && trimmed != strings.TrimSpace(DefaultScript)
}

// CloneScenes 深拷贝场景列表
func CloneScenes(scenes []Scene) []Scene {
	if scenes == nil {
		return nil
	}
	out := make([]Scene, len(scenes))
	for i, s := range scenes {
		out[i] = s.Clone()
	}
	return out
}
