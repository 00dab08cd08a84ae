// internal/services/project_service.go
package services

import (
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/google/uuid"
)

// ChangeListener 项目状态变化后被调用，参数是状态副本
type ChangeListener func(models.ProjectState)

// ProjectLoad 一次性整体替换项目中的部分字段，nil 表示保持不变
type ProjectLoad struct {
	Context    *models.ProjectContext
	Scenes     []models.Scene
	HasScenes  bool
	ScriptText *string
	ViewMode   *models.ViewMode
}

// ProjectService 持有分镜项目的全部状态，所有读写都经过同一把锁
type ProjectService struct {
	mu         sync.RWMutex
	scenes     []models.Scene
	context    models.ProjectContext
	scriptText string
	viewMode   models.ViewMode
	selectedID string

	styles *models.StyleCatalog

	version uint64

	listenersMu sync.RWMutex
	listeners   []ChangeListener

	notifyMu  sync.Mutex
	delivered uint64
}

// NewProjectService 创建处于初始状态的项目
func NewProjectService(styles *models.StyleCatalog) *ProjectService {
	if styles == nil {
		styles = models.NewStyleCatalog(nil)
	}
	return &ProjectService{
		scenes:     []models.Scene{},
		context:    models.DefaultProjectContext(),
		scriptText: models.DefaultScript,
		viewMode:   models.ViewModeInput,
		styles:     styles,
	}
}

// Styles 返回画风目录
func (s *ProjectService) Styles() *models.StyleCatalog {
	return s.styles
}

// OnChange 注册状态变化监听
func (s *ProjectService) OnChange(fn ChangeListener) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// mutate 在写锁中执行 fn，fn 返回 true 时把变更后的状态交给监听者。
// 监听者在锁外调用，按版本号丢弃过期的通知
func (s *ProjectService) mutate(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	var state models.ProjectState
	var version uint64
	if changed {
		s.version++
		version = s.version
		state = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify(version, state)
	}
	return changed
}

func (s *ProjectService) notify(version uint64, state models.ProjectState) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version

	s.listenersMu.RLock()
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// Snapshot 返回完整状态的深拷贝
func (s *ProjectService) Snapshot() models.ProjectState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *ProjectService) snapshotLocked() models.ProjectState {
	return models.ProjectState{
		Scenes:          models.CloneScenes(s.scenes),
		Context:         s.context.Clone(),
		ScriptText:      s.scriptText,
		ViewMode:        s.viewMode,
		SelectedSceneID: s.selectedID,
	}
}

// Scenes 返回场景列表副本
func (s *ProjectService) Scenes() []models.Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CloneScenes(s.scenes)
}

// Context 返回上下文副本
func (s *ProjectService) Context() models.ProjectContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context.Clone()
}

// Scene 按ID读取场景
func (s *ProjectService) Scene(id string) (models.Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.scenes[i].Clone(), true
	}
	return models.Scene{}, false
}

func (s *ProjectService) indexOf(id string) int {
	for i := range s.scenes {
		if s.scenes[i].ID == id {
			return i
		}
	}
	return -1
}

// ReplaceScenes 整体替换场景列表
func (s *ProjectService) ReplaceScenes(scenes []models.Scene) {
	s.mutate(func() bool {
		s.replaceScenesLocked(scenes)
		return true
	})
}

func (s *ProjectService) replaceScenesLocked(scenes []models.Scene) {
	s.scenes = models.CloneScenes(scenes)
	if s.scenes == nil {
		s.scenes = []models.Scene{}
	}
	if s.selectedID != "" && s.indexOf(s.selectedID) < 0 {
		s.selectedID = ""
	}
}

// UpdateScene 局部更新场景，ID不存在时什么也不做
func (s *ProjectService) UpdateScene(id string, patch models.ScenePatch) bool {
	return s.mutate(func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		patch.Apply(&s.scenes[i])
		return true
	})
}

// ToggleSceneCharacter 切换角色是否出现在镜头中
func (s *ProjectService) ToggleSceneCharacter(sceneID, charID string) (bool, error) {
	var active bool
	found := s.mutate(func() bool {
		i := s.indexOf(sceneID)
		if i < 0 {
			return false
		}
		scene := &s.scenes[i]
		ids := make([]string, 0, len(scene.ActiveCharacterIDs)+1)
		for _, id := range scene.ActiveCharacterIDs {
			if id != charID {
				ids = append(ids, id)
			}
		}
		if len(ids) == len(scene.ActiveCharacterIDs) {
			ids = append(ids, charID)
			active = true
		}
		scene.ActiveCharacterIDs = ids
		return true
	})
	if !found {
		return false, apperrors.NewNotFoundError("场景不存在: "+sceneID, nil)
	}
	return active, nil
}

// SelectScene 打开指定场景
func (s *ProjectService) SelectScene(id string) (models.Scene, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.Scene{}, false
	}
	s.selectedID = id
	return s.scenes[i].Clone(), true
}

// ClearSelection 关闭当前场景
func (s *ProjectService) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedID = ""
}

// SelectedScene 当前打开的场景，始终从列表中读取
func (s *ProjectService) SelectedScene() (models.Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selectedID == "" {
		return models.Scene{}, false
	}
	if i := s.indexOf(s.selectedID); i >= 0 {
		return s.scenes[i].Clone(), true
	}
	return models.Scene{}, false
}

// NextScene 选中下一个场景，已在末尾时保持不变
func (s *ProjectService) NextScene() (models.Scene, bool) {
	return s.step(1)
}

// PrevScene 选中上一个场景，已在开头时保持不变
func (s *ProjectService) PrevScene() (models.Scene, bool) {
	return s.step(-1)
}

func (s *ProjectService) step(delta int) (models.Scene, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(s.selectedID)
	if s.selectedID == "" || i < 0 {
		return models.Scene{}, false
	}
	next := i + delta
	if next < 0 || next >= len(s.scenes) {
		next = i
	}
	s.selectedID = s.scenes[next].ID
	return s.scenes[next].Clone(), true
}

// SetScriptText 更新脚本文本
func (s *ProjectService) SetScriptText(text string) {
	s.mutate(func() bool {
		s.scriptText = text
		return true
	})
}

// SetViewMode 切换视图
func (s *ProjectService) SetViewMode(mode models.ViewMode) error {
	if mode != models.ViewModeInput && mode != models.ViewModeBoard {
		return apperrors.NewValidationError(fmt.Sprintf("无效的视图模式: %s", mode), nil)
	}
	s.mutate(func() bool {
		s.viewMode = mode
		return true
	})
	return nil
}

// SetArtStyle 设置项目画风
func (s *ProjectService) SetArtStyle(id string) error {
	if !s.styles.Has(id) {
		return apperrors.NewValidationError("未知的画风: "+id, nil)
	}
	s.mutate(func() bool {
		s.context.ArtStyleID = id
		return true
	})
	return nil
}

// SetContext 整体替换上下文
func (s *ProjectService) SetContext(pc models.ProjectContext) {
	s.mutate(func() bool {
		s.context = normalizeContext(pc)
		return true
	})
}

func normalizeContext(pc models.ProjectContext) models.ProjectContext {
	pc = pc.Clone()
	if pc.Characters == nil {
		pc.Characters = []models.Character{}
	}
	if pc.Settings == nil {
		pc.Settings = []models.WorldSetting{}
	}
	return pc
}

// Load 在一次加锁中应用导入或恢复的数据
func (s *ProjectService) Load(l ProjectLoad) {
	s.mutate(func() bool {
		if l.Context != nil {
			s.context = normalizeContext(*l.Context)
		}
		if l.HasScenes {
			s.replaceScenesLocked(l.Scenes)
		}
		if l.ScriptText != nil {
			s.scriptText = *l.ScriptText
		}
		if l.ViewMode != nil {
			s.viewMode = *l.ViewMode
		}
		return true
	})
}

// ResetProject 恢复为新项目
func (s *ProjectService) ResetProject() {
	s.mutate(func() bool {
		s.scenes = []models.Scene{}
		s.context = models.DefaultProjectContext()
		s.scriptText = models.DefaultScript
		s.viewMode = models.ViewModeInput
		s.selectedID = ""
		return true
	})
}

// AddCharacter 新增一个空白角色
func (s *ProjectService) AddCharacter() models.Character {
	c := models.Character{ID: uuid.NewString(), Name: models.DefaultCharacterName}
	s.mutate(func() bool {
		s.context.Characters = append(s.context.Characters, c)
		return true
	})
	return c
}

// UpdateCharacter 在一次变更中应用补丁。参考图必须是 data URL，空字符串表示清除；
// 校验失败时不做任何修改
func (s *ProjectService) UpdateCharacter(id string, patch models.CharacterPatch) (models.Character, error) {
	if patch.ImageURL != nil && *patch.ImageURL != "" && !strings.HasPrefix(*patch.ImageURL, "data:") {
		return models.Character{}, apperrors.NewValidationError("参考图必须是 data URL", nil)
	}

	var updated models.Character
	found := s.mutate(func() bool {
		for i := range s.context.Characters {
			if s.context.Characters[i].ID == id {
				patch.Apply(&s.context.Characters[i])
				updated = s.context.Characters[i]
				return true
			}
		}
		return false
	})
	if !found {
		return models.Character{}, apperrors.NewNotFoundError("角色不存在: "+id, nil)
	}
	return updated, nil
}

// RemoveCharacter 删除角色，镜头中残留的ID由使用方忽略
func (s *ProjectService) RemoveCharacter(id string) error {
	found := s.mutate(func() bool {
		for i, c := range s.context.Characters {
			if c.ID == id {
				s.context.Characters = append(s.context.Characters[:i:i], s.context.Characters[i+1:]...)
				return true
			}
		}
		return false
	})
	if !found {
		return apperrors.NewNotFoundError("角色不存在: "+id, nil)
	}
	return nil
}

// AddSetting 新增一个空白设定
func (s *ProjectService) AddSetting() models.WorldSetting {
	w := models.WorldSetting{ID: uuid.NewString(), Name: models.DefaultSettingName}
	s.mutate(func() bool {
		s.context.Settings = append(s.context.Settings, w)
		return true
	})
	return w
}

// UpdateSetting 在一次变更中应用补丁
func (s *ProjectService) UpdateSetting(id string, patch models.SettingPatch) (models.WorldSetting, error) {
	var updated models.WorldSetting
	found := s.mutate(func() bool {
		for i := range s.context.Settings {
			if s.context.Settings[i].ID == id {
				patch.Apply(&s.context.Settings[i])
				updated = s.context.Settings[i]
				return true
			}
		}
		return false
	})
	if !found {
		return models.WorldSetting{}, apperrors.NewNotFoundError("设定不存在: "+id, nil)
	}
	return updated, nil
}

// RemoveSetting 删除设定
func (s *ProjectService) RemoveSetting(id string) error {
	found := s.mutate(func() bool {
		for i, w := range s.context.Settings {
			if w.ID == id {
				s.context.Settings = append(s.context.Settings[:i:i], s.context.Settings[i+1:]...)
				return true
			}
		}
		return false
	})
	if !found {
		return apperrors.NewNotFoundError("设定不存在: "+id, nil)
	}
	return nil
}
