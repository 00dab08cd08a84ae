// internal/services/autosave_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/Corphon/AnimeStoryboard/internal/storage"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
)

// DefaultAutosaveDebounce 最后一次修改后等待多久写入快照
const DefaultAutosaveDebounce = time.Second

// AutosaveService 防抖写入快照，并负责恢复、丢弃、导入与导出
type AutosaveService struct {
	project  *ProjectService
	store    storage.SnapshotStore
	debounce time.Duration
	logger   *utils.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending *pendingSave
	gen     uint64
	restore *models.RestoreInfo

	// 串行化快照的写入与删除
	writeMu sync.Mutex
}

type pendingSave struct {
	timer *time.Timer
	state models.ProjectState
	gen   uint64
}

// NewAutosaveService 创建服务并挂到项目的变化通知上
func NewAutosaveService(project *ProjectService, store storage.SnapshotStore, debounce time.Duration, logger *utils.Logger) *AutosaveService {
	if debounce <= 0 {
		debounce = DefaultAutosaveDebounce
	}
	if logger == nil {
		logger = utils.GetLogger()
	}

	s := &AutosaveService{
		project:  project,
		store:    store,
		debounce: debounce,
		logger:   logger,
		now:      time.Now,
	}
	project.OnChange(s.Notify)
	return s
}

// Notify 项目变化时调用。非空状态会重新计时，空状态只取消待写入的快照
func (s *AutosaveService) Notify(state models.ProjectState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked()
	if !models.IsNonEmpty(state.Scenes, state.Context, state.ScriptText) {
		return
	}

	p := &pendingSave{state: state, gen: s.gen}
	p.timer = time.AfterFunc(s.debounce, func() { s.fire(p) })
	s.pending = p
}

func (s *AutosaveService) cancelLocked() {
	s.gen++
	if s.pending != nil {
		s.pending.timer.Stop()
		s.pending = nil
	}
}

func (s *AutosaveService) fire(p *pendingSave) {
	s.mu.Lock()
	if p.gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.writeMu.Lock()
	s.mu.Unlock()
	defer s.writeMu.Unlock()

	if err := s.write(context.Background(), p.state); err != nil {
		s.logger.Error("Autosave failed", map[string]interface{}{"error": err.Error()})
	}
}

func (s *AutosaveService) write(ctx context.Context, state models.ProjectState) error {
	snap := models.Snapshot{
		Scenes:     state.Scenes,
		Context:    state.Context,
		ScriptText: state.ScriptText,
		ViewMode:   models.ModeFor(state.Scenes),
		Timestamp:  s.now().UnixMilli(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, data); err != nil {
		return apperrors.WrapError(err, "写入存档失败", apperrors.ErrorTypeError)
	}

	s.logger.Debug("Autosaved project", map[string]interface{}{
		"scenes":    len(snap.Scenes),
		"timestamp": snap.Timestamp,
	})
	return nil
}

// Flush 立即写入尚未落盘的快照，用于关闭前
func (s *AutosaveService) Flush(ctx context.Context) error {
	s.mu.Lock()
	p := s.pending
	if p == nil {
		s.mu.Unlock()
		return nil
	}
	s.cancelLocked()
	s.writeMu.Lock()
	s.mu.Unlock()
	defer s.writeMu.Unlock()

	return s.write(ctx, p.state)
}

// Pending 是否有等待写入的快照
func (s *AutosaveService) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// loadSnapshot 读取并解析快照；不存在时返回 nil
func (s *AutosaveService) loadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	data, err := s.store.Load(ctx)
	if errors.Is(err, storage.ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewProcessingError("读取存档失败", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, apperrors.NewMalformedDataError("读取存档失败", err)
	}
	return &snap, nil
}

// CheckRestore 检查是否有值得恢复的快照，不会修改项目
func (s *AutosaveService) CheckRestore(ctx context.Context) (*models.RestoreInfo, error) {
	snap, err := s.loadSnapshot(ctx)
	if apperrors.IsMalformedDataError(err) {
		s.logger.Warn("Ignoring unreadable autosave", map[string]interface{}{"error": err.Error()})
		err = nil
	}
	if err != nil {
		return nil, err
	}

	var info *models.RestoreInfo
	if snap != nil && snap.IsNonEmpty() {
		info = &models.RestoreInfo{Timestamp: snap.Timestamp}
	}

	s.mu.Lock()
	s.restore = info
	s.mu.Unlock()
	return info, nil
}

// RestoreAvailable 返回最近一次检查得到的恢复信息
func (s *AutosaveService) RestoreAvailable() *models.RestoreInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restore == nil {
		return nil
	}
	info := *s.restore
	return &info
}

// Restore 应用快照。解析失败时项目保持不变
func (s *AutosaveService) Restore(ctx context.Context) error {
	snap, err := s.loadSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		return apperrors.NewNotFoundError("没有可恢复的存档", nil)
	}

	mode := models.ViewModeInput
	if snap.ViewMode == models.ViewModeBoard && len(snap.Scenes) > 0 {
		mode = models.ViewModeBoard
	}
	s.project.Load(ProjectLoad{
		Context:    &snap.Context,
		Scenes:     snap.Scenes,
		HasScenes:  true,
		ScriptText: &snap.ScriptText,
		ViewMode:   &mode,
	})

	s.mu.Lock()
	s.restore = nil
	s.mu.Unlock()

	s.logger.Info("Project restored from autosave", map[string]interface{}{
		"scenes":    len(snap.Scenes),
		"timestamp": snap.Timestamp,
	})
	return nil
}

// Discard 删除快照，未确认时什么也不做
func (s *AutosaveService) Discard(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return apperrors.NewConfirmationRequiredError("确定要舍弃未保存的进度吗？此操作无法恢复。")
	}

	if err := s.deleteSnapshot(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.restore = nil
	s.mu.Unlock()
	return nil
}

func (s *AutosaveService) deleteSnapshot(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.store.Delete(ctx); err != nil {
		return apperrors.NewProcessingError("删除存档失败", err)
	}
	return nil
}

// NewProject 清空项目并删除快照，未确认时什么也不做
func (s *AutosaveService) NewProject(ctx context.Context, confirmed bool) error {
	if !confirmed {
		return apperrors.NewConfirmationRequiredError("确定要新建项目吗？当前进度将被清空 (除非已导出)。")
	}

	s.project.ResetProject()

	s.mu.Lock()
	s.cancelLocked()
	s.restore = nil
	s.mu.Unlock()

	return s.deleteSnapshot(ctx)
}

// Export 导出项目文件
func (s *AutosaveService) Export() ([]byte, error) {
	state := s.project.Snapshot()
	data := models.ProjectData{
		Context:    state.Context,
		Scenes:     state.Scenes,
		ScriptText: state.ScriptText,
		Version:    models.ExportVersion,
	}
	return json.MarshalIndent(data, "", "  ")
}

// Import 导入项目文件。整份数据校验通过后才会一次性应用
func (s *AutosaveService) Import(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperrors.NewMalformedDataError("项目导入失败：文件格式错误", err)
	}

	var load ProjectLoad

	if msg, ok := raw["context"]; ok && !isJSONNull(msg) {
		var pc models.ProjectContext
		if err := json.Unmarshal(msg, &pc); err != nil {
			return apperrors.NewMalformedDataError("项目导入失败：context 格式错误", err)
		}
		load.Context = &pc
	}

	if msg, ok := raw["scriptText"]; ok && !isJSONNull(msg) {
		var text string
		if err := json.Unmarshal(msg, &text); err != nil {
			return apperrors.NewMalformedDataError("项目导入失败：scriptText 格式错误", err)
		}
		load.ScriptText = &text
	}

	if msg, ok := raw["scenes"]; ok {
		trimmed := bytes.TrimSpace(msg)
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return apperrors.NewMalformedDataError("项目导入失败：scenes 必须是数组", nil)
		}
		var scenes []models.Scene
		if err := json.Unmarshal(trimmed, &scenes); err != nil {
			return apperrors.NewMalformedDataError("项目导入失败：scenes 格式错误", err)
		}
		if scenes == nil {
			scenes = []models.Scene{}
		}
		load.Scenes = scenes
		load.HasScenes = true
		mode := models.ModeFor(scenes)
		load.ViewMode = &mode
	}

	s.project.Load(load)

	s.logger.Info("Project imported", map[string]interface{}{
		"has_scenes":  load.HasScenes,
		"has_context": load.Context != nil,
		"scenes":      len(load.Scenes),
	})
	return nil
}

func isJSONNull(msg json.RawMessage) bool {
	return string(bytes.TrimSpace(msg)) == "null"
}
