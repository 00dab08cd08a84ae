// internal/api/handlers.go
package api

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/Corphon/AnimeStoryboard/internal/services"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
	"github.com/gin-gonic/gin"
)

// 导入文件的大小上限
const maxImportBytes = 64 << 20

// exportFilename 导出文件名
const exportFilename = "anime_storyboard_vertical.json"

// Handler 处理API请求
type Handler struct {
	Project    *services.ProjectService    // 项目状态
	Autosave   *services.AutosaveService   // 自动保存、导入导出
	Generation *services.GenerationService // 分析与媒体生成
	Progress   *services.ProgressService   // 批量进度
	Hub        *ProgressHub                // 进度推送
	Config     *services.ConfigService     // 运行时配置
	Metrics    *utils.GenerationMetrics
	Response   *ResponseHelper

	logger *utils.Logger

	// 批量任务在请求结束后继续运行，使用服务级的 ctx
	baseCtx context.Context
	batches sync.WaitGroup
}

// NewHandler 创建API处理器
func NewHandler(
	baseCtx context.Context,
	project *services.ProjectService,
	autosave *services.AutosaveService,
	generation *services.GenerationService,
	progress *services.ProgressService,
	hub *ProgressHub,
	metrics *utils.GenerationMetrics,
	logger *utils.Logger,
) *Handler {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Handler{
		Project:    project,
		Autosave:   autosave,
		Generation: generation,
		Progress:   progress,
		Hub:        hub,
		Metrics:    metrics,
		Response:   NewResponseHelper(logger),
		logger:     logger,
		baseCtx:    baseCtx,
	}
}

// WaitBatches 等待后台批量任务结束
func (h *Handler) WaitBatches() {
	h.batches.Wait()
}

// 请求结构
type (
	confirmRequest struct {
		Confirm bool `json:"confirm"`
	}

	scriptRequest struct {
		Text string `json:"text"`
	}

	viewRequest struct {
		Mode models.ViewMode `json:"mode" binding:"required"`
	}

	styleRequest struct {
		StyleID string `json:"styleId" binding:"required"`
	}

	analyzeRequest struct {
		Text string `json:"text" binding:"required"`
		Pro  bool   `json:"pro"`
	}

	refineRequest struct {
		Field       services.RefineField `json:"field" binding:"required"`
		Instruction string               `json:"instruction" binding:"required"`
	}

	optimizeRequest struct {
		Instruction string `json:"instruction"`
	}

	imageBatchRequest struct {
		RegenerateAll bool `json:"regenerateAll"`
	}
)

// bindOptional 允许空请求体
func bindOptional(c *gin.Context, v interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

// ===============================
// 项目
// ===============================

// GetProject 返回当前项目状态
func (h *Handler) GetProject(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"state":   h.Project.Snapshot(),
		"restore": h.Autosave.RestoreAvailable(),
		"batches": h.batchStatus(),
	})
}

// NewProject 清空项目，需要确认
func (h *Handler) NewProject(c *gin.Context) {
	var req confirmRequest
	if err := bindOptional(c, &req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if err := h.Autosave.NewProject(c.Request.Context(), req.Confirm); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.Project.Snapshot(), "已开启新项目")
}

// SetScript 更新脚本文本
func (h *Handler) SetScript(c *gin.Context) {
	var req scriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	h.Project.SetScriptText(req.Text)
	h.Response.Success(c, gin.H{"scriptText": req.Text})
}

// SetView 切换视图
func (h *Handler) SetView(c *gin.Context) {
	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if err := h.Project.SetViewMode(req.Mode); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"viewMode": req.Mode})
}

// SetStyle 设置项目画风
func (h *Handler) SetStyle(c *gin.Context) {
	var req styleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if err := h.Project.SetArtStyle(req.StyleID); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.Project.Styles().Resolve(req.StyleID))
}

// Analyze 分析脚本并生成分镜
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	scenes, err := h.Generation.AnalyzeScript(c.Request.Context(), req.Text, req.Pro)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, scenes, "分镜生成完成")
}

// ExportProject 下载项目文件
func (h *Handler) ExportProject(c *gin.Context) {
	data, err := h.Autosave.Export()
	if err != nil {
		h.Response.InternalError(c, "导出失败", err.Error())
		return
	}
	h.Response.DownloadResponse(c, data, exportFilename, "application/json")
}

// ImportProject 导入项目文件，请求体为原始 JSON
func (h *Handler) ImportProject(c *gin.Context) {
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxImportBytes))
	if err != nil {
		h.Response.BadRequest(c, "读取请求失败", err.Error())
		return
	}
	if err := h.Autosave.Import(data); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.Project.Snapshot(), "项目导入成功")
}

// ===============================
// 自动保存
// ===============================

// CheckRestore 重新检查是否有可恢复的存档
func (h *Handler) CheckRestore(c *gin.Context) {
	info, err := h.Autosave.CheckRestore(c.Request.Context())
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"available": info != nil, "restore": info})
}

// Restore 恢复存档
func (h *Handler) Restore(c *gin.Context) {
	if err := h.Autosave.Restore(c.Request.Context()); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, h.Project.Snapshot(), "已恢复进度")
}

// Discard 丢弃存档，需要确认
func (h *Handler) Discard(c *gin.Context) {
	var req confirmRequest
	if err := bindOptional(c, &req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if err := h.Autosave.Discard(c.Request.Context(), req.Confirm); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, nil, "已舍弃存档")
}

// ===============================
// 角色与设定
// ===============================

// GetCharacters 角色列表
func (h *Handler) GetCharacters(c *gin.Context) {
	h.Response.Success(c, h.Project.Context().Characters)
}

// CreateCharacter 新增角色
func (h *Handler) CreateCharacter(c *gin.Context) {
	h.Response.Created(c, h.Project.AddCharacter())
}

// UpdateCharacter 更新角色的部分字段，全部生效或全部不生效
func (h *Handler) UpdateCharacter(c *gin.Context) {
	var patch models.CharacterPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	character, err := h.Project.UpdateCharacter(c.Param("id"), patch)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, character)
}

// DeleteCharacter 删除角色
func (h *Handler) DeleteCharacter(c *gin.Context) {
	if err := h.Project.RemoveCharacter(c.Param("id")); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, nil, "角色已删除")
}

// GetSettings 设定列表
func (h *Handler) GetSettings(c *gin.Context) {
	h.Response.Success(c, h.Project.Context().Settings)
}

// CreateSetting 新增设定
func (h *Handler) CreateSetting(c *gin.Context) {
	h.Response.Created(c, h.Project.AddSetting())
}

// UpdateSetting 更新设定
func (h *Handler) UpdateSetting(c *gin.Context) {
	var patch models.SettingPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	setting, err := h.Project.UpdateSetting(c.Param("id"), patch)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, setting)
}

// DeleteSetting 删除设定
func (h *Handler) DeleteSetting(c *gin.Context) {
	if err := h.Project.RemoveSetting(c.Param("id")); err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, nil, "设定已删除")
}

// ===============================
// 场景
// ===============================

// GetScenes 场景列表
func (h *Handler) GetScenes(c *gin.Context) {
	h.Response.Success(c, h.Project.Scenes())
}

// GetScene 单个场景
func (h *Handler) GetScene(c *gin.Context) {
	scene, ok := h.Project.Scene(c.Param("id"))
	if !ok {
		h.Response.NotFound(c, "场景")
		return
	}
	h.Response.Success(c, scene)
}

// UpdateScene 局部更新场景
func (h *Handler) UpdateScene(c *gin.Context) {
	id := c.Param("id")
	var patch models.ScenePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if patch.IsEmpty() {
		h.Response.BadRequest(c, "没有需要更新的字段")
		return
	}
	if !h.Project.UpdateScene(id, patch) {
		h.Response.NotFound(c, "场景")
		return
	}
	scene, _ := h.Project.Scene(id)
	h.Response.Success(c, scene)
}

// SelectScene 打开场景
func (h *Handler) SelectScene(c *gin.Context) {
	scene, ok := h.Project.SelectScene(c.Param("id"))
	if !ok {
		h.Response.NotFound(c, "场景")
		return
	}
	h.Response.Success(c, scene)
}

// NextScene 下一个场景
func (h *Handler) NextScene(c *gin.Context) {
	h.navigate(c, h.Project.NextScene)
}

// PrevScene 上一个场景
func (h *Handler) PrevScene(c *gin.Context) {
	h.navigate(c, h.Project.PrevScene)
}

func (h *Handler) navigate(c *gin.Context, step func() (models.Scene, bool)) {
	scene, ok := step()
	if !ok {
		h.Response.FromError(c, apperrors.NewConflictError("当前没有打开的场景", nil))
		return
	}
	h.Response.Success(c, scene)
}

// ToggleSceneCharacter 切换角色是否出场
func (h *Handler) ToggleSceneCharacter(c *gin.Context) {
	active, err := h.Project.ToggleSceneCharacter(c.Param("id"), c.Param("charId"))
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	scene, _ := h.Project.Scene(c.Param("id"))
	h.Response.Success(c, gin.H{"active": active, "scene": scene})
}

// ===============================
// 单镜头生成
// ===============================

func (h *Handler) sceneResult(c *gin.Context, scene models.Scene, err error) {
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, scene)
}

// GenerateSceneImage 生成图像
func (h *Handler) GenerateSceneImage(c *gin.Context) {
	scene, err := h.Generation.GenerateSceneImage(c.Request.Context(), c.Param("id"))
	h.sceneResult(c, scene, err)
}

// GenerateSceneVideo 生成视频
func (h *Handler) GenerateSceneVideo(c *gin.Context) {
	scene, err := h.Generation.GenerateSceneVideo(c.Request.Context(), c.Param("id"))
	h.sceneResult(c, scene, err)
}

// GenerateSceneAudio 生成语音
func (h *Handler) GenerateSceneAudio(c *gin.Context) {
	scene, err := h.Generation.GenerateSceneAudio(c.Request.Context(), c.Param("id"))
	h.sceneResult(c, scene, err)
}

// DesignSceneSound 音效设计
func (h *Handler) DesignSceneSound(c *gin.Context) {
	scene, err := h.Generation.DesignSceneSound(c.Request.Context(), c.Param("id"))
	h.sceneResult(c, scene, err)
}

// RefineScene 改写文字字段
func (h *Handler) RefineScene(c *gin.Context) {
	var req refineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	scene, err := h.Generation.RefineSceneField(c.Request.Context(), c.Param("id"), req.Field, req.Instruction)
	h.sceneResult(c, scene, err)
}

// OptimizeSceneVideo 优化视频提示词
func (h *Handler) OptimizeSceneVideo(c *gin.Context) {
	var req optimizeRequest
	if err := bindOptional(c, &req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	scene, err := h.Generation.OptimizeSceneVideoPrompt(c.Request.Context(), c.Param("id"), req.Instruction)
	h.sceneResult(c, scene, err)
}

// ===============================
// 批量生成
// ===============================

// StartImageBatch 后台启动图像批量生成
func (h *Handler) StartImageBatch(c *gin.Context) {
	var req imageBatchRequest
	if err := bindOptional(c, &req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	run, err := h.Generation.BeginImageBatch(req.RegenerateAll)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.runInBackground(run)
	h.Response.Accepted(c, gin.H{"taskId": run.Kind.TaskID(), "total": run.Total}, "批量生成已开始")
}

// StartAudioBatch 后台启动语音批量生成
func (h *Handler) StartAudioBatch(c *gin.Context) {
	run, err := h.Generation.BeginAudioBatch()
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	if run == nil {
		h.Response.Success(c, &services.BatchResult{NothingToDo: true}, "所有旁白都已有配音，或没有旁白内容。")
		return
	}
	h.runInBackground(run)
	h.Response.Accepted(c, gin.H{"taskId": run.Kind.TaskID(), "total": run.Total}, "批量配音已开始")
}

func (h *Handler) runInBackground(run *services.BatchRun) {
	h.batches.Add(1)
	go func() {
		defer h.batches.Done()
		result := run.Run(h.baseCtx)
		if h.Hub != nil {
			h.Hub.Publish(map[string]interface{}{
				"type":   "batch_done",
				"kind":   run.Kind,
				"result": result,
			})
		}
	}()
}

// GetBatchStatus 两种批量任务的状态
func (h *Handler) GetBatchStatus(c *gin.Context) {
	h.Response.Success(c, h.batchStatus())
}

func (h *Handler) batchStatus() []services.BatchStatus {
	return []services.BatchStatus{
		h.Generation.Status(services.BatchImage),
		h.Generation.Status(services.BatchAudio),
	}
}

// ===============================
// 预设与派生数据
// ===============================

// GetStyles 画风列表
func (h *Handler) GetStyles(c *gin.Context) {
	h.Response.Success(c, h.Project.Styles().List())
}

// GetCameraAngles 运镜预设
func (h *Handler) GetCameraAngles(c *gin.Context) {
	h.Response.Success(c, models.CameraAngles)
}

// GetTimeline 时间轴数据
func (h *Handler) GetTimeline(c *gin.Context) {
	h.Response.Success(c, models.BuildTimeline(h.Project.Scenes()))
}

// GetMetrics 运行指标
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, h.Metrics.Collector().GetMetrics())
}

// GetHealth 健康检查
func (h *Handler) GetHealth(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if h.Config != nil {
		body["geminiConfigured"] = h.Config.Status().HasGeminiKey
	}
	c.JSON(http.StatusOK, body)
}

// GetConfig 当前配置状态，不返回密钥
func (h *Handler) GetConfig(c *gin.Context) {
	h.Response.Success(c, h.Config.Status())
}

// UpdateConfig 切换文本改写的提供者或模型
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req services.TextProviderUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "请求格式错误", err.Error())
		return
	}
	status, err := h.Config.UpdateTextProvider(req)
	if err != nil {
		h.Response.FromError(c, err)
		return
	}
	h.Response.Success(c, status, "配置已更新")
}

// ProgressWebSocket 进度推送，?task= 只订阅单个任务
func (h *Handler) ProgressWebSocket(c *gin.Context) {
	if taskID := c.Query("task"); taskID != "" {
		tracker, ok := h.Progress.GetTracker(taskID)
		if !ok {
			h.Response.FromError(c, apperrors.NewNotFoundError("任务不存在: "+taskID, nil))
			return
		}
		h.Hub.ServeTaskWS(c, tracker)
		return
	}

	h.Hub.ServeWS(c, map[string]interface{}{
		"type":      "connected",
		"batches":   h.batchStatus(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
