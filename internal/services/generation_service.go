// internal/services/generation_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/gateway"
	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
)

// BatchKind 批量生成的类型
type BatchKind string

const (
	BatchImage BatchKind = "image"
	BatchAudio BatchKind = "audio"
)

// TaskID 批量任务在进度服务中的ID
func (k BatchKind) TaskID() string {
	return "batch-" + string(k)
}

// 批量调用之间的间隔
const (
	DefaultImageDelay = 500 * time.Millisecond
	DefaultAudioDelay = 200 * time.Millisecond
)

// RefineField 可以被文字改写的场景字段
type RefineField string

const (
	FieldScript            RefineField = "script"
	FieldVisualDescription RefineField = "visualDescription"
	FieldNarration         RefineField = "narration"
)

// BatchState 单种批量任务的运行状态
type BatchState struct {
	running atomic.Bool
	current atomic.Int32
	total   atomic.Int32
}

// BatchStatus 批量任务状态的只读视图
type BatchStatus struct {
	Kind    BatchKind `json:"kind"`
	Running bool      `json:"running"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
}

// BatchResult 批量任务结束后的统计
type BatchResult struct {
	Total       int  `json:"total"`
	Succeeded   int  `json:"succeeded"`
	Failed      int  `json:"failed"`
	NothingToDo bool `json:"nothingToDo,omitempty"`
}

// GenerationService 调用网关生成媒体并写回项目
type GenerationService struct {
	project  *ProjectService
	gateway  gateway.Gateway
	progress *ProgressService
	metrics  *utils.GenerationMetrics
	logger   *utils.Logger

	ImageDelay time.Duration
	AudioDelay time.Duration

	image BatchState
	audio BatchState

	calls singleflight.Group
}

// NewGenerationService 创建生成服务
func NewGenerationService(project *ProjectService, gw gateway.Gateway, progress *ProgressService, metrics *utils.GenerationMetrics, logger *utils.Logger) *GenerationService {
	if progress == nil {
		progress = NewProgressService()
	}
	if metrics == nil {
		metrics = utils.NewGenerationMetrics()
	}
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &GenerationService{
		project:    project,
		gateway:    gw,
		progress:   progress,
		metrics:    metrics,
		logger:     logger,
		ImageDelay: DefaultImageDelay,
		AudioDelay: DefaultAudioDelay,
	}
}

func (s *GenerationService) state(kind BatchKind) *BatchState {
	if kind == BatchAudio {
		return &s.audio
	}
	return &s.image
}

// Status 返回指定批量任务的状态
func (s *GenerationService) Status(kind BatchKind) BatchStatus {
	st := s.state(kind)
	return BatchStatus{
		Kind:    kind,
		Running: st.running.Load(),
		Current: int(st.current.Load()),
		Total:   int(st.total.Load()),
	}
}

// ImageTargets 返回图像批量任务的目标；全部已有图像时返回 nil
func (s *GenerationService) ImageTargets() []models.Scene {
	var targets []models.Scene
	for _, scene := range s.project.Scenes() {
		if scene.ImageURL == "" {
			targets = append(targets, scene)
		}
	}
	return targets
}

// AudioTargets 返回有旁白但还没有语音的场景
func (s *GenerationService) AudioTargets() []models.Scene {
	var targets []models.Scene
	for _, scene := range s.project.Scenes() {
		if strings.TrimSpace(scene.Narration) != "" && scene.AudioURL == "" {
			targets = append(targets, scene)
		}
	}
	return targets
}

// claim 占用批量任务，已在运行时返回错误
func (s *GenerationService) claim(kind BatchKind) error {
	if !s.state(kind).running.CompareAndSwap(false, true) {
		return apperrors.NewBatchInProgressError(fmt.Sprintf("%s 批量生成正在进行中", kind))
	}
	return nil
}

// BatchRun 已占用、尚未执行的批量任务
type BatchRun struct {
	Kind  BatchKind
	Total int

	svc     *GenerationService
	targets []models.Scene
	delay   time.Duration
	step    batchStep
}

// Run 顺序执行批量任务并释放占用，只能调用一次
func (r *BatchRun) Run(ctx context.Context) *BatchResult {
	return r.svc.runBatch(ctx, r.Kind, r.targets, r.delay, r.step)
}

// BeginImageBatch 占用图像批量任务并确定目标。
// 全部已有图像时需要 regenerateAll 确认，确认后重新生成所有场景
func (s *GenerationService) BeginImageBatch(regenerateAll bool) (*BatchRun, error) {
	if err := s.claim(BatchImage); err != nil {
		return nil, err
	}

	targets := s.ImageTargets()
	if len(targets) == 0 {
		if !regenerateAll {
			s.image.running.Store(false)
			return nil, apperrors.NewConfirmationRequiredError("所有镜头都已有图片。是否要重新生成所有图片？")
		}
		targets = s.project.Scenes()
	}

	pc := s.project.Context()
	style := s.project.Styles().Resolve(pc.ArtStyleID).PromptModifier

	return &BatchRun{
		Kind:    BatchImage,
		Total:   len(targets),
		svc:     s,
		targets: targets,
		delay:   s.ImageDelay,
		step: func(ctx context.Context, scene models.Scene) (models.ScenePatch, error) {
			url, err := s.gateway.GenerateImage(ctx, scene.VisualDescription, style, pc, scene.ActiveCharacterIDs)
			if err != nil {
				return models.ScenePatch{}, err
			}
			return models.ScenePatch{ImageURL: models.String(url)}, nil
		},
	}, nil
}

// BeginAudioBatch 占用语音批量任务；没有目标时返回 nil 且不占用
func (s *GenerationService) BeginAudioBatch() (*BatchRun, error) {
	if err := s.claim(BatchAudio); err != nil {
		return nil, err
	}

	targets := s.AudioTargets()
	if len(targets) == 0 {
		s.audio.running.Store(false)
		return nil, nil
	}

	return &BatchRun{
		Kind:    BatchAudio,
		Total:   len(targets),
		svc:     s,
		targets: targets,
		delay:   s.AudioDelay,
		step: func(ctx context.Context, scene models.Scene) (models.ScenePatch, error) {
			url, err := s.gateway.GenerateSpeech(ctx, scene.Narration)
			if err != nil {
				return models.ScenePatch{}, err
			}
			return models.ScenePatch{AudioURL: models.String(url)}, nil
		},
	}, nil
}

// StartImageBatch 同步执行图像批量任务
func (s *GenerationService) StartImageBatch(ctx context.Context, regenerateAll bool) (*BatchResult, error) {
	run, err := s.BeginImageBatch(regenerateAll)
	if err != nil {
		return nil, err
	}
	return run.Run(ctx), nil
}

// StartAudioBatch 同步执行语音批量任务
func (s *GenerationService) StartAudioBatch(ctx context.Context) (*BatchResult, error) {
	run, err := s.BeginAudioBatch()
	if err != nil {
		return nil, err
	}
	if run == nil {
		return &BatchResult{NothingToDo: true}, nil
	}
	return run.Run(ctx), nil
}

type batchStep func(ctx context.Context, scene models.Scene) (models.ScenePatch, error)

// runBatch 顺序处理目标：每次一个网关调用，单项失败只记录不中断，每次尝试后等待 delay。
// 调用方已通过 claim 占用该批量类型
func (s *GenerationService) runBatch(ctx context.Context, kind BatchKind, targets []models.Scene, delay time.Duration, step batchStep) *BatchResult {
	st := s.state(kind)
	total := len(targets)
	st.current.Store(0)
	st.total.Store(int32(total))
	s.metrics.SetBatchRunning(string(kind), true)

	defer func() {
		st.running.Store(false)
		s.metrics.SetBatchRunning(string(kind), false)
	}()

	tracker := s.progress.StartTracker(kind.TaskID(), total)
	result := &BatchResult{Total: total}

	s.logger.Info("Batch started", map[string]interface{}{
		"kind":  kind,
		"total": total,
	})

	for i, scene := range targets {
		started := time.Now()
		patch, err := step(ctx, scene)
		s.metrics.RecordGeneration(string(kind), err, time.Since(started))

		if err != nil {
			result.Failed++
			s.logger.Error("Batch item failed", map[string]interface{}{
				"kind":     kind,
				"scene_id": scene.ID,
				"order":    scene.Order,
				"error":    err.Error(),
			})
		} else {
			s.project.UpdateScene(scene.ID, patch)
			result.Succeeded++
		}

		st.current.Store(int32(i + 1))
		tracker.UpdateProgress(i+1, fmt.Sprintf("%d/%d", i+1, total))

		if err := sleepContext(ctx, delay); err != nil {
			s.logger.Warn("Batch interrupted", map[string]interface{}{
				"kind":      kind,
				"processed": i + 1,
			})
			tracker.Fail(err.Error())
			s.metrics.RecordBatch(string(kind), total, result.Failed)
			return result
		}
	}

	tracker.Complete(fmt.Sprintf("完成 %d/%d", result.Succeeded, total))
	s.metrics.RecordBatch(string(kind), total, result.Failed)
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// singleShot 对同一场景、同一操作和同一参数的并发请求只调用一次网关。
// 网关调用不随单个调用方取消，每个调用方只等待自己的 ctx
func (s *GenerationService) singleShot(ctx context.Context, op, sceneID, variant string, fn func(ctx context.Context, scene models.Scene) (models.ScenePatch, error)) (models.Scene, error) {
	key := op + ":" + sceneID
	if variant != "" {
		key += ":" + variant
	}
	shared := context.WithoutCancel(ctx)

	ch := s.calls.DoChan(key, func() (interface{}, error) {
		scene, ok := s.project.Scene(sceneID)
		if !ok {
			return nil, apperrors.NewNotFoundError("场景不存在: "+sceneID, nil)
		}

		started := time.Now()
		patch, err := fn(shared, scene)
		s.metrics.RecordGeneration(op, err, time.Since(started))
		if err != nil {
			s.logger.Error("Scene generation failed", map[string]interface{}{
				"op":       op,
				"scene_id": sceneID,
				"error":    err.Error(),
			})
			return nil, err
		}

		s.project.UpdateScene(sceneID, patch)
		updated, _ := s.project.Scene(sceneID)
		return updated, nil
	})

	select {
	case <-ctx.Done():
		return models.Scene{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.Scene{}, res.Err
		}
		return res.Val.(models.Scene).Clone(), nil
	}
}

// GenerateSceneImage 生成单个场景的图像，优先使用场景自己的画风
func (s *GenerationService) GenerateSceneImage(ctx context.Context, sceneID string) (models.Scene, error) {
	return s.singleShot(ctx, "image", sceneID, "", func(ctx context.Context, scene models.Scene) (models.ScenePatch, error) {
		pc := s.project.Context()
		styleID := pc.ArtStyleID
		if scene.ArtStyle != "" {
			styleID = scene.ArtStyle
		}
		style := s.project.Styles().Resolve(styleID).PromptModifier

		url, err := s.gateway.GenerateImage(ctx, scene.VisualDescription, style, pc, scene.ActiveCharacterIDs)
		if err != nil {
			return models.ScenePatch{}, err
		}
		return models.ScenePatch{ImageURL: models.String(url)}, nil
	})
}

// GenerateSceneVideo 用视频提示词生成视频，缺省时使用画面描述
func (s *GenerationService) GenerateSceneVideo(ctx context.Context, sceneID string) (models.Scene, error) {
	return s.singleShot(ctx, "video", sceneID, "", func(ctx context.Context, scene models.Scene) (models.ScenePatch, error) {
		url, err := s.gateway.GenerateVideo(ctx, scene.EffectiveVideoPrompt())
		if err != nil {
			return models.ScenePatch{}, err
		}
		return models.ScenePatch{VideoURL: models.String(url)}, nil
	})
}

// GenerateSceneAudio 为旁白生成语音
func (s *GenerationService) GenerateSceneAudio(ctx context.Context, sceneID string) (models.Scene, error) {
	return s.singleShot(ctx, "audio", sceneID, "", func(ctx context.Context, scene models.Scene) (models.ScenePatch, error) {
		if strings.TrimSpace(scene.Narration) == "" {
			return models.ScenePatch{}, apperrors.NewValidationError("该场景没有旁白", nil)
		}
		url, err := s.gateway.GenerateSpeech(ctx, scene.Narration)
		if err != nil {
			return models.ScenePatch{}, err
		}
		return models.ScenePatch{AudioURL: models.String(url)}, nil
	})
}

// RefineSceneField 按指令改写场景的文字字段
func (s *GenerationService) RefineSceneField(ctx context.Context, sceneID string, field RefineField, instruction string) (models.Scene, error) {
	if strings.TrimSpace(instruction) == "" {
		return models.Scene{}, apperrors.NewValidationError("修改指令不能为空", nil)
	}

	return s.singleShot(ctx, "refine-"+string(field), sceneID, instruction, func(ctx context.Context, scene models.Scene) (models.ScenePatch, error) {
		switch field {
		case FieldScript:
			return models.ScenePatch{Script: models.String(s.gateway.RefineText(ctx, scene.Script, instruction))}, nil
		case FieldVisualDescription:
			return models.ScenePatch{VisualDescription: models.String(s.gateway.RefineText(ctx, scene.VisualDescription, instruction))}, nil
		case FieldNarration:
			return models.ScenePatch{Narration: models.String(s.gateway.RefineText(ctx, scene.Narration, instruction))}, nil
		default:
			return models.ScenePatch{}, apperrors.NewValidationError("不支持改写的字段: "+string(field), nil)
		}
	})
}

// OptimizeSceneVideoPrompt 把场景描述改写为视频提示词
func (s *GenerationService) OptimizeSceneVideoPrompt(ctx context.Context, sceneID, instruction string) (models.Scene, error) {
	return s.singleShot(ctx, "optimize", sceneID, instruction, func(ctx context.Context, scene models.Scene) (models.ScenePatch, error) {
		prompt := s.gateway.OptimizeMotionPrompt(ctx, scene.EffectiveVideoPrompt(), instruction)
		return models.ScenePatch{VideoPrompt: models.String(prompt)}, nil
	})
}

// DesignSceneSound 生成配乐提示与音效列表
func (s *GenerationService) DesignSceneSound(ctx context.Context, sceneID string) (models.Scene, error) {
	return s.singleShot(ctx, "sound", sceneID, "", func(ctx context.Context, scene models.Scene) (models.ScenePatch, error) {
		mood := scene.BGM
		if mood == "" {
			mood = "Anime style"
		}
		design := s.gateway.DesignSound(ctx, scene.VisualDescription, mood)
		sfx := design.SFXList
		return models.ScenePatch{BGM: models.String(design.MusicPrompt), SoundEffects: &sfx}, nil
	})
}

// AnalyzeScript 分析文本并替换全部场景
func (s *GenerationService) AnalyzeScript(ctx context.Context, text string, pro bool) ([]models.Scene, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationError("脚本内容不能为空", nil)
	}

	quality := models.QualityStandard
	if pro {
		quality = models.QualityPro
	}

	started := time.Now()
	scenes, err := s.gateway.Analyze(ctx, text, quality, s.project.Context())
	s.metrics.RecordGeneration("analysis", err, time.Since(started))
	if err != nil {
		s.logger.Error("Script analysis failed", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	board := models.ViewModeBoard
	s.project.Load(ProjectLoad{
		Scenes:     scenes,
		HasScenes:  true,
		ScriptText: &text,
		ViewMode:   &board,
	})
	return models.CloneScenes(scenes), nil
}
