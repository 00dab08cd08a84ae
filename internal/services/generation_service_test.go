package services

import (
	"context"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/models"
)

func newTestGeneration(gw *fakeGateway) (*ProjectService, *GenerationService) {
	project := NewProjectService(nil)
	gen := NewGenerationService(project, gw, NewProgressService(), nil, nil)
	gen.ImageDelay = 0
	gen.AudioDelay = 0
	return project, gen
}

func TestImageBatchContinuesAfterFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn["s2"] = true
	project, gen := newTestGeneration(gw)
	project.ReplaceScenes(testScenes("s1", "s2", "s3", "s4"))

	result, err := gen.StartImageBatch(context.Background(), false)
	if err != nil {
		t.Fatalf("批量生成失败: %v", err)
	}
	if result.Total != 4 || result.Succeeded != 3 || result.Failed != 1 {
		t.Fatalf("统计错误: %+v", result)
	}

	withImage := 0
	for _, s := range project.Scenes() {
		if s.ImageURL != "" {
			withImage++
		} else if s.ID != "s2" {
			t.Fatalf("只有失败的场景可以没有图片: %s", s.ID)
		}
	}
	if withImage != 3 {
		t.Fatalf("应有 3 张图片, 实际 %d", withImage)
	}

	status := gen.Status(BatchImage)
	if status.Running || status.Current != 4 || status.Total != 4 {
		t.Fatalf("进度应到达 {4,4}: %+v", status)
	}

	tracker, ok := gen.progress.GetTracker(BatchImage.TaskID())
	if !ok || tracker.Snapshot().Status != ProgressCompleted {
		t.Fatal("进度跟踪器应标记为完成")
	}
}

func TestImageBatchUsesProjectStyle(t *testing.T) {
	gw := newFakeGateway()
	project, gen := newTestGeneration(gw)
	project.ReplaceScenes(testScenes("s1"))
	if err := project.SetArtStyle("ghibli"); err != nil {
		t.Fatal(err)
	}

	if _, err := gen.StartImageBatch(context.Background(), false); err != nil {
		t.Fatal(err)
	}
	want := project.Styles().Resolve("ghibli").PromptModifier
	if len(gw.styles) != 1 || gw.styles[0] != want {
		t.Fatalf("应使用项目画风, 实际 %v", gw.styles)
	}
}

func TestImageBatchNeedsConfirmationWhenComplete(t *testing.T) {
	gw := newFakeGateway()
	project, gen := newTestGeneration(gw)
	scenes := testScenes("s1", "s2")
	for i := range scenes {
		scenes[i].ImageURL = "data:image/png;base64,old"
	}
	project.ReplaceScenes(scenes)

	_, err := gen.StartImageBatch(context.Background(), false)
	if !apperrors.IsConfirmationRequired(err) {
		t.Fatalf("应要求确认, 实际 %v", err)
	}
	if appErr := err.(*apperrors.AppError); appErr.Message != "所有镜头都已有图片。是否要重新生成所有图片？" {
		t.Fatalf("确认提示错误: %q", appErr.Message)
	}
	if images, _ := gw.calls(); images != 0 {
		t.Fatalf("未确认时不应调用网关: %d", images)
	}
	if gen.Status(BatchImage).Running {
		t.Fatal("未确认时不应占用批量任务")
	}

	result, err := gen.StartImageBatch(context.Background(), true)
	if err != nil {
		t.Fatalf("确认后应重新生成: %v", err)
	}
	if result.Total != 2 {
		t.Fatalf("确认后应处理所有场景: %+v", result)
	}
}

func TestAudioBatchNothingToDo(t *testing.T) {
	gw := newFakeGateway()
	project, gen := newTestGeneration(gw)
	scenes := testScenes("s1", "s2")
	scenes[0].Narration = "   "
	scenes[1].Narration = "「來跳支舞吧。」"
	scenes[1].AudioURL = "data:audio/wav;base64,done"
	project.ReplaceScenes(scenes)

	result, err := gen.StartAudioBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.NothingToDo {
		t.Fatalf("没有目标时应返回 NothingToDo: %+v", result)
	}
	if _, speech := gw.calls(); speech != 0 {
		t.Fatalf("不应调用语音生成: %d", speech)
	}
}

func TestAudioBatchTargetsNarratedScenes(t *testing.T) {
	gw := newFakeGateway()
	project, gen := newTestGeneration(gw)
	scenes := testScenes("s1", "s2", "s3")
	scenes[0].Narration = "他們發現我了。"
	scenes[2].Narration = "是死路。"
	project.ReplaceScenes(scenes)

	result, err := gen.StartAudioBatch(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 2 || result.Succeeded != 2 {
		t.Fatalf("应只处理有旁白的场景: %+v", result)
	}
	if s, _ := project.Scene("s2"); s.AudioURL != "" {
		t.Fatal("没有旁白的场景不应生成语音")
	}
}

func TestBatchInProgress(t *testing.T) {
	gw := newFakeGateway()
	gw.block = make(chan struct{})
	project, gen := newTestGeneration(gw)
	project.ReplaceScenes(testScenes("s1"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := gen.StartImageBatch(context.Background(), false); err != nil {
			t.Errorf("第一次批量生成失败: %v", err)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !gen.Status(BatchImage).Running {
		if time.Now().After(deadline) {
			t.Fatal("批量任务没有启动")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := gen.StartImageBatch(context.Background(), false); !apperrors.IsBatchInProgress(err) {
		t.Fatalf("重复启动应返回 BatchInProgress, 实际 %v", err)
	}

	close(gw.block)
	wg.Wait()
	if gen.Status(BatchImage).Running {
		t.Fatal("批量结束后应释放")
	}
}

func TestBatchStopsOnCancel(t *testing.T) {
	gw := newFakeGateway()
	project, gen := newTestGeneration(gw)
	gen.ImageDelay = time.Hour
	project.ReplaceScenes(testScenes("s1", "s2", "s3"))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := gen.StartImageBatch(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 1 {
		t.Fatalf("取消后不应继续生成: %+v", result)
	}
	tracker, _ := gen.progress.GetTracker(BatchImage.TaskID())
	if tracker.Snapshot().Status != ProgressFailed {
		t.Fatal("取消的任务应标记为失败")
	}
}

func TestSingleShotOperations(t *testing.T) {
	gw := newFakeGateway()
	project, gen := newTestGeneration(gw)
	scenes := testScenes("s1")
	scenes[0].Narration = "旁白"
	scenes[0].ArtStyle = "manhwa"
	project.ReplaceScenes(scenes)
	ctx := context.Background()

	scene, err := gen.GenerateSceneImage(ctx, "s1")
	if err != nil || scene.ImageURL == "" {
		t.Fatalf("图像生成失败: %v", err)
	}
	if gw.styles[0] != project.Styles().Resolve("manhwa").PromptModifier {
		t.Fatal("场景画风应覆盖项目画风")
	}

	scene, err = gen.GenerateSceneVideo(ctx, "s1")
	if err != nil || scene.VideoURL == "" || gw.videoCalls[0] != "s1" {
		t.Fatalf("视频应使用画面描述作为提示词: %v %v", err, gw.videoCalls)
	}

	if scene, err = gen.GenerateSceneAudio(ctx, "s1"); err != nil || scene.AudioURL == "" {
		t.Fatalf("语音生成失败: %v", err)
	}

	scene, err = gen.RefineSceneField(ctx, "s1", FieldNarration, "更短")
	if err != nil || scene.Narration != "旁白|更短" {
		t.Fatalf("改写结果错误: %q %v", scene.Narration, err)
	}
	if _, err := gen.RefineSceneField(ctx, "s1", RefineField("bgm"), "x"); !apperrors.IsValidationError(err) {
		t.Fatalf("不支持的字段应返回校验错误: %v", err)
	}

	if scene, _ = gen.OptimizeSceneVideoPrompt(ctx, "s1", ""); scene.VideoPrompt != "motion:s1" {
		t.Fatalf("优化结果错误: %q", scene.VideoPrompt)
	}

	scene, _ = gen.DesignSceneSound(ctx, "s1")
	if scene.BGM != "Anime style strings" || len(scene.SoundEffects) != 1 {
		t.Fatalf("音效设计结果错误: %+v", scene)
	}

	if _, err := gen.GenerateSceneImage(ctx, "missing"); !apperrors.IsNotFoundError(err) {
		t.Fatalf("未知场景应返回 NotFound: %v", err)
	}
}

func TestAnalyzeScriptReplacesScenes(t *testing.T) {
	gw := newFakeGateway()
	gw.analyzed = testScenes("a", "b")
	project, gen := newTestGeneration(gw)
	project.ReplaceScenes(testScenes("old"))

	scenes, err := gen.AnalyzeScript(context.Background(), "新的脚本", false)
	if err != nil || len(scenes) != 2 {
		t.Fatalf("分析失败: %v", err)
	}
	state := project.Snapshot()
	if state.ViewMode != models.ViewModeBoard || state.ScriptText != "新的脚本" || len(state.Scenes) != 2 {
		t.Fatalf("分析后状态错误: %+v", state)
	}

	gw.failOn["坏脚本"] = true
	if _, err := gen.AnalyzeScript(context.Background(), "坏脚本", true); !apperrors.IsGatewayError(err) {
		t.Fatalf("应返回网关错误: %v", err)
	}
	if len(project.Scenes()) != 2 {
		t.Fatal("分析失败时不应修改场景")
	}

	if _, err := gen.AnalyzeScript(context.Background(), "  ", false); !apperrors.IsValidationError(err) {
		t.Fatal("空脚本应返回校验错误")
	}
}

func waitRefine(t *testing.T, gw *fakeGateway, want string) {
	t.Helper()
	select {
	case got := <-gw.refineStarted:
		if got != want {
			t.Fatalf("网关收到的指令错误: 期望 %q, 实际 %q", want, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("指令 %q 没有发送到网关", want)
	}
}

func TestRefineDifferentInstructionsNotMerged(t *testing.T) {
	gw := newFakeGateway()
	gw.refineBlock = make(chan struct{})
	gw.refineStarted = make(chan string, 2)
	project, gen := newTestGeneration(gw)
	scenes := testScenes("s1")
	scenes[0].Narration = "原文"
	project.ReplaceScenes(scenes)

	results := make(map[string]string)
	var mu sync.Mutex
	var wg sync.WaitGroup
	refine := func(instruction string) {
		defer wg.Done()
		scene, err := gen.RefineSceneField(context.Background(), "s1", FieldNarration, instruction)
		if err != nil {
			t.Errorf("改写失败: %v", err)
			return
		}
		mu.Lock()
		results[instruction] = scene.Narration
		mu.Unlock()
	}

	wg.Add(2)
	go refine("A")
	waitRefine(t, gw, "A")
	go refine("B")
	waitRefine(t, gw, "B")
	close(gw.refineBlock)
	wg.Wait()

	if results["A"] != "原文|A" || results["B"] != "原文|B" {
		t.Fatalf("不同指令的结果被合并: %v", results)
	}
}

func TestSingleShotSurvivesCallerCancel(t *testing.T) {
	gw := newFakeGateway()
	gw.refineBlock = make(chan struct{})
	gw.refineStarted = make(chan string, 1)
	project, gen := newTestGeneration(gw)
	scenes := testScenes("s1")
	scenes[0].Narration = "原文"
	project.ReplaceScenes(scenes)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := gen.RefineSceneField(ctx, "s1", FieldNarration, "A")
		first <- err
	}()
	waitRefine(t, gw, "A")

	cancel()
	select {
	case err := <-first:
		if err != context.Canceled {
			t.Fatalf("取消的调用应返回 context.Canceled: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消的调用应立即返回")
	}

	close(gw.refineBlock)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if got, _ := project.Scene("s1"); got.Narration == "原文|A" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("调用方取消后网关结果仍应写入场景")
		}
		time.Sleep(10 * time.Millisecond)
	}

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.refineCtxErrs) != 1 || gw.refineCtxErrs[0] != nil {
		t.Fatalf("网关调用不应随调用方取消: %v", gw.refineCtxErrs)
	}
}
