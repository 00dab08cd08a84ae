package services

import (
	"sync"
	"testing"

	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/models"
)

func TestSelectedSceneReflectsUpdates(t *testing.T) {
	project := NewProjectService(nil)
	project.ReplaceScenes(testScenes("s1", "s2"))

	if _, ok := project.SelectScene("s2"); !ok {
		t.Fatal("选择场景失败")
	}
	project.UpdateScene("s2", models.ScenePatch{ImageURL: models.String("data:image/png;base64,AAAA")})

	selected, ok := project.SelectedScene()
	if !ok || selected.ImageURL == "" {
		t.Fatal("选中的场景应反映最新修改")
	}

	project.ReplaceScenes(testScenes("s3"))
	if _, ok := project.SelectedScene(); ok {
		t.Fatal("场景被移除后选择应被清空")
	}
}

func TestSceneNavigationClamps(t *testing.T) {
	project := NewProjectService(nil)
	project.ReplaceScenes(testScenes("s1", "s2", "s3"))

	if _, ok := project.NextScene(); ok {
		t.Fatal("未选择时导航应无效")
	}

	project.SelectScene("s3")
	if s, _ := project.NextScene(); s.ID != "s3" {
		t.Fatalf("末尾应保持不变: %s", s.ID)
	}
	project.SelectScene("s1")
	if s, _ := project.PrevScene(); s.ID != "s1" {
		t.Fatalf("开头应保持不变: %s", s.ID)
	}
	if s, _ := project.NextScene(); s.ID != "s2" {
		t.Fatalf("应移动到下一个: %s", s.ID)
	}
}

func TestToggleSceneCharacter(t *testing.T) {
	project := NewProjectService(nil)
	project.ReplaceScenes(testScenes("s1"))

	active, err := project.ToggleSceneCharacter("s1", "c1")
	if err != nil || !active {
		t.Fatalf("第一次切换应加入角色: %v", err)
	}
	active, _ = project.ToggleSceneCharacter("s1", "c1")
	if active {
		t.Fatal("第二次切换应移除角色")
	}
	if s, _ := project.Scene("s1"); len(s.ActiveCharacterIDs) != 0 {
		t.Fatalf("角色列表应为空: %v", s.ActiveCharacterIDs)
	}

	if _, err := project.ToggleSceneCharacter("missing", "c1"); !apperrors.IsNotFoundError(err) {
		t.Fatal("未知场景应返回 NotFound")
	}
}

func TestCharactersAndSettings(t *testing.T) {
	project := NewProjectService(nil)

	c := project.AddCharacter()
	if c.Name != models.DefaultCharacterName {
		t.Fatalf("默认名称错误: %s", c.Name)
	}
	if _, err := project.UpdateCharacter(c.ID, models.CharacterPatch{Name: models.String("賽佛")}); err != nil {
		t.Fatal(err)
	}
	if _, err := project.UpdateCharacter("missing", models.CharacterPatch{Name: models.String("x")}); !apperrors.IsNotFoundError(err) {
		t.Fatal("未知角色应返回 NotFound")
	}

	w := project.AddSetting()
	if _, err := project.UpdateSetting(w.ID, models.SettingPatch{Description: models.String("霓虹雨夜")}); err != nil {
		t.Fatal(err)
	}
	if _, err := project.UpdateSetting("missing", models.SettingPatch{}); !apperrors.IsNotFoundError(err) {
		t.Fatal("未知设定应返回 NotFound")
	}

	pc := project.Context()
	if pc.Characters[0].Name != "賽佛" || pc.Settings[0].Description != "霓虹雨夜" {
		t.Fatalf("上下文错误: %+v", pc)
	}

	if err := project.RemoveCharacter(c.ID); err != nil {
		t.Fatal(err)
	}
	if err := project.RemoveSetting(w.ID); err != nil {
		t.Fatal(err)
	}
	if !project.Context().IsEmpty() {
		t.Fatal("删除后上下文应为空")
	}
}

func TestUpdateCharacterAppliesPatchOnce(t *testing.T) {
	project := NewProjectService(nil)
	c := project.AddCharacter()

	notified := 0
	var last models.ProjectState
	project.OnChange(func(state models.ProjectState) {
		notified++
		last = state
	})

	updated, err := project.UpdateCharacter(c.ID, models.CharacterPatch{
		Name:        models.String("賽佛"),
		Description: models.String("银发，义眼"),
		ImageURL:    models.String("data:image/png;base64,AAA"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if notified != 1 {
		t.Fatalf("一次更新只应通知一次, 实际 %d", notified)
	}
	if updated.Name != "賽佛" || updated.Description != "银发，义眼" || updated.ImageURL != "data:image/png;base64,AAA" {
		t.Fatalf("返回的角色错误: %+v", updated)
	}
	if got := last.Context.Characters[0]; got != updated {
		t.Fatalf("通知中的状态应包含全部修改: %+v", got)
	}

	// 参考图不合法时其余字段也不生效
	_, err = project.UpdateCharacter(c.ID, models.CharacterPatch{
		Name:     models.String("改名"),
		ImageURL: models.String("https://example.com/a.png"),
	})
	if !apperrors.IsValidationError(err) {
		t.Fatalf("参考图必须是 data URL: %v", err)
	}
	if notified != 1 {
		t.Fatal("校验失败时不应通知")
	}
	if got, _ := project.Context().FindCharacter(c.ID); got.Name != "賽佛" {
		t.Fatalf("校验失败时不应修改名字: %s", got.Name)
	}

	// 空字符串清除参考图
	cleared, err := project.UpdateCharacter(c.ID, models.CharacterPatch{ImageURL: models.String("")})
	if err != nil || cleared.ImageURL != "" || cleared.Name != "賽佛" {
		t.Fatalf("清除参考图失败: %+v %v", cleared, err)
	}
}

func TestSetArtStyleAndViewModeValidation(t *testing.T) {
	project := NewProjectService(nil)
	if err := project.SetArtStyle("unknown"); !apperrors.IsValidationError(err) {
		t.Fatal("未知画风应返回校验错误")
	}
	if err := project.SetViewMode("GRID"); !apperrors.IsValidationError(err) {
		t.Fatal("未知视图应返回校验错误")
	}
}

func TestResetProjectIsAtomic(t *testing.T) {
	project := NewProjectService(nil)
	project.ReplaceScenes(testScenes("s1"))
	project.AddCharacter()
	project.SetScriptText("自訂腳本")
	project.SetViewMode(models.ViewModeBoard)

	var mu sync.Mutex
	var states []models.ProjectState
	project.OnChange(func(state models.ProjectState) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
	})

	project.ResetProject()

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 1 {
		t.Fatalf("重置应只通知一次, 实际 %d", len(states))
	}
	state := states[0]
	if len(state.Scenes) != 0 || !state.Context.IsEmpty() || state.ScriptText != models.DefaultScript || state.ViewMode != models.ViewModeInput {
		t.Fatalf("重置后的状态错误: %+v", state)
	}
	if state.Context.ArtStyleID != models.DefaultStyleID {
		t.Fatalf("重置后画风应为默认值: %s", state.Context.ArtStyleID)
	}
}
