// internal/gateway/hydrate.go
package gateway

import (
	"strings"

	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/google/uuid"
)

// HydrateScenes 把分析草稿转成完整场景：分配ID、补齐默认值、按名字识别出场角色
func HydrateScenes(drafts []models.SceneDraft, pc models.ProjectContext) []models.Scene {
	scenes := make([]models.Scene, 0, len(drafts))
	for _, d := range drafts {
		s := models.Scene{
			ID:                uuid.NewString(),
			Order:             d.Order,
			Script:            d.Script,
			VisualDescription: d.VisualDescription,
			VideoPrompt:       d.VideoPrompt,
			Narration:         d.Narration,
			Duration:          d.Duration,
			CameraAngle:       d.CameraAngle,
			BGM:               d.BGM,
			SoundEffects:      d.SoundEffects,
		}
		if s.SoundEffects == nil {
			s.SoundEffects = []string{}
		}
		if strings.TrimSpace(s.VideoPrompt) == "" {
			s.VideoPrompt = s.VisualDescription
		}
		s.ActiveCharacterIDs = detectCharacters(pc, s.VisualDescription+" "+s.Narration)
		scenes = append(scenes, s)
	}
	return scenes
}

func detectCharacters(pc models.ProjectContext, text string) []string {
	ids := []string{}
	lower := strings.ToLower(text)
	for _, c := range pc.Characters {
		if c.Name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(c.Name)) {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
