// internal/models/analyzer.go
package models

// SceneDraft 分析模型返回的分镜草稿，不含ID和媒体字段
type SceneDraft struct {
	Order             int      `json:"order"`
	Script            string   `json:"script"`
	VisualDescription string   `json:"visualDescription"`
	VideoPrompt       string   `json:"videoPrompt"`
	Narration         string   `json:"narration"`
	Duration          float64  `json:"duration"`
	CameraAngle       string   `json:"cameraAngle"`
	BGM               string   `json:"bgm"`
	SoundEffects      []string `json:"soundEffects"`
}

// AnalysisResult 表示脚本分析的结果
type AnalysisResult struct {
	Scenes []SceneDraft `json:"scenes"`
}

// SoundDesign 音效设计结果
type SoundDesign struct {
	MusicPrompt string   `json:"bgmPrompt"`
	SFXList     []string `json:"sfxList"`
}

// Quality 分析使用的模型档位
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityPro      Quality = "pro"
)
