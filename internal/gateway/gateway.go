// internal/gateway/gateway.go
package gateway

import (
	"context"

	"github.com/Corphon/AnimeStoryboard/internal/models"
)

// Gateway 生成式 AI 服务的统一入口。
// 媒体类方法失败时返回对应类型的 AppError；文本改写类方法从不失败，出错时回退到输入
type Gateway interface {
	// Analyze 把文本拆成分镜，返回的场景已分配ID
	Analyze(ctx context.Context, text string, quality models.Quality, pc models.ProjectContext) ([]models.Scene, error)
	// GenerateImage 返回图像 data URL
	GenerateImage(ctx context.Context, desc, style string, pc models.ProjectContext, activeIDs []string) (string, error)
	// GenerateVideo 返回可播放的视频地址
	GenerateVideo(ctx context.Context, prompt string) (string, error)
	// GenerateSpeech 返回 WAV data URL
	GenerateSpeech(ctx context.Context, text string) (string, error)

	RefineText(ctx context.Context, current, instruction string) string
	OptimizeMotionPrompt(ctx context.Context, current, instruction string) string
	DesignSound(ctx context.Context, desc, mood string) models.SoundDesign
}
