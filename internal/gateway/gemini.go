// internal/gateway/gemini.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/llm"
	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
	"google.golang.org/genai"
)

// ErrMissingAPIKey 未配置 Gemini 密钥
var ErrMissingAPIKey = errors.New("未配置 GEMINI_API_KEY")

// GeminiOptions GeminiGateway 的构造参数
type GeminiOptions struct {
	APIKey string
	// TextProvider 为空时使用同一个 genai 客户端完成文本改写
	TextProvider llm.Provider
	PollInterval time.Duration
	Voice        string
	Logger       *utils.Logger
}

// GeminiGateway 基于 google.golang.org/genai 的网关实现
type GeminiGateway struct {
	*TextTransformer

	client       *genai.Client
	apiKey       string
	pollInterval time.Duration
	voice        string
	logger       *utils.Logger
}

// NewGeminiGateway 创建网关；没有密钥时仍可创建，媒体调用会返回网关错误
func NewGeminiGateway(ctx context.Context, opts GeminiOptions) (*GeminiGateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = utils.GetLogger()
	}

	g := &GeminiGateway{
		apiKey:       opts.APIKey,
		pollInterval: opts.PollInterval,
		voice:        opts.Voice,
		logger:       logger,
	}
	if g.pollInterval <= 0 {
		g.pollInterval = 5 * time.Second
	}
	if g.voice == "" {
		g.voice = DefaultVoice
	}

	if opts.APIKey != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  opts.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("创建 genai 客户端失败: %w", err)
		}
		g.client = client
	}

	g.TextTransformer = NewTextTransformer(opts.TextProvider, logger)
	return g, nil
}

// Client 返回底层 genai 客户端，未配置密钥时为 nil
func (g *GeminiGateway) Client() *genai.Client {
	return g.client
}

// SetTextProvider 替换文本改写使用的提供者
func (g *GeminiGateway) SetTextProvider(p llm.Provider) {
	g.TextTransformer.SetProvider(p)
}

// HasAPIKey 是否配置了 Gemini 密钥，媒体生成依赖它
func (g *GeminiGateway) HasAPIKey() bool {
	return g.client != nil
}

// Analyze 调用分析模型并补全场景
func (g *GeminiGateway) Analyze(ctx context.Context, text string, quality models.Quality, pc models.ProjectContext) ([]models.Scene, error) {
	if g.client == nil {
		return nil, apperrors.NewAnalysisError("脚本分析失败", ErrMissingAPIKey)
	}

	model := AnalysisModel
	if quality == models.QualityPro {
		model = AnalysisProModel
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(analysisPrompt(text, pc)), &genai.GenerateContentConfig{
		ResponseMIMEType:  "application/json",
		ResponseSchema:    analysisSchema(),
		SystemInstruction: genai.NewContentFromText(analysisSystemInstruction, genai.RoleUser),
	})
	if err != nil {
		return nil, apperrors.NewAnalysisError("脚本分析失败", err)
	}

	raw := resp.Text()
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &result); err != nil {
		return nil, apperrors.NewAnalysisError("分析结果格式错误", err)
	}

	g.logger.Info("Script analyzed", map[string]interface{}{
		"model":  model,
		"scenes": len(result.Scenes),
	})
	return HydrateScenes(result.Scenes, pc), nil
}

// GenerateImage 生成竖屏图像，附带角色参考图
func (g *GeminiGateway) GenerateImage(ctx context.Context, desc, style string, pc models.ProjectContext, activeIDs []string) (string, error) {
	if g.client == nil {
		return "", apperrors.NewImageGenerationError("图片生成失败", ErrMissingAPIKey)
	}

	refs := SelectReferenceCharacters(pc, desc, activeIDs)
	parts := make([]*genai.Part, 0, len(refs)+1)
	var refNames []string
	for _, c := range refs {
		if c.ImageURL == "" {
			continue
		}
		data, mimeType, err := DecodeDataURL(c.ImageURL)
		if err != nil {
			g.logger.Warn("Skipping invalid character reference image", map[string]interface{}{
				"character_id": c.ID,
				"error":        err.Error(),
			})
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimeType))
		refNames = append(refNames, c.Name)
	}
	parts = append(parts, genai.NewPartFromText(imagePrompt(desc, style, refNames)))

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := g.client.Models.GenerateContent(ctx, ImageModel, contents, nil)
	if err != nil {
		return "", apperrors.NewImageGenerationError("图片生成失败", err)
	}

	if blob := firstInlineData(resp); blob != nil {
		return EncodeDataURL(blob.MIMEType, blob.Data), nil
	}
	return "", apperrors.NewImageGenerationError("图片生成失败：模型未返回图像数据，可能触发了安全过滤 (Safety Filter) 或连接问题。", nil)
}

// GenerateVideo 提交视频任务并轮询直到完成
func (g *GeminiGateway) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", apperrors.NewVideoGenerationError("视频生成失败", ErrMissingAPIKey)
	}

	op, err := g.client.Models.GenerateVideos(ctx, VideoModel, videoPrompt(prompt), nil, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     "720p",
		AspectRatio:    "9:16",
	})
	if err != nil {
		return "", apperrors.NewVideoGenerationError("视频生成失败", err)
	}

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			return "", apperrors.NewVideoGenerationError("视频生成已取消", ctx.Err())
		case <-ticker.C:
		}

		op, err = g.client.Operations.GetVideosOperation(ctx, op, nil)
		if err != nil {
			return "", apperrors.NewVideoGenerationError("查询视频任务失败", err)
		}
	}

	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
		return "", apperrors.NewVideoGenerationError("Video generation failed: No URI", nil)
	}

	video := op.Response.GeneratedVideos[0].Video
	switch {
	case video.URI != "":
		return withAPIKey(video.URI, g.apiKey), nil
	case len(video.VideoBytes) > 0:
		mimeType := video.MIMEType
		if mimeType == "" {
			mimeType = "video/mp4"
		}
		return EncodeDataURL(mimeType, video.VideoBytes), nil
	default:
		return "", apperrors.NewVideoGenerationError("Video generation failed: No URI", nil)
	}
}

// GenerateSpeech 文本转语音，返回 WAV data URL
func (g *GeminiGateway) GenerateSpeech(ctx context.Context, text string) (string, error) {
	if g.client == nil {
		return "", apperrors.NewSpeechGenerationError("语音生成失败", ErrMissingAPIKey)
	}

	resp, err := g.client.Models.GenerateContent(ctx, SpeechModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: g.voice},
			},
		},
	})
	if err != nil {
		return "", apperrors.NewSpeechGenerationError("语音生成失败", err)
	}

	blob := firstInlineData(resp)
	if blob == nil || len(blob.Data) == 0 {
		return "", apperrors.NewSpeechGenerationError("No audio data returned", nil)
	}
	return EncodeDataURL("audio/wav", EncodeWAV(blob.Data, SpeechSampleRate)), nil
}

func firstInlineData(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil {
			return part.InlineData
		}
	}
	return nil
}

// withAPIKey 视频下载地址需要附带密钥
func withAPIKey(uri, key string) string {
	if key == "" {
		return uri
	}
	sep := "&"
	if !strings.Contains(uri, "?") {
		sep = "?"
	}
	return uri + sep + "key=" + key
}
