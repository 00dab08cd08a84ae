// internal/gateway/prompts.go
package gateway

import (
	"fmt"
	"strings"

	"github.com/Corphon/AnimeStoryboard/internal/models"
	"google.golang.org/genai"
)

// 使用的模型
const (
	AnalysisModel    = "gemini-2.5-flash"
	AnalysisProModel = "gemini-3-pro-preview"
	ImageModel       = "gemini-2.5-flash-image"
	VideoModel       = "veo-3.1-fast-generate-preview"
	SpeechModel      = "gemini-2.5-flash-preview-tts"
	DefaultVoice     = "Kore"

	videoPromptPrefix  = "Vertical video, 9:16 aspect ratio, anime style, "
	defaultMusicPrompt = "Cinematic anime background music"
)

const analysisSystemInstruction = "你是一位專精於直式短影音的動漫分鏡師。所有畫面設計都必須基於 9:16 的豎屏比例。影片提示詞 (Video Prompt) 必須包含 'Anime style, 9:16 vertical'。"

// analysisSchema 分析结果的 JSON 结构约束
func analysisSchema() *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}

	scene := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"script":            str("此分鏡涵蓋的原始小說文本片段"),
			"visualDescription": str("詳細的動漫畫面描述 (Prompt)。請強調「豎構圖 (Vertical Composition)」。描述角色在畫面中的位置（如：佔據畫面下半部、從頂部俯視等）。"),
			"videoPrompt":       str("專為 Veo 影片生成模型設計的英文提示詞。格式範例: 'Anime style, vertical video, 9:16, [Character Action], [Camera Movement], cinematic lighting'."),
			"narration":         str("旁白、台詞或字幕內容"),
			"duration":          {Type: genai.TypeNumber, Description: "預估秒數 (短影音節奏通常較快，約 2-5秒)"},
			"cameraAngle":       str("建議的運鏡方式 (如：滑動變焦、特寫、荷蘭式傾斜)"),
			"bgm":               str("建議的背景音樂情緒"),
			"soundEffects": {
				Type:        genai.TypeArray,
				Items:       &genai.Schema{Type: genai.TypeString},
				Description: "音效列表",
			},
			"order": {Type: genai.TypeInteger, Description: "鏡頭序號"},
		},
		Required: []string{"script", "visualDescription", "videoPrompt", "narration", "duration", "cameraAngle", "bgm", "order"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"scenes": {Type: genai.TypeArray, Items: scene},
		},
	}
}

// contextBlock 角色与世界观设定段落，没有设定时为空
func contextBlock(pc models.ProjectContext) string {
	var b strings.Builder
	if len(pc.Characters) > 0 {
		b.WriteString("\n\n【角色設定 (Character Sheets)】:")
		for _, c := range pc.Characters {
			fmt.Fprintf(&b, "\n- %s: %s", c.Name, c.Description)
		}
	}
	if len(pc.Settings) > 0 {
		b.WriteString("\n\n【世界觀設定 (World Setting)】:")
		for _, s := range pc.Settings {
			fmt.Fprintf(&b, "\n- %s: %s", s.Name, s.Description)
		}
	}
	return b.String()
}

func analysisPrompt(text string, pc models.ProjectContext) string {
	return `你是一位頂尖的動漫導演，專精於製作 TikTok/Reels 風格的「直式動漫短影音 (Vertical Anime Shorts)」。
請將以下小說文本改編為適合手機全螢幕觀看的動態分鏡。

設計重點：
1. **豎屏構圖 (9:16)**：思考如何在狹長的畫面中安排角色與背景。善用垂直空間（如天空、高樓）。
2. **動漫風格**：使用動漫術語描述畫面（如：誇張的透視、速度線、強調表情特寫）。
3. **短影音節奏**：剪輯要明快，吸引注意力。
4. 除了 "videoPrompt" 必須使用英文外，其他欄位請使用 **繁體中文 (台灣)**。` +
		contextBlock(pc) + "\n\n小說文本：\n" + text
}

// imagePrompt 生成图像提示词，refNames 为实际附带了参考图的角色
func imagePrompt(desc, style string, refNames []string) string {
	var b strings.Builder
	if len(refNames) > 0 {
		fmt.Fprintf(&b, "INSTRUCTIONS: You are provided with character reference images. You MUST generate the character \"%s\" looking consistent with the reference [Reference Image x]. Maintain their hair style, hair color, eye color, and clothing details exactly.\n",
			strings.Join(refNames, ", "))
	}
	fmt.Fprintf(&b, "(masterpiece), best quality, %s, 9:16 vertical aspect ratio, mobile wallpaper.\nSCENE DESCRIPTION: %s", style, desc)
	return b.String()
}

func videoPrompt(prompt string) string {
	return videoPromptPrefix + prompt
}

func refinePrompt(current, instruction string) string {
	return fmt.Sprintf("原始文本: %q\n\n修改指令: %s\n\n請根據指令重寫文本，僅返回重寫後的內容。", current, instruction)
}

func optimizeMotionPrompt(current, instruction string) string {
	return fmt.Sprintf(`Role: You are an expert Anime Video Prompt Engineer for Veo / Runway.
Task: Rewrite the user's description into a high-quality ENGLISH prompt for generating a VERTICAL (9:16) ANIME video.

Input: %q
User Instruction: %q

Requirements:
1. Start with "Anime style, vertical video, 9:16 aspect ratio, ...".
2. Describe the character visually (hair, clothes, eyes).
3. Describe the ACTION clearly (e.g., "wind blowing hair", "turning head slowly", "running towards camera").
4. Add camera movement (e.g., "slow dolly in", "handheld camera shake").
5. Add lighting/atmosphere (e.g., "cinematic lighting", "sunset glow", "cyberpunk neon").
6. Output ONLY the prompt string.`, current, instruction)
}

func soundDesignPrompt(desc, mood string) string {
	return fmt.Sprintf(`Act as a professional Anime Sound Designer.
Analyze the following scene and provide:
1. "bgmPrompt": A detailed English music generation prompt (for tools like Suno/Udio). Include genre (e.g., Lo-fi, Orchestral, Rock), BPM, instruments, and mood.
2. "sfxList": A list of specific Sound Effects (SFX) needed (e.g., "footsteps on puddle", "distant thunder", "mecha servo motor").

Scene: %q
Current Mood: %q

Output in JSON format: {"bgmPrompt": string, "sfxList": string[]}.`, desc, mood)
}
