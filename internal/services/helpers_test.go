package services

import (
	"context"
	"sync"

	apperrors "github.com/Corphon/AnimeStoryboard/internal/errors"
	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/Corphon/AnimeStoryboard/internal/storage"
)

// fakeGateway 记录调用次数，failOn 中的描述/旁白会返回错误
type fakeGateway struct {
	mu          sync.Mutex
	imageCalls  []string
	styles      []string
	speechCalls []string
	videoCalls  []string
	failOn      map[string]bool
	analyzed    []models.Scene
	block       chan struct{}

	// refineBlock 非空时 RefineText 阻塞，开始时把指令写入 refineStarted
	refineBlock   chan struct{}
	refineStarted chan string
	refineCtxErrs []error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failOn: map[string]bool{}}
}

func (g *fakeGateway) Analyze(ctx context.Context, text string, quality models.Quality, pc models.ProjectContext) ([]models.Scene, error) {
	if g.failOn[text] {
		return nil, apperrors.NewAnalysisError("分析失败", nil)
	}
	return models.CloneScenes(g.analyzed), nil
}

func (g *fakeGateway) GenerateImage(ctx context.Context, desc, style string, pc models.ProjectContext, activeIDs []string) (string, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	g.imageCalls = append(g.imageCalls, desc)
	g.styles = append(g.styles, style)
	g.mu.Unlock()
	if g.failOn[desc] {
		return "", apperrors.NewImageGenerationError("生成失败", nil)
	}
	return "data:image/png;base64,AAAA", nil
}

func (g *fakeGateway) GenerateVideo(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.videoCalls = append(g.videoCalls, prompt)
	g.mu.Unlock()
	return "https://video.example/v.mp4?key=k", nil
}

func (g *fakeGateway) GenerateSpeech(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	g.speechCalls = append(g.speechCalls, text)
	g.mu.Unlock()
	if g.failOn[text] {
		return "", apperrors.NewSpeechGenerationError("生成失败", nil)
	}
	return "data:audio/wav;base64,UklGRg==", nil
}

func (g *fakeGateway) RefineText(ctx context.Context, current, instruction string) string {
	if g.refineStarted != nil {
		g.refineStarted <- instruction
	}
	if g.refineBlock != nil {
		<-g.refineBlock
	}
	g.mu.Lock()
	g.refineCtxErrs = append(g.refineCtxErrs, ctx.Err())
	g.mu.Unlock()
	return current + "|" + instruction
}

func (g *fakeGateway) OptimizeMotionPrompt(ctx context.Context, current, instruction string) string {
	return "motion:" + current
}

func (g *fakeGateway) DesignSound(ctx context.Context, desc, mood string) models.SoundDesign {
	return models.SoundDesign{MusicPrompt: mood + " strings", SFXList: []string{"rain"}}
}

func (g *fakeGateway) calls() (images, speech int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.imageCalls), len(g.speechCalls)
}

// memoryStore 内存快照存储
type memoryStore struct {
	mu     sync.Mutex
	data   []byte
	saves  int
	loadFn func() ([]byte, error)
}

func (m *memoryStore) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadFn != nil {
		return m.loadFn()
	}
	if m.data == nil {
		return nil, storage.ErrSnapshotNotFound
	}
	return append([]byte(nil), m.data...), nil
}

func (m *memoryStore) Save(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

func (m *memoryStore) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}

func (m *memoryStore) stored() ([]byte, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...), m.saves
}

func testScenes(descs ...string) []models.Scene {
	scenes := make([]models.Scene, 0, len(descs))
	for i, d := range descs {
		scenes = append(scenes, models.Scene{
			ID:                 d,
			Order:              i + 1,
			VisualDescription:  d,
			SoundEffects:       []string{},
			ActiveCharacterIDs: []string{},
		})
	}
	return scenes
}
