package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Corphon/AnimeStoryboard/internal/config"
	"github.com/Corphon/AnimeStoryboard/internal/di"
	"github.com/Corphon/AnimeStoryboard/internal/services"
)

// mockServer 阻塞到 Shutdown 被调用
type mockServer struct {
	stopped  chan struct{}
	shutdown bool
}

func newMockServer() *mockServer {
	return &mockServer{stopped: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	<-m.stopped
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(ctx context.Context) error {
	if !m.shutdown {
		m.shutdown = true
		close(m.stopped)
	}
	return nil
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		Port:             "0",
		DataDir:          t.TempDir(),
		LogLevel:         "error",
		LLMProvider:      "google",
		LLMConfig:        map[string]string{},
		AutosaveBackend:  config.AutosaveBackendFile,
		AutosaveDebounce: time.Hour,
	}
}

func newTestApp(t *testing.T) (*App, *di.Container) {
	t.Helper()
	cfg := testConfig(t)
	container := di.NewContainer()
	if err := InitServices(context.Background(), cfg, container); err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}
	a, err := New(cfg, container)
	if err != nil {
		t.Fatalf("创建应用失败: %v", err)
	}
	return a, container
}

func TestInitServicesRegistersAll(t *testing.T) {
	_, container := newTestApp(t)

	for _, name := range []string{di.Logger, di.Metrics, di.Styles, di.Snapshots, di.Gateway,
		di.Project, di.Autosave, di.Progress, di.Generation, di.Config} {
		if !container.Has(name) {
			t.Errorf("服务未注册: %s", name)
		}
	}
	// 没有密钥时不注册文本提供者
	if container.Has(di.LLM) {
		t.Error("无密钥时不应注册文本提供者")
	}
}

func TestNewRequiresServices(t *testing.T) {
	if _, err := New(testConfig(t), di.NewContainer()); err == nil {
		t.Fatal("空容器应返回错误")
	}
}

func TestRunFlushesOnShutdown(t *testing.T) {
	a, container := newTestApp(t)
	server := newMockServer()
	a.server = server

	project, _ := di.Resolve[*services.ProjectService](container, di.Project)
	autosave, _ := di.Resolve[*services.AutosaveService](container, di.Autosave)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	project.SetScriptText("第一幕")
	if !autosave.Pending() {
		t.Fatal("修改后应有待写入的快照")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("关闭返回错误: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("关闭超时")
	}

	if !server.shutdown {
		t.Error("HTTP 服务未关闭")
	}
	if autosave.Pending() {
		t.Error("关闭时应写入待保存的快照")
	}
	info, err := autosave.CheckRestore(context.Background())
	if err != nil || info == nil {
		t.Fatalf("应存在可恢复的快照: %v", err)
	}
}

func TestIsDebugMode(t *testing.T) {
	var a *App
	if a.IsDebugMode() {
		t.Error("nil 应用不应处于调试模式")
	}
	a = &App{config: &config.AppConfig{DebugMode: true}}
	if !a.IsDebugMode() || a.GetConfig() == nil {
		t.Error("调试模式读取错误")
	}
}
