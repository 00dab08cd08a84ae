// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Corphon/AnimeStoryboard/internal/api"
	"github.com/Corphon/AnimeStoryboard/internal/config"
	"github.com/Corphon/AnimeStoryboard/internal/di"
	"github.com/Corphon/AnimeStoryboard/internal/gateway"
	"github.com/Corphon/AnimeStoryboard/internal/llm"
	"github.com/Corphon/AnimeStoryboard/internal/llm/providers/google"
	_ "github.com/Corphon/AnimeStoryboard/internal/llm/providers/openai"
	"github.com/Corphon/AnimeStoryboard/internal/models"
	"github.com/Corphon/AnimeStoryboard/internal/services"
	"github.com/Corphon/AnimeStoryboard/internal/storage"
	"github.com/Corphon/AnimeStoryboard/internal/utils"
	"golang.org/x/sync/errgroup"
)

// 关闭时等待的最长时间
const shutdownTimeout = 30 * time.Second

// 进度记录保留时间
const progressRetention = 30 * time.Minute

// httpServer 便于测试替换
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App 组装所有服务并管理生命周期
type App struct {
	config    *config.AppConfig
	container *di.Container
	logger    *utils.Logger

	handler *api.Handler
	hub     *api.ProgressHub
	server  httpServer

	// 批量任务使用的 ctx，关闭时取消
	batchCtx    context.Context
	cancelBatch context.CancelFunc
}

// InitServices 按依赖顺序创建服务并注册到容器
func InitServices(ctx context.Context, cfg *config.AppConfig, container *di.Container) error {
	logger := utils.GetLogger()
	logger.SetLogLevel(utils.ParseLogLevel(cfg.LogLevel))
	container.Register(di.Logger, logger)

	metrics := utils.NewGenerationMetricsWith(utils.GetMetricsCollector(), logger)
	container.Register(di.Metrics, metrics)

	overrides, err := config.LoadStyles(cfg.StylesFile)
	if err != nil {
		return err
	}
	styles := models.NewStyleCatalog(overrides)
	container.Register(di.Styles, styles)

	store, err := newSnapshotStore(cfg)
	if err != nil {
		return err
	}
	container.Register(di.Snapshots, store)

	gw, err := gateway.NewGeminiGateway(ctx, gateway.GeminiOptions{
		APIKey: cfg.GeminiAPIKey,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("初始化生成网关失败: %w", err)
	}
	if provider := newTextProvider(cfg, gw, logger); provider != nil {
		gw.SetTextProvider(provider)
		container.Register(di.LLM, provider)
	}
	container.Register(di.Gateway, gw)

	project := services.NewProjectService(styles)
	container.Register(di.Project, project)

	autosave := services.NewAutosaveService(project, store, cfg.AutosaveDebounce, logger)
	container.Register(di.Autosave, autosave)

	progress := services.NewProgressService()
	container.Register(di.Progress, progress)

	container.Register(di.Generation, services.NewGenerationService(project, gw, progress, metrics, logger))
	container.Register(di.Config, services.NewConfigService(gw, logger))

	logger.Info("Services initialized", map[string]interface{}{
		"autosave_backend": cfg.AutosaveBackend,
		"llm_provider":     cfg.LLMProvider,
		"styles":           len(styles.List()),
		"gemini_enabled":   gw.HasAPIKey(),
	})
	return nil
}

func newSnapshotStore(cfg *config.AppConfig) (storage.SnapshotStore, error) {
	switch cfg.AutosaveBackend {
	case config.AutosaveBackendRedis:
		store, err := storage.NewRedisSnapshotStore(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("连接 Redis 失败: %w", err)
		}
		return store, nil
	default:
		files, err := storage.NewFileStorage(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("初始化文件存储失败: %w", err)
		}
		return storage.NewFileSnapshotStore(files), nil
	}
}

// newTextProvider 文本改写使用的提供者；google 与网关共用 genai 客户端
func newTextProvider(cfg *config.AppConfig, gw *gateway.GeminiGateway, logger *utils.Logger) llm.Provider {
	if cfg.LLMProvider == "" || cfg.LLMProvider == "google" {
		if gw.Client() == nil {
			logger.Warn("Text transforms disabled: no Gemini key", nil)
			return nil
		}
		return google.NewWithClient(gw.Client(), cfg.LLMConfig["default_model"])
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		logger.Warn("Text provider unavailable, transforms will return input", map[string]interface{}{
			"provider": cfg.LLMProvider,
			"error":    err.Error(),
		})
		return nil
	}
	return provider
}

// New 从容器中取出服务并创建 HTTP 服务器
func New(cfg *config.AppConfig, container *di.Container) (*App, error) {
	logger, err := di.Resolve[*utils.Logger](container, di.Logger)
	if err != nil {
		return nil, err
	}
	metrics, err := di.Resolve[*utils.GenerationMetrics](container, di.Metrics)
	if err != nil {
		return nil, err
	}
	project, err := di.Resolve[*services.ProjectService](container, di.Project)
	if err != nil {
		return nil, err
	}
	autosave, err := di.Resolve[*services.AutosaveService](container, di.Autosave)
	if err != nil {
		return nil, err
	}
	progress, err := di.Resolve[*services.ProgressService](container, di.Progress)
	if err != nil {
		return nil, err
	}
	generation, err := di.Resolve[*services.GenerationService](container, di.Generation)
	if err != nil {
		return nil, err
	}
	settings, err := di.Resolve[*services.ConfigService](container, di.Config)
	if err != nil {
		return nil, err
	}

	batchCtx, cancel := context.WithCancel(context.Background())
	hub := api.NewProgressHub(progress, logger)
	handler := api.NewHandler(batchCtx, project, autosave, generation, progress, hub, metrics, logger)
	handler.Config = settings
	router := api.SetupRouter(handler, api.RouterOptions{
		DebugMode:     cfg.DebugMode,
		RatePerSecond: 20,
		RateBurst:     40,
	})

	return &App{
		config:    cfg,
		container: container,
		logger:    logger,
		handler:   handler,
		hub:       hub,
		server: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		batchCtx:    batchCtx,
		cancelBatch: cancel,
	}, nil
}

// GetConfig 返回应用配置
func (a *App) GetConfig() *config.AppConfig {
	return a.config
}

// IsDebugMode 是否为调试模式
func (a *App) IsDebugMode() bool {
	return a != nil && a.config != nil && a.config.DebugMode
}

// Run 启动服务直到 ctx 结束，然后按顺序关闭
func (a *App) Run(ctx context.Context) error {
	if info, err := a.handler.Autosave.CheckRestore(ctx); err != nil {
		a.logger.Warn("Autosave check failed", map[string]interface{}{"error": err.Error()})
	} else if info != nil {
		a.logger.Info("Unsaved progress found", map[string]interface{}{
			"timestamp": time.UnixMilli(info.Timestamp).Format(time.RFC3339),
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.handler.Progress.CleanupCompletedTasks(progressRetention)
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		a.logger.Info("HTTP server listening", map[string]interface{}{"port": a.config.Port})
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务异常: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

// shutdown 停止接收请求，等待批量任务，再写入未保存的快照
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.logger.Info("Shutting down", nil)
	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("关闭 HTTP 服务失败: %w", err))
	}

	a.cancelBatch()
	a.handler.WaitBatches()

	if err := a.handler.Autosave.Flush(ctx); err != nil {
		errs = append(errs, fmt.Errorf("写入快照失败: %w", err))
	}

	return errors.Join(errs...)
}
