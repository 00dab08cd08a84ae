// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"
)

// RouterOptions 路由配置
type RouterOptions struct {
	DebugMode bool
	// 每个客户端每秒请求数与突发数，<=0 时不限流
	RatePerSecond float64
	RateBurst     int
}

// SetupRouter 配置HTTP路由
func SetupRouter(handler *Handler, opts RouterOptions) *gin.Engine {
	if !opts.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(handler.logger))
	r.Use(corsMiddleware())
	if handler.Metrics != nil {
		r.Use(MetricsMiddleware(handler.Metrics))
	}

	r.GET("/health", handler.GetHealth)

	api := r.Group("/api")
	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		api.Use(RateLimitMiddleware(NewRateLimiter(opts.RatePerSecond, burst)))
	}
	{
		// ===============================
		// 项目
		// ===============================
		projectGroup := api.Group("/project")
		{
			projectGroup.GET("", handler.GetProject)
			projectGroup.POST("/new", handler.NewProject)
			projectGroup.PUT("/script", handler.SetScript)
			projectGroup.PUT("/view", handler.SetView)
			projectGroup.PUT("/style", handler.SetStyle)
			projectGroup.POST("/analyze", handler.Analyze)
			projectGroup.GET("/export", handler.ExportProject)
			projectGroup.POST("/import", handler.ImportProject)
		}

		// ===============================
		// 自动保存
		// ===============================
		autosaveGroup := api.Group("/autosave")
		{
			autosaveGroup.GET("", handler.CheckRestore)
			autosaveGroup.POST("/restore", handler.Restore)
			autosaveGroup.POST("/discard", handler.Discard)
		}

		// ===============================
		// 角色与世界观设定
		// ===============================
		charactersGroup := api.Group("/characters")
		{
			charactersGroup.GET("", handler.GetCharacters)
			charactersGroup.POST("", handler.CreateCharacter)
			charactersGroup.PUT("/:id", handler.UpdateCharacter)
			charactersGroup.DELETE("/:id", handler.DeleteCharacter)
		}

		settingsGroup := api.Group("/settings")
		{
			settingsGroup.GET("", handler.GetSettings)
			settingsGroup.POST("", handler.CreateSetting)
			settingsGroup.PUT("/:id", handler.UpdateSetting)
			settingsGroup.DELETE("/:id", handler.DeleteSetting)
		}

		// ===============================
		// 场景
		// ===============================
		scenesGroup := api.Group("/scenes")
		{
			scenesGroup.GET("", handler.GetScenes)
			scenesGroup.POST("/next", handler.NextScene)
			scenesGroup.POST("/prev", handler.PrevScene)
			scenesGroup.GET("/:id", handler.GetScene)
			scenesGroup.PATCH("/:id", handler.UpdateScene)
			scenesGroup.POST("/:id/select", handler.SelectScene)
			scenesGroup.POST("/:id/characters/:charId/toggle", handler.ToggleSceneCharacter)

			scenesGroup.POST("/:id/image", handler.GenerateSceneImage)
			scenesGroup.POST("/:id/video", handler.GenerateSceneVideo)
			scenesGroup.POST("/:id/audio", handler.GenerateSceneAudio)
			scenesGroup.POST("/:id/sound", handler.DesignSceneSound)
			scenesGroup.POST("/:id/refine", handler.RefineScene)
			scenesGroup.POST("/:id/optimize-video", handler.OptimizeSceneVideo)
		}

		// ===============================
		// 批量生成
		// ===============================
		batchGroup := api.Group("/batch")
		{
			batchGroup.POST("/images", handler.StartImageBatch)
			batchGroup.POST("/audio", handler.StartAudioBatch)
			batchGroup.GET("/status", handler.GetBatchStatus)
		}

		// 运行时配置
		api.GET("/config", handler.GetConfig)
		api.PUT("/config", handler.UpdateConfig)

		// 预设与派生数据
		api.GET("/styles", handler.GetStyles)
		api.GET("/camera-angles", handler.GetCameraAngles)
		api.GET("/timeline", handler.GetTimeline)
		api.GET("/metrics", handler.GetMetrics)

		// WebSocket 进度推送
		api.GET("/ws/progress", handler.ProgressWebSocket)
	}

	return r
}
